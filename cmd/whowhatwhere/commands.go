package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/petems/whowhatwhere/internal/alert"
	"github.com/petems/whowhatwhere/internal/capture"
	"github.com/petems/whowhatwhere/internal/config"
	"github.com/petems/whowhatwhere/internal/history"
	"github.com/petems/whowhatwhere/internal/logging"
	"github.com/petems/whowhatwhere/internal/preset"
	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/spf13/cobra"
)

// Flags for history
var (
	flagLimit int
	flagClear bool
)

// Flags for replay
var (
	flagPreset  string
	flagFilter  string
	flagPerRule bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture interfaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := capture.ListDevices()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESSES\tDESCRIPTION")
		for _, d := range devices {
			addrs := make([]string, 0, len(d.Addresses))
			for _, a := range d.Addresses {
				addrs = append(addrs, a.String())
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, strings.Join(addrs, ","), d.Description)
		}
		return w.Flush()
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List rule presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		store := preset.NewFileStore(config.PresetsPath())
		names, err := store.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No presets in %s\n", store.Dir())
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tRULES\t")
		for _, name := range names {
			count := "?"
			if rules, err := store.Load(name); err == nil {
				count = fmt.Sprint(len(rules))
			}
			marker := ""
			if name == cfg.Watchdog.Preset {
				marker = "(startup)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, count, marker)
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently dispatched alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(config.HistoryPath())
		if err != nil {
			return err
		}
		defer store.Close()

		if flagClear {
			return store.Clear(cmd.Context())
		}

		entries, err := store.Recent(cmd.Context(), flagLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tRULE\tMESSAGE\tPACKET")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.Time.Local().Format(time.DateTime), e.RuleIndex+1, e.Message, e.Summary)
		}
		return w.Flush()
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <file.pcap>",
	Short: "Run a preset against a capture file",
	Long: `Replay reads a pcap file through the watchdog and prints every alert it
would raise. Cooldowns use the packet timestamps from the file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd, args[0])
	},
}

func runReplay(cmd *cobra.Command, file string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.NewWithLevel(cfg.LogLevel)

	name := flagPreset
	if name == "" {
		name = cfg.Watchdog.Preset
	}
	rules, err := preset.NewFileStore(config.PresetsPath()).Load(name)
	if err != nil {
		return fmt.Errorf("failed to load preset %q: %w", name, err)
	}

	scope, err := watchdog.ParseCooldownScope(cfg.Watchdog.CooldownScope)
	if err != nil {
		return err
	}
	if flagPerRule {
		scope = watchdog.CooldownPerRule
	}

	out := cmd.OutOrStdout()
	dispatcher := alert.NewDispatcher(log)
	dispatcher.Tap(alert.ChannelFunc{
		ChannelName: "stdout",
		Fn: func(ctx context.Context, a watchdog.Alert) error {
			_, err := fmt.Fprintf(out, "%s  #%d  %s\n", a.Time.Format(time.TimeOnly), a.RuleIndex+1, alert.Text(a))
			return err
		},
	})

	var sourceErr error
	wd := watchdog.New(watchdog.Config{
		Rules:         watchdog.NewRuleSet(rules...),
		Dispatcher:    dispatcher,
		Cooldown:      time.Duration(cfg.Watchdog.CooldownSeconds) * time.Second,
		CooldownScope: scope,
		OnStateChange: func(s watchdog.State, err error) {
			if err != nil {
				sourceErr = err
			}
		},
		Log: log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	filter := flagFilter
	if filter == "" {
		filter = cfg.Watchdog.BPFFilter
	}
	src := capture.NewPcapSource(capture.Config{File: file, BPFFilter: filter}, log)
	if err := wd.Start(ctx, src); err != nil {
		return err
	}
	wd.Wait()

	fmt.Fprintf(out, "%d alerts from %s\n", wd.Matches(), file)
	return sourceErr
}
