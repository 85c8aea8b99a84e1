package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/petems/whowhatwhere/internal/alert"
	"github.com/petems/whowhatwhere/internal/app"
	"github.com/petems/whowhatwhere/internal/audio"
	"github.com/petems/whowhatwhere/internal/capture"
	"github.com/petems/whowhatwhere/internal/config"
	"github.com/petems/whowhatwhere/internal/feed"
	"github.com/petems/whowhatwhere/internal/history"
	"github.com/petems/whowhatwhere/internal/hotkey"
	"github.com/petems/whowhatwhere/internal/keyhook"
	"github.com/petems/whowhatwhere/internal/logging"
	"github.com/petems/whowhatwhere/internal/permissions"
	"github.com/petems/whowhatwhere/internal/preset"
	"github.com/petems/whowhatwhere/internal/speech"
	"github.com/petems/whowhatwhere/internal/tray"
	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/spf13/cobra"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

var flagConfig string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "whowhatwhere",
	Short: "Packet watchdog in the system tray",
	Long: `whowhatwhere watches network traffic against an ordered list of rules and
raises an alert (tray, speech, log, sound, clipboard) when a packet matches.

Run without arguments to start the tray application.

Examples:
  whowhatwhere                          # Start the tray application
  whowhatwhere devices                  # List capture interfaces
  whowhatwhere presets                  # List rule presets
  whowhatwhere history --limit 20       # Show recent alerts
  whowhatwhere replay dump.pcap -p home # Run a preset against a capture file`,
	Version:      Version,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTray()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (default: platform config dir)")

	historyCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "Number of alerts to show")
	historyCmd.Flags().BoolVar(&flagClear, "clear", false, "Delete all recorded alerts")

	replayCmd.Flags().StringVarP(&flagPreset, "preset", "p", "", "Preset to run (default: configured startup preset)")
	replayCmd.Flags().StringVarP(&flagFilter, "filter", "f", "", "BPF filter applied to the file")
	replayCmd.Flags().BoolVar(&flagPerRule, "per-rule", false, "Apply the cooldown per rule")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(replayCmd)
}

func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadFrom(flagConfig)
	}
	return config.Load()
}

func runTray() error {
	// Load config from XDG/Library/AppData
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	// macOS requires accessibility approval for hotkeys and BPF access for capture
	if err := permissions.EnsurePermissions(); err != nil {
		return fmt.Errorf("required permissions not granted: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []func() error
	dispatcher := alert.NewDispatcher(log)

	// Alert history backs the log channel
	var recorder alert.Recorder
	hist, err := history.Open(config.HistoryPath())
	if err != nil {
		log.Warn().Err(err).Msg("Alert history disabled")
	} else {
		recorder = hist
	}
	dispatcher.Route(watchdog.OutputLog, alert.NewLogChannel(log, recorder))

	speaker := speech.New(cfg.Speech.Command, cfg.Speech.Muted, log)
	dispatcher.Route(watchdog.OutputSpeech, speaker)
	dispatcher.Route(watchdog.OutputClipboard, alert.NewClipboardChannel())

	player, err := audio.New()
	if err != nil {
		log.Warn().Err(err).Msg("Sound alerts disabled")
	} else {
		dur := time.Duration(cfg.Sound.DurationMS) * time.Millisecond
		chime := audio.NewChime(player, cfg.Sound.Frequency, dur, log)
		dispatcher.Route(watchdog.OutputSound, chime)
		closers = append(closers, func() error {
			chime.Wait()
			return player.Close()
		})
	}

	if cfg.Feed.Addr != "" {
		hub := feed.NewHub(cfg.Feed.Addr, log)
		if err := hub.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Alert feed disabled")
		} else {
			dispatcher.Tap(hub)
			closers = append(closers, hub.Stop)
		}
	}

	source := capture.NewPcapSource(capture.Config{
		Device:      cfg.Watchdog.Interface,
		BPFFilter:   cfg.Watchdog.BPFFilter,
		Snaplen:     cfg.Watchdog.Snaplen,
		Promiscuous: cfg.Watchdog.Promiscuous,
	}, log)
	store := preset.NewFileStore(config.PresetsPath())

	// Initialize hotkey manager on the global key hook
	hkManager := hotkey.New(keyhook.New(log), log)

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, cfg, Version, Commit, log) // App reference set below

	watcher, err := preset.NewWatcher(store.Dir(), log)
	if err != nil {
		log.Warn().Err(err).Msg("Preset reload disabled")
	} else {
		closers = append(closers, watcher.Close)
	}
	if hist != nil {
		closers = append(closers, hist.Close)
	}

	// Create app with tray as status updater
	application := app.New(app.Config{
		Config:     cfg,
		Hotkeys:    hkManager,
		Dispatcher: dispatcher,
		Source:     source,
		Presets:    store,
		Speech:     speaker,
		Status:     trayUI,
		Poster:     trayUI,
		Closers:    closers,
		Logger:     log,
	})

	// Set app reference in tray
	trayUI.SetApp(application)
	dispatcher.Route(watchdog.OutputVisual, application.VisualChannel())
	dispatcher.Tap(application.Recorder())

	if watcher != nil {
		go watcher.Run(ctx, func(name string) {
			trayUI.Post(func() {
				if names, err := application.Presets(); err == nil && slices.Contains(names, name) {
					trayUI.AddPreset(name)
				}
			})
			application.PresetChanged(name)
		})
	}

	log.Info().Str("version", Version).Msg("whowhatwhere starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if err := application.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	return trayUI.Run(ctx)
}
