package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/whowhatwhere/internal/alert"
	"github.com/petems/whowhatwhere/internal/app"
	"github.com/petems/whowhatwhere/internal/config"
	"github.com/petems/whowhatwhere/internal/hotkey"
	"github.com/petems/whowhatwhere/internal/logging"
	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

const maxTitleAlert = 24

type hotkeyMenu struct {
	root    *systray.MenuItem
	enabled *systray.MenuItem
	change  *systray.MenuItem
}

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger
	queue   *Queue
	ctx     context.Context
	cancel  context.CancelFunc

	// Menu items
	mStartStop *systray.MenuItem
	mStopAfter *systray.MenuItem
	mPerRule   *systray.MenuItem
	mMute      *systray.MenuItem
	mPresets   *systray.MenuItem
	mCopy      *systray.MenuItem
	presets    map[string]*systray.MenuItem
	hotkeys    map[string]*hotkeyMenu

	// Only touched on the event goroutine
	lastAlert string
}

func New(application *app.App, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
		queue:   NewQueue(),
		presets: make(map[string]*systray.MenuItem),
		hotkeys: make(map[string]*hotkeyMenu),
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

// Post implements app.Poster.
func (u *UI) Post(fn func()) {
	u.queue.Post(fn)
}

func (u *UI) Run(ctx context.Context) error {
	u.ctx, u.cancel = context.WithCancel(ctx)
	systray.Run(u.onReady, u.onExit)
	return nil
}

// Status update methods for the app to call

func (u *UI) SetArmed(armed bool) {
	if armed {
		u.lastAlert = ""
		u.mStartStop.SetTitle("Stop Watchdog")
		u.updateStatus("armed")
	} else {
		u.mStartStop.SetTitle("Start Watchdog")
		if u.lastAlert != "" {
			// keep the alert that disarmed us visible
			u.updateStatus("alert")
		} else {
			u.updateStatus("idle")
		}
	}
}

func (u *UI) ShowAlert(a watchdog.Alert) {
	u.lastAlert = a.Message
	u.mCopy.Enable()
	systray.SetTooltip(alert.Text(a))
	u.updateStatus("alert")
}

func (u *UI) ShowError(err error) {
	u.log.Error().Err(err).Msg("Error shown in tray")
	systray.SetTooltip(err.Error())
	u.updateStatus("error")
}

func (u *UI) SetMuted(muted bool) {
	if muted {
		u.mMute.Check()
	} else {
		u.mMute.Uncheck()
	}
}

func (u *UI) SetHotkeyControl(id string, state app.ControlState, c hotkey.Combination) {
	m, ok := u.hotkeys[id]
	if !ok {
		return
	}
	m.root.SetTitle(hotkeyTitle(app.HotkeyLabel(id), c))
	switch state {
	case app.ControlDisabled:
		m.enabled.Uncheck()
		m.change.SetTitle("Change Hotkey")
		m.change.Disable()
	case app.ControlConfiguring:
		m.enabled.Check()
		m.change.SetTitle("Press a new combination (click to cancel)")
		m.change.Enable()
	default:
		m.enabled.Check()
		m.change.SetTitle("Change Hotkey")
		m.change.Enable()
	}
}

// AddPreset lists a new preset in the Presets menu. Known names are ignored.
func (u *UI) AddPreset(name string) {
	if _, ok := u.presets[name]; ok {
		return
	}
	item := u.mPresets.AddSubMenuItemCheckbox(name, "Load this rule preset", false)
	u.presets[name] = item

	go func() {
		for range item.ClickedCh {
			u.Post(func() {
				if err := u.app.LoadPreset(name); err != nil {
					u.ShowError(err)
				}
				u.checkActivePreset()
			})
		}
	}()
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("Packet watchdog")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Watchdog", "Arm or disarm the watchdog")
	u.mStopAfter = systray.AddMenuItemCheckbox("Stop After Match", "Disarm after the first alert", u.cfg.Watchdog.StopAfterMatch)
	u.mPerRule = systray.AddMenuItemCheckbox("Per-Rule Cooldown", "Suppress repeats per rule instead of globally",
		u.cfg.Watchdog.CooldownScope == watchdog.CooldownPerRule.String())
	u.mMute = systray.AddMenuItemCheckbox("Mute Speech", "Silence spoken alerts", u.cfg.Speech.Muted)
	systray.AddSeparator()

	u.mPresets = systray.AddMenuItem("Presets", "Select rule preset")
	u.buildPresetMenu()

	for _, id := range app.HotkeyIDs() {
		u.buildHotkeyMenu(id)
	}

	systray.AddSeparator()
	u.mCopy = systray.AddMenuItem("Copy Last Alert", "Copy the last alert to the clipboard")
	u.mCopy.Disable()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About whowhatwhere")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)

	u.Post(func() {
		if err := u.app.Start(u.ctx); err != nil {
			u.ShowError(err)
		}
		u.checkActivePreset()
	})
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.queue.Wake():
			u.queue.Drain()
		case <-u.mStartStop.ClickedCh:
			if err := u.app.ToggleWatchdog(); err != nil {
				u.ShowError(err)
			}
		case <-u.mStopAfter.ClickedCh:
			u.toggleStopAfterMatch()
		case <-u.mPerRule.ClickedCh:
			u.togglePerRule()
		case <-u.mMute.ClickedCh:
			u.app.ToggleMute()
		case <-u.mCopy.ClickedCh:
			u.copyLastAlert()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildPresetMenu() {
	names, err := u.app.Presets()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list presets")
		return
	}
	for _, name := range names {
		u.AddPreset(name)
	}
}

func (u *UI) checkActivePreset() {
	active := u.app.ActivePreset()
	for name, item := range u.presets {
		if name == active {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

func (u *UI) buildHotkeyMenu(id string) {
	root := systray.AddMenuItem(app.HotkeyLabel(id), "Hotkey")
	m := &hotkeyMenu{
		root:    root,
		enabled: root.AddSubMenuItemCheckbox("Enabled", "Listen for this hotkey", false),
		change:  root.AddSubMenuItem("Change Hotkey", "Press a new combination"),
	}
	m.change.Disable()
	u.hotkeys[id] = m

	go func() {
		for {
			select {
			case <-m.enabled.ClickedCh:
				u.Post(func() { u.toggleHotkey(id) })
			case <-m.change.ClickedCh:
				u.Post(func() { u.changeHotkey(id) })
			}
		}
	}()
}

func (u *UI) toggleHotkey(id string) {
	if u.app.ControlState(id) == app.ControlDisabled {
		// a conflict is already shown by the app
		u.app.EnableHotkey(id)
		return
	}
	u.app.DisableHotkey(id)
}

func (u *UI) changeHotkey(id string) {
	if u.app.ControlState(id) == app.ControlConfiguring {
		u.app.CancelHotkeyChange()
		return
	}
	if err := u.app.BeginHotkeyChange(id); err != nil {
		u.ShowError(err)
	}
}

func (u *UI) toggleStopAfterMatch() {
	on := !u.app.StopAfterMatch()
	u.app.SetStopAfterMatch(on)
	if on {
		u.mStopAfter.Check()
	} else {
		u.mStopAfter.Uncheck()
	}
	u.log.Info().Bool("stop_after_match", on).Msg("Changed watchdog policy")
}

func (u *UI) togglePerRule() {
	scope := watchdog.CooldownPerRule
	if u.app.CooldownScope() == watchdog.CooldownPerRule {
		scope = watchdog.CooldownGlobal
	}
	u.app.SetCooldownScope(scope)
	if scope == watchdog.CooldownPerRule {
		u.mPerRule.Check()
	} else {
		u.mPerRule.Uncheck()
	}
	u.log.Info().Str("scope", scope.String()).Msg("Changed cooldown scope")
}

func (u *UI) copyLastAlert() {
	a, ok := u.app.LastAlert()
	if !ok {
		return
	}
	if err := clipboard.WriteAll(alert.Text(a)); err != nil {
		u.ShowError(fmt.Errorf("failed to copy alert: %w", err))
	}
}

func (u *UI) openLogs() {
	if err := openCommand(runtime.GOOS, logging.Path()).Start(); err != nil {
		u.log.Error().Err(err).Msg("Failed to open logs")
	}
}

func (u *UI) showAbout() {
	fmt.Printf("whowhatwhere %s (%s)\nPacket watchdog\n", u.version, u.commit)
}

func (u *UI) onExit() {
	if u.cancel != nil {
		u.cancel()
	}
	if u.app == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.app.Shutdown(ctx); err != nil {
		u.log.Error().Err(err).Msg("Shutdown finished with errors")
	}
}

// updateStatus sets the tray title with the watchdog emoji and status indicator
func (u *UI) updateStatus(status string) {
	systray.SetTitle(titleFor(status, u.lastAlert))
}

func titleFor(status, lastAlert string) string {
	title := fmt.Sprintf("📡 %s", emojiForStatus(status))
	if status == "alert" && lastAlert != "" {
		title += " " + truncate(lastAlert, maxTitleAlert)
	}
	return title
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "armed":
		return "🔴" // Red - watching
	case "alert":
		return "🟡" // Yellow - a rule matched
	case "idle":
		return "🟢" // Green - idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢"
	}
}

func hotkeyTitle(label string, c hotkey.Combination) string {
	if c == (hotkey.Combination{}) {
		return label
	}
	return fmt.Sprintf("%s (%s)", label, c)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func openCommand(goos, path string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", path)
	case "windows":
		return exec.Command("explorer", path)
	default:
		return exec.Command("xdg-open", path)
	}
}
