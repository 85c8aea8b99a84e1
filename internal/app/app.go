package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petems/whowhatwhere/internal/alert"
	"github.com/petems/whowhatwhere/internal/config"
	"github.com/petems/whowhatwhere/internal/hotkey"
	"github.com/petems/whowhatwhere/internal/preset"
	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

// StatusUpdater is an interface for updating status (e.g., tray icon).
// The app only calls it from work queued through Poster.
type StatusUpdater interface {
	SetArmed(armed bool)
	ShowAlert(a watchdog.Alert)
	ShowError(err error)
	SetMuted(muted bool)
	SetHotkeyControl(id string, state ControlState, c hotkey.Combination)
}

// Poster queues fn on the single-threaded UI context.
type Poster interface {
	Post(fn func())
}

// Hotkeys is the part of hotkey.Manager the app drives
type Hotkeys interface {
	AddHotkey(id string, exec hotkey.Executer, c hotkey.Combination) error
	ModifyHotkey(id string, c hotkey.Combination) error
	RemoveHotkey(id string)
	SetKeySelection(id string, active bool) error
	KeySelection() (string, bool)
	Hotkey(id string) (hotkey.Combination, error)
	Cleanup() error
}

// Muter is the speech channel's mute switch
type Muter interface {
	Muted() bool
	SetMuted(bool)
	ToggleMute() bool
}

type Config struct {
	Config     *config.Config
	Hotkeys    Hotkeys
	Dispatcher watchdog.Dispatcher
	Source     watchdog.Source
	Presets    preset.Store
	Speech     Muter // Optional - can be nil
	Status     StatusUpdater
	Poster     Poster
	// Closers run on Shutdown after the watchdog and hooks are stopped
	Closers []func() error
	Logger  zerolog.Logger
}

type App struct {
	cfg     *config.Config
	hotkeys Hotkeys
	wd      *watchdog.Watchdog
	source  watchdog.Source
	presets preset.Store
	speech  Muter
	status  StatusUpdater
	poster  Poster
	closers []func() error
	log     zerolog.Logger
	actions map[string]func()

	mu        sync.Mutex
	ctx       context.Context
	controls  map[string]ControlState
	preset    string
	lastAlert *watchdog.Alert
}

func New(cfg Config) *App {
	a := &App{
		cfg:      cfg.Config,
		hotkeys:  cfg.Hotkeys,
		source:   cfg.Source,
		presets:  cfg.Presets,
		speech:   cfg.Speech,
		status:   cfg.Status,
		poster:   cfg.Poster,
		closers:  cfg.Closers,
		log:      cfg.Logger,
		ctx:      context.Background(),
		controls: make(map[string]ControlState),
	}

	scope, err := watchdog.ParseCooldownScope(a.cfg.Watchdog.CooldownScope)
	if err != nil {
		a.log.Warn().Err(err).Msg("Using global cooldown")
	}
	policy := watchdog.KeepWatching
	if a.cfg.Watchdog.StopAfterMatch {
		policy = watchdog.StopAfterMatch
	}
	a.wd = watchdog.New(watchdog.Config{
		Dispatcher:    cfg.Dispatcher,
		Cooldown:      time.Duration(a.cfg.Watchdog.CooldownSeconds) * time.Second,
		CooldownScope: scope,
		Policy:        policy,
		OnStateChange: a.onStateChange,
		Log:           a.log,
	})

	a.actions = map[string]func(){
		config.ActionWatchdog: func() {
			if err := a.ToggleWatchdog(); err != nil {
				a.status.ShowError(err)
			}
		},
		config.ActionMute: a.ToggleMute,
	}
	return a
}

// Start loads the startup preset and registers the configured hotkeys.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	if name := a.cfg.Watchdog.Preset; name != "" && a.presets != nil {
		if err := a.LoadPreset(name); err != nil {
			if !errors.Is(err, preset.ErrNotFound) {
				return err
			}
			a.log.Info().Str("preset", name).Msg("Startup preset not found, starting empty")
		}
	}

	a.poster.Post(func() {
		a.status.SetArmed(false)
		if a.speech != nil {
			a.status.SetMuted(a.speech.Muted())
		}
	})

	for _, id := range HotkeyIDs() {
		hk := a.cfg.Hotkey(id)
		if !hk.Enabled {
			a.initDisabled(id, hk.Binding)
			continue
		}
		if err := a.EnableHotkey(id); err != nil {
			a.log.Warn().Err(err).Str("id", id).Msg("Hotkey not registered")
		}
	}
	return nil
}

// Shutdown disarms the watchdog, releases the key hook and closes the
// remaining resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.wd.Stop()

	var errs []error
	if err := a.hotkeys.Cleanup(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release hotkeys: %w", err))
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) onStateChange(s watchdog.State, err error) {
	a.poster.Post(func() {
		a.status.SetArmed(s == watchdog.Armed)
		if err != nil {
			a.status.ShowError(err)
		}
	})
}

// Watchdog controls

func (a *App) Arm() error {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if err := a.wd.Start(ctx, a.source); err != nil {
		return fmt.Errorf("failed to arm watchdog: %w", err)
	}
	return nil
}

func (a *App) Disarm() {
	a.wd.Stop()
}

func (a *App) ToggleWatchdog() error {
	if a.wd.State() == watchdog.Armed {
		a.Disarm()
		return nil
	}
	return a.Arm()
}

func (a *App) Armed() bool {
	return a.wd.State() == watchdog.Armed
}

func (a *App) StopAfterMatch() bool {
	return a.wd.Policy() == watchdog.StopAfterMatch
}

func (a *App) SetStopAfterMatch(on bool) {
	policy := watchdog.KeepWatching
	if on {
		policy = watchdog.StopAfterMatch
	}
	a.wd.SetPolicy(policy)
	a.cfg.Watchdog.StopAfterMatch = on
	a.save()
}

func (a *App) CooldownScope() watchdog.CooldownScope {
	_, scope := a.wd.Cooldown()
	return scope
}

func (a *App) SetCooldownScope(scope watchdog.CooldownScope) {
	window, _ := a.wd.Cooldown()
	a.wd.SetCooldown(window, scope)
	a.cfg.Watchdog.CooldownScope = scope.String()
	a.save()
}

// SetCooldown changes the suppression window; values under 3s are raised.
func (a *App) SetCooldown(d time.Duration) {
	_, scope := a.wd.Cooldown()
	a.wd.SetCooldown(d, scope)
	window, _ := a.wd.Cooldown()
	a.cfg.Watchdog.CooldownSeconds = int(window / time.Second)
	a.save()
}

// Rules

func (a *App) Rules() []watchdog.Rule {
	return a.wd.Rules().Rules()
}

func (a *App) AddRule(r watchdog.Rule) int {
	return a.wd.Rules().Add(r)
}

func (a *App) RemoveRules(indices ...int) {
	a.wd.Rules().Remove(indices...)
}

func (a *App) MoveRules(selected []int, dir watchdog.MoveDirection) []int {
	return a.wd.Rules().MoveRows(selected, dir)
}

// Presets

func (a *App) ActivePreset() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preset
}

func (a *App) Presets() ([]string, error) {
	return a.presets.List()
}

func (a *App) LoadPreset(name string) error {
	rules, err := a.presets.Load(name)
	if err != nil {
		return err
	}
	a.wd.Rules().Set(rules)

	a.mu.Lock()
	a.preset = name
	a.mu.Unlock()
	a.cfg.Watchdog.Preset = name
	a.save()

	a.log.Info().Str("preset", name).Int("rules", len(rules)).Msg("Preset loaded")
	return nil
}

func (a *App) SavePreset(name string) error {
	if err := a.presets.Save(name, a.Rules()); err != nil {
		return err
	}
	a.mu.Lock()
	a.preset = name
	a.mu.Unlock()
	return nil
}

// PresetChanged reloads the active preset when its file changes while the
// watchdog is idle. It is safe to call from any goroutine.
func (a *App) PresetChanged(name string) {
	a.poster.Post(func() {
		if name != a.ActivePreset() || a.Armed() {
			return
		}
		if err := a.LoadPreset(name); err != nil {
			a.status.ShowError(err)
		}
	})
}

// Speech

func (a *App) ToggleMute() {
	if a.speech == nil {
		return
	}
	muted := a.speech.ToggleMute()
	a.cfg.Speech.Muted = muted
	a.save()
	a.status.SetMuted(muted)
	a.log.Info().Bool("muted", muted).Msg("Speech mute toggled")
}

// Alerts

// VisualChannel updates the status surface with each alert routed to it.
func (a *App) VisualChannel() alert.Channel {
	return alert.ChannelFunc{
		ChannelName: "visual",
		Fn: func(ctx context.Context, al watchdog.Alert) error {
			a.poster.Post(func() { a.status.ShowAlert(al) })
			return nil
		},
	}
}

// Recorder keeps the most recent alert for "Copy last alert". It is
// registered as a dispatcher tap.
func (a *App) Recorder() alert.Channel {
	return alert.ChannelFunc{
		ChannelName: "last",
		Fn: func(ctx context.Context, al watchdog.Alert) error {
			a.mu.Lock()
			a.lastAlert = &al
			a.mu.Unlock()
			return nil
		},
	}
}

func (a *App) LastAlert() (watchdog.Alert, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastAlert == nil {
		return watchdog.Alert{}, false
	}
	return *a.lastAlert, true
}

func (a *App) save() {
	if err := a.cfg.Save(); err != nil {
		a.log.Error().Err(err).Msg("Failed to save config")
	}
}
