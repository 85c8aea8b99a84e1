package app

import (
	"errors"
	"fmt"

	"github.com/petems/whowhatwhere/internal/config"
	"github.com/petems/whowhatwhere/internal/hotkey"
)

// ControlState is the state of one hotkey control in the UI
type ControlState int

const (
	ControlDisabled ControlState = iota
	ControlReady
	ControlConfiguring
)

func (s ControlState) String() string {
	switch s {
	case ControlReady:
		return "ready"
	case ControlConfiguring:
		return "configuring"
	default:
		return "disabled"
	}
}

var (
	ErrControlDisabled  = errors.New("enable the hotkey before changing it")
	ErrAlreadyCapturing = errors.New("already waiting for a new combination")
)

// HotkeyIDs lists the actions that can be bound, in menu order.
func HotkeyIDs() []string {
	return []string{config.ActionWatchdog, config.ActionMute}
}

// HotkeyLabel is the menu text for an action
func HotkeyLabel(id string) string {
	switch id {
	case config.ActionWatchdog:
		return "Toggle watchdog"
	case config.ActionMute:
		return "Mute speech"
	}
	return id
}

func (a *App) ControlState(id string) ControlState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controls[id]
}

// EnableHotkey binds id again with its last combination. An identifier that
// was never bound uses the configured or default combination. A conflict is
// surfaced and the control stays disabled.
func (a *App) EnableHotkey(id string) error {
	c, err := a.hotkeys.Hotkey(id)
	if errors.Is(err, hotkey.ErrNotFound) {
		c, err = hotkey.Parse(a.cfg.Hotkey(id).Binding)
		if err != nil {
			err = fmt.Errorf("invalid binding for %s: %w", id, err)
		}
	}
	if err == nil {
		err = a.hotkeys.AddHotkey(id, a.executer(id), c)
	}
	if err != nil {
		a.setControl(id, ControlDisabled, c)
		a.status.ShowError(err)
		return err
	}

	a.cfg.SetHotkey(id, config.HotkeyConfig{Binding: c.String(), Enabled: true})
	a.save()
	a.setControl(id, ControlReady, c)
	a.log.Info().Str("id", id).Str("hotkey", c.String()).Msg("Hotkey enabled")
	return nil
}

// DisableHotkey releases id's combination and disables its control.
func (a *App) DisableHotkey(id string) {
	if pending, active := a.hotkeys.KeySelection(); active && pending == id {
		a.hotkeys.SetKeySelection(id, false)
	}
	a.hotkeys.RemoveHotkey(id)

	c, _ := a.hotkeys.Hotkey(id)
	hk := a.cfg.Hotkey(id)
	hk.Enabled = false
	a.cfg.SetHotkey(id, hk)
	a.save()
	a.setControl(id, ControlDisabled, c)
	a.log.Info().Str("id", id).Msg("Hotkey disabled")
}

// BeginHotkeyChange waits for the next key press to become id's new
// combination. A capture already pending for another control is cancelled.
func (a *App) BeginHotkeyChange(id string) error {
	switch a.ControlState(id) {
	case ControlDisabled:
		return ErrControlDisabled
	case ControlConfiguring:
		return ErrAlreadyCapturing
	}

	if prev, active := a.hotkeys.KeySelection(); active && prev != id {
		a.resetControl(prev)
	}
	if err := a.hotkeys.SetKeySelection(id, true); err != nil {
		return err
	}
	c, _ := a.hotkeys.Hotkey(id)
	a.setControl(id, ControlConfiguring, c)
	return nil
}

// CancelHotkeyChange closes the capture prompt without changing anything.
func (a *App) CancelHotkeyChange() {
	id, active := a.hotkeys.KeySelection()
	if err := a.hotkeys.SetKeySelection(id, false); err != nil {
		a.log.Warn().Err(err).Msg("Failed to cancel hotkey capture")
	}
	if active {
		a.resetControl(id)
	}
	// a capture consumed by a key press may still be waiting on the queue
	for _, other := range HotkeyIDs() {
		if a.ControlState(other) == ControlConfiguring {
			a.resetControl(other)
		}
	}
}

// executer runs on the key hook goroutine and defers all UI work to the
// poster.
func (a *App) executer(id string) hotkey.Executer {
	return func(ev hotkey.KeyEvent) {
		if !ev.NewSelection {
			if action, ok := a.actions[id]; ok {
				a.poster.Post(action)
			}
			return
		}

		err := a.hotkeys.ModifyHotkey(ev.ID, ev.Combination)
		a.poster.Post(func() { a.finishHotkeyChange(ev.ID, ev.Combination, err) })
	}
}

func (a *App) finishHotkeyChange(id string, c hotkey.Combination, err error) {
	if err != nil {
		a.log.Warn().Err(err).Str("id", id).Msg("Hotkey change rejected")
		a.status.ShowError(err)
		a.resetControl(id)
		return
	}

	a.cfg.SetHotkey(id, config.HotkeyConfig{Binding: c.String(), Enabled: true})
	a.save()
	a.setControl(id, ControlReady, c)
}

// resetControl returns a configuring control to ready with its current
// combination.
func (a *App) resetControl(id string) {
	c, _ := a.hotkeys.Hotkey(id)
	a.setControl(id, ControlReady, c)
}

// initDisabled shows a control that starts disabled with its configured
// combination.
func (a *App) initDisabled(id, binding string) {
	c, err := hotkey.Parse(binding)
	if err != nil {
		c, _ = hotkey.Parse(config.DefaultHotkeys()[id].Binding)
	}
	a.setControl(id, ControlDisabled, c)
}

func (a *App) setControl(id string, state ControlState, c hotkey.Combination) {
	a.mu.Lock()
	a.controls[id] = state
	a.mu.Unlock()
	a.status.SetHotkeyControl(id, state, c)
}
