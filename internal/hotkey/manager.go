package hotkey

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by mutations after Cleanup.
var ErrClosed = errors.New("hotkey manager is closed")

type binding struct {
	combo Combination
	exec  Executer
}

// table is an immutable view of the enabled bindings and the capture state.
// The hook goroutine only ever reads a table through Manager.snap.
type table struct {
	bindings  map[string]binding
	owners    map[Combination]string
	selecting bool
	pending   string
}

func emptyTable() *table {
	return &table{
		bindings: make(map[string]binding),
		owners:   make(map[Combination]string),
	}
}

func (t *table) clone() *table {
	return &table{
		bindings:  maps.Clone(t.bindings),
		owners:    maps.Clone(t.owners),
		selecting: t.selecting,
		pending:   t.pending,
	}
}

// Manager owns the table of active key bindings and keeps the OS hook's
// registered combinations in sync with it.
type Manager struct {
	hook Hook
	log  zerolog.Logger

	// mu serializes writers. Readers use snap without locking.
	mu         sync.Mutex
	snap       atomic.Pointer[table]
	remembered map[string]Combination
	listening  bool
	closed     bool

	// dispatchMu is held shared for the duration of every callback so Cleanup
	// can wait for in-flight events.
	dispatchMu sync.RWMutex
	closing    atomic.Bool
}

// New creates a manager on top of hook. The hook is not activated until the
// first binding is added.
func New(hook Hook, log zerolog.Logger) *Manager {
	m := &Manager{
		hook:       hook,
		log:        log,
		remembered: make(map[string]Combination),
	}
	m.snap.Store(emptyTable())
	return m
}

// AddHotkey installs a binding for id. It fails with a ConflictError when c
// is already owned by a different identifier.
func (m *Manager) AddHotkey(id string, exec Executer, c Combination) error {
	if exec == nil {
		return fmt.Errorf("hotkey %q: executer is required", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	t := m.snap.Load()
	if owner, ok := t.owners[c]; ok && owner != id {
		return &ConflictError{Combination: c, Owner: owner, Requested: id}
	}

	if err := m.ensureListeningLocked(); err != nil {
		return err
	}

	prev, had := t.bindings[id]
	if !had || prev.combo != c {
		if err := m.hook.Register(c); err != nil {
			return fmt.Errorf("failed to register %s: %w", c, err)
		}
	}

	next := t.clone()
	if had {
		delete(next.owners, prev.combo)
	}
	next.bindings[id] = binding{combo: c, exec: exec}
	next.owners[c] = id
	m.snap.Store(next)
	m.remembered[id] = c

	if had && prev.combo != c {
		m.unregisterLocked(prev.combo)
	}

	m.log.Debug().Str("id", id).Str("hotkey", c.String()).Msg("Hotkey added")
	return nil
}

// ModifyHotkey changes the combination of an enabled binding. Rebinding an
// identifier to the combination it already owns is a no-op. On error the
// previous binding is left untouched.
func (m *Manager) ModifyHotkey(id string, c Combination) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	t := m.snap.Load()
	prev, ok := t.bindings[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if owner, ok := t.owners[c]; ok {
		if owner == id {
			return nil
		}
		return &ConflictError{Combination: c, Owner: owner, Requested: id}
	}

	if err := m.hook.Register(c); err != nil {
		return fmt.Errorf("failed to register %s: %w", c, err)
	}

	next := t.clone()
	delete(next.owners, prev.combo)
	next.bindings[id] = binding{combo: c, exec: prev.exec}
	next.owners[c] = id
	m.snap.Store(next)
	m.remembered[id] = c

	m.unregisterLocked(prev.combo)

	m.log.Info().Str("id", id).Str("from", prev.combo.String()).Str("to", c.String()).Msg("Hotkey changed")
	return nil
}

// RemoveHotkey disables the binding for id. Its combination is remembered, so
// HotkeyModifiers and HotkeyKeycode keep answering for it.
func (m *Manager) RemoveHotkey(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.snap.Load()
	prev, ok := t.bindings[id]
	if !ok || m.closed {
		return
	}

	next := t.clone()
	delete(next.bindings, id)
	delete(next.owners, prev.combo)
	cancelSelection := next.selecting && next.pending == id
	if cancelSelection {
		next.selecting = false
		next.pending = ""
	}
	m.snap.Store(next)

	m.unregisterLocked(prev.combo)
	if cancelSelection {
		m.unregisterLocked(Combination{Key: AnyKey})
	}

	m.log.Debug().Str("id", id).Msg("Hotkey removed")
}

// SetKeySelection enters or leaves capture mode. While active, the next key
// press is delivered to id's executer with NewSelection set. Entering while
// another capture is pending moves the capture to id.
func (m *Manager) SetKeySelection(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	t := m.snap.Load()
	if !active {
		if !t.selecting {
			return nil
		}
		next := t.clone()
		next.selecting = false
		next.pending = ""
		m.snap.Store(next)
		m.unregisterLocked(Combination{Key: AnyKey})
		return nil
	}

	if _, ok := t.bindings[id]; !ok {
		return &NotFoundError{ID: id}
	}
	if !t.selecting {
		if err := m.hook.Register(Combination{Key: AnyKey}); err != nil {
			return fmt.Errorf("failed to start key capture: %w", err)
		}
	}

	next := t.clone()
	next.selecting = true
	next.pending = id
	m.snap.Store(next)
	return nil
}

// KeySelection returns the identifier awaiting a new combination, if any.
func (m *Manager) KeySelection() (string, bool) {
	t := m.snap.Load()
	return t.pending, t.selecting
}

// Hotkey returns the last combination configured for id, enabled or not.
func (m *Manager) Hotkey(id string) (Combination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.remembered[id]
	if !ok {
		return Combination{}, &NotFoundError{ID: id}
	}
	return c, nil
}

func (m *Manager) HotkeyModifiers(id string) (Modifier, error) {
	c, err := m.Hotkey(id)
	return c.Modifiers, err
}

func (m *Manager) HotkeyKeycode(id string) (int, error) {
	c, err := m.Hotkey(id)
	return c.Key, err
}

// Enabled reports whether id currently has an active binding.
func (m *Manager) Enabled(id string) bool {
	_, ok := m.snap.Load().bindings[id]
	return ok
}

// Bindings returns the enabled combinations keyed by identifier.
func (m *Manager) Bindings() map[string]Combination {
	t := m.snap.Load()
	out := make(map[string]Combination, len(t.bindings))
	for id, b := range t.bindings {
		out[id] = b.combo
	}
	return out
}

// Cleanup releases the hook. It waits for callbacks already running and no
// callback fires after it returns. It must not be called from an Executer.
func (m *Manager) Cleanup() error {
	m.closing.Store(true)
	m.dispatchMu.Lock()
	m.dispatchMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	t := m.snap.Load()
	for c := range t.owners {
		if err := m.hook.Unregister(c); err != nil {
			errs = append(errs, err)
		}
	}
	if t.selecting {
		if err := m.hook.Unregister(Combination{Key: AnyKey}); err != nil {
			errs = append(errs, err)
		}
	}
	m.snap.Store(emptyTable())

	if err := m.hook.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close key hook: %w", err))
	}
	return errors.Join(errs...)
}

// handle is the hook callback.
func (m *Manager) handle(c Combination) {
	m.dispatchMu.RLock()
	defer m.dispatchMu.RUnlock()

	if m.closing.Load() {
		return
	}

	t := m.snap.Load()
	if t.selecting {
		if c.Key == AnyKey || IsModifierKey(c.Key) {
			return
		}
		b, ok := t.bindings[t.pending]
		if !ok || !m.consumeSelection(t.pending) {
			return
		}
		b.exec(KeyEvent{ID: t.pending, Combination: c, NewSelection: true})
		return
	}

	id, ok := t.owners[c]
	if !ok {
		return
	}
	t.bindings[id].exec(KeyEvent{ID: id, Combination: c})
}

// consumeSelection ends the capture for id. It returns false when another
// event already ended it.
func (m *Manager) consumeSelection(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.snap.Load()
	if !t.selecting || t.pending != id {
		return false
	}
	next := t.clone()
	next.selecting = false
	next.pending = ""
	m.snap.Store(next)
	m.unregisterLocked(Combination{Key: AnyKey})
	return true
}

func (m *Manager) ensureListeningLocked() error {
	if m.listening {
		return nil
	}
	if err := m.hook.Listen(m.handle); err != nil {
		return fmt.Errorf("failed to start key hook: %w", err)
	}
	m.listening = true
	return nil
}

func (m *Manager) unregisterLocked(c Combination) {
	if err := m.hook.Unregister(c); err != nil {
		m.log.Warn().Err(err).Str("hotkey", c.String()).Msg("Failed to unregister hotkey")
	}
}
