// Package keyhook adapts the libuiohook global keyboard listener to the
// hotkey.Hook capability.
package keyhook

import (
	"errors"
	"sync"

	hook "github.com/robotn/gohook"
	"github.com/rs/zerolog"

	"github.com/petems/whowhatwhere/internal/hotkey"
)

// libuiohook modifier mask bits
const (
	maskShiftL = 1 << 0
	maskCtrlL  = 1 << 1
	maskMetaL  = 1 << 2
	maskAltL   = 1 << 3
	maskShiftR = 1 << 4
	maskCtrlR  = 1 << 5
	maskMetaR  = 1 << 6
	maskAltR   = 1 << 7
)

var errAlreadyListening = errors.New("key hook is already listening")

// Hook forwards key-down events for registered combinations. While
// hotkey.AnyKey is registered every non-modifier key press is forwarded.
type Hook struct {
	log zerolog.Logger

	mu         sync.Mutex
	registered map[hotkey.Combination]int
	listening  bool
	closed     bool
	done       chan struct{}

	start func() chan hook.Event
	end   func()
}

func New(log zerolog.Logger) *Hook {
	return &Hook{
		log:        log,
		registered: make(map[hotkey.Combination]int),
		done:       make(chan struct{}),
		start:      hook.Start,
		end:        hook.End,
	}
}

func (h *Hook) Register(c hotkey.Combination) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered[c]++
	return nil
}

func (h *Hook) Unregister(c hotkey.Combination) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registered[c] <= 1 {
		delete(h.registered, c)
		return nil
	}
	h.registered[c]--
	return nil
}

// Listen starts the global hook and delivers matching key presses to fn on
// the hook's event goroutine.
func (h *Hook) Listen(fn func(c hotkey.Combination)) error {
	h.mu.Lock()
	if h.listening {
		h.mu.Unlock()
		return errAlreadyListening
	}
	if h.closed {
		h.mu.Unlock()
		return errors.New("key hook is closed")
	}
	h.listening = true
	h.mu.Unlock()

	events := h.start()
	h.log.Debug().Msg("Key hook started")

	go func() {
		for {
			select {
			case <-h.done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Kind != hook.KeyDown {
					continue
				}
				c := translate(ev)
				if h.forward(c) {
					fn(c)
				}
			}
		}
	}()
	return nil
}

func (h *Hook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.done)
	if h.listening {
		h.end()
		h.log.Debug().Msg("Key hook stopped")
	}
	return nil
}

func (h *Hook) forward(c hotkey.Combination) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.registered[c] > 0 {
		return true
	}
	return h.registered[hotkey.Combination{Key: hotkey.AnyKey}] > 0 && !hotkey.IsModifierKey(c.Key)
}

// translate folds left and right modifier bits and drops lock and mouse bits.
func translate(ev hook.Event) hotkey.Combination {
	var mods hotkey.Modifier
	if ev.Mask&(maskCtrlL|maskCtrlR) != 0 {
		mods |= hotkey.ModCtrl
	}
	if ev.Mask&(maskAltL|maskAltR) != 0 {
		mods |= hotkey.ModAlt
	}
	if ev.Mask&(maskShiftL|maskShiftR) != 0 {
		mods |= hotkey.ModShift
	}
	if ev.Mask&(maskMetaL|maskMetaR) != 0 {
		mods |= hotkey.ModMeta
	}
	return hotkey.Combination{Modifiers: mods, Key: int(ev.Keycode)}
}
