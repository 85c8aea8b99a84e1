package keyhook

import (
	"testing"
	"time"

	hook "github.com/robotn/gohook"
	"github.com/rs/zerolog"

	"github.com/petems/whowhatwhere/internal/hotkey"
)

func TestTranslateFoldsSides(t *testing.T) {
	tests := []struct {
		mask uint16
		want hotkey.Modifier
	}{
		{maskCtrlL | maskAltL, hotkey.ModCtrl | hotkey.ModAlt},
		{maskCtrlR | maskAltR, hotkey.ModCtrl | hotkey.ModAlt},
		{maskShiftR | maskMetaL, hotkey.ModShift | hotkey.ModMeta},
		{1 << 13, 0}, // num lock
	}
	for _, tt := range tests {
		got := translate(hook.Event{Kind: hook.KeyDown, Mask: tt.mask, Keycode: hotkey.KeyF9})
		if got.Modifiers != tt.want || got.Key != hotkey.KeyF9 {
			t.Errorf("translate(mask=%#x) = %+v, want mods %v", tt.mask, got, tt.want)
		}
	}
}

func TestListenForwardsRegisteredOnly(t *testing.T) {
	events := make(chan hook.Event, 8)
	h := New(zerolog.Nop())
	h.start = func() chan hook.Event { return events }
	ended := make(chan struct{})
	h.end = func() { close(ended) }

	combo := hotkey.Combination{Modifiers: hotkey.ModCtrl | hotkey.ModAlt, Key: hotkey.KeyF9}
	if err := h.Register(combo); err != nil {
		t.Fatal(err)
	}

	got := make(chan hotkey.Combination, 8)
	if err := h.Listen(func(c hotkey.Combination) { got <- c }); err != nil {
		t.Fatal(err)
	}
	if err := h.Listen(func(hotkey.Combination) {}); err == nil {
		t.Error("second Listen should fail")
	}

	events <- hook.Event{Kind: hook.KeyUp, Mask: maskCtrlL | maskAltL, Keycode: hotkey.KeyF9}
	events <- hook.Event{Kind: hook.KeyDown, Mask: maskCtrlL, Keycode: hotkey.KeyF9}
	events <- hook.Event{Kind: hook.KeyDown, Mask: maskCtrlL | maskAltL, Keycode: hotkey.KeyF9}

	select {
	case c := <-got:
		if c != combo {
			t.Errorf("forwarded %+v, want %+v", c, combo)
		}
	case <-time.After(time.Second):
		t.Fatal("registered combination was not forwarded")
	}
	select {
	case c := <-got:
		t.Errorf("unexpected extra event %+v", c)
	case <-time.After(20 * time.Millisecond):
	}

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	<-ended
}

func TestAnyKeyForwardsNonModifiers(t *testing.T) {
	h := New(zerolog.Nop())
	_ = h.Register(hotkey.Combination{Key: hotkey.AnyKey})

	if !h.forward(hotkey.Combination{Modifiers: hotkey.ModShift, Key: hotkey.KeyF5}) {
		t.Error("any key should be forwarded while capturing")
	}
	if h.forward(hotkey.Combination{Modifiers: hotkey.ModShift, Key: 0x002A}) {
		t.Error("bare modifier presses should not be forwarded")
	}

	_ = h.Unregister(hotkey.Combination{Key: hotkey.AnyKey})
	if h.forward(hotkey.Combination{Key: hotkey.KeyF5}) {
		t.Error("unregistered keys should be dropped")
	}
}
