package hotkey

import (
	"strings"
	"testing"
)

func TestParseSuccess(t *testing.T) {
	tests := []struct {
		binding  string
		want     Combination
		wantText string
	}{
		{"Ctrl+Alt+F9", Combination{ModCtrl | ModAlt, KeyF9}, "Ctrl+Alt+F9"},
		{"alt+ctrl+f10", Combination{ModCtrl | ModAlt, KeyF10}, "Ctrl+Alt+F10"},
		{"Shift+Space", Combination{ModShift, KeySpace}, "Shift+Space"},
		{"Win+A", Combination{ModMeta, 0x001E}, "Meta+A"},
		{"Control+Escape", Combination{ModCtrl, KeyEscape}, "Ctrl+Esc"},
		{"F12", Combination{0, KeyF12}, "F12"},
		{"Ctrl+0x0E52", Combination{ModCtrl, KeyInsert}, "Ctrl+Insert"},
		{" Ctrl + Shift + 7 ", Combination{ModCtrl | ModShift, Key7}, "Ctrl+Shift+7"},
	}

	for _, tt := range tests {
		t.Run(tt.binding, func(t *testing.T) {
			got, err := Parse(tt.binding)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.binding, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.binding, got, tt.want)
			}
			if text := got.String(); text != tt.wantText {
				t.Errorf("String() = %q, want %q", text, tt.wantText)
			}
			again, err := Parse(got.String())
			if err != nil || again != got {
				t.Errorf("round trip of %q failed: %+v, %v", got.String(), again, err)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		binding string
		wantErr string
	}{
		{"", "empty"},
		{"Hyper+F9", "unknown modifier"},
		{"Ctrl+", "missing key"},
		{"Ctrl+Banana", "unknown key"},
		{"Ctrl+0xZZ", "invalid hex"},
	}

	for _, tt := range tests {
		t.Run(tt.binding, func(t *testing.T) {
			_, err := Parse(tt.binding)
			if err == nil {
				t.Fatalf("Parse(%q) should fail", tt.binding)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestIsModifierKey(t *testing.T) {
	if !IsModifierKey(keyShiftL) || !IsModifierKey(keyMetaR) {
		t.Error("shift and meta keys are modifiers")
	}
	if IsModifierKey(KeyF9) {
		t.Error("F9 is not a modifier")
	}
}
