package hotkey

import (
	"fmt"
	"strconv"
	"strings"
)

// Key codes follow the libuiohook virtual key table, which is the same on
// every platform the key hook supports.
const (
	KeyEscape = 0x0001
	Key1      = 0x0002
	Key2      = 0x0003
	Key3      = 0x0004
	Key4      = 0x0005
	Key5      = 0x0006
	Key6      = 0x0007
	Key7      = 0x0008
	Key8      = 0x0009
	Key9      = 0x000A
	Key0      = 0x000B
	KeyTab    = 0x000F
	KeyEnter  = 0x001C
	KeySpace  = 0x0039

	KeyF1  = 0x003B
	KeyF2  = 0x003C
	KeyF3  = 0x003D
	KeyF4  = 0x003E
	KeyF5  = 0x003F
	KeyF6  = 0x0040
	KeyF7  = 0x0041
	KeyF8  = 0x0042
	KeyF9  = 0x0043
	KeyF10 = 0x0044
	KeyF11 = 0x0057
	KeyF12 = 0x0058

	KeyInsert   = 0x0E52
	KeyDelete   = 0x0E53
	KeyHome     = 0x0E47
	KeyEnd      = 0x0E4F
	KeyPageUp   = 0x0E49
	KeyPageDown = 0x0E51

	KeyUp    = 0xE048
	KeyLeft  = 0xE04B
	KeyRight = 0xE04D
	KeyDown  = 0xE050

	keyShiftL   = 0x002A
	keyShiftR   = 0x0036
	keyControlL = 0x001D
	keyControlR = 0x0E1D
	keyAltL     = 0x0038
	keyAltR     = 0x0E38
	keyMetaL    = 0x0E5B
	keyMetaR    = 0x0E5C
)

var keyByName = map[string]int{
	"ESC": KeyEscape, "ESCAPE": KeyEscape,
	"TAB": KeyTab, "ENTER": KeyEnter, "RETURN": KeyEnter, "SPACE": KeySpace,
	"INSERT": KeyInsert, "DELETE": KeyDelete, "HOME": KeyHome, "END": KeyEnd,
	"PAGEUP": KeyPageUp, "PAGEDOWN": KeyPageDown,
	"UP": KeyUp, "DOWN": KeyDown, "LEFT": KeyLeft, "RIGHT": KeyRight,
	"F1": KeyF1, "F2": KeyF2, "F3": KeyF3, "F4": KeyF4, "F5": KeyF5, "F6": KeyF6,
	"F7": KeyF7, "F8": KeyF8, "F9": KeyF9, "F10": KeyF10, "F11": KeyF11, "F12": KeyF12,
	"0": Key0, "1": Key1, "2": Key2, "3": Key3, "4": Key4,
	"5": Key5, "6": Key6, "7": Key7, "8": Key8, "9": Key9,
	// scan code rows
	"Q": 0x0010, "W": 0x0011, "E": 0x0012, "R": 0x0013, "T": 0x0014,
	"Y": 0x0015, "U": 0x0016, "I": 0x0017, "O": 0x0018, "P": 0x0019,
	"A": 0x001E, "S": 0x001F, "D": 0x0020, "F": 0x0021, "G": 0x0022,
	"H": 0x0023, "J": 0x0024, "K": 0x0025, "L": 0x0026,
	"Z": 0x002C, "X": 0x002D, "C": 0x002E, "V": 0x002F, "B": 0x0030,
	"N": 0x0031, "M": 0x0032,
}

// preferred display names for codes with aliases
var displayName = map[int]string{
	KeyEscape: "Esc",
	KeyEnter:  "Enter",
	KeySpace:  "Space",
	KeyTab:    "Tab",
	KeyInsert: "Insert", KeyDelete: "Delete", KeyHome: "Home", KeyEnd: "End",
	KeyPageUp: "PageUp", KeyPageDown: "PageDown",
	KeyUp: "Up", KeyDown: "Down", KeyLeft: "Left", KeyRight: "Right",
}

var nameByKey = func() map[int]string {
	m := make(map[int]string, len(keyByName))
	for name, code := range keyByName {
		if display, ok := displayName[code]; ok {
			m[code] = display
			continue
		}
		m[code] = name
	}
	return m
}()

var modifierByName = map[string]Modifier{
	"CTRL":    ModCtrl,
	"CONTROL": ModCtrl,
	"ALT":     ModAlt,
	"OPTION":  ModAlt,
	"SHIFT":   ModShift,
	"META":    ModMeta,
	"WIN":     ModMeta,
	"SUPER":   ModMeta,
	"CMD":     ModMeta,
}

// IsModifierKey reports whether code is itself a modifier key.
func IsModifierKey(code int) bool {
	switch code {
	case keyShiftL, keyShiftR, keyControlL, keyControlR, keyAltL, keyAltR, keyMetaL, keyMetaR:
		return true
	}
	return false
}

// KeyName returns the display name of a key code, or its hex code when unnamed.
func KeyName(code int) string {
	if name, ok := nameByKey[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", code)
}

// Format renders a combination the way it is shown to the user.
func Format(c Combination) string {
	var parts []string
	if c.Modifiers&ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if c.Modifiers&ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if c.Modifiers&ModShift != 0 {
		parts = append(parts, "Shift")
	}
	if c.Modifiers&ModMeta != 0 {
		parts = append(parts, "Meta")
	}
	if c.Key == AnyKey {
		parts = append(parts, "<any>")
	} else {
		parts = append(parts, KeyName(c.Key))
	}
	return strings.Join(parts, "+")
}

// Parse parses a binding like "Ctrl+Alt+F9". The last token is the key.
func Parse(binding string) (Combination, error) {
	raw := strings.TrimSpace(binding)
	if raw == "" {
		return Combination{}, fmt.Errorf("hotkey binding is empty")
	}

	parts := strings.Split(raw, "+")
	var mods Modifier
	for _, token := range parts[:len(parts)-1] {
		name := strings.ToUpper(strings.TrimSpace(token))
		mod, ok := modifierByName[name]
		if !ok {
			return Combination{}, fmt.Errorf("unknown modifier %q in hotkey %q", token, raw)
		}
		mods |= mod
	}

	key, err := parseKey(parts[len(parts)-1])
	if err != nil {
		return Combination{}, fmt.Errorf("invalid hotkey %q: %w", raw, err)
	}
	return Combination{Modifiers: mods, Key: key}, nil
}

func parseKey(raw string) (int, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return 0, fmt.Errorf("missing key token")
	}
	if code, ok := keyByName[token]; ok {
		return code, nil
	}
	if strings.HasPrefix(token, "0X") {
		value, err := strconv.ParseUint(token[2:], 16, 16)
		if err != nil || value == 0 {
			return 0, fmt.Errorf("invalid hex key %q", raw)
		}
		return int(value), nil
	}
	return 0, fmt.Errorf("unknown key %q", raw)
}
