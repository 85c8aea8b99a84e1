package watchdog

import (
	"fmt"
	"strings"
)

// OutputMethod is a set of alert output channels
type OutputMethod uint8

const (
	OutputVisual OutputMethod = 1 << iota
	OutputSpeech
	OutputLog
	OutputSound
	OutputClipboard
)

var outputNames = []struct {
	method OutputMethod
	name   string
}{
	{OutputVisual, "visual"},
	{OutputSpeech, "speech"},
	{OutputLog, "log"},
	{OutputSound, "sound"},
	{OutputClipboard, "clipboard"},
}

// Names lists the set bits in a fixed order
func (m OutputMethod) Names() []string {
	var names []string
	for _, o := range outputNames {
		if m&o.method != 0 {
			names = append(names, o.name)
		}
	}
	return names
}

func (m OutputMethod) String() string {
	if m == 0 {
		return "none"
	}
	return strings.Join(m.Names(), "+")
}

// ParseOutputMethod parses names joined by "+" or ",", e.g. "visual+speech".
// "tts" is accepted for speech and "label" for visual.
func ParseOutputMethod(s string) (OutputMethod, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' })
	return ParseOutputNames(fields)
}

func ParseOutputNames(names []string) (OutputMethod, error) {
	var m OutputMethod
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "":
			continue
		case "tts":
			name = "speech"
		case "label":
			name = "visual"
		}
		found := false
		for _, o := range outputNames {
			if o.name == name {
				m |= o.method
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown output method %q", raw)
		}
	}
	return m, nil
}
