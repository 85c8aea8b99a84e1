package preset

import (
	"fmt"

	"github.com/petems/whowhatwhere/internal/watchdog"
	"gopkg.in/yaml.v3"
)

// record is the YAML form of one rule. Filters are kept as the strings a
// user would type so preset files stay hand-editable.
type record struct {
	ID        string   `yaml:"id,omitempty"`
	Direction string   `yaml:"direction,omitempty"`
	IP        string   `yaml:"ip,omitempty"`
	Protocol  string   `yaml:"protocol,omitempty"`
	SrcPort   string   `yaml:"src_port,omitempty"`
	DstPort   string   `yaml:"dst_port,omitempty"`
	Size      string   `yaml:"size,omitempty"`
	Message   string   `yaml:"message"`
	Output    []string `yaml:"output,flow"`
	Notes     string   `yaml:"notes,omitempty"`
}

type file struct {
	Rules []record `yaml:"rules"`
}

// Encode serializes rules in order.
func Encode(rules []watchdog.Rule) ([]byte, error) {
	f := file{Rules: make([]record, len(rules))}
	for i, r := range rules {
		f.Rules[i] = toRecord(r)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preset: %w", err)
	}
	return data, nil
}

// Decode parses a preset and validates every filter.
func Decode(data []byte) ([]watchdog.Rule, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse preset: %w", err)
	}
	rules := make([]watchdog.Rule, len(f.Rules))
	for i, rec := range f.Rules {
		r, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules[i] = r
	}
	return rules, nil
}

func toRecord(r watchdog.Rule) record {
	rec := record{
		ID:      r.ID,
		Message: r.Message,
		Output:  r.Output.Names(),
		Notes:   r.Notes,
	}
	if r.Direction != watchdog.DirectionAny {
		rec.Direction = r.Direction.String()
	}
	if r.IP != nil {
		rec.IP = r.IP.String()
	}
	rec.Protocol = string(r.Protocol)
	if r.SrcPort != nil {
		rec.SrcPort = r.SrcPort.String()
	}
	if r.DstPort != nil {
		rec.DstPort = r.DstPort.String()
	}
	if r.Size != nil {
		rec.Size = r.Size.String()
	}
	return rec
}

func fromRecord(rec record) (watchdog.Rule, error) {
	var (
		r   = watchdog.Rule{ID: rec.ID, Message: rec.Message, Notes: rec.Notes}
		err error
	)
	if r.Direction, err = watchdog.ParseDirection(rec.Direction); err != nil {
		return r, err
	}
	if r.IP, err = watchdog.ParseIPFilter(rec.IP); err != nil {
		return r, err
	}
	r.Protocol = watchdog.ParseProtocol(rec.Protocol)
	if r.SrcPort, err = parsePort(rec.SrcPort); err != nil {
		return r, fmt.Errorf("src_port: %w", err)
	}
	if r.DstPort, err = parsePort(rec.DstPort); err != nil {
		return r, fmt.Errorf("dst_port: %w", err)
	}
	if r.Size, err = watchdog.ParseRange(rec.Size); err != nil {
		return r, fmt.Errorf("size: %w", err)
	}
	if r.Output, err = watchdog.ParseOutputNames(rec.Output); err != nil {
		return r, err
	}
	if r.ID == "" {
		r.ID = watchdog.NewRuleID()
	}
	return r, nil
}

func parsePort(s string) (*watchdog.Range, error) {
	r, err := watchdog.ParseRange(s)
	if err != nil {
		return nil, err
	}
	if r != nil && r.Max > 65535 {
		return nil, fmt.Errorf("port %s out of range", r)
	}
	return r, nil
}
