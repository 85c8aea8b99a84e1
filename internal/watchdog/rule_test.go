package watchdog

import (
	"net/netip"
	"testing"
)

func mustRange(t *testing.T, s string) *Range {
	t.Helper()
	r, err := ParseRange(s)
	if err != nil {
		t.Fatalf("ParseRange(%q): %v", s, err)
	}
	return r
}

func mustIP(t *testing.T, s string) *IPFilter {
	t.Helper()
	f, err := ParseIPFilter(s)
	if err != nil {
		t.Fatalf("ParseIPFilter(%q): %v", s, err)
	}
	return f
}

func httpsOut() Packet {
	return Packet{
		Direction: Outbound,
		SrcIP:     netip.MustParseAddr("10.0.0.2"),
		DstIP:     netip.MustParseAddr("1.2.3.4"),
		Protocol:  ProtocolTCP,
		SrcPort:   51000,
		DstPort:   443,
		Size:      1200,
	}
}

func TestRuleMatches(t *testing.T) {
	p := httpsOut()
	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{"empty rule matches anything", Rule{}, true},
		{"direction", Rule{Direction: Outbound}, true},
		{"wrong direction", Rule{Direction: Inbound}, false},
		{"protocol", Rule{Protocol: ProtocolTCP}, true},
		{"wrong protocol", Rule{Protocol: ProtocolUDP}, false},
		{"remote ip", Rule{IP: mustIP(t, "1.2.3.4")}, true},
		{"local ip is not the peer", Rule{IP: mustIP(t, "10.0.0.2")}, false},
		{"cidr", Rule{IP: mustIP(t, "1.2.0.0/16")}, true},
		{"dst port exact", Rule{DstPort: mustRange(t, "443")}, true},
		{"dst port range", Rule{DstPort: mustRange(t, "400-500")}, true},
		{"dst port miss", Rule{DstPort: mustRange(t, "80")}, false},
		{"src port range", Rule{SrcPort: mustRange(t, "50000-52000")}, true},
		{"size exact", Rule{Size: mustRange(t, "1200")}, true},
		{"size out of range", Rule{Size: mustRange(t, "0-1000")}, false},
		{"all predicates", Rule{
			Direction: Outbound,
			Protocol:  ProtocolTCP,
			IP:        mustIP(t, "1.2.3.4"),
			DstPort:   Exact(443),
			Size:      mustRange(t, "1000-1500"),
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(p); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRuleMatchesUnknownDirection(t *testing.T) {
	p := httpsOut()
	p.Direction = DirectionAny
	if !(Rule{IP: mustIP(t, "10.0.0.2")}).Matches(p) {
		t.Error("either end should match when direction is unknown")
	}
	if (Rule{Direction: Outbound}).Matches(p) {
		t.Error("directional rule should not match a packet of unknown direction")
	}
}

func TestInboundMatchesSource(t *testing.T) {
	p := Packet{
		Direction: Inbound,
		SrcIP:     netip.MustParseAddr("203.0.113.9"),
		DstIP:     netip.MustParseAddr("10.0.0.2"),
		Protocol:  ProtocolUDP,
		DstPort:   53,
	}
	if !(Rule{IP: mustIP(t, "203.0.113.9")}).Matches(p) {
		t.Error("inbound packet should match on its source")
	}
}

func TestMatchFirstWins(t *testing.T) {
	p := httpsOut()
	rules := []Rule{
		{ID: "udp", Protocol: ProtocolUDP},
		{ID: "tcp", Protocol: ProtocolTCP},
		{ID: "https", DstPort: Exact(443)},
		{ID: "any"},
	}
	r, idx, ok := Match(rules, p)
	if !ok || r.ID != "tcp" || idx != 1 {
		t.Fatalf("Match() = %q at %d (%v), want tcp at 1", r.ID, idx, ok)
	}

	// every ordering picks the lowest index among matching rules
	perms := [][]int{{3, 2, 1, 0}, {0, 2, 3, 1}, {2, 0, 1, 3}}
	for _, perm := range perms {
		ordered := make([]Rule, len(perm))
		for i, j := range perm {
			ordered[i] = rules[j]
		}
		r, idx, _ := Match(ordered, p)
		for i := 0; i < idx; i++ {
			if ordered[i].Matches(p) {
				t.Errorf("order %v: picked %q at %d but %q at %d matches", perm, r.ID, idx, ordered[i].ID, i)
			}
		}
	}
}

func TestMatchNone(t *testing.T) {
	if _, idx, ok := Match([]Rule{{Protocol: ProtocolICMP}}, httpsOut()); ok || idx != -1 {
		t.Errorf("Match() = %d, %v, want -1, false", idx, ok)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "any", false},
		{"any", "any", false},
		{"*", "any", false},
		{"443", "443", false},
		{"1000-2000", "1000-2000", false},
		{" 10 - 20 ", "10-20", false},
		{"20-10", "", true},
		{"abc", "", true},
		{"-5", "", true},
	}
	for _, tt := range tests {
		r, err := ParseRange(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRange(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRange(%q): %v", tt.in, err)
			continue
		}
		if got := r.String(); got != tt.want {
			t.Errorf("ParseRange(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseIPFilter(t *testing.T) {
	for _, bad := range []string{"1.2.3", "10.0.0.0/33", "host"} {
		if _, err := ParseIPFilter(bad); err == nil {
			t.Errorf("ParseIPFilter(%q) expected error", bad)
		}
	}
	f := mustIP(t, "10.1.2.3/8")
	if f.String() != "10.0.0.0/8" {
		t.Errorf("String() = %s, want masked prefix", f.String())
	}
	if !f.Matches(netip.MustParseAddr("::ffff:10.9.9.9")) {
		t.Error("mapped IPv4 address should match")
	}
	if mustIP(t, "*") != nil {
		t.Error("wildcard should parse to nil")
	}
}

func TestOutputMethod(t *testing.T) {
	m, err := ParseOutputMethod("visual+tts, log")
	if err != nil {
		t.Fatal(err)
	}
	if m != OutputVisual|OutputSpeech|OutputLog {
		t.Errorf("ParseOutputMethod = %v", m)
	}
	if m.String() != "visual+speech+log" {
		t.Errorf("String() = %s", m.String())
	}
	if OutputMethod(0).String() != "none" {
		t.Error("zero method should be none")
	}
	if _, err := ParseOutputMethod("smoke-signal"); err == nil {
		t.Error("expected error for unknown method")
	}
}
