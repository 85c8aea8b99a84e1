package watchdog

import (
	"github.com/google/uuid"
)

// Rule is one watchdog entry: a set of optional packet predicates plus the
// alert it raises. Nil or zero filters match anything.
type Rule struct {
	ID        string
	Direction Direction
	IP        *IPFilter
	Protocol  Protocol
	SrcPort   *Range
	DstPort   *Range
	Size      *Range
	Message   string
	Output    OutputMethod
	Notes     string
}

func NewRuleID() string {
	return uuid.NewString()
}

// Matches reports whether every configured predicate accepts p
func (r Rule) Matches(p Packet) bool {
	if r.Direction != DirectionAny && r.Direction != p.Direction {
		return false
	}
	if r.Protocol != ProtocolAny && r.Protocol != p.Protocol {
		return false
	}
	if r.IP != nil {
		if p.Direction == DirectionAny {
			// unknown direction, either end may be the peer
			if !r.IP.Matches(p.SrcIP) && !r.IP.Matches(p.DstIP) {
				return false
			}
		} else if !r.IP.Matches(p.Remote()) {
			return false
		}
	}
	if !r.SrcPort.Contains(int(p.SrcPort)) || !r.DstPort.Contains(int(p.DstPort)) {
		return false
	}
	return r.Size.Contains(p.Size)
}

// Match returns the first rule in order that matches p.
func Match(rules []Rule, p Packet) (Rule, int, bool) {
	for i, r := range rules {
		if r.Matches(p) {
			return r, i, true
		}
	}
	return Rule{}, -1, false
}
