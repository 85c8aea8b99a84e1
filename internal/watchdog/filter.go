package watchdog

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Range is an inclusive integer range. Min == Max is an exact value.
type Range struct {
	Min int
	Max int
}

func Exact(v int) *Range { return &Range{Min: v, Max: v} }

// ParseRange parses "443", "1000-2000", or "" / "any" / "*" (nil, match anything).
func ParseRange(s string) (*Range, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "any", "*":
		return nil, nil
	}

	lo, hi, isRange := strings.Cut(s, "-")
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || min < 0 {
		return nil, fmt.Errorf("invalid range %q", s)
	}
	max := min
	if isRange {
		max, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || max < 0 {
			return nil, fmt.Errorf("invalid range %q", s)
		}
	}
	if max < min {
		return nil, fmt.Errorf("invalid range %q: upper bound below lower bound", s)
	}
	return &Range{Min: min, Max: max}, nil
}

func (r *Range) Contains(v int) bool {
	if r == nil {
		return true
	}
	return v >= r.Min && v <= r.Max
}

func (r *Range) String() string {
	if r == nil {
		return "any"
	}
	if r.Min == r.Max {
		return strconv.Itoa(r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// IPFilter matches a single address or a CIDR block.
type IPFilter struct {
	prefix netip.Prefix
}

// ParseIPFilter parses "10.0.0.1", "10.0.0.0/8", "2001:db8::/32" or a
// wildcard ("", "*", "any"), which yields nil.
func ParseIPFilter(s string) (*IPFilter, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "*", "any":
		return nil, nil
	}

	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("invalid IP filter %q: %w", s, err)
		}
		return &IPFilter{prefix: prefix.Masked()}, nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil, fmt.Errorf("invalid IP filter %q: %w", s, err)
	}
	addr = addr.Unmap()
	return &IPFilter{prefix: netip.PrefixFrom(addr, addr.BitLen())}, nil
}

func (f *IPFilter) Matches(addr netip.Addr) bool {
	if f == nil {
		return true
	}
	return addr.IsValid() && f.prefix.Contains(addr.Unmap())
}

func (f *IPFilter) String() string {
	if f == nil {
		return "any"
	}
	if f.prefix.IsSingleIP() {
		return f.prefix.Addr().String()
	}
	return f.prefix.String()
}
