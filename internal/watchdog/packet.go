package watchdog

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Direction is the packet direction relative to the local host
type Direction int

const (
	DirectionAny Direction = iota
	Inbound
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "any"
	}
}

// ParseDirection accepts "inbound"/"in"/"incoming", "outbound"/"out"/"outgoing"
// and "any"/"either"/"".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "either", "both":
		return DirectionAny, nil
	case "in", "inbound", "incoming":
		return Inbound, nil
	case "out", "outbound", "outgoing":
		return Outbound, nil
	}
	return DirectionAny, fmt.Errorf("unknown direction %q", s)
}

// Protocol is an upper-case transport or network protocol name.
// The empty Protocol matches anything in a rule.
type Protocol string

const (
	ProtocolAny    Protocol = ""
	ProtocolTCP    Protocol = "TCP"
	ProtocolUDP    Protocol = "UDP"
	ProtocolICMP   Protocol = "ICMP"
	ProtocolICMPv6 Protocol = "ICMPV6"
	ProtocolIGMP   Protocol = "IGMP"
)

func ParseProtocol(s string) Protocol {
	p := strings.ToUpper(strings.TrimSpace(s))
	if p == "ANY" || p == "*" {
		return ProtocolAny
	}
	return Protocol(p)
}

// Packet is the metadata the capture source delivers for one packet.
type Packet struct {
	Time      time.Time
	Direction Direction
	SrcIP     netip.Addr
	DstIP     netip.Addr
	Protocol  Protocol
	SrcPort   uint16
	DstPort   uint16
	Size      int
}

// Remote returns the peer address: the destination of outbound packets and
// the source of inbound ones. Packets of unknown direction report the
// destination.
func (p Packet) Remote() netip.Addr {
	if p.Direction == Inbound {
		return p.SrcIP
	}
	return p.DstIP
}

func (p Packet) Summary() string {
	proto := string(p.Protocol)
	if proto == "" {
		proto = "IP"
	}
	src, dst := p.SrcIP.String(), p.DstIP.String()
	if p.SrcPort != 0 || p.DstPort != 0 {
		src = netip.AddrPortFrom(p.SrcIP, p.SrcPort).String()
		dst = netip.AddrPortFrom(p.DstIP, p.DstPort).String()
	}
	return fmt.Sprintf("%s %s %s -> %s (%d bytes)", p.Direction, proto, src, dst, p.Size)
}
