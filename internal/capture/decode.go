package capture

import (
	"net"
	"net/netip"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/petems/whowhatwhere/internal/watchdog"
)

// LocalAddrs is the set of addresses owned by this host. A packet whose
// source is local is outbound.
type LocalAddrs map[netip.Addr]struct{}

func NewLocalAddrs(addrs ...netip.Addr) LocalAddrs {
	l := make(LocalAddrs, len(addrs))
	for _, a := range addrs {
		l.Add(a)
	}
	return l
}

func (l LocalAddrs) Add(a netip.Addr) {
	if a.IsValid() {
		l[a.Unmap()] = struct{}{}
	}
}

func (l LocalAddrs) Contains(a netip.Addr) bool {
	_, ok := l[a.Unmap()]
	return ok
}

// Decode extracts watchdog metadata from an IPv4 or IPv6 packet. Packets
// without a network layer are skipped.
func Decode(pkt gopacket.Packet, local LocalAddrs) (watchdog.Packet, bool) {
	var (
		p     watchdog.Packet
		proto layers.IPProtocol
	)

	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		p.SrcIP, p.DstIP = toAddr(ip.SrcIP), toAddr(ip.DstIP)
		proto = ip.Protocol
	case *layers.IPv6:
		p.SrcIP, p.DstIP = toAddr(ip.SrcIP), toAddr(ip.DstIP)
		proto = ip.NextHeader
	default:
		return watchdog.Packet{}, false
	}

	switch t := pkt.TransportLayer().(type) {
	case *layers.TCP:
		p.Protocol = watchdog.ProtocolTCP
		p.SrcPort, p.DstPort = uint16(t.SrcPort), uint16(t.DstPort)
	case *layers.UDP:
		p.Protocol = watchdog.ProtocolUDP
		p.SrcPort, p.DstPort = uint16(t.SrcPort), uint16(t.DstPort)
	default:
		p.Protocol = protocolName(proto)
	}

	p.Direction = watchdog.Inbound
	if local.Contains(p.SrcIP) {
		p.Direction = watchdog.Outbound
	}

	md := pkt.Metadata()
	p.Time = md.Timestamp
	p.Size = md.Length
	if p.Size == 0 {
		p.Size = len(pkt.Data())
	}
	return p, true
}

func protocolName(proto layers.IPProtocol) watchdog.Protocol {
	switch proto {
	case layers.IPProtocolICMPv4:
		return watchdog.ProtocolICMP
	case layers.IPProtocolICMPv6:
		return watchdog.ProtocolICMPv6
	case layers.IPProtocolIGMP:
		return watchdog.ProtocolIGMP
	}
	return watchdog.Protocol(strings.ToUpper(proto.String()))
}

func toAddr(ip net.IP) netip.Addr {
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return a.Unmap()
}
