package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

const (
	defaultSnaplen = 262144
	// readTimeout bounds each blocking read so cancellation is noticed.
	readTimeout = 250 * time.Millisecond
)

// Device is a capture interface
type Device struct {
	Name        string
	Description string
	Addresses   []netip.Addr
}

// ListDevices returns every interface libpcap can open.
func ListDevices() ([]Device, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	devices := make([]Device, 0, len(ifs))
	for _, i := range ifs {
		d := Device{Name: i.Name, Description: i.Description}
		for _, a := range i.Addresses {
			if addr := toAddr(a.IP); addr.IsValid() {
				d.Addresses = append(d.Addresses, addr)
			}
		}
		devices = append(devices, d)
	}
	return devices, nil
}

type Config struct {
	// Device is the interface to open. Empty picks the first interface with
	// a non-loopback address.
	Device      string
	BPFFilter   string
	Snaplen     int
	Promiscuous bool
	// File replays a capture file instead of opening a live interface.
	File string
}

// PcapSource implements watchdog.Source with libpcap.
type PcapSource struct {
	cfg Config
	log zerolog.Logger
}

func NewPcapSource(cfg Config, log zerolog.Logger) *PcapSource {
	if cfg.Snaplen <= 0 {
		cfg.Snaplen = defaultSnaplen
	}
	return &PcapSource{cfg: cfg, log: log}
}

func (s *PcapSource) Capture(ctx context.Context, out chan<- watchdog.Packet) error {
	handle, local, err := s.open()
	if err != nil {
		return err
	}
	defer handle.Close()

	if s.cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(s.cfg.BPFFilter); err != nil {
			return fmt.Errorf("failed to set BPF filter %q: %w", s.cfg.BPFFilter, err)
		}
	}

	src := gopacket.NewPacketSource(handle, handle.LinkType())
	src.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pkt, err := src.NextPacket()
		switch {
		case err == nil:
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, io.EOF):
			return nil
		default:
			return fmt.Errorf("failed to read packet: %w", err)
		}

		p, ok := Decode(pkt, local)
		if !ok {
			continue
		}
		select {
		case out <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *PcapSource) open() (*pcap.Handle, LocalAddrs, error) {
	local := hostAddrs()

	if s.cfg.File != "" {
		handle, err := pcap.OpenOffline(s.cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open capture file %s: %w", s.cfg.File, err)
		}
		s.log.Info().Str("file", s.cfg.File).Msg("Replaying capture file")
		return handle, local, nil
	}

	device := s.cfg.Device
	if device == "" {
		d, err := defaultDevice()
		if err != nil {
			return nil, nil, err
		}
		device = d.Name
		for _, a := range d.Addresses {
			local.Add(a)
		}
	}

	handle, err := pcap.OpenLive(device, int32(s.cfg.Snaplen), s.cfg.Promiscuous, readTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open device %s: %w", device, err)
	}
	s.log.Info().
		Str("device", device).
		Str("filter", s.cfg.BPFFilter).
		Bool("promiscuous", s.cfg.Promiscuous).
		Msg("Capture started")
	return handle, local, nil
}

func defaultDevice() (Device, error) {
	devices, err := ListDevices()
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		for _, a := range d.Addresses {
			if !a.IsLoopback() {
				return d, nil
			}
		}
	}
	return Device{}, fmt.Errorf("no capture device with an address found")
}

// hostAddrs collects the addresses of every local interface.
func hostAddrs() LocalAddrs {
	local := NewLocalAddrs()
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return local
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			local.Add(toAddr(ipnet.IP))
		}
	}
	return local
}
