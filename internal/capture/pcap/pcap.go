// Package pcap implements the libpcap live capture engine.
package pcap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/netanalyzer/internal/capture"
)

// Name is the engine name used in configuration.
const Name = "pcap"

func init() {
	capture.Register(Name, func(capture.EngineConfig) (capture.Source, error) {
		return NewSource(), nil
	})
}

// Source opens live devices through libpcap.
type Source struct{}

// NewSource creates a libpcap source.
func NewSource() *Source {
	return &Source{}
}

// ListDevices returns every device libpcap can open, in libpcap order.
func (s *Source) ListDevices() ([]capture.Device, error) {
	ifaces, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devs := make([]capture.Device, 0, len(ifaces))
	for _, iface := range ifaces {
		dev := capture.Device{Name: iface.Name, Description: iface.Description}
		for _, addr := range iface.Addresses {
			if addr.IP != nil {
				dev.Addresses = append(dev.Addresses, addr.IP.String())
			}
		}
		devs = append(devs, dev)
	}
	return devs, nil
}

// Open opens a live handle on device.
func (s *Source) Open(device string, opts capture.OpenOptions) (capture.Handle, error) {
	h, err := pcap.OpenLive(device, int32(opts.SnapLen), opts.Promiscuous, opts.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %s: %w", device, err)
	}

	slog.Debug("pcap handle opened",
		"device", device,
		"snap_len", opts.SnapLen,
		"promiscuous", opts.Promiscuous,
		"read_timeout", opts.ReadTimeout)

	return &Handle{handle: h, device: device}, nil
}

// Handle wraps a libpcap handle.
type Handle struct {
	handle *pcap.Handle
	device string
}

// ReadPacketData reads the next frame; a libpcap timeout maps to capture.ErrTimeout.
func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, ci, capture.ErrTimeout
	}
	return data, ci, err
}

// SetBPFFilter compiles and installs expr. On failure the previous filter stays.
func (h *Handle) SetBPFFilter(expr string) error {
	return h.handle.SetBPFFilter(expr)
}

// CaptureStats reports libpcap receive and drop counters.
func (h *Handle) CaptureStats() (uint64, uint64, error) {
	st, err := h.handle.Stats()
	if err != nil {
		return 0, 0, err
	}
	return uint64(st.PacketsReceived), uint64(st.PacketsDropped + st.PacketsIfDropped), nil
}

// Close releases the handle.
func (h *Handle) Close() {
	h.handle.Close()
	slog.Debug("pcap handle closed", "device", h.device)
}
