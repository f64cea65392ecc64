//go:build linux

// Package afpacket implements the AF_PACKET TPACKET_V3 capture engine.
package afpacket

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/netanalyzer/internal/capture"
	pcapengine "firestige.xyz/netanalyzer/internal/capture/pcap"
)

// Name is the engine name used in configuration.
const Name = "afpacket"

func init() {
	capture.Register(Name, func(capture.EngineConfig) (capture.Source, error) {
		return NewSource(), nil
	})
}

// Source opens TPACKET_V3 rings. Devices are enumerated through libpcap so
// device ids match the pcap engine.
type Source struct {
	lister *pcapengine.Source
}

// NewSource creates an AF_PACKET source.
func NewSource() *Source {
	return &Source{lister: pcapengine.NewSource()}
}

// ListDevices returns the libpcap device list.
func (s *Source) ListDevices() ([]capture.Device, error) {
	return s.lister.ListDevices()
}

// Open creates a TPacket ring on device sized from opts.
func (s *Source) Open(device string, opts capture.OpenOptions) (capture.Handle, error) {
	ring, err := computeRing(opts.BufferSizeMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("invalid ring parameters: %w", err)
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(device),
		afpacket.OptFrameSize(ring.FrameSize),
		afpacket.OptBlockSize(ring.BlockSize),
		afpacket.OptNumBlocks(ring.NumBlocks),
		afpacket.OptPollTimeout(opts.ReadTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create TPacket handle on %s: %w", device, err)
	}

	if err := tp.InitSocketStats(); err != nil {
		slog.Warn("failed to init socket stats", "device", device, "error", err)
	}

	slog.Debug("afpacket handle opened",
		"device", device,
		"frame_size", ring.FrameSize,
		"block_size", ring.BlockSize,
		"num_blocks", ring.NumBlocks)

	return newHandle(tp, device, opts), nil
}

// newHandle wraps tp. Filters compile against the capture snap length, not
// the ring frame size, which also holds the TPACKET header.
func newHandle(tp *afpacket.TPacket, device string, opts capture.OpenOptions) *Handle {
	snapLen := opts.SnapLen
	if snapLen <= 0 {
		snapLen = capture.DefaultOpenOptions().SnapLen
	}
	return &Handle{tp: tp, device: device, snapLen: snapLen}
}

// Handle wraps a TPacket ring. The session never closes it while a read
// is in flight, so the mmap ring outlives every ReadPacketData call.
type Handle struct {
	tp      *afpacket.TPacket
	device  string
	snapLen int
}

// ReadPacketData reads the next frame. Poll timeouts map to
// capture.ErrTimeout.
func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.tp.ReadPacketData()
	if err != nil {
		return nil, ci, readError(err)
	}
	return data, ci, nil
}

// readError maps ring errors onto the capture contract. Only the poll
// timeout is benign; ErrPoll is POLLERR on the socket, e.g. the interface
// went down.
func readError(err error) error {
	if errors.Is(err, afpacket.ErrTimeout) {
		return capture.ErrTimeout
	}
	if errors.Is(err, afpacket.ErrPoll) {
		return fmt.Errorf("poll error on socket: %w", err)
	}
	return err
}

// SetBPFFilter compiles expr with libpcap and attaches it to the socket.
func (h *Handle) SetBPFFilter(expr string) error {
	raw, err := pcapengine.CompileBPF(layers.LinkTypeEthernet, h.snapLen, expr)
	if err != nil {
		return err
	}
	if err := h.tp.SetBPF(raw); err != nil {
		return fmt.Errorf("failed to attach BPF filter: %w", err)
	}
	return nil
}

// CaptureStats reports kernel socket counters.
func (h *Handle) CaptureStats() (uint64, uint64, error) {
	_, v3, err := h.tp.SocketStats()
	if err != nil {
		return 0, 0, err
	}
	return uint64(v3.Packets()), uint64(v3.Drops()), nil
}

// Close unmaps the ring and closes the socket.
func (h *Handle) Close() {
	h.tp.Close()
	slog.Debug("afpacket handle closed", "device", h.device)
}
