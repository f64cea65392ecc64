package session

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/netanalyzer/internal/capture"
	"firestige.xyz/netanalyzer/internal/core"
	"firestige.xyz/netanalyzer/internal/core/decoder"
)

var errRejected = errors.New("rejected expression")

type fakeFrame struct {
	data []byte
	wire int
}

// fakeHandle serves frames pushed on a channel. Closing frames ends the
// capture with io.EOF.
type fakeHandle struct {
	name    string
	frames  chan fakeFrame
	readErr chan error

	mu      sync.Mutex
	filter  string
	reading atomic.Int32
	overlap atomic.Bool
	closed  atomic.Bool

	statsCalls   atomic.Int32
	statsOverlap atomic.Bool
}

func newFakeHandle(name string) *fakeHandle {
	return &fakeHandle{
		name:    name,
		frames:  make(chan fakeFrame, 64),
		readErr: make(chan error, 8),
	}
}

func (h *fakeHandle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	h.reading.Add(1)
	defer h.reading.Add(-1)

	select {
	case f, ok := <-h.frames:
		if !ok {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		ci := gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(f.data), Length: f.wire}
		return f.data, ci, nil
	case err := <-h.readErr:
		return nil, gopacket.CaptureInfo{}, err
	case <-time.After(5 * time.Millisecond):
		return nil, gopacket.CaptureInfo{}, capture.ErrTimeout
	}
}

func (h *fakeHandle) SetBPFFilter(expr string) error {
	if h.reading.Load() > 0 {
		h.overlap.Store(true)
	}
	if expr == "bogus" {
		return errRejected
	}
	h.mu.Lock()
	h.filter = expr
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Filter() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filter
}

func (h *fakeHandle) Close() { h.closed.Store(true) }

func (h *fakeHandle) CaptureStats() (uint64, uint64, error) {
	h.statsCalls.Add(1)
	if h.reading.Load() > 0 {
		h.statsOverlap.Store(true)
	}
	return 42, 1, nil
}

func (h *fakeHandle) push(data []byte, wire int) { h.frames <- fakeFrame{data: data, wire: wire} }

type fakeSource struct {
	mu      sync.Mutex
	handles map[string]*fakeHandle
	order   []string
	openErr error
}

func newFakeSource(names ...string) *fakeSource {
	src := &fakeSource{handles: make(map[string]*fakeHandle)}
	for _, n := range names {
		src.handles[n] = newFakeHandle(n)
		src.order = append(src.order, n)
	}
	return src
}

func (s *fakeSource) ListDevices() ([]capture.Device, error) {
	devs := make([]capture.Device, 0, len(s.order))
	for _, n := range s.order {
		devs = append(devs, capture.Device{Name: n})
	}
	return devs, nil
}

func (s *fakeSource) Open(device string, _ capture.OpenOptions) (capture.Handle, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[device], nil
}

func (s *fakeSource) handle(name string) *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[name]
}

// gatedHandle holds its first read until release is closed, then returns
// frame. Later reads time out.
type gatedHandle struct {
	frame   []byte
	reading chan struct{}
	release chan struct{}
	once    sync.Once
	served  atomic.Bool
}

func newGatedHandle(frame []byte) *gatedHandle {
	return &gatedHandle{
		frame:   frame,
		reading: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (h *gatedHandle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if h.served.CompareAndSwap(false, true) {
		h.once.Do(func() { close(h.reading) })
		<-h.release
		ci := gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(h.frame), Length: len(h.frame)}
		return h.frame, ci, nil
	}
	time.Sleep(5 * time.Millisecond)
	return nil, gopacket.CaptureInfo{}, capture.ErrTimeout
}

func (h *gatedHandle) SetBPFFilter(string) error { return nil }

func (h *gatedHandle) Close() {}

// singleSource serves one device backed by handle.
type singleSource struct {
	handle capture.Handle
}

func (s singleSource) ListDevices() ([]capture.Device, error) {
	return []capture.Device{{Name: "eth0"}}, nil
}

func (s singleSource) Open(string, capture.OpenOptions) (capture.Handle, error) {
	return s.handle, nil
}

// slowDissector blocks every Build until release is closed.
type slowDissector struct {
	*decoder.StandardDissector
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newSlowDissector() *slowDissector {
	return &slowDissector{
		StandardDissector: decoder.NewStandardDissector(),
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
}

func (d *slowDissector) Build(frame core.Frame) (core.PacketRecord, error) {
	d.once.Do(func() { close(d.entered) })
	<-d.release
	return d.StandardDissector.Build(frame)
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("serialize layers: %v", err)
	}
	return buf.Bytes()
}

func ipFrame(t *testing.T, src, dst string, sport, dport uint16, proto layers.IPProtocol) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	switch proto {
	case layers.IPProtocolUDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("set network layer: %v", err)
		}
		return serialize(t, eth, ip, udp, gopacket.Payload([]byte("payload")))
	default:
		tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), ACK: true, Window: 1024}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("set network layer: %v", err)
		}
		return serialize(t, eth, ip, tcp, gopacket.Payload([]byte("payload")))
	}
}
