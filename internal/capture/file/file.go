// Package file implements the offline replay engine: pcap and pcapng files
// are exposed as devices and read back frame by frame.
package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/bpf"

	"firestige.xyz/netanalyzer/internal/capture"
	pcapengine "firestige.xyz/netanalyzer/internal/capture/pcap"
)

// Name is the engine name used in configuration.
const Name = "file"

func init() {
	capture.Register(Name, func(cfg capture.EngineConfig) (capture.Source, error) {
		if len(cfg.Files) == 0 {
			return nil, fmt.Errorf("file engine requires at least one capture file")
		}
		return NewSource(cfg.Files), nil
	})
}

// Compiler turns a filter expression into a classic BPF program.
type Compiler func(linkType layers.LinkType, snapLen int, expr string) ([]bpf.RawInstruction, error)

// Source exposes a fixed list of capture files as devices.
type Source struct {
	paths   []string
	compile Compiler
}

// Option configures a Source.
type Option func(*Source)

// WithCompiler replaces the libpcap filter compiler.
func WithCompiler(c Compiler) Option {
	return func(s *Source) { s.compile = c }
}

// NewSource creates a file source over paths.
func NewSource(paths []string, opts ...Option) *Source {
	s := &Source{
		paths:   append([]string(nil), paths...),
		compile: pcapengine.CompileBPF,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListDevices returns one device per configured file.
func (s *Source) ListDevices() ([]capture.Device, error) {
	devs := make([]capture.Device, 0, len(s.paths))
	for _, p := range s.paths {
		devs = append(devs, capture.Device{
			Name:        p,
			Description: "capture file " + filepath.Base(p),
		})
	}
	return devs, nil
}

// packetReader is satisfied by both pcapgo.Reader and pcapgo.NgReader.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Open opens a pcap or pcapng file for replay.
func (s *Source) Open(path string, opts capture.OpenOptions) (capture.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	r, err := newReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}

	snapLen := opts.SnapLen
	if snapLen <= 0 {
		snapLen = capture.DefaultSnapLen
	}

	slog.Debug("capture file opened", "path", path, "link_type", r.LinkType())
	return &Handle{f: f, r: r, path: path, snapLen: snapLen, compile: s.compile}, nil
}

func newReader(f *os.File) (packetReader, error) {
	if r, err := pcapgo.NewReader(bufio.NewReader(f)); err == nil {
		return r, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, err := pcapgo.NewNgReader(bufio.NewReader(f), pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, fmt.Errorf("neither pcap nor pcapng: %w", err)
	}
	return r, nil
}

// Handle replays one file. Filters run in the x/net/bpf VM since there
// is no kernel socket to attach them to.
type Handle struct {
	f       *os.File
	r       packetReader
	path    string
	snapLen int
	compile Compiler

	mu sync.Mutex
	vm *bpf.VM
}

// ReadPacketData returns the next frame that passes the filter, or io.EOF
// at the end of the file.
func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	h.mu.Lock()
	vm := h.vm
	h.mu.Unlock()

	for {
		data, ci, err := h.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ci, io.EOF
			}
			return nil, ci, err
		}
		if vm == nil {
			return data, ci, nil
		}
		if n, err := vm.Run(data); err == nil && n > 0 {
			return data, ci, nil
		}
	}
}

// SetBPFFilter compiles expr for the file's link type. An empty expression
// removes the filter. On failure the previous filter stays.
func (h *Handle) SetBPFFilter(expr string) error {
	if expr == "" {
		h.mu.Lock()
		h.vm = nil
		h.mu.Unlock()
		return nil
	}

	raw, err := h.compile(h.r.LinkType(), h.snapLen, expr)
	if err != nil {
		return err
	}
	insts, ok := bpf.Disassemble(raw)
	if !ok {
		return fmt.Errorf("filter %q contains unsupported instructions", expr)
	}
	vm, err := bpf.NewVM(insts)
	if err != nil {
		return fmt.Errorf("invalid BPF program: %w", err)
	}

	h.mu.Lock()
	h.vm = vm
	h.mu.Unlock()
	return nil
}

// Close closes the file.
func (h *Handle) Close() {
	if err := h.f.Close(); err != nil {
		slog.Debug("capture file close failed", "path", h.path, "error", err)
	}
}
