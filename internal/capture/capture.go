// Package capture defines the capture collaborator consumed by a session:
// device enumeration, opening handles, reading frames and applying filters.
package capture

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/gopacket"

	"firestige.xyz/netanalyzer/internal/core"
)

// ErrTimeout is returned by Handle.ReadPacketData when the read timeout
// expires without a frame. It is benign.
var ErrTimeout = errors.New("capture: read timeout")

// Default open parameters for live devices.
const (
	DefaultSnapLen     = 5000
	DefaultReadTimeout = 1000 * time.Millisecond
)

// Device is one capturable device.
type Device struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Addresses   []string `json:"addresses,omitempty"`
}

// Label returns the description when present, else the name.
func (d Device) Label() string {
	if d.Description != "" {
		return d.Description
	}
	return d.Name
}

// OpenOptions configures a new handle.
type OpenOptions struct {
	SnapLen      int
	Promiscuous  bool
	ReadTimeout  time.Duration
	BufferSizeMB int // Ring buffer size, AF_PACKET only
}

// DefaultOpenOptions returns promiscuous mode, snaplen 5000 and a 1s read timeout.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		SnapLen:      DefaultSnapLen,
		Promiscuous:  true,
		ReadTimeout:  DefaultReadTimeout,
		BufferSizeMB: 8,
	}
}

// Handle is an open capture. ReadPacketData blocks at most the read timeout.
// The returned data may be reused by the next read; callers copy it.
type Handle interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	SetBPFFilter(expr string) error
	Close()
}

// StatsProvider is implemented by handles that expose kernel counters.
type StatsProvider interface {
	CaptureStats() (received, dropped uint64, err error)
}

// Source enumerates devices and opens handles on them.
type Source interface {
	ListDevices() ([]Device, error)
	Open(device string, opts OpenOptions) (Handle, error)
}

// ResolveDevice maps a 1-based device id to a device.
func ResolveDevice(devices []Device, id int) (Device, error) {
	if id < 1 || id > len(devices) {
		return Device{}, fmt.Errorf("%w: %d (have %d devices)", core.ErrInvalidDeviceID, id, len(devices))
	}
	return devices[id-1], nil
}

// Factory creates a Source from engine settings.
type Factory func(cfg EngineConfig) (Source, error)

// EngineConfig carries the engine-specific settings from configuration.
type EngineConfig struct {
	Files []string // file engine: capture files exposed as devices
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an engine available by name. Engines call it from init.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("capture: engine %q already registered", name))
	}
	registry[name] = f
}

// New creates a Source for the named engine.
func New(name string, cfg EngineConfig) (Source, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("capture: unknown engine %q (available: %v)", name, Engines())
	}
	return f(cfg)
}

// Engines lists registered engine names.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
