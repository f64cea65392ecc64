// Package core defines core data structures with zero external dependencies.
package core

import (
	"strconv"
	"time"
)

// Frame is one captured link-layer frame. Data is an owned copy, never a
// reference into a capture ring buffer.
type Frame struct {
	Data       []byte    // Raw frame bytes
	Timestamp  time.Time // Capture timestamp (seconds + microseconds)
	CaptureLen uint32    // Captured length
	Length     uint32    // On-wire length
}

// WireLength returns the on-wire length, falling back to the captured length.
func (f Frame) WireLength() uint32 {
	if f.Length == 0 {
		return f.CaptureLen
	}
	return f.Length
}

// Port is an optional transport port. Valid is false when the transport
// layer carries no ports.
type Port struct {
	Number uint16
	Valid  bool
}

// PortOf returns a present port.
func PortOf(n uint16) Port { return Port{Number: n, Valid: true} }

// String renders the port in decimal, or "" when absent.
func (p Port) String() string {
	if !p.Valid {
		return ""
	}
	return strconv.FormatUint(uint64(p.Number), 10)
}

// PacketRecord is the normalized result of dissecting one frame.
// Immutable once built.
type PacketRecord struct {
	Timestamp   string // Local wall clock, HH:MM:SS.fff
	Source      string
	Destination string
	SrcPort     Port
	DstPort     Port
	Protocol    string // One of the Proto* labels
	Length      uint32
	Info        string
}

// SourceEndpoint returns "addr" or "addr:port".
func (r PacketRecord) SourceEndpoint() string {
	return endpoint(r.Source, r.SrcPort)
}

// DestinationEndpoint returns "addr" or "addr:port".
func (r PacketRecord) DestinationEndpoint() string {
	return endpoint(r.Destination, r.DstPort)
}

func endpoint(addr string, port Port) string {
	if !port.Valid {
		return addr
	}
	return addr + ":" + port.String()
}

// TimestampLayout renders capture instants in records and reports.
const TimestampLayout = "15:04:05.000"

// FormatTimestamp converts a capture instant to local time and renders it.
func FormatTimestamp(ts time.Time) string {
	return ts.Local().Format(TimestampLayout)
}
