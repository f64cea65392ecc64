// Package core defines core types with zero external dependencies.
package core

import "net/netip"

// NetworkKind tags the network-layer variant of Headers.
type NetworkKind uint8

const (
	NetworkNone NetworkKind = iota
	NetworkIPv4
	NetworkIPv6
)

// TransportKind tags the transport-layer variant of Headers.
type TransportKind uint8

const (
	TransportNone TransportKind = iota
	TransportTCP
	TransportUDP
	TransportICMPv4
	TransportICMPv6
	TransportUnknown // Network layer present but payload not recognized
)

// LinkHeader represents the L2 Ethernet frame header.
type LinkHeader struct {
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16 // Outer EtherType, before any VLAN tag is unwrapped
}

// NetworkHeader represents the L3 header. SrcIP/DstIP are valid only when
// Kind is not NetworkNone.
type NetworkHeader struct {
	Kind  NetworkKind
	SrcIP netip.Addr
	DstIP netip.Addr
}

// TransportHeader represents the L4 header. Ports are set only for TCP and UDP.
type TransportHeader struct {
	Kind    TransportKind
	SrcPort uint16
	DstPort uint16
}

// HasPorts reports whether the variant carries ports.
func (t TransportHeader) HasPorts() bool {
	return t.Kind == TransportTCP || t.Kind == TransportUDP
}

// Headers is the dissection result: an optional link header plus network
// and transport variants.
type Headers struct {
	Link      *LinkHeader
	Network   NetworkHeader
	Transport TransportHeader
}
