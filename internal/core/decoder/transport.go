// Package decoder implements protocol decoding.
package decoder

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/netanalyzer/internal/core"
)

func tcpHeader(tcp *layers.TCP) core.TransportHeader {
	return core.TransportHeader{
		Kind:    core.TransportTCP,
		SrcPort: uint16(tcp.SrcPort),
		DstPort: uint16(tcp.DstPort),
	}
}

func udpHeader(udp *layers.UDP) core.TransportHeader {
	return core.TransportHeader{
		Kind:    core.TransportUDP,
		SrcPort: uint16(udp.SrcPort),
		DstPort: uint16(udp.DstPort),
	}
}

// applyTransport labels rec from the transport variant. TransportNone
// leaves the link fallback untouched.
func applyTransport(rec *core.PacketRecord, t core.TransportHeader) {
	switch t.Kind {
	case core.TransportTCP:
		rec.Protocol = core.ProtoTCP
	case core.TransportUDP:
		rec.Protocol = core.ProtoUDP
	case core.TransportICMPv4:
		rec.Protocol = core.ProtoICMPv4
	case core.TransportICMPv6:
		rec.Protocol = core.ProtoICMPv6
	case core.TransportUnknown:
		rec.Protocol = core.ProtoUnknown
		rec.Info = core.InfoUnknown
	case core.TransportNone:
		return
	}

	if t.HasPorts() {
		rec.SrcPort = core.PortOf(t.SrcPort)
		rec.DstPort = core.PortOf(t.DstPort)
	}
}
