// Package decoder implements L2-L4 frame dissection.
package decoder

import (
	"fmt"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/netanalyzer/internal/core"
)

// Dissector turns raw frames into PacketRecords. Safe for concurrent use.
type Dissector interface {
	Dissect(data []byte) (core.Headers, error)
	Build(frame core.Frame) (core.PacketRecord, error)
}

// StandardDissector decodes Ethernet, 802.1Q, IPv4, IPv6, TCP, UDP, ICMPv4
// and ICMPv6 with gopacket's DecodingLayerParser. Parsers are not
// goroutine-safe, so each call borrows one from a pool.
type StandardDissector struct {
	pool sync.Pool
}

// layerSet holds preallocated layers for one parser.
type layerSet struct {
	parser  *gopacket.DecodingLayerParser
	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	icmp4   layers.ICMPv4
	icmp6   layers.ICMPv6
	decoded []gopacket.LayerType
}

func newLayerSet() *layerSet {
	ls := &layerSet{decoded: make([]gopacket.LayerType, 0, 8)}
	ls.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&ls.eth, &ls.dot1q, &ls.ip4, &ls.ip6, &ls.tcp, &ls.udp, &ls.icmp4, &ls.icmp6)
	// Payloads, ARP bodies and unknown IP protocols end decoding without error.
	ls.parser.IgnoreUnsupported = true
	return ls
}

// NewStandardDissector creates a dissector.
func NewStandardDissector() *StandardDissector {
	return &StandardDissector{
		pool: sync.Pool{New: func() any { return newLayerSet() }},
	}
}

// Dissect decodes the headers of one Ethernet frame.
func (d *StandardDissector) Dissect(data []byte) (core.Headers, error) {
	if len(data) == 0 {
		return core.Headers{}, core.ErrPacketTooShort
	}

	ls := d.pool.Get().(*layerSet)
	defer d.pool.Put(ls)

	if err := ls.parser.DecodeLayers(data, &ls.decoded); err != nil {
		return core.Headers{}, fmt.Errorf("dissect: %w", err)
	}

	var h core.Headers
	for _, lt := range ls.decoded {
		switch lt {
		case layers.LayerTypeEthernet:
			h.Link = linkHeader(&ls.eth)
		case layers.LayerTypeIPv4:
			h.Network = ipv4Header(&ls.ip4)
		case layers.LayerTypeIPv6:
			h.Network = ipv6Header(&ls.ip6)
		case layers.LayerTypeTCP:
			h.Transport = tcpHeader(&ls.tcp)
		case layers.LayerTypeUDP:
			h.Transport = udpHeader(&ls.udp)
		case layers.LayerTypeICMPv4:
			h.Transport = core.TransportHeader{Kind: core.TransportICMPv4}
		case layers.LayerTypeICMPv6:
			h.Transport = core.TransportHeader{Kind: core.TransportICMPv6}
		}
	}

	if h.Network.Kind != core.NetworkNone && h.Transport.Kind == core.TransportNone {
		h.Transport.Kind = core.TransportUnknown
	}
	if h.Link == nil && h.Network.Kind == core.NetworkNone {
		return core.Headers{}, core.ErrUnsupportedProto
	}
	return h, nil
}

// Build dissects frame and maps the headers to a PacketRecord.
func (d *StandardDissector) Build(frame core.Frame) (core.PacketRecord, error) {
	h, err := d.Dissect(frame.Data)
	if err != nil {
		return core.PacketRecord{}, err
	}
	return Record(h, frame), nil
}

// Record maps dissected headers and capture metadata to a PacketRecord.
// A recognized transport overrides the EtherType label of the link fallback.
func Record(h core.Headers, frame core.Frame) core.PacketRecord {
	rec := core.PacketRecord{
		Timestamp: core.FormatTimestamp(frame.Timestamp),
		Length:    frame.WireLength(),
	}

	switch h.Network.Kind {
	case core.NetworkIPv4, core.NetworkIPv6:
		rec.Source = formatIP(h.Network.SrcIP)
		rec.Destination = formatIP(h.Network.DstIP)
	default:
		if h.Link != nil {
			rec.Source = formatMAC(h.Link.SrcMAC)
			rec.Destination = formatMAC(h.Link.DstMAC)
			label := core.EtherTypeLabel(h.Link.EtherType)
			rec.Protocol = label
			rec.Info = label
		}
	}

	applyTransport(&rec, h.Transport)
	return rec
}
