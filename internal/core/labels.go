// Package core defines core types.
package core

// Protocol labels carried by PacketRecord.Protocol. The set is closed.
const (
	ProtoTCP     = "TCP"
	ProtoUDP     = "UDP"
	ProtoICMPv4  = "ICMPv4"
	ProtoICMPv6  = "ICMPv6"
	ProtoIPv4    = "IPv4"
	ProtoIPv6    = "IPv6"
	ProtoARP     = "ARP"
	ProtoVLAN    = "VLAN"
	ProtoMPLS    = "MPLS"
	ProtoUnknown = "Unknown"

	// InfoUnknown is the info string for unrecognized transport payloads.
	InfoUnknown = "UNKNOWN"
)

// EtherType values with a label.
const (
	EtherTypeIPv4 = 0x0800
	EtherTypeIPv6 = 0x86DD
	EtherTypeARP  = 0x0806
	EtherTypeVLAN = 0x8100
	EtherTypeMPLS = 0x8847
)

// EtherTypeLabel maps an EtherType to its protocol label.
func EtherTypeLabel(etherType uint16) string {
	switch etherType {
	case EtherTypeIPv4:
		return ProtoIPv4
	case EtherTypeIPv6:
		return ProtoIPv6
	case EtherTypeARP:
		return ProtoARP
	case EtherTypeVLAN:
		return ProtoVLAN
	case EtherTypeMPLS:
		return ProtoMPLS
	default:
		return ProtoUnknown
	}
}
