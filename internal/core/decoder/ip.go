// Package decoder implements protocol decoding.
package decoder

import (
	"net/netip"

	"github.com/google/gopacket/layers"

	"firestige.xyz/netanalyzer/internal/core"
)

func ipv4Header(ip *layers.IPv4) core.NetworkHeader {
	src, _ := netip.AddrFromSlice(ip.SrcIP.To4())
	dst, _ := netip.AddrFromSlice(ip.DstIP.To4())
	return core.NetworkHeader{Kind: core.NetworkIPv4, SrcIP: src, DstIP: dst}
}

func ipv6Header(ip *layers.IPv6) core.NetworkHeader {
	src, _ := netip.AddrFromSlice(ip.SrcIP.To16())
	dst, _ := netip.AddrFromSlice(ip.DstIP.To16())
	return core.NetworkHeader{Kind: core.NetworkIPv6, SrcIP: src, DstIP: dst}
}

// formatIP renders IPv4 as dotted decimal and IPv6 as uncompressed
// upper-case hex in groups of 4.
func formatIP(addr netip.Addr) string {
	if addr.Is4() {
		return addr.String()
	}
	b := addr.As16()
	return groupHex(b[:], 4)
}
