// Package decoder implements protocol decoding.
package decoder

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/netanalyzer/internal/core"
)

// linkHeader copies the Ethernet header out of the reusable layer.
func linkHeader(eth *layers.Ethernet) *core.LinkHeader {
	link := &core.LinkHeader{EtherType: uint16(eth.EthernetType)}
	copy(link.SrcMAC[:], eth.SrcMAC)
	copy(link.DstMAC[:], eth.DstMAC)
	return link
}

// formatMAC renders a hardware address as upper-case hex, 2 digits per group.
func formatMAC(mac [6]byte) string {
	return groupHex(mac[:], 2)
}

const hexDigits = "0123456789ABCDEF"

// groupHex hex-encodes b in upper case and inserts ':' every width digits.
func groupHex(b []byte, width int) string {
	digits := len(b) * 2
	out := make([]byte, 0, digits+digits/width)
	for i, v := range b {
		for j, nibble := range [2]byte{v >> 4, v & 0x0F} {
			pos := i*2 + j
			if pos > 0 && pos%width == 0 {
				out = append(out, ':')
			}
			out = append(out, hexDigits[nibble])
		}
	}
	return string(out)
}
