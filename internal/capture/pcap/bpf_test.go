package pcap

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/bpf"
)

func udpFrame(t *testing.T, dport uint16) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dport)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{1, 2, 3, 4, 5, 6},
			DstMAC:       net.HardwareAddr{6, 5, 4, 3, 2, 1},
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip, udp, gopacket.Payload([]byte("data")))
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCompileBPF(t *testing.T) {
	raw, err := CompileBPF(layers.LinkTypeEthernet, 5000, "udp dst port 53")
	if err != nil {
		t.Fatalf("CompileBPF failed: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected a non-empty program")
	}

	insts, allDecoded := bpf.Disassemble(raw)
	if !allDecoded {
		t.Fatal("expected every instruction to disassemble")
	}
	vm, err := bpf.NewVM(insts)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}

	if n, err := vm.Run(udpFrame(t, 53)); err != nil || n == 0 {
		t.Errorf("expected port 53 frame to match, n=%d err=%v", n, err)
	}
	if n, err := vm.Run(udpFrame(t, 123)); err != nil || n != 0 {
		t.Errorf("expected port 123 frame to be rejected, n=%d err=%v", n, err)
	}
}

func TestCompileBPFInvalid(t *testing.T) {
	if _, err := CompileBPF(layers.LinkTypeEthernet, 5000, "tcp port notaport and ("); err == nil {
		t.Error("expected syntax error")
	}
}
