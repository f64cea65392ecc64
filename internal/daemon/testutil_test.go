package daemon

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	_ "firestige.xyz/netanalyzer/internal/capture/file"
)

// writeTrace stores three TCP frames between 10.0.0.1:1000 and 10.0.0.2:80.
func writeTrace(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "trace.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create trace: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("write header: %v", err)
	}

	base := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		src, dst := net.IP{10, 0, 0, 1}, net.IP{10, 0, 0, 2}
		sport, dport := layers.TCPPort(1000), layers.TCPPort(80)
		if i == 1 {
			src, dst, sport, dport = dst, src, dport, sport
		}
		data := tcpFrame(t, src, dst, sport, dport)
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("write packet: %v", err)
		}
	}
	return path
}

func tcpFrame(t *testing.T, src, dst net.IP, sport, dport layers.TCPPort) []byte {
	t.Helper()
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: src, DstIP: dst}
	tcp := &layers.TCP{SrcPort: sport, DstPort: dport, Seq: 1, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum layer: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{5, 4, 3, 2, 1, 0},
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip, tcp, gopacket.Payload([]byte("hello")))
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

type testPaths struct {
	config, socket, pid, output, trace string
}

// writeConfig writes a file-engine configuration replaying a generated trace.
func writeConfig(t *testing.T, level string) testPaths {
	t.Helper()
	dir := t.TempDir()
	p := testPaths{
		config: filepath.Join(dir, "config.yml"),
		socket: filepath.Join(dir, "na.sock"),
		pid:    filepath.Join(dir, "na.pid"),
		output: filepath.Join(dir, "report.txt"),
		trace:  writeTrace(t, dir),
	}
	rewriteConfig(t, p, level)
	return p
}

func rewriteConfig(t *testing.T, p testPaths, level string) {
	t.Helper()
	content := strings.Join([]string{
		"analyzer:",
		"  session:",
		"    device_id: 1",
		"    flush_interval: 1",
		"    output: " + p.output,
		"  capture:",
		"    engine: file",
		"    files:",
		"      - " + p.trace,
		"  workers:",
		"    count: 2",
		"  control:",
		"    socket: " + p.socket,
		"    pid_file: " + p.pid,
		"  metrics:",
		"    enabled: true",
		"    listen: 127.0.0.1:0",
		"  log:",
		"    level: " + level,
		"    format: text",
		"",
	}, "\n")
	if err := os.WriteFile(p.config, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
