package report

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/netanalyzer/internal/core"
)

func record(ts, src string, sport uint16, dst string, dport uint16, proto string, length uint32) core.PacketRecord {
	rec := core.PacketRecord{
		Timestamp:   ts,
		Source:      src,
		Destination: dst,
		Protocol:    proto,
		Length:      length,
	}
	if sport != 0 {
		rec.SrcPort = core.PortOf(sport)
	}
	if dport != 0 {
		rec.DstPort = core.PortOf(dport)
	}
	return rec
}

func TestNewKeyCanonical(t *testing.T) {
	assert.Equal(t, NewKey("b", "a"), NewKey("a", "b"))
	assert.Equal(t, Key{A: "10.0.0.1:1000", B: "10.0.0.2:80"}, NewKey("10.0.0.2:80", "10.0.0.1:1000"))
}

func TestMergeSymmetry(t *testing.T) {
	r := New()

	assert.True(t, r.Merge(record("10:00:00.000", "10.0.0.1", 1000, "10.0.0.2", 80, core.ProtoTCP, 100)))
	assert.False(t, r.Merge(record("10:00:00.100", "10.0.0.2", 80, "10.0.0.1", 1000, core.ProtoTCP, 200)))

	require.Equal(t, 1, r.Len())
	line, ok := r.Lookup("10.0.0.2:80", "10.0.0.1:1000")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:1000", line.Address1)
	assert.Equal(t, "10.0.0.2:80", line.Address2)
	assert.Equal(t, uint64(300), line.BytesTotal)
}

func TestMergeByteSum(t *testing.T) {
	r := New()
	var want uint64
	for i := uint32(1); i <= 50; i++ {
		r.Merge(record("10:00:00.000", "a", 0, "b", 0, core.ProtoARP, i*1500))
		want += uint64(i * 1500)
	}

	line, ok := r.Lookup("a", "b")
	require.True(t, ok)
	assert.Equal(t, want, line.BytesTotal)
}

func TestMergeLargeLengthsDoNotOverflow(t *testing.T) {
	r := New()
	r.Merge(record("10:00:00.000", "a", 0, "b", 0, core.ProtoUDP, ^uint32(0)))
	r.Merge(record("10:00:00.000", "a", 0, "b", 0, core.ProtoUDP, ^uint32(0)))

	line, _ := r.Lookup("a", "b")
	assert.Equal(t, 2*uint64(^uint32(0)), line.BytesTotal)
}

func TestMergeProtocolSetOrder(t *testing.T) {
	r := New()
	for _, p := range []string{core.ProtoUDP, core.ProtoTCP, core.ProtoUDP, core.ProtoICMPv4, core.ProtoTCP} {
		r.Merge(record("10:00:00.000", "x", 0, "y", 0, p, 1))
	}

	line, _ := r.Lookup("x", "y")
	assert.Equal(t, []string{core.ProtoUDP, core.ProtoTCP, core.ProtoICMPv4}, line.Protocols)
}

func TestMergeTimestamps(t *testing.T) {
	r := New()
	r.Merge(record("10:00:05.000", "x", 0, "y", 0, core.ProtoTCP, 1))
	r.Merge(record("10:00:09.000", "x", 0, "y", 0, core.ProtoTCP, 1))
	r.Merge(record("10:00:01.000", "y", 0, "x", 0, core.ProtoTCP, 1))
	r.Merge(record("10:00:07.000", "x", 0, "y", 0, core.ProtoTCP, 1))

	line, _ := r.Lookup("x", "y")
	assert.Equal(t, "10:00:01.000", line.FirstTimestamp)
	assert.Equal(t, "10:00:09.000", line.LastTimestamp)
}

func TestScenarioThreeFrames(t *testing.T) {
	r := New()
	r.Merge(record("10:00:00.000", "10.0.0.1", 1000, "10.0.0.2", 80, core.ProtoTCP, 100))
	r.Merge(record("10:00:00.001", "10.0.0.2", 80, "10.0.0.1", 1000, core.ProtoTCP, 200))
	r.Merge(record("10:00:00.002", "10.0.0.1", 1000, "10.0.0.2", 80, core.ProtoUDP, 50))

	lines := r.Snapshot()
	require.Len(t, lines, 1)
	assert.Equal(t, []string{"TCP", "UDP"}, lines[0].Protocols)
	assert.Equal(t, uint64(350), lines[0].BytesTotal)
}

func TestConcurrentMerge(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if w%2 == 0 {
					r.Merge(record("10:00:00.000", "10.0.0.1", 1, "10.0.0.2", 2, core.ProtoTCP, 10))
				} else {
					r.Merge(record("10:00:00.000", "10.0.0.2", 2, "10.0.0.1", 1, core.ProtoUDP, 10))
				}
				_ = r.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	line, ok := r.Lookup("10.0.0.1:1", "10.0.0.2:2")
	require.True(t, ok)
	assert.Equal(t, uint64(8*500*10), line.BytesTotal)
	assert.ElementsMatch(t, []string{"TCP", "UDP"}, line.Protocols)
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New()
	r.Merge(record("10:00:00.000", "x", 0, "y", 0, core.ProtoTCP, 1))

	snap := r.Snapshot()
	snap[0].Protocols[0] = "mutated"
	snap[0].BytesTotal = 999

	line, _ := r.Lookup("x", "y")
	assert.Equal(t, []string{core.ProtoTCP}, line.Protocols)
	assert.Equal(t, uint64(1), line.BytesTotal)
}

func TestSnapshotOrdered(t *testing.T) {
	r := New()
	r.Merge(record("10:00:00.000", "c", 0, "d", 0, core.ProtoTCP, 1))
	r.Merge(record("10:00:00.000", "b", 0, "a", 0, core.ProtoTCP, 1))

	lines := r.Snapshot()
	require.Len(t, lines, 2)
	assert.Equal(t, "a", lines[0].Address1)
	assert.Equal(t, "c", lines[1].Address1)
}

// tableRows returns the cells of each "|" row of a rendered table.
func tableRows(out string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if !strings.HasPrefix(line, "|") {
			continue
		}
		parts := strings.Split(line, "|")
		cells := make([]string, 0, len(parts)-2)
		for _, p := range parts[1 : len(parts)-1] {
			cells = append(cells, strings.TrimSpace(p))
		}
		rows = append(rows, cells)
	}
	return rows
}

func TestRender(t *testing.T) {
	r := New()
	r.Merge(record("10:00:00.000", "10.0.0.1", 1000, "10.0.0.2", 80, core.ProtoTCP, 100))
	r.Merge(record("10:00:01.500", "10.0.0.2", 80, "10.0.0.1", 1000, core.ProtoUDP, 250))

	out := r.String()
	rows := tableRows(out)
	require.Len(t, rows, 2)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"10:00:00.000", "10:00:01.500", "10.0.0.1:1000", "10.0.0.2:80", "TCP,UDP", "350"}, rows[1])

	// Boxed layout: every line has the same width and starts with a border.
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "+-"))
	for _, line := range lines {
		assert.Len(t, line, len(lines[0]))
	}
}

func TestRenderEmpty(t *testing.T) {
	rows := tableRows(New().String())
	require.Len(t, rows, 1)
	assert.Equal(t, Header, rows[0])
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("stale\n", 100)), 0644))

	r := New()
	r.Merge(record("10:00:00.000", "x", 0, "y", 0, core.ProtoTCP, 1))
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
	assert.Equal(t, r.String(), string(data))
}

func TestWriteFileInvalidPath(t *testing.T) {
	r := New()
	err := r.WriteFile(filepath.Join(t.TempDir(), "missing", "dir", "report.txt"))
	assert.Error(t, err)
}
