// Package report implements bidirectional conversation aggregation.
package report

import (
	"slices"
	"sort"
	"sync"

	"firestige.xyz/netanalyzer/internal/core"
)

// Key is a canonical conversation key: A <= B lexicographically.
type Key struct {
	A string
	B string
}

// NewKey canonicalizes two endpoint identifiers so (x, y) and (y, x)
// produce the same key.
func NewKey(x, y string) Key {
	if x > y {
		x, y = y, x
	}
	return Key{A: x, B: y}
}

// Line is the aggregate of one conversation.
type Line struct {
	FirstTimestamp string   `json:"first_timestamp" yaml:"first_timestamp"`
	LastTimestamp  string   `json:"last_timestamp" yaml:"last_timestamp"`
	Address1       string   `json:"address_1" yaml:"address_1"`
	Address2       string   `json:"address_2" yaml:"address_2"`
	Protocols      []string `json:"protocols" yaml:"protocols"`
	BytesTotal     uint64   `json:"bytes_total" yaml:"bytes_total"`
}

// Report maps conversation keys to their Line. All access is serialized
// by one mutex; workers merge concurrently with snapshots.
type Report struct {
	mu    sync.Mutex
	lines map[Key]*Line
}

// New creates an empty report.
func New() *Report {
	return &Report{lines: make(map[Key]*Line)}
}

// Merge folds rec into its conversation and reports whether the
// conversation was new. Existing lines are mutated in place, never replaced.
func (r *Report) Merge(rec core.PacketRecord) bool {
	key := NewKey(rec.SourceEndpoint(), rec.DestinationEndpoint())

	r.mu.Lock()
	defer r.mu.Unlock()

	line, ok := r.lines[key]
	if !ok {
		r.lines[key] = &Line{
			FirstTimestamp: rec.Timestamp,
			LastTimestamp:  rec.Timestamp,
			Address1:       key.A,
			Address2:       key.B,
			Protocols:      []string{rec.Protocol},
			BytesTotal:     uint64(rec.Length),
		}
		return true
	}

	if !slices.Contains(line.Protocols, rec.Protocol) {
		line.Protocols = append(line.Protocols, rec.Protocol)
	}
	line.BytesTotal += uint64(rec.Length)

	// First and last are tracked independently: earliest and latest seen.
	if rec.Timestamp > line.LastTimestamp {
		line.LastTimestamp = rec.Timestamp
	}
	if rec.Timestamp < line.FirstTimestamp {
		line.FirstTimestamp = rec.Timestamp
	}
	return false
}

// Len returns the number of conversations.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Lookup returns a copy of the line for the unordered pair (x, y).
func (r *Report) Lookup(x, y string) (Line, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line, ok := r.lines[NewKey(x, y)]
	if !ok {
		return Line{}, false
	}
	return copyLine(line), true
}

// Snapshot returns a point-in-time copy of every line, ordered by
// (Address1, Address2) so repeated flushes are stable.
func (r *Report) Snapshot() []Line {
	r.mu.Lock()
	out := make([]Line, 0, len(r.lines))
	for _, line := range r.lines {
		out = append(out, copyLine(line))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Address1 != out[j].Address1 {
			return out[i].Address1 < out[j].Address1
		}
		return out[i].Address2 < out[j].Address2
	})
	return out
}

func copyLine(l *Line) Line {
	c := *l
	c.Protocols = slices.Clone(l.Protocols)
	return c
}
