//go:build linux

package afpacket

import (
	"errors"
	"io"
	"testing"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/netanalyzer/internal/capture"
)

func TestReadError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		timeout bool
		wrapped error
	}{
		{"poll timeout", afpacket.ErrTimeout, true, afpacket.ErrTimeout},
		{"poll error", afpacket.ErrPoll, false, afpacket.ErrPoll},
		{"other", io.ErrUnexpectedEOF, false, io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readError(tt.err)
			if errors.Is(got, capture.ErrTimeout) != tt.timeout {
				t.Errorf("readError(%v) = %v, want timeout %v", tt.err, got, tt.timeout)
			}
			if !tt.timeout && !errors.Is(got, tt.wrapped) {
				t.Errorf("readError(%v) = %v, want it to wrap %v", tt.err, got, tt.wrapped)
			}
		})
	}
}

func TestNewHandleSnapLen(t *testing.T) {
	opts := capture.DefaultOpenOptions()
	opts.SnapLen = 1514
	if got := newHandle(nil, "eth0", opts).snapLen; got != 1514 {
		t.Errorf("snapLen = %d, want 1514", got)
	}

	opts.SnapLen = 0
	if got, want := newHandle(nil, "eth0", opts).snapLen, capture.DefaultOpenOptions().SnapLen; got != want {
		t.Errorf("snapLen = %d, want default %d", got, want)
	}
}
