package session

import (
	"time"

	"firestige.xyz/netanalyzer/internal/metrics"
)

// ErrorEntry is one queued background error.
type ErrorEntry struct {
	Time    time.Time `json:"time" yaml:"time"`
	Message string    `json:"message" yaml:"message"`
	Err     error     `json:"-" yaml:"-"`
}

// PushError appends err to the error queue.
func (s *Session) PushError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxErrors > 0 && len(s.errs) >= s.maxErrors {
		s.errs = append(s.errs[:0], s.errs[len(s.errs)-s.maxErrors+1:]...)
	}
	s.errs = append(s.errs, ErrorEntry{Time: time.Now(), Message: err.Error(), Err: err})
	metrics.ErrorQueueLength.Set(float64(len(s.errs)))
	s.log.Debug("error queued", "error", err, "pending", len(s.errs))
}

// Errors returns a copy of the queued errors, oldest first. The queue is
// not consumed.
func (s *Session) Errors() []ErrorEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ErrorEntry, len(s.errs))
	copy(out, s.errs)
	return out
}

// ClearErrors removes the n oldest errors and returns how many were
// removed. n beyond the queue length empties it.
func (s *Session) ClearErrors(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.errs) {
		n = len(s.errs)
	}
	rest := make([]ErrorEntry, len(s.errs)-n)
	copy(rest, s.errs[n:])
	s.errs = rest
	metrics.ErrorQueueLength.Set(float64(len(s.errs)))
	return n
}
