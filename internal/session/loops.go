package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"firestige.xyz/netanalyzer/internal/capture"
	"firestige.xyz/netanalyzer/internal/core"
	"firestige.xyz/netanalyzer/internal/metrics"
)

// statsSampleInterval bounds how often the capture loop queries kernel
// counters.
const statsSampleInterval = time.Second

// acquire waits until capture may proceed and leases the active handle.
// It returns false once the session is stopped.
func (s *Session) acquire() (*lease, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.state != StateStopped && (s.state == StatePaused || s.applying) {
		s.cond.Wait()
	}
	if s.state == StateStopped {
		return nil, false
	}
	s.active.refs++
	return s.active, true
}

// release drops a lease and returns the state observed after the read.
func (s *Session) release(l *lease) State {
	s.mu.Lock()
	l.refs--
	closeIt := l.retired && l.refs == 0
	if s.applying || l.retired {
		s.cond.Broadcast()
	}
	st := s.state
	s.mu.Unlock()

	if closeIt {
		l.handle.Close()
	}
	return st
}

func (s *Session) captureLoop() {
	defer close(s.captureDone)
	defer s.shutdownCapture()

	for {
		l, ok := s.acquire()
		if !ok {
			return
		}

		data, ci, err := l.handle.ReadPacketData()
		s.sampleStats(l)
		var frame core.Frame
		if err == nil {
			frame = core.Frame{
				Data:       bytes.Clone(data),
				Timestamp:  ci.Timestamp,
				CaptureLen: uint32(ci.CaptureLength),
				Length:     uint32(ci.Length),
			}
		}
		st := s.release(l)

		if err != nil {
			if !s.readFailed(l.device, err) {
				return
			}
			continue
		}

		s.framesCaptured.Add(1)
		metrics.FramesCapturedTotal.WithLabelValues(l.device).Inc()

		if st != StateCapturing {
			s.framesDiscarded.Add(1)
			metrics.FramesDiscardedTotal.WithLabelValues("state").Inc()
			continue
		}
		if !s.pool.Submit(func() { s.process(frame) }) {
			return
		}
	}
}

// sampleStats refreshes the kernel counters of l. It runs on the capture
// goroutine while l is leased, so the handle is never queried during a read.
func (s *Session) sampleStats(l *lease) {
	sp, ok := l.handle.(capture.StatsProvider)
	if !ok {
		return
	}
	s.mu.Lock()
	due := time.Since(l.sampledAt) >= statsSampleInterval
	s.mu.Unlock()
	if !due {
		return
	}

	recv, drop, err := sp.CaptureStats()
	s.mu.Lock()
	l.sampledAt = time.Now()
	if err == nil {
		l.kernelRecv, l.kernelDrop = recv, drop
	}
	s.mu.Unlock()
}

// readFailed handles a read error and reports whether the loop continues.
func (s *Session) readFailed(device string, err error) bool {
	switch {
	case errors.Is(err, capture.ErrTimeout):
		return true
	case errors.Is(err, io.EOF):
		s.log.Info("capture source exhausted", "device", device)
		s.Stop()
		return false
	default:
		s.PushError(core.CaptureError("read", fmt.Errorf("%w: %s: %w", core.ErrCaptureRead, device, err)))
		metrics.CaptureErrorsTotal.WithLabelValues("read").Inc()
		s.sleep(s.backoff)
		return true
	}
}

func (s *Session) process(frame core.Frame) {
	rec, err := s.dissector.Build(frame)
	if err != nil {
		s.dissectFailures.Add(1)
		metrics.FramesDiscardedTotal.WithLabelValues("dissect").Inc()
		return
	}
	if s.report.Merge(rec) {
		metrics.ReportConversations.Inc()
	}
	s.recordsMerged.Add(1)
	metrics.ReportMergesTotal.Inc()
}

// shutdownCapture drains the pool and closes the active handle.
func (s *Session) shutdownCapture() {
	s.pool.Join()

	s.mu.Lock()
	l := s.active
	l.retired = true
	closeIt := l.refs == 0
	s.mu.Unlock()

	if closeIt {
		l.handle.Close()
	}
}

func (s *Session) flushLoop() {
	defer close(s.flushDone)

	for {
		s.sleep(time.Duration(s.Timeout()) * time.Second)

		switch s.State() {
		case StateStopped:
			<-s.captureDone
			s.flush()
			return
		case StatePaused:
			s.wait()
			continue
		}
		s.flush()
	}
}

// flush writes the current report to the output file. A failed write is
// skipped; the next cycle retries.
func (s *Session) flush() {
	path := s.OutputFile()
	start := time.Now()
	err := s.report.WriteFile(path)
	metrics.FlushDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		s.flushErrors.Add(1)
		metrics.FlushTotal.WithLabelValues("error").Inc()
		s.log.Debug("report flush failed", "path", path, "error", err)
		return
	}
	s.flushes.Add(1)
	metrics.FlushTotal.WithLabelValues("ok").Inc()

	s.mu.Lock()
	s.lastFlush = time.Now()
	s.mu.Unlock()
}

// sleep waits for d or until the session is stopped.
func (s *Session) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.stopCh:
	}
}
