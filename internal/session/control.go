package session

import (
	"fmt"

	"firestige.xyz/netanalyzer/internal/core"
	"firestige.xyz/netanalyzer/internal/metrics"
)

// setState transitions the session and wakes every waiter. Stopped is
// terminal: leaving it is refused. Must hold mu.
func (s *Session) setState(next State) bool {
	if s.state == StateStopped && next != StateStopped {
		return false
	}
	if s.state == next {
		return true
	}
	prev := s.state
	s.state = next
	s.cond.Broadcast()
	metrics.SessionState.Set(next.gaugeValue())
	s.log.Info("session state changed", "from", prev, "to", next)
	return true
}

// State returns the current capture state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pause suspends capture and flushing until Resume or Stop.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.setState(StatePaused) {
		s.log.Warn("pause ignored", "state", s.state)
		return core.ErrSessionStopped
	}
	return nil
}

// Resume continues capture.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.setState(StateCapturing) {
		s.log.Warn("resume ignored", "state", s.state)
		return core.ErrSessionStopped
	}
	return nil
}

// Stop ends the session. Both loops observe it at their next poll point;
// every frame already accepted is still merged and flushed once more.
func (s *Session) Stop() {
	s.mu.Lock()
	s.setState(StateStopped)
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// wait blocks while the session is paused and returns the state that
// ended the wait.
func (s *Session) wait() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.state == StatePaused {
		s.cond.Wait()
	}
	return s.state
}

// Timeout returns the flush interval in seconds.
func (s *Session) Timeout() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// SetTimeout changes the flush interval. It takes effect on the next cycle.
func (s *Session) SetTimeout(seconds uint32) error {
	if seconds == 0 {
		return core.ConfigError("set_timeout", fmt.Errorf("%w: must be at least 1 second", core.ErrInvalidTimeout))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = seconds
	s.log.Info("flush interval changed", "seconds", seconds)
	return nil
}

// OutputFile returns the report output path.
func (s *Session) OutputFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// SetOutputFile changes the report output path. An invalid path returns a
// config error and leaves the previous path active.
func (s *Session) SetOutputFile(path string) error {
	if err := validateOutputPath(path); err != nil {
		return core.ConfigError("set_output_file", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = path
	s.log.Info("output file changed", "path", path)
	return nil
}

// Device returns the name of the active device.
func (s *Session) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.device
}

// Filter returns the filter installed on the active handle.
func (s *Session) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetDevice opens the device with the given 1-based id and swaps it in.
// The previous handle is closed once no read holds it. The new handle
// starts without a filter.
func (s *Session) SetDevice(id int) error {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	if s.State() == StateStopped {
		return core.CaptureError("set_device", core.ErrSessionStopped)
	}

	dev, h, err := openDevice(s.source, id, s.openOpts)
	if err != nil {
		metrics.CaptureErrorsTotal.WithLabelValues("device").Inc()
		return err
	}

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		h.Close()
		return core.CaptureError("set_device", core.ErrSessionStopped)
	}
	old := s.active
	s.active = &lease{handle: h, device: dev.Name}
	s.filter = ""
	old.retired = true
	closeOld := old.refs == 0
	s.cond.Broadcast()
	s.mu.Unlock()

	if closeOld {
		old.handle.Close()
	}
	s.log.Info("capture device changed", "from", old.device, "to", dev.Name, "id", id)
	return nil
}

// SetFilter installs expr on the active handle while no read is in flight.
// Success resumes capture. Failure keeps the previous filter, pauses the
// session until an explicit Resume, and returns a capture error.
func (s *Session) SetFilter(expr string) error {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return core.CaptureError("set_filter", core.ErrSessionStopped)
	}
	s.applying = true
	l := s.active
	for l.refs > 0 {
		s.cond.Wait()
	}
	l.refs++
	s.mu.Unlock()

	err := l.handle.SetBPFFilter(expr)

	s.mu.Lock()
	s.applying = false
	l.refs--
	closeIt := l.retired && l.refs == 0
	s.cond.Broadcast()

	if err != nil {
		s.setState(StatePaused)
		s.mu.Unlock()
		if closeIt {
			l.handle.Close()
		}
		metrics.CaptureErrorsTotal.WithLabelValues("filter").Inc()
		s.log.Warn("filter rejected, capture paused until resumed", "filter", expr, "error", err)
		return core.CaptureError("set_filter", fmt.Errorf("%w: %q: %w", core.ErrFilterApply, expr, err))
	}

	s.filter = expr
	s.setState(StateCapturing)
	s.mu.Unlock()
	if closeIt {
		l.handle.Close()
	}
	s.log.Info("capture filter changed", "filter", expr)
	return nil
}
