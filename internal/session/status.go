package session

import "time"

// Status is a point-in-time view of a session.
type Status struct {
	ID            string     `json:"id" yaml:"id"`
	State         State      `json:"state" yaml:"state"`
	Device        string     `json:"device" yaml:"device"`
	Filter        string     `json:"filter" yaml:"filter"`
	FlushInterval uint32     `json:"flush_interval" yaml:"flush_interval"`
	OutputFile    string     `json:"output_file" yaml:"output_file"`
	StartedAt     time.Time  `json:"started_at" yaml:"started_at"`
	LastFlush     *time.Time `json:"last_flush,omitempty" yaml:"last_flush,omitempty"`

	Conversations int `json:"conversations" yaml:"conversations"`
	PendingErrors int `json:"pending_errors" yaml:"pending_errors"`
	QueuedTasks   int `json:"queued_tasks" yaml:"queued_tasks"`

	FramesCaptured  uint64 `json:"frames_captured" yaml:"frames_captured"`
	FramesDiscarded uint64 `json:"frames_discarded" yaml:"frames_discarded"`
	FramesDropped   uint64 `json:"frames_dropped" yaml:"frames_dropped"`
	DissectFailures uint64 `json:"dissect_failures" yaml:"dissect_failures"`
	RecordsMerged   uint64 `json:"records_merged" yaml:"records_merged"`
	Flushes         uint64 `json:"flushes" yaml:"flushes"`
	FlushErrors     uint64 `json:"flush_errors" yaml:"flush_errors"`

	// Kernel counters, when the handle exposes them. Sampled by the capture
	// loop at most once per second.
	KernelReceived uint64 `json:"kernel_received,omitempty" yaml:"kernel_received,omitempty"`
	KernelDropped  uint64 `json:"kernel_dropped,omitempty" yaml:"kernel_dropped,omitempty"`
}

// Status collects the session counters.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		ID:            s.id,
		State:         s.state,
		Device:        s.active.device,
		Filter:        s.filter,
		FlushInterval: s.timeout,
		OutputFile:    s.output,
		StartedAt:     s.startedAt,
		PendingErrors: len(s.errs),

		KernelReceived: s.active.kernelRecv,
		KernelDropped:  s.active.kernelDrop,
	}
	if !s.lastFlush.IsZero() {
		t := s.lastFlush
		st.LastFlush = &t
	}
	s.mu.Unlock()

	st.Conversations = s.report.Len()
	st.QueuedTasks = s.pool.Pending()
	st.FramesCaptured = s.framesCaptured.Load()
	st.FramesDiscarded = s.framesDiscarded.Load()
	st.FramesDropped = s.pool.Dropped()
	st.DissectFailures = s.dissectFailures.Load()
	st.RecordsMerged = s.recordsMerged.Load()
	st.Flushes = s.flushes.Load()
	st.FlushErrors = s.flushErrors.Load()
	return st
}
