package session

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/netanalyzer/internal/capture"
	"firestige.xyz/netanalyzer/internal/core"
	"firestige.xyz/netanalyzer/internal/core/decoder"
	"firestige.xyz/netanalyzer/internal/metrics"
	"firestige.xyz/netanalyzer/internal/report"
)

// DefaultFlushInterval is used when Params.FlushInterval is 0.
const DefaultFlushInterval uint32 = 5

// Params are the session start parameters.
type Params struct {
	DeviceID      int    // 1-based index into Source.ListDevices
	FlushInterval uint32 // seconds
	OutputPath    string
	Filter        string // optional BPF expression
}

type options struct {
	source     capture.Source
	dissector  decoder.Dissector
	report     *report.Report
	openOpts   capture.OpenOptions
	workers    int
	queueCap   int
	dropPolicy DropPolicy
	maxErrors  int
	backoff    time.Duration
}

// Option configures Start.
type Option func(*options)

// WithSource sets the capture collaborator. Required.
func WithSource(src capture.Source) Option {
	return func(o *options) { o.source = src }
}

// WithDissector replaces the standard dissector.
func WithDissector(d decoder.Dissector) Option {
	return func(o *options) { o.dissector = d }
}

// WithReport aggregates into an existing report.
func WithReport(r *report.Report) Option {
	return func(o *options) { o.report = r }
}

// WithOpenOptions overrides the handle parameters used by Start and SetDevice.
func WithOpenOptions(opts capture.OpenOptions) Option {
	return func(o *options) { o.openOpts = opts }
}

// WithWorkers sets the pool size; 0 keeps runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueue bounds the dissection queue. Capacity 0 leaves it unbounded.
func WithQueue(capacity int, policy DropPolicy) Option {
	return func(o *options) {
		o.queueCap = capacity
		o.dropPolicy = policy
	}
}

// WithMaxErrors bounds the error queue, dropping the oldest entry when full.
// 0 leaves it unbounded.
func WithMaxErrors(n int) Option {
	return func(o *options) { o.maxErrors = n }
}

// WithReadErrorBackoff sets the pause after a failed read.
func WithReadErrorBackoff(d time.Duration) Option {
	return func(o *options) { o.backoff = d }
}

func defaultOptions() options {
	return options{
		openOpts:   capture.DefaultOpenOptions(),
		workers:    runtime.NumCPU(),
		dropPolicy: DropBlock,
		backoff:    100 * time.Millisecond,
	}
}

// lease is a reference-counted capture handle. A retired lease is closed
// by whoever drops the last reference.
type lease struct {
	handle  capture.Handle
	device  string
	refs    int
	retired bool

	// Kernel counters sampled by the capture loop.
	kernelRecv uint64
	kernelDrop uint64
	sampledAt  time.Time
}

// Session is the capture control block plus the goroutines that observe it.
// One Session is shared by pointer between the capture loop, the flush loop
// and the control plane.
type Session struct {
	id        string
	startedAt time.Time
	source    capture.Source
	dissector decoder.Dissector
	report    *report.Report
	openOpts  capture.OpenOptions
	pool      *Pool
	maxErrors int
	backoff   time.Duration
	log       *slog.Logger

	// ctrlMu serializes SetDevice and SetFilter.
	ctrlMu sync.Mutex

	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	timeout   uint32
	output    string
	filter    string
	active    *lease
	applying  bool // a filter is being applied; readers must not lease
	errs      []ErrorEntry
	lastFlush time.Time

	stopOnce    sync.Once
	stopCh      chan struct{}
	captureDone chan struct{}
	flushDone   chan struct{}
	done        chan struct{}

	framesCaptured  atomic.Uint64
	framesDiscarded atomic.Uint64
	dissectFailures atomic.Uint64
	recordsMerged   atomic.Uint64
	flushes         atomic.Uint64
	flushErrors     atomic.Uint64
}

// Start validates p, opens the device and starts the capture and flush
// loops. Configuration problems return a config error and capture problems
// a capture error; in both cases no goroutine is left running.
func Start(p Params, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.source == nil {
		return nil, core.ConfigError("start", fmt.Errorf("%w: no capture source", core.ErrConfigInvalid))
	}
	if o.dissector == nil {
		o.dissector = decoder.NewStandardDissector()
	}
	if o.report == nil {
		o.report = report.New()
	}

	timeout := p.FlushInterval
	if timeout == 0 {
		timeout = DefaultFlushInterval
	}

	if err := validateOutputPath(p.OutputPath); err != nil {
		return nil, core.ConfigError("set_output_file", err)
	}

	dev, h, err := openDevice(o.source, p.DeviceID, o.openOpts)
	if err != nil {
		return nil, err
	}

	if p.Filter != "" {
		if err := h.SetBPFFilter(p.Filter); err != nil {
			h.Close()
			return nil, core.ConfigError("set_filter", fmt.Errorf("%w: %q: %w", core.ErrInvalidFilter, p.Filter, err))
		}
	}

	id := uuid.NewString()
	s := &Session{
		id:          id,
		startedAt:   time.Now(),
		source:      o.source,
		dissector:   o.dissector,
		report:      o.report,
		openOpts:    o.openOpts,
		pool:        NewPool(o.workers, o.queueCap, o.dropPolicy),
		maxErrors:   o.maxErrors,
		backoff:     o.backoff,
		log:         slog.Default().With("session_id", id),
		state:       StateCapturing,
		timeout:     timeout,
		output:      p.OutputPath,
		filter:      p.Filter,
		active:      &lease{handle: h, device: dev.Name},
		stopCh:      make(chan struct{}),
		captureDone: make(chan struct{}),
		flushDone:   make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	metrics.SessionState.Set(StateCapturing.gaugeValue())
	metrics.ReportConversations.Set(float64(s.report.Len()))
	metrics.ErrorQueueLength.Set(0)

	s.log.Info("session started",
		"device", dev.Name,
		"flush_interval", timeout,
		"output", p.OutputPath,
		"filter", p.Filter,
		"workers", o.workers)

	go s.captureLoop()
	go s.flushLoop()
	go func() {
		<-s.captureDone
		<-s.flushDone
		s.log.Info("session finished")
		close(s.done)
	}()

	return s, nil
}

// openDevice resolves a 1-based id and opens it.
func openDevice(src capture.Source, id int, opts capture.OpenOptions) (capture.Device, capture.Handle, error) {
	devs, err := src.ListDevices()
	if err != nil {
		return capture.Device{}, nil, core.CaptureError("list_devices", fmt.Errorf("%w: %w", core.ErrDeviceOpen, err))
	}
	dev, err := capture.ResolveDevice(devs, id)
	if err != nil {
		return capture.Device{}, nil, core.ConfigError("set_device", err)
	}
	h, err := src.Open(dev.Name, opts)
	if err != nil {
		return capture.Device{}, nil, core.CaptureError("open", fmt.Errorf("%w: %s: %w", core.ErrDeviceOpen, dev.Name, err))
	}
	return dev, h, nil
}

// validateOutputPath accepts an existing regular file or a path that can
// be created.
func validateOutputPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", core.ErrInvalidFilePath)
	}
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", core.ErrInvalidFilePath, path)
		}
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrInvalidFilePath, path, err)
	}
	return f.Close()
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Report returns the aggregate the session merges into.
func (s *Session) Report() *report.Report { return s.report }

// Snapshot returns a copy of the current report lines.
func (s *Session) Snapshot() []report.Line { return s.report.Snapshot() }

// Done is closed once both loops have exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session has finished.
func (s *Session) Wait() { <-s.done }
