// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"firestige.xyz/netanalyzer/internal/capture"
	"firestige.xyz/netanalyzer/internal/command"
	"firestige.xyz/netanalyzer/internal/config"
	"firestige.xyz/netanalyzer/internal/core"
	logpkg "firestige.xyz/netanalyzer/internal/log"
	"firestige.xyz/netanalyzer/internal/metrics"
	"firestige.xyz/netanalyzer/internal/session"
)

// Override adjusts the loaded configuration before validation, typically
// from command-line flags.
type Override func(*config.GlobalConfig)

// Daemon manages the analyzer process lifecycle: one capture session, the
// control socket and the metrics endpoint.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	overrides  []Override

	// Core components
	source        capture.Source
	session       *session.Session
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New loads the configuration at configPath, applies overrides and
// validates the result.
func New(configPath string, overrides ...Override) (*Daemon, error) {
	cfg, err := loadConfig(configPath, overrides)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		overrides:    overrides,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

func loadConfig(path string, overrides []Override) (*config.GlobalConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if len(overrides) == 0 {
		return cfg, nil
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	return cfg, nil
}

// Config returns the effective configuration.
func (d *Daemon) Config() *config.GlobalConfig { return d.config }

// Session returns the running session, nil before Start.
func (d *Daemon) Session() *session.Session { return d.session }

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting netanalyzer daemon",
		"version", command.Version,
		"config", d.configPath,
		"socket", d.config.Control.Socket,
		"engine", d.config.Capture.Engine,
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		d.cleanup()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Start the capture session
	if err := d.startSession(); err != nil {
		d.cleanup()
		return err
	}

	// 5. Create command handler
	d.cmdHandler = command.NewCommandHandler(d.session, d.source)
	d.cmdHandler.SetShutdownFunc(d.TriggerShutdown)

	// 6. Start UDS server for CLI control
	d.udsServer = command.NewUDSServer(d.config.Control.Socket, d.cmdHandler)
	if err := d.udsServer.Listen(d.ctx); err != nil {
		d.session.Stop()
		d.session.Wait()
		d.cleanup()
		return fmt.Errorf("failed to start control socket: %w", err)
	}

	slog.Info("daemon started successfully", "session_id", d.session.ID())
	return nil
}

func (d *Daemon) startSession() error {
	src, err := capture.New(d.config.Capture.Engine, capture.EngineConfig{Files: d.config.Capture.Files})
	if err != nil {
		return fmt.Errorf("failed to create capture engine: %w", err)
	}
	d.source = src

	opts, err := sessionOptions(d.config, src)
	if err != nil {
		return err
	}

	sc := d.config.Session
	sess, err := session.Start(session.Params{
		DeviceID:      sc.DeviceID,
		FlushInterval: sc.FlushInterval,
		OutputPath:    sc.Output,
		Filter:        sc.Filter,
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	d.session = sess
	return nil
}

// sessionOptions maps configuration onto session options.
func sessionOptions(cfg *config.GlobalConfig, src capture.Source) ([]session.Option, error) {
	policy, err := session.ParseDropPolicy(cfg.Workers.DropPolicy)
	if err != nil {
		return nil, err
	}

	open := capture.DefaultOpenOptions()
	open.SnapLen = cfg.Capture.SnapLen
	open.Promiscuous = cfg.Capture.Promiscuous
	if cfg.Capture.ReadTimeout > 0 {
		open.ReadTimeout = cfg.Capture.ReadTimeout
	}
	if cfg.Capture.BufferSizeMB > 0 {
		open.BufferSizeMB = cfg.Capture.BufferSizeMB
	}

	opts := []session.Option{
		session.WithSource(src),
		session.WithOpenOptions(open),
		session.WithWorkers(cfg.Workers.Count),
		session.WithQueue(cfg.Workers.QueueCapacity, policy),
		session.WithMaxErrors(cfg.Errors.MaxQueue),
	}
	if cfg.Capture.ReadErrorBackoff > 0 {
		opts = append(opts, session.WithReadErrorBackoff(cfg.Capture.ReadErrorBackoff))
	}
	return opts, nil
}

// Stop performs graceful shutdown of all daemon components. The session
// gets a final flush before the process exits.
func (d *Daemon) Stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Stop UDS server (no new CLI commands)
	if d.udsServer != nil {
		slog.Info("stopping uds server")
		d.udsServer.Stop()
	}

	// 2. Stop the session and wait for the final flush
	if d.session != nil {
		slog.Info("stopping capture session")
		d.session.Stop()
		d.session.Wait()
	}

	d.cleanup()
	slog.Info("daemon stopped gracefully")
}

// cleanup releases everything Start acquired besides the session and socket.
func (d *Daemon) cleanup() {
	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
		cancel()
		d.metricsServer = nil
	}

	d.cancel()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via UDS
//  3. the session stopping (session_stop, or the end of a capture file)
//
// SIGHUP reloads the log configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.session.Done():
			slog.Info("capture session ended", "session_id", d.session.ID())
			d.Stop()
			return nil

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload re-reads the configuration file. Only logging is hot-reloaded;
// session parameters change through the control socket.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := loadConfig(d.configPath, d.overrides)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	oldLog := d.config.Log
	d.config.Log = newConfig.Log
	if err := d.initLogging(); err != nil {
		d.config.Log = oldLog
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	requiresRestart := []string{}
	if newConfig.Capture.Engine != d.config.Capture.Engine {
		requiresRestart = append(requiresRestart, "capture.engine")
	}
	if newConfig.Metrics.Listen != d.config.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}
	if newConfig.Control.Socket != d.config.Control.Socket {
		requiresRestart = append(requiresRestart, "control.socket")
	}

	slog.Info("configuration reloaded",
		"hot_reloaded", []string{"log"},
		"requires_restart", requiresRestart,
	)
	return nil
}

// TriggerShutdown requests a graceful stop of Run. Safe to call repeatedly.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}

	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	srv := metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := srv.Start(); err != nil {
		return err
	}
	d.metricsServer = srv
	return nil
}

// MetricsAddr returns the bound metrics address, empty when disabled.
func (d *Daemon) MetricsAddr() string {
	if d.metricsServer == nil {
		return ""
	}
	return d.metricsServer.Addr()
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	pidFile := d.config.Control.PIDFile
	if pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", pidFile, err)
	}

	slog.Debug("PID file written", "path", pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	pidFile := d.config.Control.PIDFile
	if pidFile == "" {
		return nil
	}

	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", pidFile, err)
	}

	slog.Debug("PID file removed", "path", pidFile)
	return nil
}
