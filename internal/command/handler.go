// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/netanalyzer/internal/capture"
	"firestige.xyz/netanalyzer/internal/core"
	"firestige.xyz/netanalyzer/internal/report"
	"firestige.xyz/netanalyzer/internal/session"
)

// Version is reported by daemon_status.
const Version = "0.1.0"

// Controller is the session surface driven by commands.
// *session.Session satisfies it.
type Controller interface {
	Pause() error
	Resume() error
	Stop()
	State() session.State
	Timeout() uint32
	SetTimeout(seconds uint32) error
	OutputFile() string
	SetOutputFile(path string) error
	SetDevice(id int) error
	SetFilter(expr string) error
	Errors() []session.ErrorEntry
	ClearErrors(n int) int
	Status() session.Status
	Snapshot() []report.Line
}

// DeviceLister enumerates capture devices. capture.Source satisfies it.
type DeviceLister interface {
	ListDevices() ([]capture.Device, error)
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	ctrl         Controller
	devices      DeviceLister
	shutdownFunc func() // Called by daemon_shutdown to trigger graceful stop
	startTime    int64  // Unix timestamp of daemon start for uptime calc
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(ctrl Controller, devices DeviceLister) *CommandHandler {
	return &CommandHandler{
		ctrl:      ctrl,
		devices:   devices,
		startTime: time.Now().Unix(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "session_pause", "session_set_filter"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// Decode converts a generic result into v.
func (r *Response) Decode(v interface{}) error {
	if r.Error != nil {
		return r.Error
	}
	data, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("failed to re-encode result: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"` // config | capture
}

func (e *ErrorInfo) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (code %d, %s)", e.Message, e.Code, e.Kind)
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Info("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case "session_pause":
		return h.handlePause(ctx, cmd)
	case "session_resume":
		return h.handleResume(ctx, cmd)
	case "session_stop":
		return h.handleStop(ctx, cmd)
	case "session_status":
		return h.handleStatus(ctx, cmd)
	case "session_get_timeout":
		return h.handleGetTimeout(ctx, cmd)
	case "session_set_timeout":
		return h.handleSetTimeout(ctx, cmd)
	case "session_get_output":
		return h.handleGetOutput(ctx, cmd)
	case "session_set_output":
		return h.handleSetOutput(ctx, cmd)
	case "session_set_device":
		return h.handleSetDevice(ctx, cmd)
	case "session_set_filter":
		return h.handleSetFilter(ctx, cmd)
	case "session_errors":
		return h.handleErrors(ctx, cmd)
	case "session_clear_errors":
		return h.handleClearErrors(ctx, cmd)
	case "session_report":
		return h.handleReport(ctx, cmd)
	case "devices_list":
		return h.handleDevicesList(ctx, cmd)
	case "daemon_status":
		return h.handleDaemonStatus(ctx, cmd)
	case "daemon_shutdown":
		return h.handleDaemonShutdown(ctx, cmd)
	default:
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, "", fmt.Sprintf("method %q not found", cmd.Method))
	}
}

func errorResponse(id string, code int, kind, msg string) Response {
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: msg, Kind: kind}}
}

// sessionError maps a session error to a response. Config errors are the
// caller's fault; everything else is internal.
func sessionError(id, op string, err error) Response {
	var typed *core.Error
	if errors.As(err, &typed) {
		code := ErrCodeInternalError
		if typed.Kind == core.KindConfig {
			code = ErrCodeInvalidParams
		}
		return errorResponse(id, code, typed.Kind.String(), fmt.Sprintf("%s failed: %v", op, err))
	}
	return errorResponse(id, ErrCodeInternalError, "", fmt.Sprintf("%s failed: %v", op, err))
}

// decodeParams unmarshals cmd.Params into v. Empty params are an error only
// when required is set.
func decodeParams(cmd Command, v interface{}, required bool) *Response {
	if len(cmd.Params) == 0 || string(cmd.Params) == "null" {
		if !required {
			return nil
		}
		resp := errorResponse(cmd.ID, ErrCodeInvalidParams, "", "missing params")
		return &resp
	}
	if err := json.Unmarshal(cmd.Params, v); err != nil {
		resp := errorResponse(cmd.ID, ErrCodeInvalidParams, "", fmt.Sprintf("invalid params: %v", err))
		return &resp
	}
	return nil
}

func (h *CommandHandler) stateResult(id string) Response {
	return Response{
		ID:     id,
		Result: map[string]interface{}{"state": h.ctrl.State().String()},
	}
}

// handlePause handles session_pause command.
func (h *CommandHandler) handlePause(_ context.Context, cmd Command) Response {
	if err := h.ctrl.Pause(); err != nil {
		return sessionError(cmd.ID, "pause", err)
	}
	return h.stateResult(cmd.ID)
}

// handleResume handles session_resume command.
func (h *CommandHandler) handleResume(_ context.Context, cmd Command) Response {
	if err := h.ctrl.Resume(); err != nil {
		return sessionError(cmd.ID, "resume", err)
	}
	return h.stateResult(cmd.ID)
}

// handleStop handles session_stop command. The final flush happens after
// the response is sent.
func (h *CommandHandler) handleStop(_ context.Context, cmd Command) Response {
	h.ctrl.Stop()
	return h.stateResult(cmd.ID)
}

func (h *CommandHandler) handleStatus(_ context.Context, cmd Command) Response {
	return Response{ID: cmd.ID, Result: h.ctrl.Status()}
}

// TimeoutParams carries the flush interval in seconds.
type TimeoutParams struct {
	Seconds uint32 `json:"seconds"`
}

func (h *CommandHandler) handleGetTimeout(_ context.Context, cmd Command) Response {
	return Response{ID: cmd.ID, Result: TimeoutParams{Seconds: h.ctrl.Timeout()}}
}

func (h *CommandHandler) handleSetTimeout(_ context.Context, cmd Command) Response {
	var params TimeoutParams
	if resp := decodeParams(cmd, &params, true); resp != nil {
		return *resp
	}
	if err := h.ctrl.SetTimeout(params.Seconds); err != nil {
		return sessionError(cmd.ID, "set timeout", err)
	}
	return Response{ID: cmd.ID, Result: TimeoutParams{Seconds: h.ctrl.Timeout()}}
}

// OutputParams carries the report output path.
type OutputParams struct {
	Path string `json:"path"`
}

func (h *CommandHandler) handleGetOutput(_ context.Context, cmd Command) Response {
	return Response{ID: cmd.ID, Result: OutputParams{Path: h.ctrl.OutputFile()}}
}

func (h *CommandHandler) handleSetOutput(_ context.Context, cmd Command) Response {
	var params OutputParams
	if resp := decodeParams(cmd, &params, true); resp != nil {
		return *resp
	}
	if err := h.ctrl.SetOutputFile(params.Path); err != nil {
		return sessionError(cmd.ID, "set output", err)
	}
	return Response{ID: cmd.ID, Result: OutputParams{Path: h.ctrl.OutputFile()}}
}

// DeviceParams carries a 1-based device id.
type DeviceParams struct {
	DeviceID int `json:"device_id"`
}

func (h *CommandHandler) handleSetDevice(_ context.Context, cmd Command) Response {
	var params DeviceParams
	if resp := decodeParams(cmd, &params, true); resp != nil {
		return *resp
	}
	if err := h.ctrl.SetDevice(params.DeviceID); err != nil {
		return sessionError(cmd.ID, "set device", err)
	}
	st := h.ctrl.Status()
	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"device_id": params.DeviceID, "device": st.Device},
	}
}

// FilterParams carries a BPF expression.
type FilterParams struct {
	Filter string `json:"filter"`
}

func (h *CommandHandler) handleSetFilter(_ context.Context, cmd Command) Response {
	var params FilterParams
	if resp := decodeParams(cmd, &params, true); resp != nil {
		return *resp
	}
	if err := h.ctrl.SetFilter(params.Filter); err != nil {
		return sessionError(cmd.ID, "set filter", err)
	}
	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"filter": params.Filter, "state": h.ctrl.State().String()},
	}
}

// ErrorsResult lists queued session errors, oldest first.
type ErrorsResult struct {
	Errors []session.ErrorEntry `json:"errors"`
	Count  int                  `json:"count"`
}

func (h *CommandHandler) handleErrors(_ context.Context, cmd Command) Response {
	errs := h.ctrl.Errors()
	return Response{ID: cmd.ID, Result: ErrorsResult{Errors: errs, Count: len(errs)}}
}

// ClearErrorsParams selects how many of the oldest errors to drop.
type ClearErrorsParams struct {
	Count int `json:"count"`
}

// ClearErrorsResult reports the outcome of session_clear_errors.
type ClearErrorsResult struct {
	Cleared   int `json:"cleared"`
	Remaining int `json:"remaining"`
}

func (h *CommandHandler) handleClearErrors(_ context.Context, cmd Command) Response {
	var params ClearErrorsParams
	if resp := decodeParams(cmd, &params, true); resp != nil {
		return *resp
	}
	if params.Count < 0 {
		return errorResponse(cmd.ID, ErrCodeInvalidParams, "", "count must not be negative")
	}
	cleared := h.ctrl.ClearErrors(params.Count)
	return Response{
		ID:     cmd.ID,
		Result: ClearErrorsResult{Cleared: cleared, Remaining: len(h.ctrl.Errors())},
	}
}

// ReportResult is the current conversation table.
type ReportResult struct {
	Lines []report.Line `json:"lines"`
}

func (h *CommandHandler) handleReport(_ context.Context, cmd Command) Response {
	return Response{ID: cmd.ID, Result: ReportResult{Lines: h.ctrl.Snapshot()}}
}

// DeviceInfo is one entry of devices_list.
type DeviceInfo struct {
	ID          int    `json:"id"` // 1-based, as accepted by session_set_device
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DevicesResult lists capture devices.
type DevicesResult struct {
	Devices []DeviceInfo `json:"devices"`
}

// ListDevices numbers devices from 1 and labels them.
func ListDevices(lister DeviceLister) ([]DeviceInfo, error) {
	devs, err := lister.ListDevices()
	if err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, 0, len(devs))
	for i, d := range devs {
		out = append(out, DeviceInfo{ID: i + 1, Name: d.Name, Description: d.Label()})
	}
	return out, nil
}

func (h *CommandHandler) handleDevicesList(_ context.Context, cmd Command) Response {
	if h.devices == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "", "device listing not available")
	}
	devs, err := ListDevices(h.devices)
	if err != nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, core.KindCapture.String(), fmt.Sprintf("list devices failed: %v", err))
	}
	return Response{ID: cmd.ID, Result: DevicesResult{Devices: devs}}
}

// DaemonStatus is the daemon_status result.
type DaemonStatus struct {
	Version   string `json:"version"`
	UptimeSec int64  `json:"uptime_sec"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	st := h.ctrl.Status()
	return Response{
		ID: cmd.ID,
		Result: DaemonStatus{
			Version:   Version,
			UptimeSec: time.Now().Unix() - h.startTime,
			SessionID: st.ID,
			State:     st.State.String(),
		},
	}
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, "", "shutdown handler not registered")
	}

	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "shutting_down"},
	}
}
