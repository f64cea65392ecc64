package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/netanalyzer/internal/core"
)

// UDSClient is a JSON-RPC client over Unix Domain Socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for response. A missing daemon is
// reported as core.ErrDaemonNotRunning.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: socket %s", core.ErrDaemonNotRunning, c.socketPath)
		}
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	reqID := "req-" + uuid.NewString()
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	// A report response can exceed any fixed line buffer; decode the stream.
	var jsonrpcResp JSONRPCResponse
	if err := json.NewDecoder(conn).Decode(&jsonrpcResp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	respIDStr := fmt.Sprintf("%v", jsonrpcResp.ID)
	if respIDStr != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respIDStr)
	}

	return &Response{
		ID:     respIDStr,
		Result: jsonrpcResp.Result,
		Error:  jsonrpcResp.Error,
	}, nil
}

// Pause is a convenience method for session_pause.
func (c *UDSClient) Pause(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "session_pause", nil)
}

// Resume is a convenience method for session_resume.
func (c *UDSClient) Resume(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "session_resume", nil)
}

// Stop is a convenience method for session_stop.
func (c *UDSClient) Stop(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "session_stop", nil)
}

// Status is a convenience method for session_status.
func (c *UDSClient) Status(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "session_status", nil)
}

// GetTimeout is a convenience method for session_get_timeout.
func (c *UDSClient) GetTimeout(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "session_get_timeout", nil)
}

// SetTimeout is a convenience method for session_set_timeout.
func (c *UDSClient) SetTimeout(ctx context.Context, seconds uint32) (*Response, error) {
	return c.Call(ctx, "session_set_timeout", TimeoutParams{Seconds: seconds})
}

// GetOutput is a convenience method for session_get_output.
func (c *UDSClient) GetOutput(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "session_get_output", nil)
}

// SetOutput is a convenience method for session_set_output.
func (c *UDSClient) SetOutput(ctx context.Context, path string) (*Response, error) {
	return c.Call(ctx, "session_set_output", OutputParams{Path: path})
}

// SetDevice is a convenience method for session_set_device.
func (c *UDSClient) SetDevice(ctx context.Context, id int) (*Response, error) {
	return c.Call(ctx, "session_set_device", DeviceParams{DeviceID: id})
}

// SetFilter is a convenience method for session_set_filter.
func (c *UDSClient) SetFilter(ctx context.Context, expr string) (*Response, error) {
	return c.Call(ctx, "session_set_filter", FilterParams{Filter: expr})
}

// Errors is a convenience method for session_errors.
func (c *UDSClient) Errors(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "session_errors", nil)
}

// ClearErrors is a convenience method for session_clear_errors.
func (c *UDSClient) ClearErrors(ctx context.Context, n int) (*Response, error) {
	return c.Call(ctx, "session_clear_errors", ClearErrorsParams{Count: n})
}

// Report is a convenience method for session_report.
func (c *UDSClient) Report(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "session_report", nil)
}

// Devices is a convenience method for devices_list.
func (c *UDSClient) Devices(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "devices_list", nil)
}

// DaemonStatus is a convenience method for daemon_status.
func (c *UDSClient) DaemonStatus(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_status", nil)
}

// Shutdown is a convenience method for daemon_shutdown.
func (c *UDSClient) Shutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_shutdown", nil)
}

// Ping checks that the daemon answers.
func (c *UDSClient) Ping(ctx context.Context) error {
	resp, err := c.DaemonStatus(ctx)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}
