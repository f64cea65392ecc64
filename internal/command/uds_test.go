package command

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"firestige.xyz/netanalyzer/internal/core"
	"firestige.xyz/netanalyzer/internal/metrics"
	"firestige.xyz/netanalyzer/internal/report"
)

func startServer(t *testing.T) (*UDSServer, string, *mockController) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	handler, ctrl := newTestHandler()
	server := NewUDSServer(socketPath, handler)
	if err := server.Listen(context.Background()); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server, socketPath, ctrl
}

func TestUDSServerClient_Integration(t *testing.T) {
	_, socketPath, ctrl := startServer(t)
	client := NewUDSClient(socketPath, 5*time.Second)
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		if err := client.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("pause", func(t *testing.T) {
		resp, err := client.Pause(ctx)
		if err != nil {
			t.Fatalf("Pause failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error)
		}
		if ctrl.State().String() != "paused" {
			t.Errorf("state = %v, want paused", ctrl.State())
		}
	})

	t.Run("set_timeout_rejected", func(t *testing.T) {
		resp, err := client.SetTimeout(ctx, 0)
		if err != nil {
			t.Fatalf("SetTimeout failed: %v", err)
		}
		if resp.Error == nil || resp.Error.Kind != "config" {
			t.Errorf("expected config error, got %+v", resp.Error)
		}
	})

	t.Run("report", func(t *testing.T) {
		resp, err := client.Report(ctx)
		if err != nil {
			t.Fatalf("Report failed: %v", err)
		}
		var rep ReportResult
		if err := resp.Decode(&rep); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(rep.Lines) != 1 || rep.Lines[0].Address2 != "10.0.0.2:80" {
			t.Errorf("report = %+v", rep.Lines)
		}
	})

	t.Run("unknown_method", func(t *testing.T) {
		resp, err := client.Call(ctx, "unknown.method", nil)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if resp.Error == nil {
			t.Fatal("expected error for unknown method")
		}
		if resp.Error.Code != ErrCodeMethodNotFound {
			t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
		}
	})
}

func TestUDSServer_StartStopsOnCancel(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "cancel.sock")
	handler, _ := newTestHandler()
	server := NewUDSServer(socketPath, handler)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	client := NewUDSClient(socketPath, time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for client.Ping(context.Background()) != nil {
		if time.Now().After(deadline) {
			t.Fatal("server never became ready")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("server error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server didn't stop in time")
	}

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed after server stop")
	}
}

func TestUDSServer_ParseError(t *testing.T) {
	_, socketPath, _ := startServer(t)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte("{not json\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !containsCode(buf[:n], ErrCodeParseError) {
		t.Errorf("expected parse error response, got %s", buf[:n])
	}

	if _, err := conn.Write([]byte(`{"jsonrpc":"2.0","id":"x"}` + "\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	n, err = conn.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !containsCode(buf[:n], ErrCodeInvalidRequest) {
		t.Errorf("expected invalid request response, got %s", buf[:n])
	}
}

func containsCode(data []byte, code int) bool {
	var resp JSONRPCResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return false
	}
	return resp.Error != nil && resp.Error.Code == code
}

func TestUDSServer_LargeResponse(t *testing.T) {
	_, socketPath, ctrl := startServer(t)
	ctrl.mu.Lock()
	for i := 0; i < 5000; i++ {
		ctrl.lines = append(ctrl.lines, report.Line{Address1: "10.0.0.1", Address2: "10.0.0.2", Protocols: []string{"UDP"}})
	}
	ctrl.mu.Unlock()

	resp, err := NewUDSClient(socketPath, 5*time.Second).Report(context.Background())
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	var rep ReportResult
	if err := resp.Decode(&rep); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(rep.Lines) != 5001 {
		t.Errorf("lines = %d, want 5001", len(rep.Lines))
	}
}

func TestUDSServer_MultipleConnections(t *testing.T) {
	_, socketPath, _ := startServer(t)

	errCh := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := NewUDSClient(socketPath, 5*time.Second).Status(context.Background())
			errCh <- err
		}()
	}
	for i := 0; i < 5; i++ {
		if err := <-errCh; err != nil {
			t.Errorf("client %d failed: %v", i, err)
		}
	}
}

func TestUDSClient_DaemonNotRunning(t *testing.T) {
	client := NewUDSClient(filepath.Join(t.TempDir(), "absent.sock"), time.Second)

	_, err := client.Status(context.Background())
	if !errors.Is(err, core.ErrDaemonNotRunning) {
		t.Errorf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestNewUDSClient_DefaultTimeout(t *testing.T) {
	client := NewUDSClient("/tmp/test.sock", 0)
	if client.timeout != 10*time.Second {
		t.Errorf("default timeout = %v, want 10s", client.timeout)
	}

	client2 := NewUDSClient("/tmp/test.sock", 5*time.Second)
	if client2.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", client2.timeout)
	}
}

func TestUDSServer_Dispatch(t *testing.T) {
	handler, _ := newTestHandler()
	server := NewUDSServer("", handler)
	ctx := context.Background()

	okCounter := metrics.ControlRequestsTotal.WithLabelValues("daemon_status", "ok")
	before := testutil.ToFloat64(okCounter)

	resp := server.dispatch(ctx, []byte(`{"jsonrpc":"2.0","method":"daemon_status","id":7}`))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if resp.ID != float64(7) {
		t.Errorf("id = %v, want 7", resp.ID)
	}
	if got := testutil.ToFloat64(okCounter); got != before+1 {
		t.Errorf("ok counter = %v, want %v", got, before+1)
	}

	resp = server.dispatch(ctx, []byte(`{"jsonrpc":"1.0","method":"daemon_status","id":8}`))
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("expected invalid request for jsonrpc 1.0, got %+v", resp.Error)
	}

	resp = server.dispatch(ctx, []byte(`{"jsonrpc":"2.0","method":"no_such_method","id":9}`))
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("expected method not found, got %+v", resp.Error)
	}
}
