package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"firestige.xyz/netanalyzer/internal/metrics"
)

// maxRequestBytes bounds one request line.
const maxRequestBytes = 1 << 20

// Handler processes one command. *CommandHandler satisfies it.
type Handler interface {
	Handle(ctx context.Context, cmd Command) Response
}

// UDSServer serves the control plane: newline-delimited JSON-RPC 2.0 over
// a Unix socket, one request per line, answered in order.
type UDSServer struct {
	socketPath string
	handler    Handler

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewUDSServer creates a server for handler on socketPath.
func NewUDSServer(socketPath string, handler Handler) *UDSServer {
	return &UDSServer{
		socketPath: socketPath,
		handler:    handler,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Listen binds the socket (owner-only) and accepts in the background.
// A socket file left by a previous run is replaced.
func (s *UDSServer) Listen(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	slog.Info("control socket listening", "socket", s.socketPath)
	go s.accept(ctx, ln)
	return nil
}

// Start listens and blocks until ctx is cancelled.
func (s *UDSServer) Start(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

func (s *UDSServer) accept(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}
			slog.Error("control socket accept failed", "error", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		go s.serve(ctx, conn)
	}
}

func (s *UDSServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track registers conn for Stop; false once the server is closed.
func (s *UDSServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *UDSServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
	s.wg.Done()
}

// serve answers requests on conn until the peer hangs up.
func (s *UDSServer) serve(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestBytes)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		if err := enc.Encode(s.dispatch(ctx, scanner.Bytes())); err != nil {
			slog.Debug("control response not delivered", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Debug("control connection closed", "error", err)
	}
}

// dispatch decodes one request line and runs it through the handler.
func (s *UDSServer) dispatch(ctx context.Context, line []byte) JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		metrics.ControlRequestsTotal.WithLabelValues("", "error").Inc()
		return rpcError(nil, ErrCodeParseError, fmt.Sprintf("parse error: %v", err))
	}
	if req.Method == "" {
		metrics.ControlRequestsTotal.WithLabelValues("", "error").Inc()
		return rpcError(req.ID, ErrCodeInvalidRequest, "missing method")
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		metrics.ControlRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return rpcError(req.ID, ErrCodeInvalidRequest, fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC))
	}

	resp := s.handler.Handle(ctx, Command{
		Method: req.Method,
		Params: req.Params,
		ID:     fmt.Sprintf("%v", req.ID),
	})

	result := "ok"
	if resp.Error != nil {
		result = "error"
	}
	metrics.ControlRequestsTotal.WithLabelValues(req.Method, result).Inc()
	slog.Debug("control request", "method", req.Method, "result", result)

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: resp.Result, Error: resp.Error}
}

func rpcError(id interface{}, code int, msg string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorInfo{Code: code, Message: msg},
	}
}

// Stop closes the listener and open connections, waits for in-flight
// requests and removes the socket file. Safe to call more than once.
func (s *UDSServer) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	s.wg.Wait()
	os.RemoveAll(s.socketPath)

	slog.Info("control socket closed", "socket", s.socketPath)
	return nil
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}
