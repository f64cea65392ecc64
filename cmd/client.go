package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/netanalyzer/internal/command"
)

const clientTimeout = 10 * time.Second

// ControlClient is the subset of the daemon client the commands use.
type ControlClient interface {
	Pause(ctx context.Context) (*command.Response, error)
	Resume(ctx context.Context) (*command.Response, error)
	Stop(ctx context.Context) (*command.Response, error)
	Shutdown(ctx context.Context) (*command.Response, error)
	Status(ctx context.Context) (*command.Response, error)
	GetTimeout(ctx context.Context) (*command.Response, error)
	SetTimeout(ctx context.Context, seconds uint32) (*command.Response, error)
	GetOutput(ctx context.Context) (*command.Response, error)
	SetOutput(ctx context.Context, path string) (*command.Response, error)
	SetDevice(ctx context.Context, id int) (*command.Response, error)
	SetFilter(ctx context.Context, expr string) (*command.Response, error)
	Errors(ctx context.Context) (*command.Response, error)
	ClearErrors(ctx context.Context, n int) (*command.Response, error)
	Report(ctx context.Context) (*command.Response, error)
	Devices(ctx context.Context) (*command.Response, error)
}

// newClient builds the client for cmd. Tests replace it with a mock.
var newClient = func(cmd *cobra.Command) ControlClient {
	return command.NewUDSClient(resolveSocket(cmd), clientTimeout)
}

// result checks a round trip and decodes its result into v when v is non-nil.
func result(resp *command.Response, err error, method string, v interface{}) error {
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %w", method, resp.Error)
	}
	if v == nil {
		return nil
	}
	return resp.Decode(v)
}

// stateReply is the result of pause, resume and the setters that change state.
type stateReply struct {
	State string `json:"state"`
}
