// Package session implements the capture session: the control block state
// machine, the capture and flush loops and the dissection worker pool.
package session

import (
	"fmt"

	"firestige.xyz/netanalyzer/internal/metrics"
)

// State is the capture state of a session.
type State int32

const (
	// StateCapturing reads and aggregates frames.
	StateCapturing State = iota
	// StatePaused blocks both loops until resumed or stopped.
	StatePaused
	// StateStopped is terminal.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCapturing:
		return "capturing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state name in JSON and YAML.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	st, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseState is the inverse of String.
func ParseState(name string) (State, error) {
	switch name {
	case "capturing":
		return StateCapturing, nil
	case "paused":
		return StatePaused, nil
	case "stopped":
		return StateStopped, nil
	default:
		return 0, fmt.Errorf("unknown state %q", name)
	}
}

func (s State) gaugeValue() float64 {
	switch s {
	case StateCapturing:
		return metrics.SessionStateCapturing
	case StatePaused:
		return metrics.SessionStatePaused
	default:
		return metrics.SessionStateStopped
	}
}
