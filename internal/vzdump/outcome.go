package vzdump

import (
	"fmt"
	"time"
)

// Cause classifies why a node backup failed.
type Cause int

const (
	CauseNone Cause = iota
	CauseExitCode
	CauseTransportUnavailable
	CauseTimeout
	CauseUnexpected
)

func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseExitCode:
		return "exit_code"
	case CauseTransportUnavailable:
		return "transport_unavailable"
	case CauseTimeout:
		return "timeout"
	case CauseUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

// MarshalText renders the cause name in JSON output.
func (c Cause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (c *Cause) UnmarshalText(text []byte) error {
	for candidate := CauseNone; candidate <= CauseUnexpected; candidate++ {
		if candidate.String() == string(text) {
			*c = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown cause %q", text)
}

// Outcome is the result of one backup invocation on one node.
type Outcome struct {
	Node       string    `json:"node"`
	Cause      Cause     `json:"cause"`
	ReturnCode int       `json:"return_code"`
	Stdout     string    `json:"stdout,omitempty"`
	Stderr     string    `json:"stderr,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Success reports whether the invocation exited 0.
func (o Outcome) Success() bool {
	return o.Cause == CauseNone
}

// Duration returns how long the invocation took.
func (o Outcome) Duration() time.Duration {
	if o.FinishedAt.Before(o.StartedAt) {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Reason is a one-line description of the failure, empty on success.
func (o Outcome) Reason() string {
	switch o.Cause {
	case CauseNone:
		return ""
	case CauseExitCode:
		return fmt.Sprintf("vzdump exited with status %d", o.ReturnCode)
	case CauseTransportUnavailable:
		return "remote access unavailable: " + o.Detail
	case CauseTimeout:
		return "timed out: " + o.Detail
	default:
		return "unexpected error: " + o.Detail
	}
}
