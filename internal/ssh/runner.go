package ssh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrTransportUnavailable means the remote command could not be started:
	// the local ssh client is missing or the connection could not be set up.
	ErrTransportUnavailable = errors.New("ssh transport unavailable")
	// ErrTimeout means the remote command did not finish before its deadline.
	ErrTimeout = errors.New("remote command timed out")
)

// Target identifies the remote host a command runs on.
type Target struct {
	Host string
	Port int
	User string
}

// Address returns host:port for dialing.
func (t Target) Address() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return t.Host + ":" + strconv.Itoa(port)
}

// Login returns user@host as understood by the OpenSSH client.
func (t Target) Login() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}

// Result holds the captured output of a finished remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExitError is returned when the remote command exits with a non-zero status.
type ExitError struct {
	Code   int
	Stdout string
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("remote command exited with status %d", e.Code)
}

// Runner executes one command on a remote host. Implementations release
// every process or connection they open before returning, including on
// timeout.
type Runner interface {
	Run(ctx context.Context, target Target, command string) (Result, error)
}

// contextError maps a finished context to the package error kinds.
func contextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return nil
	}
}
