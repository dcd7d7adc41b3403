package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"time"
)

// DefaultExecOptions skip host key verification and never touch known_hosts.
var DefaultExecOptions = []string{
	"-o", "StrictHostKeyChecking=no",
	"-o", "UserKnownHostsFile=/dev/null",
}

// ExecRunner runs commands through the local OpenSSH client binary.
type ExecRunner struct {
	Binary  string
	Options []string
	// WaitDelay bounds how long output pipes may stay open after the
	// process is killed on timeout.
	WaitDelay time.Duration
}

// NewExecRunner creates a runner for the given ssh binary.
func NewExecRunner(binary string) *ExecRunner {
	if binary == "" {
		binary = "ssh"
	}
	return &ExecRunner{
		Binary:    binary,
		Options:   append([]string{}, DefaultExecOptions...),
		WaitDelay: 5 * time.Second,
	}
}

// Args returns the ssh client arguments for target and command.
func (r *ExecRunner) Args(target Target, command string) []string {
	port := target.Port
	if port == 0 {
		port = 22
	}
	args := []string{"-p", strconv.Itoa(port)}
	args = append(args, r.Options...)
	args = append(args, target.Login(), command)
	return args
}

// Run executes command on target and waits for it to finish or for ctx to end.
func (r *ExecRunner) Run(ctx context.Context, target Target, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, r.Binary, r.Args(target, command)...)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return result, nil
	}

	if ctxErr := contextError(ctx); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return result, fmt.Errorf("%w: %s: %v", ErrTransportUnavailable, r.Binary, err)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{Code: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
	}

	return result, fmt.Errorf("failed to run %s: %w", r.Binary, err)
}
