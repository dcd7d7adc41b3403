package vzdump

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yourusername/pvebackup/internal/config"
	"github.com/yourusername/pvebackup/internal/logging"
	"github.com/yourusername/pvebackup/internal/ssh"
)

// DefaultTimeout bounds a single node backup.
const DefaultTimeout = 1200 * time.Second

// Invoker runs vzdump on one node through a Runner and classifies the result.
type Invoker struct {
	runner  ssh.Runner
	port    int
	user    string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithTarget sets the SSH port and login user used for every node.
func WithTarget(port int, user string) Option {
	return func(i *Invoker) {
		i.port = port
		i.user = user
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithClock sets the time source for outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Invoker) {
		if now != nil {
			i.now = now
		}
	}
}

// NewInvoker creates an invoker on top of runner.
func NewInvoker(runner ssh.Runner, opts ...Option) *Invoker {
	inv := &Invoker{
		runner:  runner,
		port:    22,
		user:    "root",
		timeout: DefaultTimeout,
		logger:  logging.L(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke runs one backup on node. It never returns an error or panics;
// every failure is reported through the Outcome.
func (inv *Invoker) Invoke(ctx context.Context, node config.NodeConfig, cfg *config.Config) (outcome Outcome) {
	outcome = Outcome{Node: node.Shortname, StartedAt: inv.now()}
	defer func() {
		if r := recover(); r != nil {
			outcome.Cause = CauseUnexpected
			outcome.Detail = fmt.Sprintf("panic: %v", r)
			outcome.ReturnCode = -1
		}
		outcome.FinishedAt = inv.now()
		inv.logOutcome(outcome)
	}()

	target := ssh.Target{Host: node.FQDN, Port: inv.port, User: inv.user}
	command := BuildCommand(node, cfg)

	inv.logger.Info("running backup on node",
		"node", node.Shortname,
		"fqdn", node.FQDN,
	)
	inv.logger.Info("vzdump command", "node", node.Shortname, "target", target.Login(), "command", command)

	runCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	result, err := inv.runner.Run(runCtx, target, command)
	outcome.ReturnCode = result.ExitCode
	outcome.Stdout = result.Stdout
	outcome.Stderr = result.Stderr

	outcome.Cause, outcome.Detail = classify(runCtx, err, inv.timeout)
	if outcome.Cause == CauseNone && result.ExitCode != 0 {
		outcome.Cause = CauseExitCode
	}
	return outcome
}

func classify(ctx context.Context, err error, timeout time.Duration) (Cause, string) {
	if err == nil {
		return CauseNone, ""
	}

	var exitErr *ssh.ExitError
	switch {
	case errors.As(err, &exitErr):
		return CauseExitCode, exitErr.Error()
	case errors.Is(err, ssh.ErrTransportUnavailable):
		return CauseTransportUnavailable, err.Error()
	case errors.Is(err, ssh.ErrTimeout), errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		return CauseTimeout, fmt.Sprintf("no result after %s", timeout)
	default:
		return CauseUnexpected, err.Error()
	}
}

func (inv *Invoker) logOutcome(o Outcome) {
	if o.Success() {
		inv.logger.Info("backup completed on node",
			"node", o.Node,
			"duration", o.Duration().String(),
			"output", strings.TrimSpace(o.Stdout),
		)
		return
	}

	attrs := []any{
		"node", o.Node,
		"cause", o.Cause.String(),
		"reason", o.Reason(),
		"duration", o.Duration().String(),
	}
	if o.Cause == CauseExitCode {
		attrs = append(attrs,
			"return_code", o.ReturnCode,
			"stdout", strings.TrimSpace(o.Stdout),
			"stderr", strings.TrimSpace(o.Stderr),
		)
	}
	inv.logger.Error("backup failed on node", attrs...)
}
