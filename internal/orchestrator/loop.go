package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/yourusername/pvebackup/internal/backup"
	"github.com/yourusername/pvebackup/internal/config"
	"github.com/yourusername/pvebackup/internal/logging"
	"github.com/yourusername/pvebackup/internal/metrics"
	"github.com/yourusername/pvebackup/internal/schedule"
)

// State is the lifecycle state of the loop.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CycleRunner runs one backup cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, cfg *config.Config) backup.CycleReport
}

// Status is a point-in-time view of the loop.
type Status struct {
	State      string              `json:"state"`
	Schedule   string              `json:"schedule"`
	NextRun    time.Time           `json:"next_run"`
	Cycles     int                 `json:"cycles"`
	LastReport *backup.CycleReport `json:"last_report,omitempty"`
}

// Loop polls the recurrence engine and runs a backup cycle when it is due.
type Loop struct {
	cfg          *config.Config
	engine       *schedule.Engine
	cycles       CycleRunner
	metrics      *metrics.Collector
	logger       *slog.Logger
	clock        func() time.Time
	pollInterval time.Duration
	warmup       time.Duration

	// runCtx is only touched by the goroutine inside Run.
	runCtx context.Context

	mu    sync.RWMutex
	state State
	next  time.Time
	count int
	last  *backup.CycleReport
}

// Option customizes a Loop.
type Option func(*Loop)

// WithClock sets the wall-clock source.
func WithClock(clock func() time.Time) Option {
	return func(l *Loop) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics publishes the next run time to collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(l *Loop) {
		l.metrics = collector
	}
}

// WithPollInterval overrides the configured poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithWarmup overrides the configured warm-up delay.
func WithWarmup(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.warmup = d
		}
	}
}

// New creates a loop and registers rule with its engine.
func New(cfg *config.Config, rule schedule.Rule, cycles CycleRunner, opts ...Option) (*Loop, error) {
	l := &Loop{
		cfg:          cfg,
		cycles:       cycles,
		logger:       logging.L(),
		clock:        time.Now,
		pollInterval: cfg.PollInterval(),
		warmup:       cfg.Warmup(),
		runCtx:       context.Background(),
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.pollInterval > config.MaxPollInterval {
		return nil, fmt.Errorf("poll interval %s exceeds %s", l.pollInterval, config.MaxPollInterval)
	}

	l.engine = schedule.NewEngine(l.clock)
	if err := l.engine.Register(rule, l.fire, l.clock()); err != nil {
		return nil, fmt.Errorf("failed to register schedule: %w", err)
	}
	l.publishNext()

	return l, nil
}

// Run blocks until ctx is cancelled. A cycle in progress is allowed to finish
// before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.runCtx = ctx
	l.logger.Info("orchestrator started",
		"schedule", l.engine.Rule().Describe(),
		"next_run", l.engine.NextRun(),
		"poll_interval", l.pollInterval.String(),
	)

	if l.warmup > 0 {
		timer := time.NewTimer(l.warmup)
		select {
		case <-ctx.Done():
			timer.Stop()
			return l.stop()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		l.poll()

		select {
		case <-ctx.Done():
			return l.stop()
		case <-ticker.C:
		}
	}
}

// RunNow runs a single cycle immediately, outside the schedule.
func (l *Loop) RunNow(ctx context.Context) backup.CycleReport {
	l.setState(StateRunning)
	defer l.setState(StateIdle)

	report := l.cycles.RunCycle(ctx, l.cfg)
	l.record(report)
	return report
}

// Status returns a snapshot safe to read from other goroutines.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	status := Status{
		State:    l.state.String(),
		Schedule: l.cfg.Schedule,
		NextRun:  l.next,
		Cycles:   l.count,
	}
	if l.last != nil {
		report := *l.last
		status.LastReport = &report
	}
	return status
}

// NextRun returns the next due time.
func (l *Loop) NextRun() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next
}

func (l *Loop) poll() {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered from panic in scheduler loop",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
		l.publishNext()
	}()

	now := l.clock()
	l.logger.Debug("scheduler poll", "now", now, "next_run", l.engine.NextRun())
	l.engine.RunPending(now)
}

// fire is the engine action. Shutdown does not cut a cycle short; each node
// is still bounded by the invocation timeout.
func (l *Loop) fire() {
	l.setState(StateRunning)
	defer l.setState(StateIdle)

	report := l.cycles.RunCycle(context.WithoutCancel(l.runCtx), l.cfg)
	l.record(report)
}

func (l *Loop) record(report backup.CycleReport) {
	l.mu.Lock()
	l.last = &report
	l.count++
	l.mu.Unlock()
}

func (l *Loop) publishNext() {
	next := l.engine.NextRun()
	l.mu.Lock()
	l.next = next
	l.mu.Unlock()
	l.metrics.SetNextRun(next)
}

func (l *Loop) setState(state State) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}

func (l *Loop) stop() error {
	l.setState(StateStopped)
	l.logger.Info("orchestrator stopped")
	return nil
}
