package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/pvebackup/internal/backup"
	"github.com/yourusername/pvebackup/internal/config"
	"github.com/yourusername/pvebackup/internal/logging"
	"github.com/yourusername/pvebackup/internal/metrics"
	"github.com/yourusername/pvebackup/internal/schedule"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// steppingClock advances by step on every reading.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func (c *steppingClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// MockCycleRunner records when it ran and hands control back to the test.
type MockCycleRunner struct {
	mu      sync.Mutex
	OnCycle func(n int, ctx context.Context)
	calls   int
}

func (m *MockCycleRunner) RunCycle(ctx context.Context, cfg *config.Config) backup.CycleReport {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()

	if m.OnCycle != nil {
		m.OnCycle(n, ctx)
	}
	return backup.CycleReport{ID: "cycle", Succeeded: len(cfg.Nodes)}
}

func testConfig(spec string) *config.Config {
	cfg := config.Default()
	cfg.Schedule = spec
	cfg.Nodes = []config.NodeConfig{{Shortname: "pve1", FQDN: "pve1.example.com"}}
	return cfg
}

func newTestLoop(t *testing.T, spec string, clock *steppingClock, cycles CycleRunner, opts ...Option) *Loop {
	t.Helper()
	rule, err := schedule.Parse(spec)
	if err != nil {
		t.Fatalf("failed to parse schedule: %v", err)
	}
	opts = append([]Option{
		WithClock(clock.Now),
		WithLogger(logging.Discard()),
		WithPollInterval(time.Millisecond),
		WithWarmup(0),
	}, opts...)

	loop, err := New(testConfig(spec), rule, cycles, opts...)
	if err != nil {
		t.Fatalf("failed to create loop: %v", err)
	}
	return loop
}

func runUntilDone(t *testing.T, loop *Loop, ctx context.Context) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestEveryMinuteFiresOncePerBoundary(t *testing.T) {
	clock := &steppingClock{now: time.Date(2024, 3, 1, 10, 0, 5, 0, time.UTC), step: 10 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired []time.Time
	var cycleCtxErr error
	cycles := &MockCycleRunner{OnCycle: func(n int, cycleCtx context.Context) {
		fired = append(fired, clock.Peek().Truncate(time.Minute))
		if n == 3 {
			cancel()
			cycleCtxErr = cycleCtx.Err()
		}
	}}

	loop := newTestLoop(t, "* * * * *", clock, cycles)
	runUntilDone(t, loop, ctx)

	if len(fired) != 3 {
		t.Fatalf("expected 3 cycles, got %d", len(fired))
	}
	for i, at := range fired {
		want := time.Date(2024, 3, 1, 10, 1+i, 0, 0, time.UTC)
		if !at.Equal(want) {
			t.Errorf("cycle %d fired in minute %v, want %v", i, at, want)
		}
	}
	if cycleCtxErr != nil {
		t.Errorf("expected running cycle to survive shutdown, got %v", cycleCtxErr)
	}

	status := loop.Status()
	if status.State != "stopped" || status.Cycles != 3 || status.LastReport == nil {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestLoopRecoversFromPanic(t *testing.T) {
	clock := &steppingClock{now: time.Date(2024, 3, 1, 10, 0, 5, 0, time.UTC), step: 10 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cycles := &MockCycleRunner{OnCycle: func(n int, _ context.Context) {
		if n == 1 {
			panic("boom")
		}
		cancel()
	}}

	loop := newTestLoop(t, "* * * * *", clock, cycles)
	runUntilDone(t, loop, ctx)

	if cycles.calls != 2 {
		t.Fatalf("expected loop to keep polling after panic, got %d calls", cycles.calls)
	}
	if got := loop.Status().Cycles; got != 1 {
		t.Fatalf("expected one recorded cycle, got %d", got)
	}
	if !loop.NextRun().After(time.Date(2024, 3, 1, 10, 2, 0, 0, time.UTC)) {
		t.Fatalf("expected schedule to advance past the panicking run, next %v", loop.NextRun())
	}
}

func TestCancelDuringWarmup(t *testing.T) {
	clock := &steppingClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	cycles := &MockCycleRunner{}
	loop := newTestLoop(t, "* * * * *", clock, cycles, WithWarmup(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runUntilDone(t, loop, ctx)

	if cycles.calls != 0 {
		t.Fatalf("expected no cycles, got %d", cycles.calls)
	}
	if loop.Status().State != "stopped" {
		t.Fatalf("expected stopped state, got %s", loop.Status().State)
	}
}

func TestRunNowRecordsReport(t *testing.T) {
	clock := &steppingClock{now: time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)}
	loop := newTestLoop(t, "30 2 * * *", clock, &MockCycleRunner{})

	report := loop.RunNow(context.Background())
	if report.Succeeded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	status := loop.Status()
	if status.State != "idle" || status.Cycles != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if !status.NextRun.Equal(time.Date(2024, 3, 1, 2, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next run %v", status.NextRun)
	}
}

func TestLoopPublishesNextRun(t *testing.T) {
	clock := &steppingClock{now: time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)}
	collector := metrics.NewCollector()
	newTestLoop(t, "15 * * * *", clock, &MockCycleRunner{}, WithMetrics(collector))

	want := time.Date(2024, 3, 1, 1, 15, 0, 0, time.UTC)
	if got := testutil.ToFloat64(collector.NextRunTimestamp); got != float64(want.Unix()) {
		t.Fatalf("next run gauge = %v, want %d", got, want.Unix())
	}
}

func TestNewRejectsSlowPollInterval(t *testing.T) {
	rule, err := schedule.Parse("* * * * *")
	if err != nil {
		t.Fatalf("failed to parse schedule: %v", err)
	}

	_, err = New(testConfig("* * * * *"), rule, nil,
		WithLogger(logging.Discard()),
		WithPollInterval(2*time.Minute),
	)
	if err == nil {
		t.Fatal("expected a two minute poll interval to be rejected")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:    "idle",
		StateRunning: "running",
		StateStopped: "stopped",
		State(9):     "state(9)",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
