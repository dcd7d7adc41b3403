package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Engine holds one active rule and tells the caller when it is due.
// It is driven from a single goroutine and keeps no state across restarts.
type Engine struct {
	clock  func() time.Time
	rule   Rule
	sched  cron.Schedule
	action func()
	next   time.Time
}

// NewEngine creates an engine reading wall-clock time from clock.
// A nil clock uses time.Now.
func NewEngine(clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{clock: clock}
}

// Register binds action to rule and computes the first due time after now.
// Registering again replaces the previous binding.
func (e *Engine) Register(rule Rule, action func(), now time.Time) error {
	sched, err := cronSchedule(rule)
	if err != nil {
		return err
	}
	if action == nil {
		return fmt.Errorf("action is required")
	}

	e.rule = rule
	e.sched = sched
	e.action = action
	e.next = sched.Next(now)
	return nil
}

// Rule returns the registered rule, or nil.
func (e *Engine) Rule() Rule {
	return e.rule
}

// NextRun returns the next due time. Zero when nothing is registered.
func (e *Engine) NextRun() time.Time {
	return e.next
}

// IsDue reports whether the registered rule should fire at now.
func (e *Engine) IsDue(now time.Time) bool {
	if e.sched == nil {
		return false
	}
	return !now.Before(e.next)
}

// Advance moves the due time to the first occurrence strictly after both
// now and the current due time. Occurrences already in the past are dropped.
func (e *Engine) Advance(now time.Time) {
	if e.sched == nil {
		return
	}
	base := now
	if e.next.After(base) {
		base = e.next
	}
	e.next = e.sched.Next(base)
}

// RunPending fires the action if it is due at now and advances from the
// clock reading taken after the action returns. Reports whether it fired.
func (e *Engine) RunPending(now time.Time) bool {
	if !e.IsDue(now) {
		return false
	}

	// Advances on panic too; the panic still propagates to the caller.
	defer func() {
		finished := e.clock()
		if finished.Before(now) {
			finished = now
		}
		e.Advance(finished)
	}()

	e.action()
	return true
}

// Upcoming lists the next n due times after from without changing state.
func Upcoming(rule Rule, from time.Time, n int) ([]time.Time, error) {
	sched, err := cronSchedule(rule)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		times = append(times, t)
	}
	return times, nil
}
