package schedule

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Rule is the interpreted cadence derived from a schedule descriptor.
// Exactly one of EveryMinute, HourlyAtMinute or DailyAt.
type Rule interface {
	// Expression returns the equivalent standard five-field cron expression.
	Expression() string
	// Describe returns a human readable cadence.
	Describe() string

	isRule()
}

// EveryMinute fires on every wall-clock minute.
type EveryMinute struct{}

// HourlyAtMinute fires once per hour at Minute past the hour.
type HourlyAtMinute struct {
	Minute int
}

// DailyAt fires once per day at Hour:Minute local time.
type DailyAt struct {
	Hour   int
	Minute int
}

func (EveryMinute) Expression() string { return "* * * * *" }
func (EveryMinute) Describe() string   { return "every minute" }
func (EveryMinute) isRule()            {}

func (r HourlyAtMinute) Expression() string { return fmt.Sprintf("%d * * * *", r.Minute) }
func (r HourlyAtMinute) Describe() string {
	return fmt.Sprintf("every hour at minute %02d", r.Minute)
}
func (HourlyAtMinute) isRule() {}

func (r DailyAt) Expression() string { return fmt.Sprintf("%d %d * * *", r.Minute, r.Hour) }
func (r DailyAt) Describe() string {
	return fmt.Sprintf("daily at %02d:%02d", r.Hour, r.Minute)
}
func (DailyAt) isRule() {}

// cronSchedule converts a rule into a robfig/cron schedule. Rules are
// range-checked on construction, so parsing cannot fail for values built
// by Parse; a hand-built out-of-range rule returns an error.
func cronSchedule(rule Rule) (cron.Schedule, error) {
	if rule == nil {
		return nil, fmt.Errorf("rule is required")
	}
	sched, err := cron.ParseStandard(rule.Expression())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeValue, err)
	}
	return sched, nil
}
