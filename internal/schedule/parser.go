package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedSchedule is returned when the descriptor does not have five fields.
	ErrMalformedSchedule = errors.New("malformed schedule")
	// ErrInvalidTimeValue is returned when minute or hour is not a usable literal.
	ErrInvalidTimeValue = errors.New("invalid time value")
)

const wildcard = "*"

// Descriptor is a parsed five-field schedule string. Only Minute and Hour
// are interpreted; the calendar fields are kept for reporting.
type Descriptor struct {
	Minute     string
	Hour       string
	DayOfMonth string
	Month      string
	DayOfWeek  string
}

// IgnoresCalendarFields reports whether any day-of-month, month or
// day-of-week field carries a constraint that will not be evaluated.
func (d Descriptor) IgnoresCalendarFields() bool {
	return d.DayOfMonth != wildcard || d.Month != wildcard || d.DayOfWeek != wildcard
}

// Split parses the descriptor shape without interpreting the values.
func Split(spec string) (Descriptor, error) {
	parts := strings.Fields(spec)
	if len(parts) != 5 {
		return Descriptor{}, fmt.Errorf("%w: %q has %d fields, expected 'minute hour day_of_month month day_of_week'",
			ErrMalformedSchedule, spec, len(parts))
	}

	return Descriptor{
		Minute:     parts[0],
		Hour:       parts[1],
		DayOfMonth: parts[2],
		Month:      parts[3],
		DayOfWeek:  parts[4],
	}, nil
}

// Parse translates a five-field schedule string into a Rule.
//
// Selection order: both minute and hour wildcards give EveryMinute, an hour
// wildcard gives HourlyAtMinute, anything else gives DailyAt. In the last
// case a wildcard minute is not a number and is rejected.
func Parse(spec string) (Rule, error) {
	desc, err := Split(spec)
	if err != nil {
		return nil, err
	}
	return desc.Rule()
}

// Rule interprets the minute and hour fields.
func (d Descriptor) Rule() (Rule, error) {
	if d.Minute == wildcard && d.Hour == wildcard {
		return EveryMinute{}, nil
	}

	minute, err := parseField("minute", d.Minute, 59)
	if err != nil {
		return nil, err
	}

	if d.Hour == wildcard {
		return HourlyAtMinute{Minute: minute}, nil
	}

	hour, err := parseField("hour", d.Hour, 23)
	if err != nil {
		return nil, err
	}

	return DailyAt{Hour: hour, Minute: minute}, nil
}

func parseField(name, value string, max int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidTimeValue, name, value)
	}
	if n < 0 || n > max {
		return 0, fmt.Errorf("%w: %s %d out of range [0,%d]", ErrInvalidTimeValue, name, n, max)
	}
	return n, nil
}
