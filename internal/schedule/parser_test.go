package schedule

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseEveryMinute(t *testing.T) {
	for _, spec := range []string{"* * * * *", "*  *  1 2 3", "\t* * * * 0 "} {
		rule, err := Parse(spec)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", spec, err)
		}
		if _, ok := rule.(EveryMinute); !ok {
			t.Fatalf("Parse(%q) = %#v, want EveryMinute", spec, rule)
		}
	}
}

func TestParseHourlyAtMinute(t *testing.T) {
	for m := 0; m <= 59; m++ {
		spec := fmt.Sprintf("%d * * * *", m)
		rule, err := Parse(spec)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", spec, err)
		}
		if rule != (HourlyAtMinute{Minute: m}) {
			t.Fatalf("Parse(%q) = %#v, want HourlyAtMinute(%d)", spec, rule, m)
		}
	}
}

func TestParseDailyAt(t *testing.T) {
	for h := 0; h <= 23; h++ {
		for _, m := range []int{0, 7, 30, 59} {
			spec := fmt.Sprintf("%d %d * * *", m, h)
			rule, err := Parse(spec)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", spec, err)
			}
			if rule != (DailyAt{Hour: h, Minute: m}) {
				t.Fatalf("Parse(%q) = %#v, want DailyAt(%d, %d)", spec, rule, h, m)
			}
		}
	}
}

func TestParseZeroPaddedLiterals(t *testing.T) {
	rule, err := Parse("05 02 * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rule != (DailyAt{Hour: 2, Minute: 5}) {
		t.Fatalf("got %#v", rule)
	}
	if rule.Describe() != "daily at 02:05" {
		t.Fatalf("unexpected description %q", rule.Describe())
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []string{"", "*", "* * * *", "* * * * * *", "30 2 * * * extra"}
	for _, spec := range tests {
		if _, err := Parse(spec); !errors.Is(err, ErrMalformedSchedule) {
			t.Fatalf("Parse(%q) error = %v, want ErrMalformedSchedule", spec, err)
		}
	}
}

func TestParseInvalidTimeValue(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{name: "minute too large hourly", spec: "60 * * * *"},
		{name: "negative minute", spec: "-1 * * * *"},
		{name: "minute step", spec: "*/5 * * * *"},
		{name: "hour too large", spec: "0 24 * * *"},
		{name: "minute too large daily", spec: "75 3 * * *"},
		{name: "word hour", spec: "0 noon * * *"},
		{name: "wildcard minute with literal hour", spec: "* 3 * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.spec); !errors.Is(err, ErrInvalidTimeValue) {
				t.Fatalf("Parse(%q) error = %v, want ErrInvalidTimeValue", tt.spec, err)
			}
		})
	}
}

func TestDescriptorIgnoresCalendarFields(t *testing.T) {
	desc, err := Split("30 2 1 * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !desc.IgnoresCalendarFields() {
		t.Fatalf("expected day-of-month constraint to be reported as ignored")
	}

	desc, _ = Split("30 2 * * *")
	if desc.IgnoresCalendarFields() {
		t.Fatalf("expected plain daily schedule to report no ignored fields")
	}
}

func TestRuleExpressions(t *testing.T) {
	tests := []struct {
		rule Rule
		want string
	}{
		{EveryMinute{}, "* * * * *"},
		{HourlyAtMinute{Minute: 15}, "15 * * * *"},
		{DailyAt{Hour: 2, Minute: 30}, "30 2 * * *"},
	}
	for _, tt := range tests {
		if got := tt.rule.Expression(); got != tt.want {
			t.Fatalf("%#v.Expression() = %q, want %q", tt.rule, got, tt.want)
		}
	}
}
