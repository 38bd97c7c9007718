package ics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// RecurrenceRule is the handled subset of the iCalendar RRULE grammar:
// FREQ (required), INTERVAL, COUNT, UNTIL, BYDAY, BYMONTHDAY, BYMONTH and
// BYSETPOS. Anything outside the subset is ignored.
type RecurrenceRule struct {
	Freq       string // DAILY|WEEKLY|MONTHLY|YEARLY
	Interval   int
	Count      int
	Until      time.Time // zero when absent
	ByDay      []rrule.Weekday
	ByMonthDay []int
	ByMonth    []int
	BySetPos   []int
}

var frequencies = map[string]rrule.Frequency{
	"DAILY":   rrule.DAILY,
	"WEEKLY":  rrule.WEEKLY,
	"MONTHLY": rrule.MONTHLY,
	"YEARLY":  rrule.YEARLY,
}

var weekdays = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// ParseRecurrenceRule parses an RRULE property value such as
// "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE". FREQ is required; unknown parts of
// the grammar are skipped rather than rejected.
func ParseRecurrenceRule(value string) (*RecurrenceRule, error) {
	rule := &RecurrenceRule{Interval: 1}

	for _, part := range strings.Split(value, ";") {
		eq := strings.Index(part, "=")
		if eq == -1 {
			continue
		}
		name := strings.ToUpper(strings.TrimSpace(part[:eq]))
		val := strings.TrimSpace(part[eq+1:])

		switch name {
		case "FREQ":
			rule.Freq = strings.ToUpper(val)
		case "INTERVAL":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				rule.Interval = n
			}
		case "COUNT":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				rule.Count = n
			}
		case "UNTIL":
			t, err := ParseDateTime(val, "")
			if err != nil {
				return nil, fmt.Errorf("invalid UNTIL %q: %w", val, err)
			}
			rule.Until = t
		case "BYDAY":
			for _, tok := range strings.Split(val, ",") {
				wd, err := parseWeekday(tok)
				if err != nil {
					return nil, err
				}
				rule.ByDay = append(rule.ByDay, wd)
			}
		case "BYMONTHDAY":
			rule.ByMonthDay = appendInts(rule.ByMonthDay, val)
		case "BYMONTH":
			rule.ByMonth = appendInts(rule.ByMonth, val)
		case "BYSETPOS":
			rule.BySetPos = appendInts(rule.BySetPos, val)
		}
	}

	if _, ok := frequencies[rule.Freq]; !ok {
		return nil, fmt.Errorf("unsupported or missing FREQ in RRULE %q", value)
	}

	return rule, nil
}

// Options converts the rule into an rrule-go option set anchored at the
// given start instant.
func (r *RecurrenceRule) Options(dtstart time.Time) rrule.ROption {
	return rrule.ROption{
		Freq:       frequencies[r.Freq],
		Dtstart:    dtstart,
		Interval:   r.Interval,
		Count:      r.Count,
		Until:      r.Until,
		Byweekday:  r.ByDay,
		Bymonthday: r.ByMonthDay,
		Bymonth:    r.ByMonth,
		Bysetpos:   r.BySetPos,
	}
}

// buildRRule compiles the rule into an rrule-go generator anchored at the
// given start instant.
func (r *RecurrenceRule) buildRRule(dtstart time.Time) (*rrule.RRule, error) {
	return rrule.NewRRule(r.Options(dtstart))
}

// parseWeekday parses a BYDAY token: a two-letter weekday code with an
// optional ordinal prefix (MO, 2TU, -1FR).
func parseWeekday(token string) (rrule.Weekday, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if len(token) < 2 {
		return rrule.Weekday{}, fmt.Errorf("invalid BYDAY token %q", token)
	}

	code := token[len(token)-2:]
	wd, ok := weekdays[code]
	if !ok {
		return rrule.Weekday{}, fmt.Errorf("invalid BYDAY token %q", token)
	}

	if prefix := token[:len(token)-2]; prefix != "" {
		n, err := strconv.Atoi(prefix)
		if err != nil || n == 0 {
			return rrule.Weekday{}, fmt.Errorf("invalid BYDAY ordinal in %q", token)
		}
		wd = wd.Nth(n)
	}

	return wd, nil
}

func appendInts(dst []int, val string) []int {
	for _, tok := range strings.Split(val, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(tok)); err == nil {
			dst = append(dst, n)
		}
	}
	return dst
}
