package availability

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var ErrUnsupportedRule = errors.New("unsupported recurrence rule")

// ROption expresses a recurring blockout as an RFC 5545 rule anchored at
// the start of its first day. UNTIL covers the whole horizon day.
func (c Calendar) ROption(b Blockout) (rrule.ROption, error) {
	opt := rrule.ROption{
		Dtstart:  c.DayStart(b.Start),
		Interval: 1,
		Wkst:     rruleWeekday(c.WeekStart),
	}
	if b.Horizon != nil {
		opt.Until = c.DayEnd(*b.Horizon).Add(-time.Second)
	}

	switch b.Recurrence {
	case RecurrenceNone:
		return rrule.ROption{}, fmt.Errorf("%w: blockout is not recurring", ErrUnsupportedRule)
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
	case Weekdays:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case Weekends:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{rrule.SA, rrule.SU}
	case Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{b.Start.In(c.location()).Day()}
	default:
		return rrule.ROption{}, fmt.Errorf("%w: %s", ErrUnsupportedRule, b.Recurrence)
	}
	return opt, nil
}

// RuleString renders the RRULE value for a recurring blockout.
func (c Calendar) RuleString(b Blockout) (string, error) {
	opt, err := c.ROption(b)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// RecurrenceFromRRule maps an RRULE value back to a Recurrence. COUNT and
// UNTIL become a horizon. Rules outside the supported set fail with
// ErrUnsupportedRule.
func (c Calendar) RecurrenceFromRRule(raw string, anchor time.Time) (Recurrence, *time.Time, error) {
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:"))
	if text == "" {
		return RecurrenceNone, nil, nil
	}

	opt, err := rrule.StrToROption(text)
	if err != nil {
		return RecurrenceNone, nil, fmt.Errorf("%w: parse %q: %v", ErrUnsupportedRule, text, err)
	}
	if opt.Interval > 1 {
		return RecurrenceNone, nil, fmt.Errorf("%w: interval %d", ErrUnsupportedRule, opt.Interval)
	}
	if len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 || len(opt.Byyearday) > 0 ||
		len(opt.Byweekno) > 0 || len(opt.Byeaster) > 0 {
		return RecurrenceNone, nil, fmt.Errorf("%w: %q", ErrUnsupportedRule, text)
	}

	days := weekdaySet(opt.Byweekday)
	anchorDay := anchor.In(c.location())

	var recurrence Recurrence
	switch {
	case opt.Freq == rrule.DAILY && len(days) == 0 && len(opt.Bymonthday) == 0:
		recurrence = Daily
	case (opt.Freq == rrule.DAILY || opt.Freq == rrule.WEEKLY) && sameWeekdays(days, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday):
		recurrence = Weekdays
	case (opt.Freq == rrule.DAILY || opt.Freq == rrule.WEEKLY) && sameWeekdays(days, time.Saturday, time.Sunday):
		recurrence = Weekends
	case opt.Freq == rrule.WEEKLY && (len(days) == 0 || sameWeekdays(days, anchorDay.Weekday())):
		recurrence = Weekly
	case opt.Freq == rrule.MONTHLY && len(days) == 0 &&
		(len(opt.Bymonthday) == 0 || (len(opt.Bymonthday) == 1 && opt.Bymonthday[0] == anchorDay.Day())):
		recurrence = Monthly
	default:
		return RecurrenceNone, nil, fmt.Errorf("%w: %q", ErrUnsupportedRule, text)
	}

	horizon, err := c.ruleHorizon(*opt, anchor)
	if err != nil {
		return RecurrenceNone, nil, err
	}
	return recurrence, horizon, nil
}

func (c Calendar) ruleHorizon(opt rrule.ROption, anchor time.Time) (*time.Time, error) {
	switch {
	case !opt.Until.IsZero():
		until := c.DayStart(opt.Until)
		return &until, nil
	case opt.Count > 0:
		opt.Dtstart = anchor
		rule, err := rrule.NewRRule(opt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
		}
		all := rule.All()
		if len(all) == 0 {
			return nil, fmt.Errorf("%w: rule has no occurrences", ErrUnsupportedRule)
		}
		last := c.DayStart(all[len(all)-1])
		return &last, nil
	default:
		return nil, nil
	}
}

func weekdaySet(values []rrule.Weekday) []time.Weekday {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[time.Weekday]struct{}, len(values))
	days := make([]time.Weekday, 0, len(values))
	for i := range values {
		wd := time.Weekday((values[i].Day() + 1) % 7)
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		days = append(days, wd)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

func sameWeekdays(days []time.Weekday, want ...time.Weekday) bool {
	if len(days) != len(want) {
		return false
	}
	sorted := append([]time.Weekday(nil), want...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := range days {
		if days[i] != sorted[i] {
			return false
		}
	}
	return true
}

func rruleWeekday(wd time.Weekday) rrule.Weekday {
	all := []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}
	return all[wd]
}
