// Package recur implements RFC 5545 recurrence rule evaluation: the
// RecurrencePattern value, a lazy candidate iterator, and the policy
// controlling sub-hourly frequencies.
package recur

import (
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency is the base unit a recurrence rule repeats on. The zero value
// is unset; evaluating a pattern without a frequency is a configuration
// error.
type Frequency int

const (
	FreqNone Frequency = iota
	Secondly
	Minutely
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

var freqNames = map[Frequency]string{
	FreqNone: "NONE",
	Secondly: "SECONDLY",
	Minutely: "MINUTELY",
	Hourly:   "HOURLY",
	Daily:    "DAILY",
	Weekly:   "WEEKLY",
	Monthly:  "MONTHLY",
	Yearly:   "YEARLY",
}

func (f Frequency) String() string {
	if s, ok := freqNames[f]; ok {
		return s
	}
	return "UNKNOWN"
}

// WeekdayNum is one BYDAY entry: a weekday with an optional ordinal.
// Ordinal 0 means every such weekday; negative ordinals count from the end
// of the month or year the rule applies to (-1MO = last Monday).
type WeekdayNum struct {
	Day     time.Weekday
	Ordinal int
}

// Pattern is a fully decoded RRULE/EXRULE value. Patterns are immutable
// value data: parsed once from the property store, read many times.
type Pattern struct {
	Freq     Frequency
	Interval int       // default 1
	Count    int       // 0 = unbounded; mutually exclusive with Until
	Until    time.Time // zero = unbounded; inclusive
	// WeekStart keeps rrule-go's Monday-based numbering so the zero
	// value is the RFC default (Monday).
	WeekStart rrule.Weekday

	BySecond   []int
	ByMinute   []int
	ByHour     []int
	ByDay      []WeekdayNum
	ByMonthDay []int
	ByYearDay  []int
	ByWeekNo   []int
	ByMonth    []int
	BySetPos   []int
}

// FromROption converts an rrule-go parse result (the representation go-ical
// hands back for RRULE properties) into a Pattern.
func FromROption(opt *rrule.ROption) Pattern {
	p := Pattern{
		Freq:      fromRRuleFreq(opt.Freq),
		Interval:  opt.Interval,
		Count:     opt.Count,
		Until:     opt.Until,
		WeekStart: opt.Wkst,

		BySecond:   append([]int(nil), opt.Bysecond...),
		ByMinute:   append([]int(nil), opt.Byminute...),
		ByHour:     append([]int(nil), opt.Byhour...),
		ByMonthDay: append([]int(nil), opt.Bymonthday...),
		ByYearDay:  append([]int(nil), opt.Byyearday...),
		ByWeekNo:   append([]int(nil), opt.Byweekno...),
		ByMonth:    append([]int(nil), opt.Bymonth...),
		BySetPos:   append([]int(nil), opt.Bysetpos...),
	}
	for _, wd := range opt.Byweekday {
		p.ByDay = append(p.ByDay, WeekdayNum{
			Day:     fromRRuleWeekday(wd),
			Ordinal: wd.N(),
		})
	}
	return p
}

func fromRRuleFreq(f rrule.Frequency) Frequency {
	switch f {
	case rrule.YEARLY:
		return Yearly
	case rrule.MONTHLY:
		return Monthly
	case rrule.WEEKLY:
		return Weekly
	case rrule.DAILY:
		return Daily
	case rrule.HOURLY:
		return Hourly
	case rrule.MINUTELY:
		return Minutely
	case rrule.SECONDLY:
		return Secondly
	}
	return FreqNone
}

// rrule-go numbers weekdays 0=Monday..6=Sunday; time.Weekday is 0=Sunday.
func fromRRuleWeekday(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}

type byBound struct {
	field     []int
	name      string
	min, max  int
	plusMinus bool
}

// Validate checks structural pattern invariants: a frequency is set, COUNT
// and UNTIL are not both set, and every BY value lies within its RFC 5545
// bounds.
func (p Pattern) Validate() error {
	if p.Freq == FreqNone {
		return ConfigError("recurrence pattern has no FREQ")
	}
	if p.Count > 0 && !p.Until.IsZero() {
		return ConfigError("COUNT and UNTIL are mutually exclusive")
	}
	if p.Interval < 0 {
		return ConfigError("INTERVAL must be positive")
	}
	bounds := []byBound{
		{p.BySecond, "BYSECOND", 0, 59, false},
		{p.ByMinute, "BYMINUTE", 0, 59, false},
		{p.ByHour, "BYHOUR", 0, 23, false},
		{p.ByMonthDay, "BYMONTHDAY", 1, 31, true},
		{p.ByYearDay, "BYYEARDAY", 1, 366, true},
		{p.ByWeekNo, "BYWEEKNO", 1, 53, true},
		{p.ByMonth, "BYMONTH", 1, 12, false},
		{p.BySetPos, "BYSETPOS", 1, 366, true},
	}
	for _, b := range bounds {
		for _, v := range b.field {
			ok := v >= b.min && v <= b.max
			if b.plusMinus {
				ok = ok || (v <= -b.min && v >= -b.max)
			}
			if !ok {
				return ConfigError("%s value %d out of range", b.name, v)
			}
		}
	}
	for _, wd := range p.ByDay {
		if wd.Ordinal > 53 || wd.Ordinal < -53 {
			return ConfigError("BYDAY ordinal %d out of range", wd.Ordinal)
		}
	}
	return nil
}

// normalize fills defaults and injects the seed-implicit BY rules so that a
// bare FREQ pattern reproduces the seed: a yearly rule recurs on the seed's
// month and day, a weekly rule on the seed's weekday, and every rule below
// its frequency's granularity inherits the seed's time of day.
func (p Pattern) normalize(seed time.Time) Pattern {
	if p.Interval == 0 {
		p.Interval = 1
	}
	if len(p.ByYearDay) == 0 && len(p.ByMonthDay) == 0 &&
		len(p.ByDay) == 0 && len(p.ByWeekNo) == 0 {
		switch p.Freq {
		case Yearly:
			if len(p.ByMonth) == 0 {
				p.ByMonth = []int{int(seed.Month())}
			}
			p.ByMonthDay = []int{seed.Day()}
		case Monthly:
			p.ByMonthDay = []int{seed.Day()}
		case Weekly:
			p.ByDay = []WeekdayNum{{Day: seed.Weekday()}}
		}
	}
	if p.Freq > Hourly && len(p.ByHour) == 0 {
		p.ByHour = []int{seed.Hour()}
	}
	if p.Freq > Minutely && len(p.ByMinute) == 0 {
		p.ByMinute = []int{seed.Minute()}
	}
	if p.Freq > Secondly && len(p.BySecond) == 0 {
		p.BySecond = []int{seed.Second()}
	}
	return p
}
