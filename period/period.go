// Package period provides the Period primitive used throughout the
// occurrence engine: a start instant bound to either an explicit end or a
// duration, with iCalendar DATE / DATE-TIME / PERIOD value parsing.
package period

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// Period is a start date-time bound to an optional end. Exactly one of the
// explicit end and the duration is authoritative at a time: setting one
// recomputes the other from Start.
type Period struct {
	Start time.Time

	end      time.Time
	duration time.Duration
	hasEnd   bool
}

// New returns a zero-length Period at start.
func New(start time.Time) Period {
	return Period{Start: start}
}

// NewWithEnd returns a Period spanning [start, end].
func NewWithEnd(start, end time.Time) Period {
	p := Period{Start: start}
	p.SetEnd(end)
	return p
}

// NewWithDuration returns a Period of the given span starting at start.
func NewWithDuration(start time.Time, d time.Duration) Period {
	p := Period{Start: start}
	p.SetDuration(d)
	return p
}

// SetEnd makes the explicit end authoritative and recomputes the duration.
func (p *Period) SetEnd(end time.Time) {
	p.end = end
	p.duration = end.Sub(p.Start)
	p.hasEnd = true
}

// SetDuration makes the duration authoritative and recomputes the end.
func (p *Period) SetDuration(d time.Duration) {
	p.duration = d
	p.end = p.Start.Add(d)
	p.hasEnd = true
}

// End returns the resolved end of the period. The second return value is
// false for a zero-length instant with no end set.
func (p Period) End() (time.Time, bool) {
	if !p.hasEnd {
		return p.Start, false
	}
	return p.end, true
}

// EffectiveEnd returns the resolved end, falling back to Start for
// zero-length periods.
func (p Period) EffectiveEnd() time.Time {
	if !p.hasEnd {
		return p.Start
	}
	return p.end
}

// Duration returns the resolved span of the period.
func (p Period) Duration() time.Duration {
	return p.duration
}

// Equal reports whether two periods share start and resolved end.
func (p Period) Equal(o Period) bool {
	return p.Start.Equal(o.Start) && p.EffectiveEnd().Equal(o.EffectiveEnd())
}

// Compare orders periods by start, then by resolved end.
func (p Period) Compare(o Period) int {
	if c := p.Start.Compare(o.Start); c != 0 {
		return c
	}
	return p.EffectiveEnd().Compare(o.EffectiveEnd())
}

// Overlaps reports whether the period intersects the half-open window
// [from, to). A zero-length period overlaps when its start lies inside.
func (p Period) Overlaps(from, to time.Time) bool {
	if !p.hasEnd || p.end.Equal(p.Start) {
		return !p.Start.Before(from) && p.Start.Before(to)
	}
	return p.Start.Before(to) && p.end.After(from)
}

func (p Period) String() string {
	if !p.hasEnd {
		return p.Start.Format(time.RFC3339)
	}
	return p.Start.Format(time.RFC3339) + "/" + p.end.Format(time.RFC3339)
}

// List is an ordered set of literal periods, as carried by a single RDATE
// or EXDATE property.
type List []Period

// Sort orders the list ascending by start then end.
func (l List) Sort() {
	sort.Slice(l, func(i, j int) bool { return l[i].Compare(l[j]) < 0 })
}

// Contains reports whether a period equal in value is already present.
func (l List) Contains(p Period) bool {
	for _, q := range l {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

const (
	dateFormat        = "20060102"
	dateTimeFormat    = "20060102T150405"
	dateTimeUTCFormat = "20060102T150405Z"
)

// ParseDate parses a single iCalendar DATE or DATE-TIME value. Date-only
// values normalize to midnight UTC; a trailing Z marks UTC; everything else
// is interpreted in loc (nil meaning floating, kept in UTC representation).
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(dateTimeUTCFormat, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateTimeFormat, value, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(dateFormat, value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("invalid date-time value %q", value)
}

// ParseDuration parses an iCalendar duration value such as PT5H30M or
// -P1DT12H. The syntax is go-ical's; a synthetic property reuses its
// decoder so the engine carries no duration grammar of its own.
func ParseDuration(value string) (time.Duration, error) {
	prop := ical.NewProp(ical.PropDuration)
	prop.SetValueType(ical.ValueDuration)
	prop.Value = strings.TrimSpace(value)
	d, err := prop.Duration()
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", value, err)
	}
	return d, nil
}

// Parse parses one PERIOD, DATE-TIME or DATE value into a Period. PERIOD
// values take the explicit start/end or start/duration form.
func Parse(value string, loc *time.Location) (Period, error) {
	value = strings.TrimSpace(value)
	if slash := strings.IndexByte(value, '/'); slash >= 0 {
		start, err := ParseDate(value[:slash], loc)
		if err != nil {
			return Period{}, err
		}
		rest := value[slash+1:]
		if strings.HasPrefix(rest, "P") || strings.HasPrefix(rest, "+P") || strings.HasPrefix(rest, "-P") {
			d, err := ParseDuration(rest)
			if err != nil {
				return Period{}, err
			}
			return NewWithDuration(start, d), nil
		}
		end, err := ParseDate(rest, loc)
		if err != nil {
			return Period{}, err
		}
		return NewWithEnd(start, end), nil
	}
	start, err := ParseDate(value, loc)
	if err != nil {
		return Period{}, err
	}
	return New(start), nil
}

// ParseList parses a comma-separated RDATE/EXDATE property value. When
// dateOnly is set (VALUE=DATE), every entry normalizes to midnight UTC.
func ParseList(value string, loc *time.Location, dateOnly bool) (List, error) {
	var list List
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if dateOnly {
			t, err := time.Parse(dateFormat, part)
			if err != nil {
				return nil, fmt.Errorf("invalid date value %q: %w", part, err)
			}
			list = append(list, New(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)))
			continue
		}
		p, err := Parse(part, loc)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, nil
}
