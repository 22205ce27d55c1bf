// Package alarm derives VALARM firing instants from a recurring
// component's occurrences: relative triggers anchor on each occurrence's
// start or end, absolute triggers fire once, and REPEAT/DURATION append
// additional fires.
package alarm

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/seracho/librecur/occurrence"
	"github.com/seracho/librecur/period"
	"github.com/seracho/librecur/recur"
)

// Trigger is a decoded TRIGGER property. Exactly one form is populated:
// a signed duration relative to the owning occurrence's start or end, or
// an absolute UTC date-time.
type Trigger struct {
	Relative   time.Duration
	RelatedEnd bool

	Absolute   time.Time
	IsAbsolute bool
}

// Alarm is a decoded VALARM: its trigger plus the optional repeat block.
type Alarm struct {
	Component *ical.Component
	Trigger   Trigger
	// Repeat additional fires, each RepeatInterval after the previous
	// one. REPEAT and DURATION must be set together.
	Repeat         int
	RepeatInterval time.Duration
}

// Occurrence is one alarm firing: the alarm, the instant it fires, and
// the component whose occurrence anchored it.
type Occurrence struct {
	Alarm    *ical.Component
	FireTime time.Time
	Owner    *ical.Component
}

// ParseAlarm decodes a VALARM component. Configuration errors (no
// trigger, REPEAT without DURATION) are fatal and never defaulted.
func ParseAlarm(comp *ical.Component) (*Alarm, error) {
	prop := comp.Props.Get(ical.PropTrigger)
	if prop == nil {
		return nil, recur.ConfigError("VALARM has no TRIGGER")
	}
	trigger, err := parseTrigger(prop)
	if err != nil {
		return nil, err
	}
	a := &Alarm{Component: comp, Trigger: trigger}

	repeatProp := comp.Props.Get(ical.PropRepeat)
	durationProp := comp.Props.Get(ical.PropDuration)
	if (repeatProp == nil) != (durationProp == nil) {
		return nil, recur.ConfigError("REPEAT and DURATION must be set together")
	}
	if repeatProp != nil {
		repeat, err := strconv.Atoi(strings.TrimSpace(repeatProp.Value))
		if err != nil || repeat < 0 {
			return nil, recur.ConfigError("invalid REPEAT %q", repeatProp.Value)
		}
		interval, err := durationProp.Duration()
		if err != nil {
			return nil, recur.ConfigError("invalid DURATION: %v", err)
		}
		a.Repeat, a.RepeatInterval = repeat, interval
	}
	return a, nil
}

func parseTrigger(prop *ical.Prop) (Trigger, error) {
	if strings.EqualFold(paramValue(prop.Params, "VALUE"), "DATE-TIME") {
		at, err := period.ParseDate(prop.Value, nil)
		if err != nil {
			return Trigger{}, recur.ConfigError("invalid TRIGGER: %v", err)
		}
		return Trigger{Absolute: at, IsAbsolute: true}, nil
	}
	d, err := period.ParseDuration(prop.Value)
	if err != nil {
		return Trigger{}, recur.ConfigError("invalid TRIGGER: %v", err)
	}
	return Trigger{
		Relative:   d,
		RelatedEnd: strings.EqualFold(paramValue(prop.Params, "RELATED"), "END"),
	}, nil
}

// Evaluator computes alarm firings on top of an occurrence engine.
type Evaluator struct {
	engine *occurrence.Engine
}

// NewEvaluator wraps an engine; a nil engine gets the default
// configuration.
func NewEvaluator(engine *occurrence.Engine) *Evaluator {
	if engine == nil {
		engine = occurrence.New()
	}
	return &Evaluator{engine: engine}
}

// Poll returns every alarm firing of the component's VALARM children
// within [from, to), ascending.
func (e *Evaluator) Poll(comp *ical.Component, from, to time.Time) ([]Occurrence, error) {
	return e.poll(comp, from, to)
}

// PollAll returns every computable firing without a window. Relative
// triggers require the owning recurrence to be bounded by COUNT or
// UNTIL; an unbounded one is a configuration error.
func (e *Evaluator) PollAll(comp *ical.Component) ([]Occurrence, error) {
	return e.poll(comp, time.Time{}, time.Time{})
}

func (e *Evaluator) poll(comp *ical.Component, from, to time.Time) ([]Occurrence, error) {
	adapter, err := e.engine.Adapt(comp)
	if err != nil {
		return nil, err
	}
	alarms := adapter.Alarms()
	if len(alarms) == 0 {
		return nil, nil
	}

	if from.IsZero() != to.IsZero() {
		return nil, recur.ConfigError("alarm poll window must set both bounds or neither")
	}
	bounded := !from.IsZero()
	var fires []Occurrence
	var occs []occurrence.Occurrence
	for _, alarmComp := range alarms {
		a, err := ParseAlarm(alarmComp)
		if err != nil {
			return nil, err
		}
		if a.Trigger.IsAbsolute {
			// Absolute triggers fire once, independent of
			// recurrence.
			for _, fire := range a.expand(a.Trigger.Absolute) {
				fires = append(fires, Occurrence{Alarm: alarmComp, FireTime: fire, Owner: comp})
			}
			continue
		}
		if occs == nil {
			occs, err = e.ownerOccurrences(comp, adapter, from, to, bounded)
			if err != nil {
				return nil, err
			}
		}
		bases, err := a.relativeFireTimes(occs)
		if err != nil {
			return nil, err
		}
		for _, base := range bases {
			for _, fire := range a.expand(base) {
				fires = append(fires, Occurrence{Alarm: alarmComp, FireTime: fire, Owner: comp})
			}
		}
	}

	sort.Slice(fires, func(i, j int) bool { return fires[i].FireTime.Before(fires[j].FireTime) })
	if !bounded {
		return fires, nil
	}
	clipped := fires[:0]
	for _, f := range fires {
		if !f.FireTime.Before(from) && f.FireTime.Before(to) {
			clipped = append(clipped, f)
		}
	}
	return clipped, nil
}

func (e *Evaluator) ownerOccurrences(comp *ical.Component, adapter *occurrence.Component,
	from, to time.Time, bounded bool) ([]occurrence.Occurrence, error) {

	if !bounded {
		for _, p := range adapter.RecurrenceRules() {
			if p.Count == 0 && p.Until.IsZero() {
				return nil, recur.ConfigError(
					"unbounded poll of a relative trigger on an unbounded recurrence")
			}
		}
		start, _ := adapter.StartWall()
		from = start.AddDate(0, 0, -1)
		to = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
	}
	return e.engine.GetOccurrences(comp, from, to)
}

// relativeFireTimes anchors the trigger on each occurrence. An END
// anchor without a period end falls back to the last span seen on an
// earlier occurrence; a component where no end is ever derivable is a
// configuration error.
func (a *Alarm) relativeFireTimes(occs []occurrence.Occurrence) ([]time.Time, error) {
	var bases []time.Time
	var lastSpan time.Duration
	var haveSpan bool
	for _, occ := range occs {
		anchor := occ.Period.Start
		if a.Trigger.RelatedEnd {
			if end, ok := occ.Period.End(); ok {
				anchor = end
				lastSpan, haveSpan = occ.Period.Duration(), true
			} else if haveSpan {
				anchor = occ.Period.Start.Add(lastSpan)
			} else {
				return nil, recur.ConfigError(
					"TRIGGER;RELATED=END with no derivable end")
			}
		}
		bases = append(bases, anchor.Add(a.Trigger.Relative))
	}
	return bases, nil
}

// expand appends the REPEAT firings to a base fire time.
func (a *Alarm) expand(base time.Time) []time.Time {
	out := []time.Time{base}
	for i := 0; i < a.Repeat; i++ {
		base = base.Add(a.RepeatInterval)
		out = append(out, base)
	}
	return out
}

func paramValue(params ical.Params, name string) string {
	if params == nil {
		return ""
	}
	values := params[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
