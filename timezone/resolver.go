// Package timezone resolves VTIMEZONE observances: which named UTC offset
// applies at a given moment. Each STANDARD/DAYLIGHT sub-component is
// itself a recurring component, expanded through the occurrence engine.
package timezone

import (
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/samber/mo"

	"github.com/seracho/librecur/occurrence"
	"github.com/seracho/librecur/recur"
)

// Observance is one named UTC-offset interval in effect at a queried
// moment: "EST", the offset it replaced, the offset it applies, and the
// UTC instant its most recent transition took effect.
type Observance struct {
	Name       string
	OffsetFrom time.Duration
	OffsetTo   time.Duration
	Start      time.Time
}

// Location returns a fixed-offset location carrying the observance's name
// and applied offset.
func (o Observance) Location() *time.Location {
	return time.FixedZone(o.Name, int(o.OffsetTo/time.Second))
}

// Transitions are expanded over whole calendar years, from the start of
// the year before the query to the end of the year after it. Every query
// in the same calendar year therefore sees the same window, and the
// nearest transition at or before any instant of that year is always
// inside it.

type observanceDef struct {
	comp       *ical.Component
	name       string
	offsetFrom time.Duration
	offsetTo   time.Duration
	// until caps the observance's recurrence; zero means unbounded.
	until time.Time
	// oneShot marks an observance with no recurrence at all: it
	// transitions exactly once, at its DTSTART, and applies from then
	// on regardless of the query window.
	oneShot   bool
	startWall time.Time
}

type zone struct {
	id          string
	observances []*observanceDef

	mu          sync.Mutex
	transitions map[int64][]transition
}

type transition struct {
	def *observanceDef
	// instant is the UTC moment the transition takes effect.
	instant time.Time
	// earliestWall is the lesser of the transition's wall-clock
	// representations in the old and new offsets: the moment from which
	// a wall-clock query can be attributed to the new observance. This
	// is what resolves fall-back ambiguity to the later observance and
	// spring-forward gap times to the one being entered.
	earliestWall time.Time
}

// Resolver answers observance queries for the VTIMEZONE components of a
// calendar. It is caller-owned: construct one per calendar and pass it
// down to evaluation, rather than consulting global zone state.
type Resolver struct {
	engine *occurrence.Engine
	zones  map[string]*zone
}

// NewResolver collects every VTIMEZONE child of the calendar.
func NewResolver(cal *ical.Calendar) (*Resolver, error) {
	r := NewEmptyResolver()
	if cal != nil {
		for _, child := range cal.Children {
			if child.Name == ical.CompTimezone {
				if err := r.AddZone(child); err != nil {
					return nil, err
				}
			}
		}
	}
	return r, nil
}

// NewEmptyResolver returns a resolver with no zones registered.
func NewEmptyResolver() *Resolver {
	return &Resolver{
		engine: occurrence.NewWithConfig(occurrence.UncachedConfig),
		zones:  make(map[string]*zone),
	}
}

// Close releases the resolver's expansion engine.
func (r *Resolver) Close() {
	r.engine.Close()
}

// AddZone registers one VTIMEZONE component.
func (r *Resolver) AddZone(comp *ical.Component) error {
	tzid := propText(comp, "TZID")
	if tzid == "" {
		return recur.ConfigError("VTIMEZONE has no TZID")
	}
	z := &zone{id: tzid, transitions: make(map[int64][]transition)}
	for _, child := range comp.Children {
		if child.Name != "STANDARD" && child.Name != "DAYLIGHT" {
			continue
		}
		def, err := newObservanceDef(child)
		if err != nil {
			return fmt.Errorf("zone %s: %w", tzid, err)
		}
		z.observances = append(z.observances, def)
	}
	if len(z.observances) == 0 {
		return recur.ConfigError("VTIMEZONE %s has no observances", tzid)
	}
	r.zones[tzid] = z
	return nil
}

// TZIDs lists the registered zone identifiers.
func (r *Resolver) TZIDs() []string {
	ids := make([]string, 0, len(r.zones))
	for id := range r.zones {
		ids = append(ids, id)
	}
	return ids
}

func newObservanceDef(comp *ical.Component) (*observanceDef, error) {
	from, err := parseOffset(propText(comp, "TZOFFSETFROM"))
	if err != nil {
		return nil, err
	}
	to, err := parseOffset(propText(comp, "TZOFFSETTO"))
	if err != nil {
		return nil, err
	}
	def := &observanceDef{
		comp:       comp,
		name:       propText(comp, "TZNAME"),
		offsetFrom: from,
		offsetTo:   to,
	}
	// Track the latest UNTIL so stale observances can be skipped
	// without expansion. Any unbounded rule keeps the observance live.
	adapter, err := occurrence.NewComponent(comp, nil)
	if err != nil {
		return nil, err
	}
	bounded := true
	var latest time.Time
	for _, p := range adapter.RecurrenceRules() {
		if p.Until.IsZero() && p.Count == 0 {
			bounded = false
			break
		}
		if p.Until.After(latest) {
			latest = p.Until
		}
	}
	def.startWall, _ = adapter.StartWall()
	if len(adapter.RecurrenceRules()) == 0 && len(adapter.RecurrenceDates()) == 0 {
		def.oneShot = true
	} else if bounded {
		def.until = latest
	}
	return def, nil
}

// Observance returns the observance in effect at the UTC instant, or None
// when no observance covers it. An unknown tzid is a lookup failure.
func (r *Resolver) Observance(tzid string, at time.Time) (mo.Option[Observance], error) {
	return r.observance(tzid, at, false)
}

// ObservanceLocal is Observance for a zone-naive wall-clock time. During
// a fall-back overlap the later observance wins; inside a spring-forward
// gap the observance being entered wins.
func (r *Resolver) ObservanceLocal(tzid string, local time.Time) (mo.Option[Observance], error) {
	return r.observance(tzid, local, true)
}

// ResolveLocal maps a zone-naive wall-clock time to a UTC instant. A time
// no observance covers stays untouched, as floating.
func (r *Resolver) ResolveLocal(tzid string, local time.Time) (time.Time, error) {
	obs, err := r.ObservanceLocal(tzid, local)
	if err != nil {
		return time.Time{}, err
	}
	if o, ok := obs.Get(); ok {
		return local.Add(-o.OffsetTo), nil
	}
	return local, nil
}

func (r *Resolver) observance(tzid string, at time.Time, wall bool) (mo.Option[Observance], error) {
	z, ok := r.zones[tzid]
	if !ok {
		return mo.None[Observance](), &recur.Error{
			Type:    recur.ErrUnresolvedZone,
			Message: "unknown time zone " + tzid,
		}
	}
	transitions, err := z.transitionsAround(r.engine, at)
	if err != nil {
		return mo.None[Observance](), err
	}
	var best *transition
	for i := range transitions {
		tr := &transitions[i]
		if wall {
			if at.Before(tr.earliestWall) {
				continue
			}
		} else if at.Before(tr.instant) {
			continue
		}
		// Last transition wins, not first match.
		if best == nil || tr.instant.After(best.instant) {
			best = tr
		}
	}
	if best == nil {
		return mo.None[Observance](), nil
	}
	return mo.Some(Observance{
		Name:       best.def.name,
		OffsetFrom: best.def.offsetFrom,
		OffsetTo:   best.def.offsetTo,
		Start:      best.instant,
	}), nil
}

// transitionsAround expands every observance's transitions within the
// three calendar years around the query's year, caching per year.
// Population is single-writer under the zone lock; cached slices are
// read-only after.
func (z *zone) transitionsAround(engine *occurrence.Engine, at time.Time) ([]transition, error) {
	year := at.Year()
	key := int64(year)

	z.mu.Lock()
	defer z.mu.Unlock()
	if cached, ok := z.transitions[key]; ok {
		return cached, nil
	}

	from := time.Date(year-1, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year+2, time.January, 1, 0, 0, 0, 0, time.UTC)
	var out []transition
	for _, def := range z.observances {
		if def.oneShot {
			// Applies from its single DTSTART transition onward.
			out = append(out, makeTransition(def, def.startWall))
			continue
		}
		if !def.until.IsZero() && def.until.Before(from) {
			continue
		}
		adapter, err := occurrence.NewComponent(def.comp, nil)
		if err != nil {
			return nil, err
		}
		periods, err := engine.Aggregate(adapter, from, to)
		if err != nil {
			return nil, fmt.Errorf("expanding observance %s: %w", def.name, err)
		}
		for _, p := range periods {
			out = append(out, makeTransition(def, p.Start))
		}
	}
	z.transitions[key] = out
	return out, nil
}

// makeTransition derives a transition from an observance start, which is
// a wall time in the offset being left.
func makeTransition(def *observanceDef, wallStart time.Time) transition {
	instant := wallStart.Add(-def.offsetFrom)
	earliest := wallStart
	if inTo := wallStart.Add(def.offsetTo - def.offsetFrom); inTo.Before(earliest) {
		earliest = inTo
	}
	return transition{def: def, instant: instant, earliestWall: earliest}
}

// parseOffset decodes a signed ±HHMM[SS] UTC offset value.
func parseOffset(s string) (time.Duration, error) {
	if len(s) < 5 {
		return 0, recur.ConfigError("invalid UTC offset %q", s)
	}
	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
	case '+':
	default:
		return 0, recur.ConfigError("invalid UTC offset %q", s)
	}
	digits := s[1:]
	if len(digits) != 4 && len(digits) != 6 {
		return 0, recur.ConfigError("invalid UTC offset %q", s)
	}
	var parts [3]int
	for i := 0; i < len(digits)/2; i++ {
		hi, lo := digits[2*i], digits[2*i+1]
		if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
			return 0, recur.ConfigError("invalid UTC offset %q", s)
		}
		parts[i] = int(hi-'0')*10 + int(lo-'0')
	}
	d := time.Duration(parts[0])*time.Hour +
		time.Duration(parts[1])*time.Minute +
		time.Duration(parts[2])*time.Second
	return sign * d, nil
}

func propText(comp *ical.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return prop.Value
	}
	return ""
}
