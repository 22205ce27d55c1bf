package occurrence

import (
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/seracho/librecur/period"
	"github.com/seracho/librecur/recur"
)

// Engine aggregates a recurring component's seed, rule expansions and
// literal date lists into an ascending, duplicate-free occurrence
// sequence. Engines are safe for concurrent use across different
// components; mutating a component while it is being evaluated is the
// caller's to serialize.
type Engine struct {
	config Config
	cache  *Cache

	mu  sync.Mutex
	ids map[*ical.Component]string
}

// New creates an engine with DefaultConfig.
func New() *Engine {
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(config Config) *Engine {
	e := &Engine{
		config: config,
		ids:    make(map[*ical.Component]string),
	}
	if config.CacheEnabled {
		e.cache = NewCache(config.CacheConfig)
	}
	return e
}

// Close releases the cache's cleanup goroutine.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// GetOccurrences returns the component's occurrences in the half-open
// window [from, to). Results are cached per component and window until
// ClearEvaluation or the cache TTL.
func (e *Engine) GetOccurrences(comp *ical.Component, from, to time.Time) ([]Occurrence, error) {
	id := e.componentID(comp)
	if e.cache != nil {
		if occs, ok := e.cache.Get(id, comp, from, to); ok {
			return occs, nil
		}
	}
	c, err := NewComponent(comp, e.config.Zones)
	if err != nil {
		return nil, err
	}
	periods, err := e.Aggregate(c, from, to)
	if err != nil {
		return nil, err
	}
	occs := make([]Occurrence, len(periods))
	for i, p := range periods {
		occs[i] = Occurrence{Component: comp, Period: p}
	}
	if e.config.Logger != nil {
		e.config.Logger.Debug("expanded component",
			"component", comp.Name, "count", len(occs))
	}
	if e.cache != nil {
		e.cache.Set(id, comp, from, to, occs)
	}
	return occs, nil
}

// Adapt decodes a component with the engine's zone resolver.
func (e *Engine) Adapt(comp *ical.Component) (*Component, error) {
	return NewComponent(comp, e.config.Zones)
}

// ClearEvaluation drops every cached result for the component. Call it
// after mutating DTSTART, RRULE, RDATE, EXRULE or EXDATE.
func (e *Engine) ClearEvaluation(comp *ical.Component) {
	if e.cache != nil {
		e.cache.Invalidate(e.componentID(comp))
	}
}

// componentID returns a stable identity for the component: its UID when
// present, otherwise a generated one remembered per pointer.
func (e *Engine) componentID(comp *ical.Component) string {
	if prop := comp.Props.Get(ical.PropUID); prop != nil && prop.Value != "" {
		return prop.Value
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.ids[comp]
	if !ok {
		id = uuid.NewString()
		e.ids[comp] = id
	}
	return id
}

type candidate struct {
	p period.Period
	// wall is the candidate start in the component's wall-clock frame,
	// used for whole-day exclusions. Literal dates arrive pre-filtered
	// and zone-resolved, so they carry no wall.
	wall    time.Time
	literal bool
	// seed marks the component's own start, which is window-clipped by
	// overlap rather than by start containment.
	seed bool
}

// Aggregate runs the full aggregation for any Recurrable: seed plus RRULE
// expansions plus RDATE literals, minus EXRULE expansions and EXDATE
// literals, deduplicated, sorted and clipped to [from, to). All membership
// comparisons happen on zone-resolved instants.
func (e *Engine) Aggregate(c Recurrable, from, to time.Time) (period.List, error) {
	startWall, tzid := c.StartWall()
	resolve := func(wall time.Time) (time.Time, error) {
		if tzid == "" {
			return wall, nil
		}
		zones := e.config.Zones
		if zones == nil {
			return time.Time{}, &recur.Error{
				Type:    recur.ErrUnresolvedZone,
				Message: "no zone resolver for TZID=" + tzid,
			}
		}
		return zones.ResolveLocal(tzid, wall)
	}

	// The expansion window lives in the wall-clock frame; the pad keeps
	// offset shifts from losing boundary candidates.
	fromWall := from.Add(-e.config.ExpansionPad)
	toWall := to.Add(e.config.ExpansionPad)

	var cands []candidate

	seedInstant, err := resolve(startWall)
	if err != nil {
		return nil, err
	}
	cands = append(cands, candidate{p: period.New(seedInstant), wall: startWall, seed: true})

	for _, pattern := range c.RecurrenceRules() {
		pattern, err := e.config.Policy.Apply(pattern)
		if err != nil {
			return nil, err
		}
		walls, err := recur.Between(pattern, startWall, fromWall, toWall)
		if err != nil {
			return nil, err
		}
		for _, w := range walls {
			instant, err := resolve(w)
			if err != nil {
				return nil, err
			}
			cands = append(cands, candidate{p: period.New(instant), wall: w})
		}
	}
	for _, p := range c.RecurrenceDates() {
		cands = append(cands, candidate{p: p, literal: true})
	}

	excluded, err := e.exclusionSet(c, startWall, tzid, fromWall, toWall, resolve)
	if err != nil {
		return nil, err
	}
	exdays := c.ExceptionDays()

	span, hasSpan := c.FixedSpan()
	var result period.List
	for _, cand := range cands {
		if _, ok := excluded[cand.p.Start.Unix()]; ok {
			continue
		}
		if !cand.literal {
			if _, ok := exdays[cand.wall.Format("20060102")]; ok {
				continue
			}
		}
		p := cand.p
		if _, ok := p.End(); !ok && hasSpan {
			p.SetDuration(span)
		}
		if cand.seed {
			if !p.Overlaps(from, to) {
				continue
			}
		} else if p.Start.Before(from) || !p.Start.Before(to) {
			continue
		}
		if !result.Contains(p) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Compare(result[j]) < 0 })
	return result, nil
}

func (e *Engine) exclusionSet(c Recurrable, startWall time.Time, tzid string,
	fromWall, toWall time.Time, resolve func(time.Time) (time.Time, error)) (map[int64]struct{}, error) {

	excluded := make(map[int64]struct{})
	for _, pattern := range c.ExceptionRules() {
		pattern, err := e.config.Policy.Apply(pattern)
		if err != nil {
			return nil, err
		}
		walls, err := recur.Between(pattern, startWall, fromWall, toWall)
		if err != nil {
			return nil, err
		}
		for _, w := range walls {
			instant, err := resolve(w)
			if err != nil {
				return nil, err
			}
			excluded[instant.Unix()] = struct{}{}
		}
	}
	for _, p := range c.ExceptionDates() {
		excluded[p.Start.Unix()] = struct{}{}
	}
	return excluded, nil
}
