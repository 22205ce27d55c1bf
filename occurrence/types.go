package occurrence

import (
	"log/slog"
	"time"

	"github.com/emersion/go-ical"

	"github.com/seracho/librecur/period"
	"github.com/seracho/librecur/recur"
)

// Occurrence is one concrete realization of a recurring component.
type Occurrence struct {
	Component *ical.Component
	Period    period.Period
}

// Compare orders occurrences by period start, then end.
func (o Occurrence) Compare(other Occurrence) int {
	return o.Period.Compare(other.Period)
}

// ZoneResolver maps a zone-naive local time in a named zone to a UTC
// instant. An unknown zone identifier is a lookup failure, never UTC.
type ZoneResolver interface {
	ResolveLocal(tzid string, local time.Time) (time.Time, error)
}

// Recurrable is the capability the aggregator depends on: a seed start, an
// optional fixed end, and the rule and date lists that generate or exclude
// occurrences. The ical.Component adapter implements it; callers with their
// own component model can too.
type Recurrable interface {
	// StartWall returns the seed start in its wall-clock frame together
	// with the zone identifier it is local to ("" for UTC or floating).
	StartWall() (time.Time, string)
	// FixedSpan returns the span reapplied to every occurrence, and
	// whether the component defines one.
	FixedSpan() (time.Duration, bool)
	RecurrenceRules() []recur.Pattern
	ExceptionRules() []recur.Pattern
	// RecurrenceDates returns literal inclusion periods, zone-resolved
	// and already reduced by ExceptionDays (the whole-day check needs
	// the wall-clock frame, which only the implementation still has).
	RecurrenceDates() period.List
	// ExceptionDates returns literal exclusion instants, zone-resolved.
	ExceptionDates() period.List
	// ExceptionDays returns wall-clock days (formatted 20060102) whose
	// every occurrence is excluded (EXDATE;VALUE=DATE).
	ExceptionDays() map[string]struct{}
}

// Config holds configuration options for the occurrence engine
type Config struct {
	// Policy applied to every pattern before evaluation.
	Policy recur.EvaluationPolicy

	// Zones resolves TZID-qualified date-times. Nil means only UTC and
	// floating values are accepted; a TZID then fails resolution.
	Zones ZoneResolver

	// ExpansionPad widens the wall-clock expansion window on both sides
	// so zone offsets can never push a boundary candidate out of range.
	ExpansionPad time.Duration

	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig

	// Logger receives debug-level evaluation traces. Nil disables.
	Logger *slog.Logger
}

// DefaultConfig provides sensible defaults for production use
var DefaultConfig = Config{
	Policy:       recur.DefaultPolicy,
	ExpansionPad: 24 * time.Hour,
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,
}

// UncachedConfig turns off result caching entirely, for callers that
// mutate components between every evaluation.
var UncachedConfig = Config{
	Policy:       recur.DefaultPolicy,
	ExpansionPad: 24 * time.Hour,
	CacheEnabled: false,
}
