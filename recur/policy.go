package recur

// Restriction names the finest frequency a policy allows. RestrictSecondly
// disallows SECONDLY rules, RestrictMinutely additionally disallows
// MINUTELY, RestrictHourly additionally disallows HOURLY.
type Restriction int

const (
	RestrictNone Restriction = iota
	RestrictSecondly
	RestrictMinutely
	RestrictHourly
)

// RestrictionMode selects what happens to a disallowed frequency.
type RestrictionMode int

const (
	// Strict rejects a disallowed frequency with an ErrRestricted error.
	Strict RestrictionMode = iota
	// AdjustAutomatically coarsens a disallowed frequency to the finest
	// allowed one, preserving BY-rule semantics.
	AdjustAutomatically
)

// EvaluationPolicy controls whether SECONDLY/MINUTELY/HOURLY rules are
// rejected, auto-adjusted, or allowed.
type EvaluationPolicy struct {
	Restriction Restriction
	Mode        RestrictionMode
}

// DefaultPolicy rejects nothing below minutely and coarsens instead of
// failing.
var DefaultPolicy = EvaluationPolicy{
	Restriction: RestrictSecondly,
	Mode:        AdjustAutomatically,
}

// StrictPolicy fails evaluation outright for sub-minutely rules.
var StrictPolicy = EvaluationPolicy{
	Restriction: RestrictSecondly,
	Mode:        Strict,
}

// minAllowed returns the finest frequency the restriction still permits.
func (r Restriction) minAllowed() Frequency {
	switch r {
	case RestrictSecondly:
		return Minutely
	case RestrictMinutely:
		return Hourly
	case RestrictHourly:
		return Daily
	}
	return Secondly
}

// Apply enforces the policy on a pattern before evaluation. In Strict mode
// a disallowed frequency is an ErrRestricted error; in AdjustAutomatically
// mode the pattern comes back coarsened to the finest allowed frequency.
func (pol EvaluationPolicy) Apply(p Pattern) (Pattern, error) {
	min := pol.Restriction.minAllowed()
	if p.Freq == FreqNone || p.Freq >= min {
		return p, nil
	}
	if pol.Mode == Strict {
		return p, &Error{
			Type:    ErrRestricted,
			Message: "frequency " + p.Freq.String() + " disallowed by policy",
		}
	}
	p.Freq = min
	return p, nil
}
