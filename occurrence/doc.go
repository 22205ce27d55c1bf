/*
Package occurrence turns recurring iCalendar components into concrete
occurrence lists.

The Engine drives the recur package's pattern evaluator over a component's
RRULE and EXRULE properties, merges in RDATE literals, subtracts EXDATE
entries, and materializes each surviving start into a Period carrying the
component's fixed span:

	engine := occurrence.New()
	defer engine.Close()
	occs, err := engine.GetOccurrences(event, from, to)

Components holding TZID-qualified date-times need a zone resolver,
typically the timezone package's, passed through Config:

	resolver, _ := timezone.NewResolver(cal)
	engine := occurrence.NewWithConfig(occurrence.Config{
		Policy: recur.DefaultPolicy,
		Zones:  resolver,
	})

Results are cached per component and window; call ClearEvaluation after
mutating any recurrence-affecting property.
*/
package occurrence
