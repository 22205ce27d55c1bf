package occurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/seracho/librecur/period"
	"github.com/seracho/librecur/recur"
)

// Component adapts an *ical.Component into the Recurrable capability. All
// recurrence-affecting properties are decoded once at construction;
// decoding failures are configuration errors reported immediately.
type Component struct {
	ical  *ical.Component
	zones ZoneResolver

	startWall time.Time
	tzid      string
	dateOnly  bool

	span    time.Duration
	hasSpan bool

	rrules  []recur.Pattern
	exrules []recur.Pattern
	rdates  period.List
	exdates period.List
	exdays  map[string]struct{}
}

// NewComponent decodes the recurrence-affecting properties of comp. The
// zone resolver is caller-owned and only consulted for TZID-qualified
// values; passing nil restricts the component to UTC and floating times.
func NewComponent(comp *ical.Component, zones ZoneResolver) (*Component, error) {
	c := &Component{ical: comp, zones: zones, exdays: make(map[string]struct{})}
	if err := c.decodeStart(); err != nil {
		return nil, err
	}
	if err := c.decodeEnd(); err != nil {
		return nil, err
	}
	if err := c.decodeRules(); err != nil {
		return nil, err
	}
	if err := c.decodeDates(); err != nil {
		return nil, err
	}
	return c, nil
}

// Ical returns the underlying component.
func (c *Component) Ical() *ical.Component {
	return c.ical
}

func (c *Component) StartWall() (time.Time, string) {
	return c.startWall, c.tzid
}

func (c *Component) FixedSpan() (time.Duration, bool) {
	return c.span, c.hasSpan
}

func (c *Component) RecurrenceRules() []recur.Pattern { return c.rrules }
func (c *Component) ExceptionRules() []recur.Pattern  { return c.exrules }
func (c *Component) RecurrenceDates() period.List     { return c.rdates }
func (c *Component) ExceptionDates() period.List      { return c.exdates }

func (c *Component) ExceptionDays() map[string]struct{} { return c.exdays }

// Alarms returns the component's VALARM children.
func (c *Component) Alarms() []*ical.Component {
	var alarms []*ical.Component
	for _, child := range c.ical.Children {
		if child.Name == ical.CompAlarm {
			alarms = append(alarms, child)
		}
	}
	return alarms
}

func (c *Component) decodeStart() error {
	prop := c.ical.Props.Get(ical.PropDateTimeStart)
	if prop == nil && c.ical.Name == ical.CompToDo {
		// A VTODO without DTSTART anchors on DUE.
		prop = c.ical.Props.Get(ical.PropDue)
	}
	if prop == nil {
		return recur.ConfigError("component %s has no DTSTART", c.ical.Name)
	}
	wall, tzid, dateOnly, err := decodeDateTimeProp(prop)
	if err != nil {
		return err
	}
	c.startWall, c.tzid, c.dateOnly = wall, tzid, dateOnly
	return nil
}

func (c *Component) decodeEnd() error {
	endName := ical.PropDateTimeEnd
	if c.ical.Name == ical.CompToDo {
		endName = ical.PropDue
	}
	if prop := c.ical.Props.Get(endName); prop != nil {
		wall, _, endDateOnly, err := decodeDateTimeProp(prop)
		if err != nil {
			return err
		}
		// An all-day event whose DTEND names the same date spans the
		// whole day.
		if c.dateOnly && endDateOnly && wall.Equal(c.startWall) {
			wall = wall.AddDate(0, 0, 1)
		}
		if span := wall.Sub(c.startWall); span > 0 {
			c.span, c.hasSpan = span, true
		}
		return nil
	}
	if prop := c.ical.Props.Get(ical.PropDuration); prop != nil {
		d, err := prop.Duration()
		if err != nil {
			return recur.ConfigError("invalid DURATION: %v", err)
		}
		c.span, c.hasSpan = d, true
		return nil
	}
	// Date-only events without an end span one day; timed ones are
	// instants.
	if c.dateOnly && c.ical.Name == ical.CompEvent {
		c.span, c.hasSpan = 24*time.Hour, true
	}
	return nil
}

func (c *Component) decodeRules() error {
	var err error
	if c.rrules, err = decodePatterns(c.ical.Props.Values(ical.PropRecurrenceRule)); err != nil {
		return err
	}
	// EXRULE is gone from RFC 5545 but still found in RFC 2445 data.
	if c.exrules, err = decodePatterns(c.ical.Props.Values("EXRULE")); err != nil {
		return err
	}
	return nil
}

func decodePatterns(props []ical.Prop) ([]recur.Pattern, error) {
	var patterns []recur.Pattern
	for _, prop := range props {
		opt, err := rrule.StrToROption(prop.Value)
		if err != nil {
			return nil, recur.ConfigError("invalid %s %q: %v", prop.Name, prop.Value, err)
		}
		p := recur.FromROption(opt)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// decodeDates decodes EXDATE before RDATE: whole-day exclusions apply to
// literal dates in their wall-clock frame, before zone resolution.
func (c *Component) decodeDates() error {
	for _, prop := range c.ical.Props.Values(ical.PropExceptionDates) {
		list, days, err := c.decodeDateList(prop)
		if err != nil {
			return err
		}
		c.exdates = append(c.exdates, list...)
		for day := range days {
			c.exdays[day] = struct{}{}
		}
	}
	for _, prop := range c.ical.Props.Values(ical.PropRecurrenceDates) {
		list, walls, err := c.decodeRecurrenceDates(prop)
		if err != nil {
			return err
		}
		for i, p := range list {
			if _, ok := c.exdays[walls[i].Format("20060102")]; ok {
				continue
			}
			c.rdates = append(c.rdates, p)
		}
	}
	c.rdates.Sort()
	c.exdates.Sort()
	return nil
}

// decodeDateList parses one EXDATE property. Date-only entries come back
// as wall-clock days; everything else as zone-resolved periods.
func (c *Component) decodeDateList(prop ical.Prop) (period.List, map[string]struct{}, error) {
	dateOnly := strings.EqualFold(paramValue(prop.Params, "VALUE"), "DATE")
	list, err := period.ParseList(prop.Value, nil, dateOnly)
	if err != nil {
		return nil, nil, recur.ConfigError("invalid %s: %v", prop.Name, err)
	}
	if dateOnly {
		days := make(map[string]struct{}, len(list))
		for _, p := range list {
			days[p.Start.Format("20060102")] = struct{}{}
		}
		return list, days, nil
	}
	if err := c.resolveList(list, paramValue(prop.Params, "TZID")); err != nil {
		return nil, nil, err
	}
	return list, nil, nil
}

// decodeRecurrenceDates parses one RDATE property, returning the resolved
// periods alongside each entry's pre-resolution wall-clock start.
func (c *Component) decodeRecurrenceDates(prop ical.Prop) (period.List, []time.Time, error) {
	dateOnly := strings.EqualFold(paramValue(prop.Params, "VALUE"), "DATE")
	list, err := period.ParseList(prop.Value, nil, dateOnly)
	if err != nil {
		return nil, nil, recur.ConfigError("invalid %s: %v", prop.Name, err)
	}
	walls := make([]time.Time, len(list))
	for i, p := range list {
		walls[i] = p.Start
	}
	if !dateOnly {
		if err := c.resolveList(list, paramValue(prop.Params, "TZID")); err != nil {
			return nil, nil, err
		}
	}
	return list, walls, nil
}

// resolveList maps the periods of a TZID-qualified list in place; an empty
// tzid leaves them untouched.
func (c *Component) resolveList(list period.List, tzid string) error {
	if tzid == "" {
		return nil
	}
	for i := range list {
		start, err := c.resolveWall(list[i].Start, tzid)
		if err != nil {
			return err
		}
		if end, ok := list[i].End(); ok {
			rend, err := c.resolveWall(end, tzid)
			if err != nil {
				return err
			}
			list[i] = period.NewWithEnd(start, rend)
		} else {
			list[i] = period.New(start)
		}
	}
	return nil
}

// resolveWall maps a wall-clock time in the named zone to an instant.
func (c *Component) resolveWall(wall time.Time, tzid string) (time.Time, error) {
	if tzid == "" {
		return wall, nil
	}
	if c.zones == nil {
		return time.Time{}, &recur.Error{
			Type:    recur.ErrUnresolvedZone,
			Message: fmt.Sprintf("no zone resolver for TZID=%s", tzid),
		}
	}
	return c.zones.ResolveLocal(tzid, wall)
}

// decodeDateTimeProp splits a DTSTART/DTEND/DUE property into its
// wall-clock value, zone identifier, and date-only flag. A trailing Z
// means UTC; a TZID parameter means a zone-local wall time; neither means
// floating.
func decodeDateTimeProp(prop *ical.Prop) (wall time.Time, tzid string, dateOnly bool, err error) {
	dateOnly = strings.EqualFold(paramValue(prop.Params, "VALUE"), "DATE") ||
		!strings.Contains(prop.Value, "T")
	if dateOnly {
		wall, err = period.ParseDate(prop.Value, nil)
		if err != nil {
			err = recur.ConfigError("invalid %s: %v", prop.Name, err)
		}
		return wall, "", true, err
	}
	if !strings.HasSuffix(prop.Value, "Z") {
		tzid = paramValue(prop.Params, "TZID")
	}
	wall, err = period.ParseDate(prop.Value, nil)
	if err != nil {
		err = recur.ConfigError("invalid %s: %v", prop.Name, err)
	}
	return wall, tzid, false, err
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
