package occurrence

import (
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seracho/librecur/recur"
)

func TestNewComponent_StartForms(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		params       []string
		wantWall     time.Time
		wantTZID     string
		wantDateOnly bool
	}{
		{
			name:     "utc date-time",
			value:    "20240101T090000Z",
			wantWall: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "floating date-time",
			value:    "20240101T090000",
			wantWall: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "zoned date-time",
			value:    "20240101T090000",
			params:   []string{"TZID", "Europe/Berlin"},
			wantWall: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			wantTZID: "Europe/Berlin",
		},
		{
			name:         "date only",
			value:        "20240101",
			params:       []string{"VALUE", "DATE"},
			wantWall:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantDateOnly: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := newTestComponent(ical.CompEvent)
			setProp(event, ical.PropDateTimeStart, tt.value, tt.params...)

			c, err := NewComponent(event, nil)
			require.NoError(t, err)
			wall, tzid := c.StartWall()
			assert.True(t, tt.wantWall.Equal(wall))
			assert.Equal(t, tt.wantTZID, tzid)
			assert.Equal(t, tt.wantDateOnly, c.dateOnly)
		})
	}
}

func TestNewComponent_SpanForms(t *testing.T) {
	tests := []struct {
		name     string
		build    func(*ical.Component)
		wantSpan time.Duration
		wantHas  bool
	}{
		{
			name: "dtend",
			build: func(e *ical.Component) {
				setProp(e, ical.PropDateTimeStart, "20240101T090000Z")
				setProp(e, ical.PropDateTimeEnd, "20240101T103000Z")
			},
			wantSpan: 90 * time.Minute,
			wantHas:  true,
		},
		{
			name: "duration property",
			build: func(e *ical.Component) {
				setProp(e, ical.PropDateTimeStart, "20240101T090000Z")
				setProp(e, ical.PropDuration, "PT45M")
			},
			wantSpan: 45 * time.Minute,
			wantHas:  true,
		},
		{
			name: "timed instant",
			build: func(e *ical.Component) {
				setProp(e, ical.PropDateTimeStart, "20240101T090000Z")
			},
		},
		{
			name: "date only defaults to one day",
			build: func(e *ical.Component) {
				setProp(e, ical.PropDateTimeStart, "20240101", "VALUE", "DATE")
			},
			wantSpan: 24 * time.Hour,
			wantHas:  true,
		},
		{
			name: "all-day dtend on the same date spans the day",
			build: func(e *ical.Component) {
				setProp(e, ical.PropDateTimeStart, "20240101", "VALUE", "DATE")
				setProp(e, ical.PropDateTimeEnd, "20240101", "VALUE", "DATE")
			},
			wantSpan: 24 * time.Hour,
			wantHas:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := newTestComponent(ical.CompEvent)
			tt.build(event)

			c, err := NewComponent(event, nil)
			require.NoError(t, err)
			span, has := c.FixedSpan()
			assert.Equal(t, tt.wantHas, has)
			if tt.wantHas {
				assert.Equal(t, tt.wantSpan, span)
			}
		})
	}
}

func TestNewComponent_InvalidRuleFails(t *testing.T) {
	event := newTestComponent(ical.CompEvent)
	setProp(event, ical.PropDateTimeStart, "20240101T090000Z")
	setProp(event, ical.PropRecurrenceRule, "FREQ=SOMETIMES")

	_, err := NewComponent(event, nil)
	require.Error(t, err)
	assert.True(t, recur.IsErrorType(err, recur.ErrConfiguration))
}

func TestNewComponent_ExceptionDays(t *testing.T) {
	event := newTestComponent(ical.CompEvent)
	setProp(event, ical.PropDateTimeStart, "20240101T090000Z")
	addProp(event, ical.PropExceptionDates, "20240102,20240105", "VALUE", "DATE")

	c, err := NewComponent(event, nil)
	require.NoError(t, err)
	days := c.ExceptionDays()
	assert.Len(t, days, 2)
	_, ok := days["20240102"]
	assert.True(t, ok)
	_, ok = days["20240105"]
	assert.True(t, ok)
}

func TestComponent_Alarms(t *testing.T) {
	event := newTestComponent(ical.CompEvent)
	setProp(event, ical.PropDateTimeStart, "20240101T090000Z")

	alarm := newTestComponent(ical.CompAlarm)
	setProp(alarm, ical.PropTrigger, "-PT30M")
	event.Children = append(event.Children, alarm, newTestComponent(ical.CompEvent))

	c, err := NewComponent(event, nil)
	require.NoError(t, err)
	require.Len(t, c.Alarms(), 1)
	assert.Equal(t, alarm, c.Alarms()[0])
}
