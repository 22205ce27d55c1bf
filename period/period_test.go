package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_EndAndDuration(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	p := New(start)
	_, ok := p.End()
	assert.False(t, ok)
	assert.Equal(t, start, p.EffectiveEnd())
	assert.Equal(t, time.Duration(0), p.Duration())

	p.SetDuration(90 * time.Minute)
	end, ok := p.End()
	require.True(t, ok)
	assert.Equal(t, start.Add(90*time.Minute), end)

	p.SetEnd(start.Add(2 * time.Hour))
	assert.Equal(t, 2*time.Hour, p.Duration())
}

func TestPeriod_EqualAndCompare(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	byEnd := NewWithEnd(start, start.Add(time.Hour))
	byDuration := NewWithDuration(start, time.Hour)
	assert.True(t, byEnd.Equal(byDuration))
	assert.Equal(t, 0, byEnd.Compare(byDuration))

	longer := NewWithDuration(start, 2*time.Hour)
	assert.False(t, byEnd.Equal(longer))
	assert.Equal(t, -1, byEnd.Compare(longer))

	later := New(start.Add(time.Minute))
	assert.Equal(t, 1, later.Compare(byEnd))
}

func TestPeriod_Overlaps(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		p    Period
		want bool
	}{
		{"instant inside", New(from.Add(time.Hour)), true},
		{"instant at window start", New(from), true},
		{"instant at window end", New(to), false},
		{"span straddling window start", NewWithEnd(from.Add(-time.Hour), from.Add(time.Hour)), true},
		{"span ending at window start", NewWithEnd(from.Add(-time.Hour), from), false},
		{"span starting at window end", NewWithEnd(to, to.Add(time.Hour)), false},
		{"span containing window", NewWithEnd(from.Add(-time.Hour), to.Add(time.Hour)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Overlaps(from, to))
		})
	}
}

func TestList_SortAndContains(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	l := List{New(base.Add(2 * time.Hour)), New(base), New(base.Add(time.Hour))}
	l.Sort()

	assert.Equal(t, base, l[0].Start)
	assert.Equal(t, base.Add(2*time.Hour), l[2].Start)
	assert.True(t, l.Contains(New(base.Add(time.Hour))))
	assert.False(t, l.Contains(New(base.Add(3*time.Hour))))
}

func TestParseDate(t *testing.T) {
	zone := time.FixedZone("TEST", -5*3600)

	tests := []struct {
		name  string
		value string
		loc   *time.Location
		want  time.Time
	}{
		{
			name:  "date only normalizes to midnight UTC",
			value: "20240501",
			loc:   zone,
			want:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "utc date-time",
			value: "20240501T090000Z",
			loc:   zone,
			want:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:  "floating date-time in location",
			value: "20240501T090000",
			loc:   zone,
			want:  time.Date(2024, 5, 1, 9, 0, 0, 0, zone),
		},
		{
			name:  "nil location means UTC",
			value: "20240501T090000",
			want:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.value, tt.loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}

	_, err := ParseDate("not-a-date", nil)
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"PT5H30M", 5*time.Hour + 30*time.Minute},
		{"-PT30M", -30 * time.Minute},
		{"P1DT12H", 36 * time.Hour},
		{"PT15M", 15 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := ParseDuration(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDuration("5 hours")
	assert.Error(t, err)
}

func TestParse_PeriodForms(t *testing.T) {
	start := time.Date(1997, 1, 1, 18, 0, 0, 0, time.UTC)

	p, err := Parse("19970101T180000Z/19970102T070000Z", nil)
	require.NoError(t, err)
	assert.Equal(t, start, p.Start)
	end, ok := p.End()
	require.True(t, ok)
	assert.Equal(t, time.Date(1997, 1, 2, 7, 0, 0, 0, time.UTC), end)

	p, err = Parse("19970101T180000Z/PT5H30M", nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Hour+30*time.Minute, p.Duration())

	p, err = Parse("19970101T180000Z", nil)
	require.NoError(t, err)
	_, ok = p.End()
	assert.False(t, ok)

	_, err = Parse("19970101T180000Z/bogus", nil)
	assert.Error(t, err)
}

func TestParseList(t *testing.T) {
	l, err := ParseList("19970101T180000Z,19970102T180000Z", nil, false)
	require.NoError(t, err)
	require.Len(t, l, 2)
	assert.Equal(t, time.Date(1997, 1, 2, 18, 0, 0, 0, time.UTC), l[1].Start)

	l, err = ParseList("20240501,20240503", nil, true)
	require.NoError(t, err)
	require.Len(t, l, 2)
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), l[1].Start)

	_, err = ParseList("20240501T090000", nil, true)
	assert.Error(t, err)
}
