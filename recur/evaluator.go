package recur

import (
	"sort"
	"time"
)

// Next is a lazy candidate source: each call yields the next date-time
// matching the pattern, ascending and duplicate-free, until exhausted.
type Next func() (time.Time, bool)

// Iteration stops once a period anchor passes this year. Unbounded
// patterns are expected to be driven through a window (Between); the
// ceiling only guards pathological drains.
const maxYear = 9999

// A pattern whose BY rules reject this many periods in a row is treated as
// producing nothing at all (e.g. BYMONTHDAY=30;BYMONTH=2).
const maxEmptyPeriods = 1 << 17

// Iterate returns a lazy iterator over all candidates of the pattern
// seeded at seed. The seed defines the implicit BY rules of a bare
// pattern, so it always recurs when it matches its own rule.
func Iterate(p Pattern, seed time.Time) (Next, error) {
	return iterate(p, seed, time.Time{})
}

// Between evaluates the pattern over the half-open window [from, to).
// Candidates before the window still consume COUNT.
func Between(p Pattern, seed, from, to time.Time) ([]time.Time, error) {
	next, err := iterate(p, seed, from)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for {
		t, ok := next()
		if !ok || !t.Before(to) {
			break
		}
		if t.Before(from) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func iterate(p Pattern, seed time.Time, from time.Time) (Next, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	seed = seed.Truncate(time.Second)
	np := p.normalize(seed)
	it := &iterator{p: np, seed: seed, anchor: periodAnchor(np, seed)}
	if !from.IsZero() && np.Count == 0 {
		it.fastForward(from)
	}
	return it.next, nil
}

type iterator struct {
	p      Pattern
	seed   time.Time
	anchor time.Time

	buf      []time.Time
	emitted  int
	last     time.Time
	haveLast bool
	empty    int
	done     bool
}

func (it *iterator) next() (time.Time, bool) {
	for !it.done {
		for len(it.buf) > 0 {
			t := it.buf[0]
			it.buf = it.buf[1:]
			if t.Before(it.seed) {
				continue
			}
			if it.haveLast && !t.After(it.last) {
				continue
			}
			if !it.p.Until.IsZero() && t.After(it.p.Until) {
				it.done = true
				return time.Time{}, false
			}
			it.last, it.haveLast = t, true
			it.emitted++
			if it.p.Count > 0 && it.emitted >= it.p.Count {
				it.done = true
			}
			return t, true
		}
		if it.anchor.Year() > maxYear || it.empty > maxEmptyPeriods {
			it.done = true
			break
		}
		// Sub-daily periods sharing a rejected day are skipped a day at
		// a time instead of one interval at a time.
		if it.p.Freq < Daily && !dayMatches(it.p, midnight(it.anchor)) {
			it.skipDay()
			it.empty++
			continue
		}
		it.buf = periodCandidates(it.p, it.anchor, it.seed)
		it.anchor = advance(it.p, it.anchor, 1)
		if len(it.buf) == 0 {
			it.empty++
		} else {
			it.empty = 0
		}
	}
	return time.Time{}, false
}

// skipDay moves the anchor to the first period at or after the next
// midnight, preserving the interval phase.
func (it *iterator) skipDay() {
	unit := unitDuration(it.p.Freq)
	step := time.Duration(it.p.Interval) * unit
	nextDay := midnight(it.anchor).AddDate(0, 0, 1)
	gap := nextDay.Sub(it.anchor)
	n := (gap + step - 1) / step
	it.anchor = it.anchor.Add(time.Duration(n) * step)
}

// fastForward skips whole periods that end before from. Only valid for
// uncounted patterns: COUNT consumes candidates from the seed onward.
func (it *iterator) fastForward(from time.Time) {
	if !from.After(it.anchor) {
		return
	}
	p := it.p
	var n int
	switch p.Freq {
	case Yearly:
		n = (from.Year() - it.anchor.Year()) / p.Interval
	case Monthly:
		months := (from.Year()-it.anchor.Year())*12 + int(from.Month()) - int(it.anchor.Month())
		n = months / p.Interval
	case Weekly:
		n = daysBetween(it.anchor, from) / 7 / p.Interval
	case Daily:
		n = daysBetween(it.anchor, from) / p.Interval
	default:
		n = int(from.Sub(it.anchor) / (time.Duration(p.Interval) * unitDuration(p.Freq)))
	}
	// Stay one period behind the window start so boundary candidates
	// are never lost.
	n--
	if n > 0 {
		it.anchor = advance(p, it.anchor, n)
	}
}

func unitDuration(f Frequency) time.Duration {
	switch f {
	case Hourly:
		return time.Hour
	case Minutely:
		return time.Minute
	default:
		return time.Second
	}
}

// periodAnchor aligns the seed to the start of its period: calendar year,
// calendar month, WKST-aligned week, or the seed's own day/hour/minute/
// second for the finer frequencies.
func periodAnchor(p Pattern, seed time.Time) time.Time {
	y, mo, d := seed.Date()
	loc := seed.Location()
	switch p.Freq {
	case Yearly:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	case Monthly:
		return time.Date(y, mo, 1, 0, 0, 0, 0, loc)
	case Weekly:
		diff := (int(seed.Weekday()) - int(weekStart(p)) + 7) % 7
		return time.Date(y, mo, d-diff, 0, 0, 0, 0, loc)
	case Daily:
		return time.Date(y, mo, d, 0, 0, 0, 0, loc)
	case Hourly:
		return time.Date(y, mo, d, seed.Hour(), 0, 0, 0, loc)
	case Minutely:
		return time.Date(y, mo, d, seed.Hour(), seed.Minute(), 0, 0, loc)
	default: // Secondly
		return seed
	}
}

func advance(p Pattern, anchor time.Time, periods int) time.Time {
	n := p.Interval * periods
	switch p.Freq {
	case Yearly:
		return anchor.AddDate(n, 0, 0)
	case Monthly:
		return anchor.AddDate(0, n, 0)
	case Weekly:
		return anchor.AddDate(0, 0, 7*n)
	case Daily:
		return anchor.AddDate(0, 0, n)
	default:
		return anchor.Add(time.Duration(n) * unitDuration(p.Freq))
	}
}

func weekStart(p Pattern) time.Weekday {
	return time.Weekday((p.WeekStart.Day() + 1) % 7)
}

type clockTime struct {
	h, m, s int
}

// periodCandidates builds the full, sorted candidate set of one period:
// the day-level BY filters applied in RFC order, the time-of-day sets, and
// finally BYSETPOS selection over the whole period.
func periodCandidates(p Pattern, anchor, seed time.Time) []time.Time {
	days := candidateDays(p, anchor)
	if len(days) == 0 {
		return nil
	}
	times := timesOfDay(p, anchor)
	if len(times) == 0 {
		return nil
	}
	loc := seed.Location()
	out := make([]time.Time, 0, len(days)*len(times))
	for _, d := range days {
		y, mo, dd := d.Date()
		for _, tod := range times {
			out = append(out, time.Date(y, mo, dd, tod.h, tod.m, tod.s, 0, loc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	out = dedupeTimes(out)
	if len(p.BySetPos) > 0 {
		out = applySetPos(out, p.BySetPos)
	}
	return out
}

// candidateDays yields the days of the period that pass the day-level BY
// filters. An off-unit period (no surviving day) yields nothing and is not
// an error.
func candidateDays(p Pattern, anchor time.Time) []time.Time {
	loc := anchor.Location()
	switch p.Freq {
	case Yearly:
		year := anchor.Year()
		var days []time.Time
		d := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
		for d.Year() == year {
			if dayMatches(p, d) {
				days = append(days, d)
			}
			d = d.AddDate(0, 0, 1)
		}
		return days
	case Monthly:
		if len(p.ByMonth) > 0 && !containsInt(p.ByMonth, int(anchor.Month())) {
			return nil
		}
		var days []time.Time
		month := anchor.Month()
		d := time.Date(anchor.Year(), month, 1, 0, 0, 0, 0, loc)
		for d.Month() == month {
			if dayMatches(p, d) {
				days = append(days, d)
			}
			d = d.AddDate(0, 0, 1)
		}
		return days
	case Weekly:
		var days []time.Time
		for i := 0; i < 7; i++ {
			d := anchor.AddDate(0, 0, i)
			if dayMatches(p, d) {
				days = append(days, d)
			}
		}
		return days
	default:
		d := midnight(anchor)
		if dayMatches(p, d) {
			return []time.Time{d}
		}
		return nil
	}
}

// dayMatches applies the day-level BY filters in the RFC's fixed order:
// BYMONTH, BYWEEKNO, BYYEARDAY, BYMONTHDAY, BYDAY.
func dayMatches(p Pattern, d time.Time) bool {
	if len(p.ByMonth) > 0 && !containsInt(p.ByMonth, int(d.Month())) {
		return false
	}
	if len(p.ByWeekNo) > 0 && !weekNoMatches(p, d) {
		return false
	}
	if len(p.ByYearDay) > 0 && !yearDayMatches(p.ByYearDay, d) {
		return false
	}
	if len(p.ByMonthDay) > 0 && !monthDayMatches(p.ByMonthDay, d) {
		return false
	}
	if len(p.ByDay) > 0 && !weekdayMatches(p, d) {
		return false
	}
	return true
}

func monthDayMatches(set []int, d time.Time) bool {
	day := d.Day()
	last := daysIn(d.Month(), d.Year())
	for _, n := range set {
		if n > 0 && day == n {
			return true
		}
		if n < 0 && day == last+n+1 {
			return true
		}
	}
	return false
}

func yearDayMatches(set []int, d time.Time) bool {
	yd := d.YearDay()
	yearLen := 365
	if isLeap(d.Year()) {
		yearLen = 366
	}
	for _, n := range set {
		if n > 0 && yd == n {
			return true
		}
		if n < 0 && yd == yearLen+n+1 {
			return true
		}
	}
	return false
}

func weekNoMatches(p Pattern, d time.Time) bool {
	wkst := weekStart(p)
	week, weekYear := weekOf(d, wkst)
	for _, n := range p.ByWeekNo {
		target := n
		if n < 0 {
			_, nw := weekInfo(weekYear, wkst, d.Location())
			target = nw + n + 1
		}
		if week == target {
			return true
		}
	}
	return false
}

// weekdayMatches tests BYDAY entries. Ordinals apply only to MONTHLY rules
// and YEARLY rules without BYWEEKNO; everywhere else an entry matches by
// weekday alone. The ordinal scope is the month when the rule is monthly
// or carries BYMONTH, the year otherwise.
func weekdayMatches(p Pattern, d time.Time) bool {
	monthScoped := p.Freq == Monthly || (p.Freq == Yearly && len(p.ByMonth) > 0)
	ordinalsApply := (p.Freq == Monthly || p.Freq == Yearly) && len(p.ByWeekNo) == 0
	for _, wd := range p.ByDay {
		if d.Weekday() != wd.Day {
			continue
		}
		if wd.Ordinal == 0 || !ordinalsApply {
			return true
		}
		var scopeStart time.Time
		var scopeLen int
		if monthScoped {
			scopeStart = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
			scopeLen = daysIn(d.Month(), d.Year())
		} else {
			scopeStart = time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, d.Location())
			scopeLen = 365
			if isLeap(d.Year()) {
				scopeLen = 366
			}
		}
		idx := daysBetween(scopeStart, d)
		if wd.Ordinal > 0 && idx/7+1 == wd.Ordinal {
			return true
		}
		if wd.Ordinal < 0 && (scopeLen-1-idx)/7+1 == -wd.Ordinal {
			return true
		}
	}
	return false
}

// timesOfDay returns the time-of-day set for one period. At DAILY and
// coarser the BY time sets expand into a cartesian product; at finer
// frequencies the anchor fixes the stepped fields and the BY sets only
// limit.
func timesOfDay(p Pattern, anchor time.Time) []clockTime {
	switch p.Freq {
	case Hourly:
		h := anchor.Hour()
		if len(p.ByHour) > 0 && !containsInt(p.ByHour, h) {
			return nil
		}
		return cartesianTimes([]int{h}, p.ByMinute, p.BySecond)
	case Minutely:
		h, m := anchor.Hour(), anchor.Minute()
		if len(p.ByHour) > 0 && !containsInt(p.ByHour, h) {
			return nil
		}
		if len(p.ByMinute) > 0 && !containsInt(p.ByMinute, m) {
			return nil
		}
		return cartesianTimes([]int{h}, []int{m}, p.BySecond)
	case Secondly:
		h, m, s := anchor.Hour(), anchor.Minute(), anchor.Second()
		if len(p.ByHour) > 0 && !containsInt(p.ByHour, h) {
			return nil
		}
		if len(p.ByMinute) > 0 && !containsInt(p.ByMinute, m) {
			return nil
		}
		if len(p.BySecond) > 0 && !containsInt(p.BySecond, s) {
			return nil
		}
		return []clockTime{{h, m, s}}
	default:
		return cartesianTimes(p.ByHour, p.ByMinute, p.BySecond)
	}
}

func cartesianTimes(hours, minutes, seconds []int) []clockTime {
	hours = sortedInts(hours)
	minutes = sortedInts(minutes)
	seconds = sortedInts(seconds)
	out := make([]clockTime, 0, len(hours)*len(minutes)*len(seconds))
	for _, h := range hours {
		for _, m := range minutes {
			for _, s := range seconds {
				out = append(out, clockTime{h, m, s})
			}
		}
	}
	return out
}

// applySetPos keeps only the 1-based positions of the period's sorted
// candidate set; negative positions count from the end.
func applySetPos(cands []time.Time, setpos []int) []time.Time {
	var out []time.Time
	for _, pos := range setpos {
		idx := pos - 1
		if pos < 0 {
			idx = len(cands) + pos
		}
		if idx < 0 || idx >= len(cands) {
			continue
		}
		out = append(out, cands[idx])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return dedupeTimes(out)
}

// weekInfo returns the 0-based day-of-year offset at which week 1 of year
// begins (negative when week 1 starts in the previous December) and the
// number of numbered weeks in the year, generalizing the ISO rule to an
// arbitrary week start.
func weekInfo(year int, wkst time.Weekday, loc *time.Location) (start, numWeeks int) {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	yearLen := 365
	if isLeap(year) {
		yearLen = 366
	}
	firstwkst := (int(wkst) - int(jan1.Weekday()) + 7) % 7
	if firstwkst >= 4 {
		start = firstwkst - 7
	} else {
		start = firstwkst
	}
	wyearlen := yearLen - start
	numWeeks = wyearlen/7 + (wyearlen%7)/4
	return start, numWeeks
}

// weekOf places a day in its numbered week; weekYear differs from the
// calendar year for days belonging to the previous year's final week or
// the next year's week 1.
func weekOf(d time.Time, wkst time.Weekday) (week, weekYear int) {
	year := d.Year()
	start, nw := weekInfo(year, wkst, d.Location())
	yd := d.YearDay() - 1
	if yd < start {
		year--
		pstart, pnw := weekInfo(year, wkst, d.Location())
		pyearLen := 365
		if isLeap(year) {
			pyearLen = 366
		}
		yd += pyearLen
		week = (yd-pstart)/7 + 1
		if week > pnw {
			return 1, year + 1
		}
		return week, year
	}
	week = (yd-start)/7 + 1
	if week > nw {
		return 1, year + 1
	}
	return week, year
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func midnight(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(midnight(b.In(a.Location())).Sub(midnight(a)) / (24 * time.Hour))
}

func containsInt(set []int, v int) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

func sortedInts(set []int) []int {
	out := append([]int(nil), set...)
	sort.Ints(out)
	return out
}

func dedupeTimes(ts []time.Time) []time.Time {
	if len(ts) < 2 {
		return ts
	}
	out := ts[:1]
	for _, t := range ts[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}
