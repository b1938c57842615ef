package market

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Calendar answers from exchange trading hours alone. It is the fallback behind
// the live feed and never returns an error.
type Calendar struct {
	exchanges map[string]Exchange
	holidays  map[string]map[string]bool // "CODE:year" -> set of "2006-01-02"
	mu        sync.Mutex
}

// NewCalendar creates a calendar for the given exchanges.
func NewCalendar(exchanges []Exchange) *Calendar {
	c := &Calendar{
		exchanges: make(map[string]Exchange, len(exchanges)),
		holidays:  make(map[string]map[string]bool),
	}
	for _, ex := range exchanges {
		c.exchanges[ex.Code] = ex
	}
	return c
}

// Name implements Source.
func (c *Calendar) Name() string {
	return "calendar"
}

// AnyMarketOpen implements Source.
func (c *Calendar) AnyMarketOpen(now time.Time) (bool, error) {
	for code := range c.exchanges {
		if c.IsMarketOpen(code, now) {
			return true, nil
		}
	}
	return false, nil
}

// OpenMarkets returns the codes of exchanges open at t, sorted.
func (c *Calendar) OpenMarkets(t time.Time) []string {
	open := make([]string, 0)
	for code := range c.exchanges {
		if c.IsMarketOpen(code, t) {
			open = append(open, code)
		}
	}
	sort.Strings(open)
	return open
}

// IsMarketOpen checks if an exchange is trading at t. Unknown codes are closed.
func (c *Calendar) IsMarketOpen(code string, t time.Time) bool {
	ex, ok := c.exchanges[code]
	if !ok {
		return false
	}

	local := t.In(ex.Timezone)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	if c.isHoliday(ex, local) {
		return false
	}

	at := func(hour, minute int) time.Time {
		return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, ex.Timezone)
	}

	// Open on [open, close)
	if local.Before(at(ex.Hours.OpenHour, ex.Hours.OpenMinute)) ||
		!local.Before(at(ex.Hours.CloseHour, ex.Hours.CloseMinute)) {
		return false
	}

	// Closed on [lunch start, lunch end)
	if ex.Lunch != nil {
		start := at(ex.Lunch.StartHour, ex.Lunch.StartMinute)
		end := at(ex.Lunch.EndHour, ex.Lunch.EndMinute)
		if !local.Before(start) && local.Before(end) {
			return false
		}
	}

	return true
}

func (c *Calendar) isHoliday(ex Exchange, local time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cacheKey := fmt.Sprintf("%s:%d", ex.Code, local.Year())
	days, ok := c.holidays[cacheKey]
	if !ok {
		days = holidaysForYear(ex, local.Year())
		c.holidays[cacheKey] = days
	}
	return days[local.Format("2006-01-02")]
}

func holidaysForYear(ex Exchange, year int) map[string]bool {
	days := make(map[string]bool)
	add := func(d time.Time) {
		days[d.Format("2006-01-02")] = true
	}

	for _, h := range ex.Fixed {
		d := time.Date(year, h.Month, h.Day, 0, 0, 0, 0, time.UTC)
		if h.Observed {
			d = observe(d)
		}
		add(d)
	}
	for _, h := range ex.Weekdays {
		add(nthWeekday(year, h.Month, h.Weekday, h.N))
	}
	if len(ex.EasterOffsets) > 0 {
		easter := Easter(year)
		for _, offset := range ex.EasterOffsets {
			add(easter.AddDate(0, 0, offset))
		}
	}
	return days
}

// observe moves a Saturday holiday to Friday and a Sunday holiday to Monday.
func observe(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

// nthWeekday returns the nth weekday of a month; n = -1 means the last one.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	if n < 0 {
		last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
		back := (int(last.Weekday()) - int(weekday) + 7) % 7
		return last.AddDate(0, 0, -back)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	ahead := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, ahead+7*(n-1))
}

// Easter returns Western Easter Sunday (anonymous Gregorian computus).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
