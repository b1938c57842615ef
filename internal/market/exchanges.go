package market

import (
	"time"
	_ "time/tzdata" // Exchange timezones must resolve on minimal images
)

// TradingHours represents regular trading hours for an exchange
type TradingHours struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// LunchBreak represents a midday trading break
type LunchBreak struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// FixedHoliday is a holiday on the same date every year. Observed holidays move
// to Friday or Monday when they fall on a weekend.
type FixedHoliday struct {
	Month    time.Month
	Day      int
	Observed bool
}

// WeekdayHoliday is the Nth weekday of a month (N = -1 for the last one).
type WeekdayHoliday struct {
	Month   time.Month
	Weekday time.Weekday
	N       int
}

// Exchange is the calendar of one venue.
type Exchange struct {
	Code          string
	Name          string
	Timezone      *time.Location
	Hours         TradingHours
	Lunch         *LunchBreak
	Fixed         []FixedHoliday
	Weekdays      []WeekdayHoliday
	EasterOffsets []int // Days relative to Western Easter Sunday
}

var usHolidays = struct {
	fixed    []FixedHoliday
	weekdays []WeekdayHoliday
}{
	fixed: []FixedHoliday{
		{Month: time.January, Day: 1, Observed: true},
		{Month: time.June, Day: 19, Observed: true},
		{Month: time.July, Day: 4, Observed: true},
		{Month: time.December, Day: 25, Observed: true},
	},
	weekdays: []WeekdayHoliday{
		{Month: time.January, Weekday: time.Monday, N: 3},    // MLK Day
		{Month: time.February, Weekday: time.Monday, N: 3},   // Presidents Day
		{Month: time.May, Weekday: time.Monday, N: -1},       // Memorial Day
		{Month: time.September, Weekday: time.Monday, N: 1},  // Labor Day
		{Month: time.November, Weekday: time.Thursday, N: 4}, // Thanksgiving
	},
}

// DefaultExchanges is the calendar used when no live feed answers.
func DefaultExchanges() []Exchange {
	return []Exchange{
		{
			Code:          "XNYS",
			Name:          "New York Stock Exchange",
			Timezone:      mustLoadLocation("America/New_York"),
			Hours:         TradingHours{OpenHour: 9, OpenMinute: 30, CloseHour: 16},
			Fixed:         usHolidays.fixed,
			Weekdays:      usHolidays.weekdays,
			EasterOffsets: []int{-2},
		},
		{
			Code:          "XNAS",
			Name:          "NASDAQ",
			Timezone:      mustLoadLocation("America/New_York"),
			Hours:         TradingHours{OpenHour: 9, OpenMinute: 30, CloseHour: 16},
			Fixed:         usHolidays.fixed,
			Weekdays:      usHolidays.weekdays,
			EasterOffsets: []int{-2},
		},
		{
			Code:     "XLON",
			Name:     "London Stock Exchange",
			Timezone: mustLoadLocation("Europe/London"),
			Hours:    TradingHours{OpenHour: 8, CloseHour: 16, CloseMinute: 30},
			Fixed: []FixedHoliday{
				{Month: time.January, Day: 1},
				{Month: time.December, Day: 25},
				{Month: time.December, Day: 26},
			},
			Weekdays: []WeekdayHoliday{
				{Month: time.May, Weekday: time.Monday, N: 1},
				{Month: time.May, Weekday: time.Monday, N: -1},
				{Month: time.August, Weekday: time.Monday, N: -1},
			},
			EasterOffsets: []int{-2, 1},
		},
		{
			Code:     "XETR",
			Name:     "XETRA (Frankfurt)",
			Timezone: mustLoadLocation("Europe/Berlin"),
			Hours:    TradingHours{OpenHour: 9, CloseHour: 17, CloseMinute: 30},
			Fixed: []FixedHoliday{
				{Month: time.January, Day: 1},
				{Month: time.May, Day: 1},
				{Month: time.December, Day: 24},
				{Month: time.December, Day: 25},
				{Month: time.December, Day: 26},
				{Month: time.December, Day: 31},
			},
			EasterOffsets: []int{-2, 1},
		},
		{
			Code:     "XPAR",
			Name:     "Euronext Paris",
			Timezone: mustLoadLocation("Europe/Paris"),
			Hours:    TradingHours{OpenHour: 9, CloseHour: 17, CloseMinute: 30},
			Fixed: []FixedHoliday{
				{Month: time.January, Day: 1},
				{Month: time.May, Day: 1},
				{Month: time.December, Day: 25},
				{Month: time.December, Day: 26},
			},
			EasterOffsets: []int{-2, 1},
		},
		{
			Code:     "XAMS",
			Name:     "Euronext Amsterdam",
			Timezone: mustLoadLocation("Europe/Amsterdam"),
			Hours:    TradingHours{OpenHour: 9, CloseHour: 17, CloseMinute: 30},
			Fixed: []FixedHoliday{
				{Month: time.January, Day: 1},
				{Month: time.May, Day: 1},
				{Month: time.December, Day: 25},
				{Month: time.December, Day: 26},
			},
			EasterOffsets: []int{-2, 1},
		},
		{
			Code:     "XHKG",
			Name:     "Hong Kong Stock Exchange",
			Timezone: mustLoadLocation("Asia/Hong_Kong"),
			Hours:    TradingHours{OpenHour: 9, OpenMinute: 30, CloseHour: 16},
			Lunch:    &LunchBreak{StartHour: 12, EndHour: 13},
			Fixed: []FixedHoliday{
				{Month: time.January, Day: 1},
				{Month: time.July, Day: 1},
				{Month: time.October, Day: 1},
				{Month: time.December, Day: 25},
				{Month: time.December, Day: 26},
			},
			EasterOffsets: []int{-2, 1},
		},
		{
			Code:     "XTSE",
			Name:     "Tokyo Stock Exchange",
			Timezone: mustLoadLocation("Asia/Tokyo"),
			Hours:    TradingHours{OpenHour: 9, CloseHour: 15},
			Lunch:    &LunchBreak{StartHour: 11, StartMinute: 30, EndHour: 12, EndMinute: 30},
			Fixed: []FixedHoliday{
				{Month: time.January, Day: 1},
				{Month: time.January, Day: 2},
				{Month: time.January, Day: 3},
				{Month: time.December, Day: 31},
			},
		},
		{
			Code:     "XASX",
			Name:     "Australian Securities Exchange",
			Timezone: mustLoadLocation("Australia/Sydney"),
			Hours:    TradingHours{OpenHour: 10, CloseHour: 16},
			Fixed: []FixedHoliday{
				{Month: time.January, Day: 1},
				{Month: time.January, Day: 26},
				{Month: time.April, Day: 25},
				{Month: time.December, Day: 25},
				{Month: time.December, Day: 26},
			},
			Weekdays: []WeekdayHoliday{
				{Month: time.June, Weekday: time.Monday, N: 2},
			},
			EasterOffsets: []int{-2, 1},
		},
	}
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("failed to load timezone: " + name + ": " + err.Error())
	}
	return loc
}
