// Package calendar derives the bucket keys used to detect day, week and
// month rollover. Every function is pure: equal civil periods always yield
// equal keys.
package calendar

import (
	"fmt"
	"strconv"
	"time"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// DayKey returns the civil day of t in t's location as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// WeekKey returns the ISO-8601 week of t as YYYY-Www.
//
// The date is shifted to the Thursday of its Monday-based week; the week
// number is then counted from the first Thursday of that Thursday's year.
func WeekKey(t time.Time) string {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	thursday := d.AddDate(0, 0, 4-weekday)
	week := (thursday.YearDay()-1)/7 + 1
	return fmt.Sprintf("%04d-W%02d", thursday.Year(), week)
}

// MonthKey returns the civil month of t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}

// DaysBetween returns the number of whole civil days from one day key to
// another (to - from).
func DaysBetween(from, to string) (int, error) {
	f, err := time.Parse(dayLayout, from)
	if err != nil {
		return 0, fmt.Errorf("parse day key %q: %w", from, err)
	}
	t, err := time.Parse(dayLayout, to)
	if err != nil {
		return 0, fmt.Errorf("parse day key %q: %w", to, err)
	}
	// Both parse as UTC midnight, so the difference is an exact multiple of 24h.
	return int(t.Sub(f) / (24 * time.Hour)), nil
}

func ValidDayKey(key string) bool {
	_, err := time.Parse(dayLayout, key)
	return err == nil
}

func ValidMonthKey(key string) bool {
	_, err := time.Parse(monthLayout, key)
	return err == nil
}

func ValidWeekKey(key string) bool {
	if len(key) != 8 || key[4:6] != "-W" {
		return false
	}
	year, err := strconv.Atoi(key[:4])
	if err != nil || year < 0 {
		return false
	}
	week, err := strconv.Atoi(key[6:])
	if err != nil {
		return false
	}
	return week >= 1 && week <= 53
}
