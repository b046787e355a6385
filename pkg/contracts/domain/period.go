package domain

import (
	"fmt"
	"strings"
	"time"
)

// Period is one reporting month on the portal.
type Period struct {
	Month time.Month `json:"month" validate:"min=1,max=12"`
	Year  int        `json:"year" validate:"min=2017"`
}

// MonthName returns the full English month name, the form used in file names.
func (p Period) MonthName() string {
	return p.Month.String()
}

func (p Period) String() string {
	return fmt.Sprintf("%s_%d", p.MonthName(), p.Year)
}

// FirstDay returns the first calendar day of the period.
func (p Period) FirstDay() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.Local)
}

// DaysInMonth returns the calendar length of the period.
func (p Period) DaysInMonth() int {
	return time.Date(p.Year, p.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// LastDay returns the last day to query for this period. For the ongoing month
// that is today's day-of-month, otherwise the calendar length.
func (p Period) LastDay(now time.Time) int {
	if now.Year() == p.Year && now.Month() == p.Month {
		return now.Day()
	}
	return p.DaysInMonth()
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Month: time.January, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// ParseMonth converts a full English month name ("January") into a time.Month.
func ParseMonth(name string) (time.Month, error) {
	trimmed := strings.TrimSpace(name)
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(m.String(), trimmed) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown month name %q", name)
}

// MonthRange returns every calendar month from start to end inclusive, in
// chronological order. An end before start yields an empty list.
func MonthRange(start, end Period) []Period {
	var periods []Period
	for p := start; !end.Before(p); p = p.Next() {
		periods = append(periods, p)
	}
	return periods
}
