// Package core holds the caretaker bookkeeping domain: contract-year
// date arithmetic, the payslip calculator, and the shared record types
// that the storage and service layers move around.
package core

import (
	"fmt"
	"time"
)

// ContractYear returns the zero-based contract year a date falls in,
// or -1 for dates before the contract start.
//
// The index is computed from whole calendar-month differences
// (year*12+month), ignoring the day of month. A mid-month anniversary
// is therefore not exactly respected; stored data was produced with
// this arithmetic, so it must not be replaced with day-aware logic.
func ContractYear(date, start time.Time) int {
	if date.Before(start) {
		return -1
	}
	months := (date.Year()-start.Year())*12 + int(date.Month()) - int(start.Month())
	if months < 0 {
		return -1
	}
	return months / 12
}

// ContractYearKey formats the storage key for a contract-year index.
func ContractYearKey(year int) string {
	return fmt.Sprintf("year_%d", year)
}

// ContractYearPeriod describes one enumerated contract year.
type ContractYearPeriod struct {
	Year      int       `json:"year"`
	Key       string    `json:"key"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Label     string    `json:"label"`
}

// ListContractYears enumerates contract years around the one asOf falls
// in: from max(0, current-5) up to current, plus two future years when
// includeFuture is set. Labels are one-based ("Year 1" is index 0).
func ListContractYears(start, asOf time.Time, includeFuture bool) []ContractYearPeriod {
	current := ContractYear(asOf, start)
	lo := current - 5
	if lo < 0 {
		lo = 0
	}
	hi := current
	if includeFuture {
		hi += 2
	}

	var years []ContractYearPeriod
	for y := lo; y <= hi; y++ {
		years = append(years, ContractYearPeriod{
			Year:      y,
			Key:       ContractYearKey(y),
			StartDate: start.AddDate(0, 12*y, 0),
			EndDate:   start.AddDate(0, 12*(y+1), 0),
			Label:     fmt.Sprintf("Year %d", y+1),
		})
	}
	return years
}

// MonthKey returns the YYYY-MM bucket key for a date.
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// ParseMonthKey parses a YYYY-MM key into the first instant of that
// month in UTC.
func ParseMonthKey(key string) (time.Time, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse month key %q: %w", key, err)
	}
	return t, nil
}

// MonthKeyForDate returns the month key for a wire-format date string.
func MonthKeyForDate(date string) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return MonthKey(t), nil
}

// AnniversaryWindow returns the day-accurate contract anniversary
// window containing date: [start of window, start + 1 year).
//
// Unlike ContractYear this respects the day of month. The worklog
// vacation summaries count against true anniversary windows while the
// payslip keys stay on calendar-month arithmetic.
func AnniversaryWindow(start, date time.Time) (time.Time, time.Time) {
	ann := time.Date(date.Year(), start.Month(), start.Day(), 0, 0, 0, 0, date.Location())
	if date.Before(ann) {
		ann = ann.AddDate(-1, 0, 0)
	}
	return ann, ann.AddDate(1, 0, 0)
}

// DayAllowance summarizes usage of an annual day quota inside an
// anniversary window.
type DayAllowance struct {
	Type        ActivityType `json:"type"`
	Total       int          `json:"total"`
	Used        int          `json:"used"`
	Remaining   int          `json:"remaining"`
	WindowStart time.Time    `json:"windowStart"`
	WindowEnd   time.Time    `json:"windowEnd"`
}

// AnnualDayAllowance is the per-type quota used by the worklog
// vacation and holiday-vacation summaries.
const AnnualDayAllowance = 12

// DayAllowanceFor counts activities of the given type inside the
// anniversary window containing asOf and reports used/remaining days.
func DayAllowanceFor(wl Worklog, typ ActivityType, start, asOf time.Time, total int) DayAllowance {
	from, to := AnniversaryWindow(start, asOf)
	used := 0
	for _, activities := range wl {
		for _, a := range activities {
			if a.Type != typ {
				continue
			}
			d, err := time.Parse(DateLayout, a.Date)
			if err != nil {
				continue
			}
			if !d.Before(from) && d.Before(to) {
				used++
			}
		}
	}
	remaining := total - used
	if remaining < 0 {
		remaining = 0
	}
	return DayAllowance{
		Type:        typ,
		Total:       total,
		Used:        used,
		Remaining:   remaining,
		WindowStart: from,
		WindowEnd:   to,
	}
}
