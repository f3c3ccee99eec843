package models

import (
	"fmt"
	"time"
)

type FiscalPeriod struct {
	Year       int          `json:"year"`
	Period     int          `json:"period"`
	StartDate  time.Time    `json:"start_date"`
	EndDate    time.Time    `json:"end_date"`
	PeriodType PeriodType   `json:"period_type"`
	IsYearEnd  bool         `json:"is_year_end"`
	Status     PeriodStatus `json:"status"`
}

// NewMonthlyPeriod returns an open period covering the whole calendar month (UTC).
func NewMonthlyPeriod(year int, month int) FiscalPeriod {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return FiscalPeriod{
		Year:       year,
		Period:     month,
		StartDate:  start,
		EndDate:    start.AddDate(0, 1, -1),
		PeriodType: PeriodTypeMonthly,
		IsYearEnd:  month == 12,
		Status:     PeriodStatusOpen,
	}
}

func NewQuarterlyPeriod(year int, quarter int) FiscalPeriod {
	startMonth := (quarter-1)*3 + 1
	start := time.Date(year, time.Month(startMonth), 1, 0, 0, 0, 0, time.UTC)
	return FiscalPeriod{
		Year:       year,
		Period:     quarter,
		StartDate:  start,
		EndDate:    start.AddDate(0, 3, -1),
		PeriodType: PeriodTypeQuarterly,
		IsYearEnd:  quarter == 4,
		Status:     PeriodStatusOpen,
	}
}

// Days is inclusive of both ends.
func (p FiscalPeriod) Days() int {
	return int(truncateDay(p.EndDate).Sub(truncateDay(p.StartDate)).Hours()/24) + 1
}

// Key e.g. "2024-01".
func (p FiscalPeriod) Key() string {
	return fmt.Sprintf("%d-%02d", p.Year, p.Period)
}

func (p FiscalPeriod) Contains(date time.Time) bool {
	d := truncateDay(date)
	return !d.Before(truncateDay(p.StartDate)) && !d.After(truncateDay(p.EndDate))
}

// AcceptsPostings is false once the period is hard closed or locked.
func (p FiscalPeriod) AcceptsPostings() bool {
	switch p.Status {
	case PeriodStatusOpen, PeriodStatusSoftClosed, "":
		return true
	case PeriodStatusClosed, PeriodStatusLocked:
		return false
	}
	return false
}

func (p FiscalPeriod) WithStatus(status PeriodStatus) FiscalPeriod {
	p.Status = status
	return p
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOnly drops the clock part, keeping the calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	return truncateDay(t)
}
