package models_test

import (
	"testing"
	"time"

	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/stretchr/testify/assert"
)

func TestNewMonthlyPeriod(t *testing.T) {
	feb := models.NewMonthlyPeriod(2024, 2)
	assert.Equal(t, "2024-02", feb.Key())
	assert.Equal(t, 29, feb.Days())
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), feb.EndDate)
	assert.False(t, feb.IsYearEnd)
	assert.True(t, models.NewMonthlyPeriod(2024, 12).IsYearEnd)
}

func TestNewQuarterlyPeriod(t *testing.T) {
	q4 := models.NewQuarterlyPeriod(2023, 4)
	assert.Equal(t, time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC), q4.StartDate)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), q4.EndDate)
	assert.Equal(t, 92, q4.Days())
	assert.True(t, q4.IsYearEnd)
}

func TestFiscalPeriodContainsIgnoresClock(t *testing.T) {
	jan := models.NewMonthlyPeriod(2024, 1)
	assert.True(t, jan.Contains(time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.True(t, jan.Contains(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, jan.Contains(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAcceptsPostings(t *testing.T) {
	jan := models.NewMonthlyPeriod(2024, 1)
	cases := map[models.PeriodStatus]bool{
		models.PeriodStatusOpen:       true,
		models.PeriodStatusSoftClosed: true,
		models.PeriodStatusClosed:     false,
		models.PeriodStatusLocked:     false,
	}
	for status, want := range cases {
		assert.Equal(t, want, jan.WithStatus(status).AcceptsPostings(), status)
	}
}
