package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/settlement_backend/models"
)

func TestEnforcePostingGate(t *testing.T) {
	cases := []struct {
		name   string
		date   time.Time
		status models.PeriodStatus
		want   error
	}{
		{"open", jan15, models.PeriodStatusOpen, nil},
		{"soft closed", jan15, models.PeriodStatusSoftClosed, nil},
		{"closed", jan15, models.PeriodStatusClosed, ErrPeriodClosed},
		{"locked", jan15, models.PeriodStatusLocked, ErrPeriodClosed},
		{"after period", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), models.PeriodStatusOpen, ErrOutsidePeriod},
	}
	for _, tc := range cases {
		entry := testEntry("DOC-1", "10")
		entry.PostingDate = tc.date
		err := EnforcePostingGate(&entry, january().WithStatus(tc.status))
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}
