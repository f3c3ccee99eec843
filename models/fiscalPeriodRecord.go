package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/settlement_backend/utils"
	"gorm.io/gorm"
)

// FiscalPeriodRecord is the stored period calendar.
// Unique constraint: (company_code, year, period, period_type).
type FiscalPeriodRecord struct {
	ID          int          `gorm:"primary_key" json:"id"`
	CompanyCode string       `gorm:"size:64;not null;index:uniq_fiscal_period,unique" json:"company_code"`
	Year        int          `gorm:"not null;index:uniq_fiscal_period,unique" json:"year"`
	Period      int          `gorm:"not null;index:uniq_fiscal_period,unique" json:"period"`
	PeriodType  PeriodType   `gorm:"size:20;not null;index:uniq_fiscal_period,unique" json:"period_type"`
	StartDate   time.Time    `gorm:"not null;index" json:"start_date"`
	EndDate     time.Time    `gorm:"not null;index" json:"end_date"`
	IsYearEnd   bool         `gorm:"not null;default:false" json:"is_year_end"`
	Status      PeriodStatus `gorm:"size:20;not null;default:'Open'" json:"status"`
	ClosedBy    *string      `gorm:"size:30" json:"closed_by"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r FiscalPeriodRecord) ToFiscalPeriod() FiscalPeriod {
	return FiscalPeriod{
		Year:       r.Year,
		Period:     r.Period,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		PeriodType: r.PeriodType,
		IsYearEnd:  r.IsYearEnd,
		Status:     r.Status,
	}
}

// FindFiscalPeriodForDate returns the monthly period containing date.
func FindFiscalPeriodForDate(ctx context.Context, db *gorm.DB, companyCode string, date time.Time) (FiscalPeriod, error) {
	day := truncateDay(date)
	var rec FiscalPeriodRecord
	err := db.WithContext(ctx).
		Where("company_code = ? AND period_type = ? AND start_date <= ? AND end_date >= ?", companyCode, PeriodTypeMonthly, day, day).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return FiscalPeriod{}, utils.ErrorRecordNotFound
		}
		return FiscalPeriod{}, err
	}
	return rec.ToFiscalPeriod(), nil
}

// SetFiscalPeriodStatus moves a stored period to status. Locked periods never reopen here.
func SetFiscalPeriodStatus(ctx context.Context, tx *gorm.DB, companyCode string, period FiscalPeriod, status PeriodStatus, closedBy string) error {
	updates := map[string]interface{}{"status": status}
	if closedBy != "" {
		updates["closed_by"] = closedBy
	}
	res := tx.WithContext(ctx).Model(&FiscalPeriodRecord{}).
		Where("company_code = ? AND year = ? AND period = ? AND period_type = ? AND status <> ?",
			companyCode, period.Year, period.Period, period.PeriodType, PeriodStatusLocked).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}
