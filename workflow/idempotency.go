package workflow

import (
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/settlement_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// staleStartedAfter is how long a STARTED key blocks redelivery before it is reclaimed.
const staleStartedAfter = 5 * time.Minute

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// IdempotencyScope names one delivery of one message to one handler.
type IdempotencyScope struct {
	CompanyCode string
	Handler     string
	MessageId   string
}

func (s IdempotencyScope) where(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.IdempotencyKey{}).
		Where("company_code = ? AND handler_name = ? AND message_id = ?", s.CompanyCode, s.Handler, s.MessageId)
}

// Begin claims the key inside the handler's transaction. skip is true when an earlier
// delivery already succeeded. A fresh STARTED key held by another worker gives
// ErrIdempotencyInProgress; a stale one, or a FAILED one, is taken over.
func (s IdempotencyScope) Begin(tx *gorm.DB) (skip bool, err error) {
	key := models.IdempotencyKey{
		CompanyCode: s.CompanyCode,
		HandlerName: s.Handler,
		MessageId:   s.MessageId,
		Status:      models.IdempotencyStatusStarted,
		Attempts:    1,
	}
	err = tx.Create(&key).Error
	if err == nil {
		return false, nil
	}
	if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := s.where(tx).First(&existing).Error; err != nil {
		return false, err
	}
	if existing.Status == models.IdempotencyStatusSucceeded {
		return true, nil
	}
	if existing.Status == models.IdempotencyStatusStarted && time.Since(existing.UpdatedAt) < staleStartedAfter {
		return false, ErrIdempotencyInProgress
	}
	return false, s.where(tx).Updates(map[string]interface{}{
		"status":     models.IdempotencyStatusStarted,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": nil,
	}).Error
}

func (s IdempotencyScope) Succeed(tx *gorm.DB) error {
	return s.where(tx).Updates(map[string]interface{}{
		"status":     models.IdempotencyStatusSucceeded,
		"last_error": nil,
	}).Error
}

// Fail records cause outside the rolled-back handler transaction, so db must not be
// that transaction. The key is created when the rollback removed it.
func (s IdempotencyScope) Fail(db *gorm.DB, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	key := models.IdempotencyKey{
		CompanyCode: s.CompanyCode,
		HandlerName: s.Handler,
		MessageId:   s.MessageId,
		Status:      models.IdempotencyStatusFailed,
		Attempts:    1,
		LastError:   &msg,
	}
	return db.Clauses(clause.OnConflict{
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     models.IdempotencyStatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}),
	}).Create(&key).Error
}
