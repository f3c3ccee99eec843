package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/settlement_backend/config"
	"gorm.io/gorm"
)

var ErrCloseInProgress = errors.New("period close already in progress")

// AcquireCompanyPostingLock serializes posting per company across instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same *gorm.DB that will do the posting transaction.
func AcquireCompanyPostingLock(tx *gorm.DB, companyCode string) error {
	lockName := fmt.Sprintf("posting:%s", companyCode)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for company_code=%s", companyCode)
	}
	return nil
}

func ReleaseCompanyPostingLock(tx *gorm.DB, companyCode string) {
	lockName := fmt.Sprintf("posting:%s", companyCode)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

func closeLockKey(companyCode, periodKey string) string {
	return fmt.Sprintf("close:%s:%s", companyCode, periodKey)
}

// AcquireCloseLock takes the Redis lock for one (company, period) close. Without Redis the
// lock is best-effort: it returns a no-op release and a nil error.
func AcquireCloseLock(ctx context.Context, companyCode, periodKey string, ttl time.Duration) (release func(), err error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	lock, err := locker.Obtain(ctx, closeLockKey(companyCode, periodKey), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrCloseInProgress
	}
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
