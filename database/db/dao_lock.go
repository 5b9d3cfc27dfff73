package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/types"
)

type LockDAO struct {
}

// AcquireLock takes the advisory lock name for holder until now+ttl. It reports false
// when another holder owns an unexpired lock.
func (ld *LockDAO) AcquireLock(db *gorm.DB, name types.LockName, holder string, now time.Time, ttl time.Duration) (bool, error) {
	if err := db.Where("name = ? AND expires_at <= ?", name, now.Unix()).Delete(&sloth.JobLock{}).Error; err != nil {
		return false, fmt.Errorf("expire lock %s: %w", name, err)
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&sloth.JobLock{
		Name:       name,
		Holder:     holder,
		AcquiredAt: now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	})
	if res.Error != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseLock drops the lock if holder still owns it.
func (ld *LockDAO) ReleaseLock(db *gorm.DB, name types.LockName, holder string) error {
	if err := db.Where("name = ? AND holder = ?", name, holder).Delete(&sloth.JobLock{}).Error; err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
