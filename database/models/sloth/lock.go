package sloth

import (
	"github.com/coreezy/sloth-race-watcher/database/models"
	"github.com/coreezy/sloth-race-watcher/types"
)

// JobLock is an advisory lock row. A row whose ExpiresAt has passed may be taken over.
type JobLock struct {
	Name       types.LockName `gorm:"column:name;type:varchar(64);primaryKey" json:"name"`
	Holder     string         `gorm:"column:holder;type:varchar(64);not null" json:"holder"`
	AcquiredAt int64          `gorm:"column:acquired_at;type:bigint;not null" json:"acquiredAt"`
	ExpiresAt  int64          `gorm:"column:expires_at;type:bigint;not null" json:"expiresAt"`
	models.Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*JobLock) ForeignKeyConstraints() []models.ForeignKeyConstraint {
	return nil
}

// Indexes returns information to create index.
func (*JobLock) Indexes() []models.CustomIndex {
	return nil
}
