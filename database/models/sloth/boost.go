package sloth

import (
	"github.com/coreezy/sloth-race-watcher/database/models"
	"github.com/coreezy/sloth-race-watcher/types"
)

// Boost is an approved, time-boxed multiplier. It is active while ExpiresAt is ahead.
type Boost struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProfileID  int64  `gorm:"column:profile_id;not null;index" json:"profileId"`
	Platform   string `gorm:"column:platform;type:varchar(32);not null" json:"platform"`
	Multiplier int64  `gorm:"column:multiplier;not null" json:"multiplier"`
	ProofURL   string `gorm:"column:proof_url;type:varchar(512);not null;uniqueIndex" json:"proofUrl"`
	ExpiresAt  int64  `gorm:"column:expires_at;type:bigint;not null" json:"expiresAt"`
	models.Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*Boost) ForeignKeyConstraints() []models.ForeignKeyConstraint {
	return cascadeTo("profile_id", "\"profile\"(id)")
}

// Indexes returns information to create index.
func (*Boost) Indexes() []models.CustomIndex {
	return []models.CustomIndex{
		{
			Name:   "profile_expires",
			Fields: []string{"profile_id", "expires_at"},
		},
	}
}

// BoostRequest is a submitted proof waiting for verification.
type BoostRequest struct {
	ID            int64             `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProfileID     int64             `gorm:"column:profile_id;not null;index" json:"profileId"`
	Platform      string            `gorm:"column:platform;type:varchar(32);not null" json:"platform"`
	ProofURL      string            `gorm:"column:proof_url;type:varchar(512);not null;index" json:"proofUrl"`
	Status        types.BoostStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Attempts      int64             `gorm:"column:attempts;not null" json:"attempts"`
	Reason        string            `gorm:"column:reason;type:varchar(256)" json:"reason"`
	LastCheckedAt int64             `gorm:"column:last_checked_at;type:bigint;not null" json:"lastCheckedAt"`
	models.Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*BoostRequest) ForeignKeyConstraints() []models.ForeignKeyConstraint {
	return cascadeTo("profile_id", "\"profile\"(id)")
}

// Indexes returns information to create index.
func (*BoostRequest) Indexes() []models.CustomIndex {
	return []models.CustomIndex{
		{
			Name:      "pending",
			Fields:    []string{"id"},
			Condition: "WHERE status = 'PENDING'",
		},
	}
}
