package sloth

import (
	"github.com/coreezy/sloth-race-watcher/database/models"
	"github.com/coreezy/sloth-race-watcher/types"
)

// User is a wallet that touched the race, through a snapshot or the site.
type User struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Address string `gorm:"column:address;type:varchar(128);not null;uniqueIndex" json:"address"`
	models.Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*User) ForeignKeyConstraints() []models.ForeignKeyConstraint {
	return nil
}

// Indexes returns information to create index.
func (*User) Indexes() []models.CustomIndex {
	return nil
}

// Profile is the race state of a user. Scores are meters x 1000, timestamps unix
// seconds with 0 for unset.
type Profile struct {
	ID     int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID int64   `gorm:"column:user_id;not null;uniqueIndex" json:"userId"`
	Name   *string `gorm:"column:name;type:varchar(64)" json:"name"`

	TotalScore      int64       `gorm:"column:total_score;type:bigint;not null;index" json:"totalScore"`
	DelegationScore int64       `gorm:"column:delegation_score;type:bigint;not null" json:"delegationScore"`
	Class           types.Class `gorm:"column:class;type:varchar(8);not null;default:'BABY'" json:"class"`
	RestakeStreak   int64       `gorm:"column:restake_streak;not null" json:"restakeStreak"`
	DaysAwake       int64       `gorm:"column:days_awake;not null" json:"daysAwake"`

	IsSleeping    bool  `gorm:"column:is_sleeping;not null" json:"isSleeping"`
	SleepUntil    int64 `gorm:"column:sleep_until;type:bigint;not null" json:"sleepUntil"`
	LastSiteVisit int64 `gorm:"column:last_site_visit;type:bigint;not null" json:"lastSiteVisit"`
	StakingSince  int64 `gorm:"column:staking_since;type:bigint;not null" json:"stakingSince"`
	JoinedAt      int64 `gorm:"column:joined_at;type:bigint;not null" json:"joinedAt"`

	models.Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*Profile) ForeignKeyConstraints() []models.ForeignKeyConstraint {
	return cascadeTo("user_id", "\"user\"(id)")
}

// Indexes returns information to create index.
func (*Profile) Indexes() []models.CustomIndex {
	return []models.CustomIndex{
		{
			Name:   "name_lower",
			Unique: true,
			Fields: []string{"lower(name)"},
		},
	}
}
