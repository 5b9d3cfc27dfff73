package sloth

import (
	"github.com/coreezy/sloth-race-watcher/database/models"
)

// DailySnapshot records one user on one UTC day. Day is the unix time of that day's
// midnight; (user_id, day) is unique.
type DailySnapshot struct {
	ID     int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"column:user_id;not null;uniqueIndex:idx_daily_snapshot_user_day" json:"userId"`
	Day    int64 `gorm:"column:day;type:bigint;not null;uniqueIndex:idx_daily_snapshot_user_day" json:"day"`

	// DelegationAmount is in micro units.
	DelegationAmount int64 `gorm:"column:delegation_amount;type:bigint;not null" json:"delegationAmount"`
	NetChange        int64 `gorm:"column:net_change;type:bigint;not null" json:"netChange"`
	RestakeActive    bool  `gorm:"column:restake_active;not null" json:"restakeActive"`
	Undelegated      bool  `gorm:"column:undelegated;not null" json:"undelegated"`
	SiteVisited      bool  `gorm:"column:site_visited;not null" json:"siteVisited"`
	DailyScore       int64 `gorm:"column:daily_score;type:bigint;not null" json:"dailyScore"`
	// StartStreak is the restake streak going into the day, kept so a rerun scores
	// with the same streak bonus.
	StartStreak int64 `gorm:"column:start_streak;not null" json:"startStreak"`

	models.Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*DailySnapshot) ForeignKeyConstraints() []models.ForeignKeyConstraint {
	return cascadeTo("user_id", "\"user\"(id)")
}

// Indexes returns information to create index.
func (*DailySnapshot) Indexes() []models.CustomIndex {
	return []models.CustomIndex{
		{
			Name:   "day",
			Fields: []string{"day"},
		},
	}
}
