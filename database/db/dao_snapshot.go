package db

import (
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
)

type SnapshotDAO struct {
}

// ScoredAddress pairs an address with its snapshot of one day.
type ScoredAddress struct {
	Address          string
	DailyScore       int64
	DelegationAmount int64
	Undelegated      bool
}

// FindSnapshot returns the snapshot of user on day, nil when there is none.
func (sd *SnapshotDAO) FindSnapshot(db *gorm.DB, userID, day int64) (*sloth.DailySnapshot, error) {
	var s sloth.DailySnapshot
	err := db.Where("user_id = ? AND day = ?", userID, day).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find snapshot user=%d day=%d: %w", userID, day, err)
	}
	return &s, nil
}

// LastSnapshotBefore returns the latest snapshot of user strictly before day, nil when
// there is none.
func (sd *SnapshotDAO) LastSnapshotBefore(db *gorm.DB, userID, day int64) (*sloth.DailySnapshot, error) {
	var s sloth.DailySnapshot
	err := db.Where("user_id = ? AND day < ?", userID, day).Order("day desc").First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find snapshot user=%d before %d: %w", userID, day, err)
	}
	return &s, nil
}

// UpsertSnapshot writes the snapshot of (user, day), overwriting an existing row.
func (sd *SnapshotDAO) UpsertSnapshot(db *gorm.DB, s *sloth.DailySnapshot) error {
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"delegation_amount", "net_change", "restake_active", "undelegated",
			"site_visited", "daily_score", "start_streak", "updated_at",
		}),
	}).Create(s).Error; err != nil {
		return fmt.Errorf("upsert snapshot user=%d day=%d: %w", s.UserID, s.Day, err)
	}
	return nil
}

func (sd *SnapshotDAO) CountSnapshots(db *gorm.DB, day int64) (int64, error) {
	var n int64
	if err := db.Model(&sloth.DailySnapshot{}).Where("day = ?", day).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count snapshots of %d: %w", day, err)
	}
	return n, nil
}

// ListScoresOfDay returns the snapshots of day ordered by address.
func (sd *SnapshotDAO) ListScoresOfDay(db *gorm.DB, day int64) ([]ScoredAddress, error) {
	var rows []ScoredAddress
	err := db.Table("daily_snapshot").
		Select(`"user".address AS address, daily_snapshot.daily_score AS daily_score, ` +
			`daily_snapshot.delegation_amount AS delegation_amount, daily_snapshot.undelegated AS undelegated`).
		Joins(`JOIN "user" ON "user".id = daily_snapshot.user_id`).
		Where("daily_snapshot.day = ?", day).
		Order(`"user".address asc`).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list scores of %d: %w", day, err)
	}
	return rows, nil
}

// LatestDay returns the most recent snapshot day, 0 when nothing was recorded.
func (sd *SnapshotDAO) LatestDay(db *gorm.DB) (int64, error) {
	var day sql.NullInt64
	if err := db.Model(&sloth.DailySnapshot{}).Select("max(day)").Row().Scan(&day); err != nil {
		return 0, fmt.Errorf("latest snapshot day: %w", err)
	}
	return day.Int64, nil
}
