package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/types"
)

type ProfileDAO struct {
}

// RacerRef names a profile together with its wallet.
type RacerRef struct {
	ProfileID       int64
	UserID          int64
	Address         string
	DelegationScore int64
	SleepUntil      int64
}

// ProfileDetail is a profile with its active boosts and most recent snapshot.
type ProfileDetail struct {
	User         sloth.User
	Profile      sloth.Profile
	Boosts       []sloth.Boost
	LastSnapshot *sloth.DailySnapshot
}

func (pd *ProfileDAO) FindUserByAddress(db *gorm.DB, address string) (*sloth.User, error) {
	var u sloth.User
	if err := db.Where("address = ?", address).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user %s: %w", address, err)
	}
	return &u, nil
}

func (pd *ProfileDAO) FindProfileByUserID(db *gorm.DB, userID int64) (*sloth.Profile, error) {
	var p sloth.Profile
	if err := db.Where("user_id = ?", userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find profile of user %d: %w", userID, err)
	}
	return &p, nil
}

// CreateUserWithProfile inserts a user and its profile, both stamped with now.
func (pd *ProfileDAO) CreateUserWithProfile(db *gorm.DB, address string, now int64) (*sloth.User, *sloth.Profile, error) {
	u := &sloth.User{Address: address}
	if err := db.Create(u).Error; err != nil {
		return nil, nil, fmt.Errorf("create user %s: %w", address, err)
	}
	p, err := pd.CreateProfile(db, u.ID, now)
	if err != nil {
		return nil, nil, err
	}
	return u, p, nil
}

func (pd *ProfileDAO) CreateProfile(db *gorm.DB, userID int64, now int64) (*sloth.Profile, error) {
	p := &sloth.Profile{
		UserID:       userID,
		Class:        types.ClassBaby,
		StakingSince: now,
		JoinedAt:     now,
	}
	if err := db.Create(p).Error; err != nil {
		return nil, fmt.Errorf("create profile of user %d: %w", userID, err)
	}
	return p, nil
}

// EnsureProfile returns the user and profile of address, creating whichever is
// missing. created reports a brand-new profile.
func (pd *ProfileDAO) EnsureProfile(db *gorm.DB, address string, now int64) (
	u *sloth.User, p *sloth.Profile, created bool, err error) {
	u, err = pd.FindUserByAddress(db, address)
	if errors.Is(err, ErrNotFound) {
		u, p, err = pd.CreateUserWithProfile(db, address, now)
		return u, p, err == nil, err
	}
	if err != nil {
		return nil, nil, false, err
	}
	p, err = pd.FindProfileByUserID(db, u.ID)
	if errors.Is(err, ErrNotFound) {
		p, err = pd.CreateProfile(db, u.ID, now)
		return u, p, err == nil, err
	}
	return u, p, false, err
}

// ProfileDetail loads the profile of address with the boosts active at now and its
// most recent snapshot.
func (pd *ProfileDAO) ProfileDetail(db *gorm.DB, address string, now int64) (*ProfileDetail, error) {
	u, err := pd.FindUserByAddress(db, address)
	if err != nil {
		return nil, err
	}
	p, err := pd.FindProfileByUserID(db, u.ID)
	if err != nil {
		return nil, err
	}
	detail := &ProfileDetail{User: *u, Profile: *p}
	if err = db.Where("profile_id = ? AND expires_at > ?", p.ID, now).
		Order("expires_at asc").Find(&detail.Boosts).Error; err != nil {
		return nil, fmt.Errorf("find boosts of profile %d: %w", p.ID, err)
	}
	var last sloth.DailySnapshot
	err = db.Where("user_id = ?", u.ID).Order("day desc").First(&last).Error
	switch {
	case err == nil:
		detail.LastSnapshot = &last
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("find last snapshot of user %d: %w", u.ID, err)
	}
	return detail, nil
}

// UpdateProfile writes fields by column name; zero values are written too.
func (pd *ProfileDAO) UpdateProfile(db *gorm.DB, profileID int64, fields map[string]interface{}) error {
	res := db.Model(&sloth.Profile{}).Where("id = ?", profileID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update profile %d: %w", profileID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (pd *ProfileDAO) SetClass(db *gorm.DB, profileID int64, class types.Class) error {
	return pd.UpdateProfile(db, profileID, map[string]interface{}{"class": class})
}

func (pd *ProfileDAO) CountProfiles(db *gorm.DB) (int64, error) {
	var n int64
	if err := db.Model(&sloth.Profile{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}

func (pd *ProfileDAO) CountProfilesWithScoreGreater(db *gorm.DB, score int64) (int64, error) {
	var n int64
	if err := db.Model(&sloth.Profile{}).Where("total_score > ?", score).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count profiles above %d: %w", score, err)
	}
	return n, nil
}

// ListProfilesByScore returns every profile, best first. Ties keep id order.
func (pd *ProfileDAO) ListProfilesByScore(db *gorm.DB) ([]*sloth.Profile, error) {
	var all []*sloth.Profile
	if err := db.Order("total_score desc").Order("id asc").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return all, nil
}

// Leaderboard returns one page of profiles, best first, optionally of one class.
func (pd *ProfileDAO) Leaderboard(db *gorm.DB, class types.Class, offset, limit int) ([]*sloth.Profile, error) {
	q := db.Order("total_score desc").Order("id asc").Offset(offset).Limit(limit)
	if class != "" {
		q = q.Where("class = ?", class)
	}
	var page []*sloth.Profile
	if err := q.Find(&page).Error; err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return page, nil
}

func (pd *ProfileDAO) listRacers(db *gorm.DB, sleeping bool) ([]RacerRef, error) {
	var refs []RacerRef
	err := db.Table("profile").
		Select(`profile.id AS profile_id, profile.user_id AS user_id, "user".address AS address, `+
			`profile.delegation_score AS delegation_score, profile.sleep_until AS sleep_until`).
		Joins(`JOIN "user" ON "user".id = profile.user_id`).
		Where("profile.is_sleeping = ?", sleeping).
		Order("profile.id asc").
		Scan(&refs).Error
	if err != nil {
		return nil, fmt.Errorf("list racers sleeping=%v: %w", sleeping, err)
	}
	return refs, nil
}

// ListAwakeProfiles returns every non-sleeping profile with its address.
func (pd *ProfileDAO) ListAwakeProfiles(db *gorm.DB) ([]RacerRef, error) {
	return pd.listRacers(db, false)
}

// ListSleepingProfiles returns every sleeping profile with its address.
func (pd *ProfileDAO) ListSleepingProfiles(db *gorm.DB) ([]RacerRef, error) {
	return pd.listRacers(db, true)
}

// RecordSiteVisit stamps the profile of address, creating user and profile on first
// contact.
func (pd *ProfileDAO) RecordSiteVisit(db *gorm.DB, address string, now int64) (*sloth.Profile, error) {
	_, p, _, err := pd.EnsureProfile(db, address, now)
	if err != nil {
		return nil, err
	}
	if err = pd.UpdateProfile(db, p.ID, map[string]interface{}{"last_site_visit": now}); err != nil {
		return nil, err
	}
	p.LastSiteVisit = now
	return p, nil
}

// SetProfileName renames the profile of address. Names are unique ignoring case.
func (pd *ProfileDAO) SetProfileName(db *gorm.DB, address, name string) error {
	u, err := pd.FindUserByAddress(db, address)
	if err != nil {
		return err
	}
	p, err := pd.FindProfileByUserID(db, u.ID)
	if err != nil {
		return err
	}
	var clash int64
	if err = db.Model(&sloth.Profile{}).
		Where("lower(name) = ? AND id <> ?", strings.ToLower(name), p.ID).
		Count(&clash).Error; err != nil {
		return fmt.Errorf("check name %q: %w", name, err)
	}
	if clash > 0 {
		return ErrNameTaken
	}
	err = pd.UpdateProfile(db, p.ID, map[string]interface{}{"name": name})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrNameTaken
	}
	return err
}

// ResetSeason zeroes the race state of every profile and drops the snapshots of
// fromDay onwards so the next run scores that day from scratch. Earlier history stays
// for restake detection.
func (pd *ProfileDAO) ResetSeason(db *gorm.DB, fromDay int64) (int64, error) {
	var affected int64
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&sloth.Profile{}).Where("1 = 1").Updates(map[string]interface{}{
			"total_score":    0,
			"restake_streak": 0,
			"days_awake":     0,
			"class":          types.ClassBaby,
		})
		if res.Error != nil {
			return fmt.Errorf("reset profiles: %w", res.Error)
		}
		affected = res.RowsAffected
		if err := tx.Where("day >= ?", fromDay).Delete(&sloth.DailySnapshot{}).Error; err != nil {
			return fmt.Errorf("drop snapshots from %d: %w", fromDay, err)
		}
		return nil
	})
	return affected, err
}

// LockProfile re-reads a profile under a row lock inside a transaction.
func (pd *ProfileDAO) LockProfile(tx *gorm.DB, profileID int64) (*sloth.Profile, error) {
	var p sloth.Profile
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", profileID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock profile %d: %w", profileID, err)
	}
	return &p, nil
}
