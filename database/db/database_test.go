package db_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/database/db/dbtest"
	"github.com/coreezy/sloth-race-watcher/database/models"
	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/types"
)

type DAOSuite struct {
	suite.Suite
	db  *gorm.DB
	dao *db.DAO
	now int64
}

func (s *DAOSuite) SetupTest() {
	s.db = dbtest.New(s.T())
	s.dao = db.NewDAO()
	s.now = time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC).Unix()
}

func (s *DAOSuite) TestSchemaVersionAndPoolSeeded() {
	var sys models.System
	s.Require().NoError(s.db.Where("name = ?", types.SysVarSchemaVersion).First(&sys).Error)
	s.Require().Equal("1", sys.Value)

	s.Require().NoError(db.Migrate(s.db, types.Race))
	var n int64
	s.Require().NoError(s.db.Model(&models.System{}).Count(&n).Error)
	s.Require().Equal(int64(2), n)

	pool, err := s.dao.GetPool(s.db)
	s.Require().NoError(err)
	s.Require().True(pool.TotalAmount.IsZero())
}

func (s *DAOSuite) TestEnsureProfile() {
	u, p, created, err := s.dao.EnsureProfile(s.db, "core1abc", s.now)
	s.Require().NoError(err)
	s.Require().True(created)
	s.Require().Equal(types.ClassBaby, p.Class)
	s.Require().Equal(s.now, p.StakingSince)

	u2, p2, created, err := s.dao.EnsureProfile(s.db, "core1abc", s.now+10)
	s.Require().NoError(err)
	s.Require().False(created)
	s.Require().Equal(u.ID, u2.ID)
	s.Require().Equal(p.ID, p2.ID)

	// user without a profile gets one
	orphan := &sloth.User{Address: "core1orphan"}
	s.Require().NoError(s.db.Create(orphan).Error)
	_, p3, created, err := s.dao.EnsureProfile(s.db, "core1orphan", s.now)
	s.Require().NoError(err)
	s.Require().True(created)
	s.Require().Equal(orphan.ID, p3.UserID)

	_, err = s.dao.FindUserByAddress(s.db, "core1missing")
	s.Require().ErrorIs(err, db.ErrNotFound)
}

func (s *DAOSuite) TestLockProfileRereads() {
	_, p, _, err := s.dao.EnsureProfile(s.db, "core1abc", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.dao.UpdateProfile(s.db, p.ID, map[string]interface{}{"total_score": 42}))

	err = db.Transaction(s.db, func(tx *gorm.DB) error {
		locked, err := s.dao.LockProfile(tx, p.ID)
		if err != nil {
			return err
		}
		s.Require().Equal(int64(42), locked.TotalScore)
		_, err = s.dao.LockProfile(tx, p.ID+1000)
		s.Require().ErrorIs(err, db.ErrNotFound)
		return nil
	})
	s.Require().NoError(err)
}

func (s *DAOSuite) TestUpsertSnapshotKeepsOneRowPerDay() {
	u, _, _, err := s.dao.EnsureProfile(s.db, "core1abc", s.now)
	s.Require().NoError(err)
	day := s.now - s.now%86400

	s.Require().NoError(s.dao.UpsertSnapshot(s.db, &sloth.DailySnapshot{UserID: u.ID, Day: day, DailyScore: 10}))
	s.Require().NoError(s.dao.UpsertSnapshot(s.db, &sloth.DailySnapshot{UserID: u.ID, Day: day, DailyScore: 25, SiteVisited: true}))
	s.Require().NoError(s.dao.UpsertSnapshot(s.db, &sloth.DailySnapshot{UserID: u.ID, Day: day - 86400, DailyScore: 5}))

	n, err := s.dao.CountSnapshots(s.db, day)
	s.Require().NoError(err)
	s.Require().Equal(int64(1), n)

	today, err := s.dao.FindSnapshot(s.db, u.ID, day)
	s.Require().NoError(err)
	s.Require().Equal(int64(25), today.DailyScore)
	s.Require().True(today.SiteVisited)

	prev, err := s.dao.LastSnapshotBefore(s.db, u.ID, day)
	s.Require().NoError(err)
	s.Require().Equal(int64(5), prev.DailyScore)

	none, err := s.dao.LastSnapshotBefore(s.db, u.ID, day-86400)
	s.Require().NoError(err)
	s.Require().Nil(none)

	latest, err := s.dao.LatestDay(s.db)
	s.Require().NoError(err)
	s.Require().Equal(day, latest)

	rows, err := s.dao.ListScoresOfDay(s.db, day)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Require().Equal("core1abc", rows[0].Address)
}

func (s *DAOSuite) TestOrderingAndCounts() {
	scores := map[string]int64{"core1a": 300, "core1b": 100, "core1c": 300, "core1d": 0}
	for _, addr := range []string{"core1a", "core1b", "core1c", "core1d"} {
		_, p, _, err := s.dao.EnsureProfile(s.db, addr, s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.dao.UpdateProfile(s.db, p.ID, map[string]interface{}{"total_score": scores[addr]}))
	}

	all, err := s.dao.ListProfilesByScore(s.db)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	s.Require().Equal([]int64{300, 300, 100, 0},
		[]int64{all[0].TotalScore, all[1].TotalScore, all[2].TotalScore, all[3].TotalScore})
	s.Require().Less(all[0].ID, all[1].ID)

	higher, err := s.dao.CountProfilesWithScoreGreater(s.db, 100)
	s.Require().NoError(err)
	s.Require().Equal(int64(2), higher)

	total, err := s.dao.CountProfiles(s.db)
	s.Require().NoError(err)
	s.Require().Equal(int64(4), total)

	s.Require().NoError(s.dao.UpdateProfile(s.db, all[3].ID, map[string]interface{}{"is_sleeping": true, "sleep_until": s.now}))
	awake, err := s.dao.ListAwakeProfiles(s.db)
	s.Require().NoError(err)
	s.Require().Len(awake, 3)
	sleeping, err := s.dao.ListSleepingProfiles(s.db)
	s.Require().NoError(err)
	s.Require().Len(sleeping, 1)
	s.Require().Equal("core1d", sleeping[0].Address)
	s.Require().Equal(s.now, sleeping[0].SleepUntil)

	s.Require().NoError(s.dao.SetClass(s.db, all[0].ID, types.ClassAdult))
	counts, err := s.dao.CountProfilesByClass(s.db)
	s.Require().NoError(err)
	s.Require().Equal(int64(1), counts[types.ClassAdult])
	s.Require().Equal(int64(2), counts[types.ClassBaby])
	s.Require().Equal(int64(0), counts[types.ClassTeen])

	s.Require().ErrorIs(s.dao.UpdateProfile(s.db, 9999, map[string]interface{}{"class": types.ClassTeen}), db.ErrNotFound)
}

func (s *DAOSuite) TestSetProfileNameIsCaseInsensitive() {
	for _, addr := range []string{"core1a", "core1b"} {
		_, _, _, err := s.dao.EnsureProfile(s.db, addr, s.now)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.dao.SetProfileName(s.db, "core1a", "Speedy"))
	s.Require().ErrorIs(s.dao.SetProfileName(s.db, "core1b", "speedy"), db.ErrNameTaken)
	// renaming to the same name in another case is fine
	s.Require().NoError(s.dao.SetProfileName(s.db, "core1a", "SPEEDY"))
	s.Require().ErrorIs(s.dao.SetProfileName(s.db, "core1zzz", "x"), db.ErrNotFound)
}

func (s *DAOSuite) TestSiteVisitCreatesProfile() {
	p, err := s.dao.RecordSiteVisit(s.db, "core1new", s.now)
	s.Require().NoError(err)
	s.Require().Equal(s.now, p.LastSiteVisit)

	detail, err := s.dao.ProfileDetail(s.db, "core1new", s.now)
	s.Require().NoError(err)
	s.Require().Equal(s.now, detail.Profile.LastSiteVisit)
	s.Require().Nil(detail.LastSnapshot)
	s.Require().Empty(detail.Boosts)
}

func (s *DAOSuite) TestBoostsAndRequests() {
	_, p, _, err := s.dao.EnsureProfile(s.db, "core1a", s.now)
	s.Require().NoError(err)

	req := &sloth.BoostRequest{ProfileID: p.ID, Platform: "x", ProofURL: "https://x.com/a/status/1", Status: types.BoostPending}
	s.Require().NoError(s.dao.CreateBoostRequest(s.db, req))
	open, err := s.dao.FindOpenRequest(s.db, p.ID, req.ProofURL)
	s.Require().NoError(err)
	s.Require().Equal(req.ID, open.ID)

	boost := &sloth.Boost{ProfileID: p.ID, Platform: "x", Multiplier: 10, ProofURL: req.ProofURL, ExpiresAt: s.now + 3600}
	s.Require().NoError(s.dao.ApproveBoost(s.db, req, boost))
	stored, err := s.dao.FindBoostRequest(s.db, req.ID)
	s.Require().NoError(err)
	s.Require().Equal(types.BoostApproved, stored.Status)

	used, err := s.dao.ProofURLUsed(s.db, req.ProofURL)
	s.Require().NoError(err)
	s.Require().True(used)

	again := &sloth.BoostRequest{ProfileID: p.ID, Platform: "x", ProofURL: req.ProofURL, Status: types.BoostPending}
	s.Require().NoError(s.dao.CreateBoostRequest(s.db, again))
	dup := &sloth.Boost{ProfileID: p.ID, Platform: "x", Multiplier: 10, ProofURL: req.ProofURL, ExpiresAt: s.now + 3600}
	s.Require().ErrorIs(s.dao.ApproveBoost(s.db, again, dup), db.ErrProofUsed)
	still, err := s.dao.FindBoostRequest(s.db, again.ID)
	s.Require().NoError(err)
	s.Require().Equal(types.BoostPending, still.Status)

	expired := &sloth.Boost{ProfileID: p.ID, Platform: "x", Multiplier: 10, ProofURL: "https://x.com/a/status/2", ExpiresAt: s.now - 1}
	s.Require().NoError(s.db.Create(expired).Error)
	active, err := s.dao.ActiveBoosts(s.db, p.ID, s.now)
	s.Require().NoError(err)
	s.Require().Len(active, 1)

	pending, err := s.dao.PendingBoostRequests(s.db, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Require().Equal(again.ID, pending[0].ID)
}

func (s *DAOSuite) TestPoolMutationsAreAudited() {
	pool, err := s.dao.AddBonus(s.db, decimal.NewFromInt(100), "launch", s.now)
	s.Require().NoError(err)
	s.Require().True(pool.TotalAmount.Equal(decimal.NewFromInt(100)))

	pool, err = s.dao.RecordCommissionClaim(s.db, decimal.RequireFromString("12.5"), "week 1", s.now)
	s.Require().NoError(err)
	s.Require().True(pool.TotalAmount.Equal(decimal.RequireFromString("112.5")))

	pool, err = s.dao.SetPoolTotal(s.db, decimal.NewFromInt(1000), "correction", s.now)
	s.Require().NoError(err)
	s.Require().True(pool.TotalAmount.Equal(decimal.NewFromInt(1000)))

	got, err := s.dao.GetPool(s.db)
	s.Require().NoError(err)
	s.Require().True(got.TotalAmount.Equal(decimal.NewFromInt(1000)))

	_, err = s.dao.AddBonus(s.db, decimal.Zero, "", s.now)
	s.Require().ErrorIs(err, db.ErrInvalidAmount)
	_, err = s.dao.SetPoolTotal(s.db, decimal.NewFromInt(-1), "", s.now)
	s.Require().ErrorIs(err, db.ErrInvalidAmount)

	events, err := s.dao.ListPoolEvents(s.db, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Require().Equal(types.PoolSetTotal, events[0].Kind)
	s.Require().Equal(types.PoolBonus, events[2].Kind)
}

func (s *DAOSuite) TestLock() {
	now := time.Unix(s.now, 0)
	ok, err := s.dao.AcquireLock(s.db, types.LockDailySnapshot, "a", now, time.Hour)
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.dao.AcquireLock(s.db, types.LockDailySnapshot, "b", now.Add(time.Minute), time.Hour)
	s.Require().NoError(err)
	s.Require().False(ok)

	// another lock name is independent
	ok, err = s.dao.AcquireLock(s.db, types.LockBoostVerify, "b", now, time.Hour)
	s.Require().NoError(err)
	s.Require().True(ok)

	// releasing with the wrong holder keeps the lock
	s.Require().NoError(s.dao.ReleaseLock(s.db, types.LockDailySnapshot, "b"))
	ok, err = s.dao.AcquireLock(s.db, types.LockDailySnapshot, "b", now, time.Hour)
	s.Require().NoError(err)
	s.Require().False(ok)

	// an expired lock is taken over
	ok, err = s.dao.AcquireLock(s.db, types.LockDailySnapshot, "b", now.Add(2*time.Hour), time.Hour)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.dao.ReleaseLock(s.db, types.LockDailySnapshot, "b"))
	ok, err = s.dao.AcquireLock(s.db, types.LockDailySnapshot, "c", now, time.Hour)
	s.Require().NoError(err)
	s.Require().True(ok)
}

func (s *DAOSuite) TestResetSeason() {
	u, p, _, err := s.dao.EnsureProfile(s.db, "core1a", s.now)
	s.Require().NoError(err)
	day := s.now - s.now%86400
	s.Require().NoError(s.dao.UpdateProfile(s.db, p.ID, map[string]interface{}{
		"total_score": 500, "restake_streak": 4, "days_awake": 9, "class": types.ClassAdult,
	}))
	s.Require().NoError(s.dao.UpsertSnapshot(s.db, &sloth.DailySnapshot{UserID: u.ID, Day: day - 86400, DailyScore: 5}))
	s.Require().NoError(s.dao.UpsertSnapshot(s.db, &sloth.DailySnapshot{UserID: u.ID, Day: day, DailyScore: 5}))

	n, err := s.dao.ResetSeason(s.db, day)
	s.Require().NoError(err)
	s.Require().Equal(int64(1), n)

	got, err := s.dao.FindProfileByUserID(s.db, u.ID)
	s.Require().NoError(err)
	s.Require().Zero(got.TotalScore)
	s.Require().Zero(got.RestakeStreak)
	s.Require().Equal(types.ClassBaby, got.Class)

	today, err := s.dao.FindSnapshot(s.db, u.ID, day)
	s.Require().NoError(err)
	s.Require().Nil(today)
	prev, err := s.dao.LastSnapshotBefore(s.db, u.ID, day)
	s.Require().NoError(err)
	s.Require().NotNil(prev)
}

func TestDAO(t *testing.T) {
	suite.Run(t, new(DAOSuite))
}
