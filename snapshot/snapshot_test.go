package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/coreezy/sloth-race-watcher/chain"
	database "github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/database/db/dbtest"
	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/race"
	"github.com/coreezy/sloth-race-watcher/types"
)

const micro = 1000000

type stubSource struct {
	set chain.DelegatorSet
}

func (s *stubSource) FetchDelegators(context.Context, string) *chain.DelegatorSet {
	cp := s.set
	cp.Items = append([]chain.Delegator(nil), s.set.Items...)
	return &cp
}

type SnapshotSuite struct {
	suite.Suite
	db     *gorm.DB
	dao    *database.DAO
	source *stubSource
	clock  time.Time
	orch   *Orchestrator
}

func (s *SnapshotSuite) SetupTest() {
	s.db = dbtest.New(s.T())
	s.dao = database.NewDAO()
	s.source = &stubSource{}
	s.clock = time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC)
	s.orch = New(s.db, s.source, "corevaloper1xyz", race.DefaultConfig(),
		WithClock(func() time.Time { return s.clock }))
}

func (s *SnapshotSuite) delegate(pairs ...interface{}) {
	s.source.set = chain.DelegatorSet{}
	for i := 0; i < len(pairs); i += 2 {
		s.source.set.Items = append(s.source.set.Items, chain.Delegator{
			Address: pairs[i].(string),
			Amount:  int64(pairs[i+1].(int)),
		})
	}
}

func (s *SnapshotSuite) run(opts Options) *Result {
	res, err := s.orch.Run(context.Background(), opts)
	s.Require().NoError(err)
	return res
}

func (s *SnapshotSuite) profile(address string) *sloth.Profile {
	u, err := s.dao.FindUserByAddress(s.db, address)
	s.Require().NoError(err)
	p, err := s.dao.FindProfileByUserID(s.db, u.ID)
	s.Require().NoError(err)
	return p
}

func (s *SnapshotSuite) snapshotOf(address string) *sloth.DailySnapshot {
	u, err := s.dao.FindUserByAddress(s.db, address)
	s.Require().NoError(err)
	snap, err := s.dao.FindSnapshot(s.db, u.ID, race.DayOf(s.clock))
	s.Require().NoError(err)
	s.Require().NotNil(snap)
	return snap
}

func (s *SnapshotSuite) nextDay() {
	s.clock = s.clock.Add(24 * time.Hour)
}

func (s *SnapshotSuite) TestFirstRunCreatesAndPlaces() {
	s.delegate("core1a", 10000*micro, "core1b", 5000*micro, "core1c", 20000*micro)
	res := s.run(Options{})

	s.Require().Equal(3, res.Processed)
	s.Require().Equal(3, res.NewUsers)
	// no prior snapshot means a previous delegation of zero
	s.Require().Equal(3, res.RestakeCount)
	s.Require().Zero(res.Failed)
	s.Require().False(res.ClassesRecalculated)

	a := s.profile("core1a")
	// 1000 m x 1.5
	s.Require().Equal(int64(1500000), a.TotalScore)
	s.Require().Equal(int64(10000000), a.DelegationScore)
	s.Require().Equal(int64(1), a.DaysAwake)
	s.Require().Equal(int64(1), a.RestakeStreak)
	s.Require().Equal(types.ClassAdult, a.Class)
	s.Require().Equal(types.ClassTeen, s.profile("core1b").Class)
	s.Require().Equal(types.ClassAdult, s.profile("core1c").Class)

	snap := s.snapshotOf("core1a")
	s.Require().Equal(int64(10000*micro), snap.DelegationAmount)
	s.Require().Equal(int64(10000*micro), snap.NetChange)
	s.Require().True(snap.RestakeActive)
	s.Require().Equal(int64(1500000), snap.DailyScore)
}

func (s *SnapshotSuite) TestSmallFirstDelegationIsNoRestake() {
	s.delegate("core1small", micro/4)
	res := s.run(Options{})
	s.Require().Zero(res.RestakeCount)
	s.Require().False(s.snapshotOf("core1small").RestakeActive)
}

func (s *SnapshotSuite) TestSameDayRerunIsIdempotent() {
	s.delegate("core1a", 10000*micro, "core1b", 5000*micro)
	s.run(Options{})

	s.clock = s.clock.Add(3 * time.Hour)
	res := s.run(Options{})
	s.Require().Equal(2, res.Processed)
	s.Require().Zero(res.NewUsers)

	n, err := s.dao.CountSnapshots(s.db, race.DayOf(s.clock))
	s.Require().NoError(err)
	s.Require().Equal(int64(2), n)

	a := s.profile("core1a")
	s.Require().Equal(int64(1500000), a.TotalScore)
	s.Require().Equal(int64(1), a.DaysAwake)
	s.Require().Equal(int64(1), a.RestakeStreak)
}

func (s *SnapshotSuite) TestRestakeStreak() {
	s.delegate("core1a", 10000*micro)
	s.run(Options{})

	s.Require().Equal(int64(1), s.profile("core1a").RestakeStreak)

	s.nextDay()
	s.delegate("core1a", 10001*micro)
	res := s.run(Options{})
	s.Require().Equal(1, res.RestakeCount)
	a := s.profile("core1a")
	s.Require().Equal(int64(2), a.RestakeStreak)
	// 1000.1 m x 1.5 x 1.02
	s.Require().Equal(int64(1530153), s.snapshotOf("core1a").DailyScore)
	s.Require().Equal(int64(3030153), a.TotalScore)

	// rerun keeps the streak going into the day
	s.run(Options{})
	s.Require().Equal(int64(2), s.profile("core1a").RestakeStreak)
	s.Require().Equal(int64(3030153), s.profile("core1a").TotalScore)

	s.nextDay()
	s.delegate("core1a", 10002*micro)
	s.run(Options{})
	// 1000.2 m x 1.5 x 1.04
	s.Require().Equal(int64(1560312), s.snapshotOf("core1a").DailyScore)
	s.Require().Equal(int64(3), s.profile("core1a").RestakeStreak)

	s.nextDay()
	s.run(Options{})
	s.Require().Zero(s.profile("core1a").RestakeStreak)
	s.Require().Equal(int64(4), s.profile("core1a").DaysAwake)
}

func (s *SnapshotSuite) TestSiteVisitAndBoosts() {
	p, err := s.dao.RecordSiteVisit(s.db, "core1d", s.clock.Add(-time.Hour).Unix())
	s.Require().NoError(err)
	s.Require().NoError(s.db.Create(&sloth.Boost{
		ProfileID: p.ID, Platform: "x", Multiplier: 10,
		ProofURL: "https://x.com/d/status/1", ExpiresAt: s.clock.Add(time.Hour).Unix(),
	}).Error)

	s.delegate("core1d", 10000*micro)
	res := s.run(Options{})
	s.Require().Zero(res.NewUsers)

	snap := s.snapshotOf("core1d")
	s.Require().True(snap.SiteVisited)
	// 1000 m x 1.5 x 1.05 x 1.10
	s.Require().Equal(int64(1732500), snap.DailyScore)
	// first snapshot of a profile made by a site visit still places it
	s.Require().Equal(types.ClassAdult, s.profile("core1d").Class)
}

func (s *SnapshotSuite) TestSleepAndWake() {
	s.delegate("core1a", 10000*micro, "core1b", 5000*micro)
	s.run(Options{})
	s.Require().NoError(s.dao.UpdateProfile(s.db, s.profile("core1b").ID, map[string]interface{}{"restake_streak": 3}))

	s.nextDay()
	s.delegate("core1a", 10000*micro)
	res := s.run(Options{})
	s.Require().Equal(1, res.Slept)

	b := s.profile("core1b")
	s.Require().True(b.IsSleeping)
	s.Require().Equal(s.clock.Add(72*time.Hour).Unix(), b.SleepUntil)
	s.Require().Zero(b.RestakeStreak)
	// 500 m x 1.5 from the first day only
	s.Require().Equal(int64(750000), b.TotalScore)

	snap := s.snapshotOf("core1b")
	s.Require().True(snap.Undelegated)
	s.Require().Zero(snap.DailyScore)
	s.Require().Zero(snap.DelegationAmount)
	s.Require().Equal(int64(-5000000), snap.NetChange)

	// already asleep: not slept again, and stays asleep past the cooldown while absent
	s.clock = s.clock.Add(5 * 24 * time.Hour)
	res = s.run(Options{})
	s.Require().Zero(res.Slept)
	s.Require().Zero(res.Woken)
	s.Require().True(s.profile("core1b").IsSleeping)

	s.nextDay()
	s.delegate("core1a", 10000*micro, "core1b", 5000*micro)
	res = s.run(Options{})
	s.Require().Equal(1, res.Woken)
	b = s.profile("core1b")
	s.Require().False(b.IsSleeping)
	s.Require().Zero(b.SleepUntil)
	s.Require().Equal(int64(2), b.DaysAwake)
	// the undelegated day left a zero delegation behind, so the return counts as growth
	s.Require().True(s.snapshotOf("core1b").RestakeActive)
}

func (s *SnapshotSuite) TestTinyDelegatorSleeps() {
	// too small to round to a delegation score
	s.delegate("core1a", 10000*micro, "core1tiny", 400)
	s.run(Options{})
	s.Require().Zero(s.profile("core1tiny").DelegationScore)

	s.nextDay()
	s.delegate("core1a", 10000*micro)
	res := s.run(Options{})
	s.Require().Equal(1, res.Slept)
	s.Require().True(s.profile("core1tiny").IsSleeping)
	s.Require().True(s.snapshotOf("core1tiny").Undelegated)

	// a profile that never delegated is left alone
	_, err := s.dao.RecordSiteVisit(s.db, "core1visitor", s.clock.Unix())
	s.Require().NoError(err)
	s.nextDay()
	res = s.run(Options{})
	s.Require().Zero(res.Slept)
	s.Require().False(s.profile("core1visitor").IsSleeping)
}

func (s *SnapshotSuite) TestPartialSetSkipsSleep() {
	s.delegate("core1a", 10000*micro, "core1b", 5000*micro)
	s.run(Options{})

	s.nextDay()
	s.delegate("core1a", 10000*micro)
	s.source.set.Partial = true
	res := s.run(Options{})
	s.Require().True(res.Partial)
	s.Require().Zero(res.Slept)
	s.Require().False(s.profile("core1b").IsSleeping)
}

func (s *SnapshotSuite) TestRecalculateClasses() {
	s.delegate("core1a", 10000*micro, "core1b", 5000*micro, "core1c", 20000*micro)
	res := s.run(Options{RecalculateClasses: true})
	s.Require().True(res.ClassesRecalculated)
	s.Require().Equal(2, res.ClassChanges)

	s.Require().Equal(types.ClassAdult, s.profile("core1c").Class)
	s.Require().Equal(types.ClassTeen, s.profile("core1a").Class)
	s.Require().Equal(types.ClassBaby, s.profile("core1b").Class)

	n, err := s.orch.RecalculateClasses(context.Background())
	s.Require().NoError(err)
	s.Require().Zero(n)
}

func (s *SnapshotSuite) TestFailingDelegatorIsRolledBack() {
	s.Require().NoError(s.db.Exec(`CREATE TRIGGER fail_snapshot BEFORE INSERT ON daily_snapshot
		WHEN NEW.delegation_amount = 666 BEGIN SELECT RAISE(ABORT, 'boom'); END`).Error)

	s.delegate("core1a", 10000*micro, "core1bad", 666, "core1c", 20000*micro)
	res := s.run(Options{})
	s.Require().Equal(2, res.Processed)
	s.Require().Equal(1, res.Failed)
	s.Require().Equal(2, res.NewUsers)

	_, err := s.dao.FindUserByAddress(s.db, "core1bad")
	s.Require().ErrorIs(err, database.ErrNotFound)
	s.Require().Equal(int64(3000000), s.profile("core1c").TotalScore)
}

func (s *SnapshotSuite) TestLockHeld() {
	ok, err := s.dao.AcquireLock(s.db, types.LockDailySnapshot, "someone-else", s.clock, time.Hour)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.delegate("core1a", 10000*micro)
	_, err = s.orch.Run(context.Background(), Options{})
	s.Require().ErrorIs(err, ErrRunInProgress)

	// the lock is freed by a finished run
	s.Require().NoError(s.dao.ReleaseLock(s.db, types.LockDailySnapshot, "someone-else"))
	s.run(Options{})
	ok, err = s.dao.AcquireLock(s.db, types.LockDailySnapshot, "next", s.clock, time.Hour)
	s.Require().NoError(err)
	s.Require().True(ok)
}

func TestSnapshot(t *testing.T) {
	suite.Run(t, new(SnapshotSuite))
}
