// Package snapshot runs the daily race snapshot: score every delegator once per UTC
// day, then put departed delegators to sleep and wake returning ones.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coreezy/sloth-race-watcher/chain"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	database "github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/metrics"
	"github.com/coreezy/sloth-race-watcher/race"
	"github.com/coreezy/sloth-race-watcher/types"
)

var ErrRunInProgress = errors.New("snapshot run already in progress")

// Options of a single run.
type Options struct {
	// RecalculateClasses re-bands every profile after scoring. Meant for season starts.
	RecalculateClasses bool
}

// Result summarises a run.
type Result struct {
	RunID               string    `json:"runId"`
	Day                 int64     `json:"day"`
	Processed           int       `json:"processed"`
	NewUsers            int       `json:"newUsers"`
	RestakeCount        int       `json:"restakeCount"`
	ClassesRecalculated bool      `json:"classesRecalculated"`
	ClassChanges        int       `json:"classChanges"`
	Slept               int       `json:"slept"`
	Woken               int       `json:"woken"`
	Failed              int       `json:"failed"`
	Partial             bool      `json:"partial"`
	Timestamp           time.Time `json:"timestamp"`
}

// Orchestrator owns the daily snapshot run.
type Orchestrator struct {
	db         *gorm.DB
	dao        *database.DAO
	source     chain.Source
	validator  string
	cfg        *race.Config
	engine     *race.Engine
	classifier *race.Classifier
	lockTTL    time.Duration
	now        func() time.Time
	logger     logging.Logger
}

// Option tunes an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLockTTL bounds how long a crashed run keeps others out.
func WithLockTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.lockTTL = ttl }
}

// New builds an orchestrator scoring the delegators of validator read from source.
func New(db *gorm.DB, source chain.Source, validator string, cfg *race.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		db:         db,
		dao:        database.NewDAO(),
		source:     source,
		validator:  validator,
		cfg:        cfg,
		engine:     race.NewEngine(cfg.Scoring),
		classifier: race.NewClassifier(cfg.Classes),
		lockTTL:    2 * time.Hour,
		now:        time.Now,
		logger:     logging.NewLoggerTag("snapshot"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one snapshot for the current UTC day. Only one run at a time is admitted
// across processes; a concurrent call gets ErrRunInProgress. A failing delegator is
// rolled back, logged and counted without stopping the run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := o.now().UTC()
	res := &Result{
		RunID:     uuid.NewString(),
		Day:       race.DayOf(start),
		Timestamp: start,
	}
	logger := o.logger.WithLabel("run", res.RunID)

	ok, err := o.dao.AcquireLock(o.db, types.LockDailySnapshot, res.RunID, start, o.lockTTL)
	if err != nil {
		metrics.Race().ObserveRun("error", 0)
		return nil, err
	}
	if !ok {
		metrics.Race().ObserveRun("busy", 0)
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := o.dao.ReleaseLock(o.db, types.LockDailySnapshot, res.RunID); err != nil {
			logger.Error("release lock: %v", err)
		}
	}()

	if err = o.run(ctx, logger, opts, res); err != nil {
		metrics.Race().ObserveRun("error", 0)
		return res, err
	}
	metrics.Race().ObserveRun("ok", o.now().Sub(start))
	logger.Info("snapshot done %+v", *res)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, logger logging.Logger, opts Options, res *Result) error {
	set := o.source.FetchDelegators(ctx, o.validator)
	res.Partial = set.Partial
	logger.Info("scoring %d delegators for day %d", len(set.Items), res.Day)

	for _, d := range set.Items {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("snapshot interrupted after %d delegators: %w", res.Processed, err)
		}
		var out delegatorOutcome
		err := database.WithTransaction(ctx, o.db, func(tx *gorm.DB) (err error) {
			out, err = o.scoreDelegator(tx, d, res.Timestamp, res.Day)
			return err
		})
		if err != nil {
			res.Failed++
			metrics.Race().ObserveDelegator("failed")
			logger.Error("delegator %s: %v", d.Address, err)
			continue
		}
		res.Processed++
		metrics.Race().ObserveDelegator("ok")
		if out.created {
			res.NewUsers++
		}
		if out.restake {
			res.RestakeCount++
		}
		if out.woke {
			res.Woken++
		}
	}

	if opts.RecalculateClasses {
		n, err := o.RecalculateClasses(ctx)
		if err != nil {
			return err
		}
		res.ClassesRecalculated = true
		res.ClassChanges = n
	}

	present := set.Addresses()
	if set.Partial {
		logger.Warn("delegator set is partial, sleeping pass skipped")
	} else {
		res.Slept = o.sleepAbsent(ctx, logger, present, res.Timestamp, res.Day)
	}
	res.Woken += o.wakeReturned(ctx, logger, present, res.Timestamp)
	metrics.Race().ObserveSleep("asleep", res.Slept)
	metrics.Race().ObserveSleep("awake", res.Woken)
	return nil
}

type delegatorOutcome struct {
	created bool
	restake bool
	woke    bool
}

func (o *Orchestrator) scoreDelegator(tx *gorm.DB, d chain.Delegator, now time.Time, day int64) (delegatorOutcome, error) {
	var out delegatorOutcome
	nowUnix := now.Unix()

	u, p, created, err := o.dao.EnsureProfile(tx, d.Address, nowUnix)
	if err != nil {
		return out, err
	}
	if !created {
		// visits and name changes may touch the profile while the run scores it
		if p, err = o.dao.LockProfile(tx, p.ID); err != nil {
			return out, err
		}
	}
	out.created = created
	out.woke = p.IsSleeping

	prev, err := o.dao.LastSnapshotBefore(tx, u.ID, day)
	if err != nil {
		return out, err
	}
	today, err := o.dao.FindSnapshot(tx, u.ID, day)
	if err != nil {
		return out, err
	}
	var previousAmount int64
	if prev != nil {
		previousAmount = prev.DelegationAmount
	}

	current := d.Units()
	// With no prior snapshot the previous delegation is zero, so a first delegation
	// counts as a restake too.
	restaking := o.engine.IsRestake(current, o.engine.Units(previousAmount))
	visited := o.engine.SiteVisited(p.LastSiteVisit, now)

	boosts, err := o.dao.ActiveBoosts(tx, p.ID, nowUnix)
	if err != nil {
		return out, err
	}
	percents := make([]int64, 0, len(boosts))
	for _, b := range boosts {
		percents = append(percents, b.Multiplier)
	}

	// The streak bonus uses the streak going into today. A rerun reuses the one
	// recorded by the first run of the day.
	streakIn := p.RestakeStreak
	if today != nil && !today.Undelegated {
		streakIn = today.StartStreak
	}
	newStreak := int64(0)
	if restaking {
		newStreak = streakIn + 1
		out.restake = true
	}

	dailyScore := o.engine.ToScore(o.engine.DailyDistance(current, restaking, visited, percents, int(streakIn)))

	// Only the part of today's score not yet credited is added, so reruns never count
	// a day twice and never lower the total.
	var credited int64
	firstAwake := true
	if today != nil {
		credited = today.DailyScore
		firstAwake = today.Undelegated && today.DailyScore == 0
	}
	delta := dailyScore - credited
	if delta < 0 {
		delta = 0
	}

	if err = o.dao.UpsertSnapshot(tx, &sloth.DailySnapshot{
		UserID:           u.ID,
		Day:              day,
		DelegationAmount: d.Amount,
		NetChange:        d.Amount - previousAmount,
		RestakeActive:    restaking,
		SiteVisited:      visited,
		DailyScore:       credited + delta,
		StartStreak:      streakIn,
	}); err != nil {
		return out, err
	}

	fields := map[string]interface{}{
		"total_score":      gorm.Expr("total_score + ?", delta),
		"delegation_score": o.engine.CappedScore(current),
		"restake_streak":   newStreak,
		"is_sleeping":      false,
		"sleep_until":      0,
	}
	if firstAwake {
		fields["days_awake"] = gorm.Expr("days_awake + ?", 1)
	}
	if err = o.dao.UpdateProfile(tx, p.ID, fields); err != nil {
		return out, err
	}

	newJoiner := created || (prev == nil && today == nil && p.DaysAwake == 0)
	if newJoiner {
		if err = o.placeNewJoiner(tx, p, p.TotalScore+delta); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (o *Orchestrator) placeNewJoiner(tx *gorm.DB, p *sloth.Profile, totalScore int64) error {
	higher, err := o.dao.CountProfilesWithScoreGreater(tx, totalScore)
	if err != nil {
		return err
	}
	total, err := o.dao.CountProfiles(tx)
	if err != nil {
		return err
	}
	class, ok := o.classifier.ClassForRank(higher, total)
	if !ok || class == p.Class {
		return nil
	}
	return o.dao.SetClass(tx, p.ID, class)
}

// RecalculateClasses re-bands the whole population by total score and writes only the
// classes that changed. It returns the number of changes.
func (o *Orchestrator) RecalculateClasses(ctx context.Context) (int, error) {
	var changes []race.Change
	err := database.WithTransaction(ctx, o.db, func(tx *gorm.DB) error {
		profiles, err := o.dao.ListProfilesByScore(tx)
		if err != nil {
			return err
		}
		ranked := make([]race.Ranked, len(profiles))
		for i, p := range profiles {
			ranked[i] = race.Ranked{ProfileID: p.ID, Class: p.Class}
		}
		changes = race.Classify(ranked)
		for _, c := range changes {
			if err = o.dao.SetClass(tx, c.ProfileID, c.To); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recalculate classes: %w", err)
	}
	o.logger.Info("recalculated classes, %d changed", len(changes))
	return len(changes), nil
}

// sleepAbsent puts every awake profile that was delegating but is missing from present
// to sleep and records the loss in today's snapshot. A profile was delegating when it
// holds a delegation score or its latest snapshot carries a delegation, which covers
// amounts too small to round to a score.
func (o *Orchestrator) sleepAbsent(ctx context.Context, logger logging.Logger, present map[string]struct{},
	now time.Time, day int64) int {
	awake, err := o.dao.ListAwakeProfiles(o.db.WithContext(ctx))
	if err != nil {
		logger.Error("sleeping pass: %v", err)
		return 0
	}
	sleepUntil := now.Add(o.cfg.SleepDuration).Unix()
	slept := 0
	for _, r := range awake {
		if _, ok := present[r.Address]; ok {
			continue
		}
		delegating := r.DelegationScore > 0
		err = database.WithTransaction(ctx, o.db, func(tx *gorm.DB) error {
			today, err := o.dao.FindSnapshot(tx, r.UserID, day)
			if err != nil {
				return err
			}
			if !delegating {
				last := today
				if last == nil {
					if last, err = o.dao.LastSnapshotBefore(tx, r.UserID, day); err != nil {
						return err
					}
				}
				delegating = last != nil && !last.Undelegated && last.DelegationAmount > 0
			}
			if !delegating {
				return nil
			}
			row := &sloth.DailySnapshot{
				UserID:      r.UserID,
				Day:         day,
				NetChange:   -r.DelegationScore,
				Undelegated: true,
			}
			if today != nil && !today.Undelegated {
				// scored earlier today; keep what was credited
				row.DailyScore = today.DailyScore
				row.StartStreak = today.StartStreak
			}
			if err = o.dao.UpsertSnapshot(tx, row); err != nil {
				return err
			}
			return o.dao.UpdateProfile(tx, r.ProfileID, map[string]interface{}{
				"is_sleeping":    true,
				"sleep_until":    sleepUntil,
				"restake_streak": 0,
			})
		})
		if err != nil {
			logger.Error("put %s to sleep: %v", r.Address, err)
			continue
		}
		if delegating {
			slept++
		}
	}
	return slept
}

// wakeReturned clears the sleep of profiles whose cooldown ended and whose address is
// delegating again. Profiles still undelegated stay asleep. Scoring already wakes every
// present delegator, so this only catches profiles whose scoring failed.
func (o *Orchestrator) wakeReturned(ctx context.Context, logger logging.Logger, present map[string]struct{},
	now time.Time) int {
	sleeping, err := o.dao.ListSleepingProfiles(o.db.WithContext(ctx))
	if err != nil {
		logger.Error("wake pass: %v", err)
		return 0
	}
	woken := 0
	for _, r := range sleeping {
		if _, ok := present[r.Address]; !ok || r.SleepUntil >= now.Unix() {
			continue
		}
		err = o.dao.UpdateProfile(o.db.WithContext(ctx), r.ProfileID, map[string]interface{}{
			"is_sleeping": false,
			"sleep_until": 0,
		})
		if err != nil {
			logger.Error("wake %s: %v", r.Address, err)
			continue
		}
		woken++
	}
	return woken
}
