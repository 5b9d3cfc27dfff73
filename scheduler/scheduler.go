// Package scheduler fires the snapshot and boost verification jobs on cron specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"

	"github.com/coreezy/sloth-race-watcher/boost"
	"github.com/coreezy/sloth-race-watcher/common/config"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	"github.com/coreezy/sloth-race-watcher/snapshot"
)

// SnapshotRunner runs the daily snapshot.
type SnapshotRunner interface {
	Run(ctx context.Context, opts snapshot.Options) (*snapshot.Result, error)
}

// BoostProcessor checks pending boost proofs.
type BoostProcessor interface {
	ProcessPending(ctx context.Context) (boost.Summary, error)
}

// Config holds the cron specs, with seconds, evaluated in UTC. An empty spec disables
// the job.
type Config struct {
	SnapshotSpec string
	BoostSpec    string
}

// ConfigFromEnv reads SNAPSHOT_CRON and BOOST_CRON.
func ConfigFromEnv() Config {
	return Config{
		SnapshotSpec: config.GetString("SNAPSHOT_CRON", "0 5 0 * * *"),
		BoostSpec:    config.GetString("BOOST_CRON", "0 0 * * * *"),
	}
}

// job skips a tick while its previous one is still running. Cross-process overlap is
// left to the database lock of the job itself.
type job struct {
	name    string
	entry   cron.EntryID
	running atomic.Bool
	skipped atomic.Int64
	run     func(ctx context.Context) error
}

type Scheduler struct {
	ctx      context.Context
	logger   logging.Logger
	cron     *cron.Cron
	snapshot *job
	boost    *job
}

func NewScheduler(ctx context.Context, logger logging.Logger, cfg Config, snapshots SnapshotRunner,
	boosts BoostProcessor) (*Scheduler, error) {
	s := &Scheduler{
		ctx:    ctx,
		logger: logger,
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
	}
	if cfg.SnapshotSpec != "" && snapshots != nil {
		s.snapshot = &job{name: "snapshot", run: func(ctx context.Context) error {
			res, err := snapshots.Run(ctx, snapshot.Options{})
			if errors.Is(err, snapshot.ErrRunInProgress) {
				logger.Warn("snapshot already running elsewhere")
				return nil
			}
			if err == nil {
				logger.Info("scheduled snapshot processed=%d failed=%d", res.Processed, res.Failed)
			}
			return err
		}}
		id, err := s.cron.AddFunc(cfg.SnapshotSpec, func() { s.fire(s.snapshot) })
		if err != nil {
			return nil, fmt.Errorf("snapshot cron %q: %w", cfg.SnapshotSpec, err)
		}
		s.snapshot.entry = id
	}
	if cfg.BoostSpec != "" && boosts != nil {
		s.boost = &job{name: "boost", run: func(ctx context.Context) error {
			_, err := boosts.ProcessPending(ctx)
			if errors.Is(err, boost.ErrVerifyBusy) {
				return nil
			}
			return err
		}}
		id, err := s.cron.AddFunc(cfg.BoostSpec, func() { s.fire(s.boost) })
		if err != nil {
			return nil, fmt.Errorf("boost cron %q: %w", cfg.BoostSpec, err)
		}
		s.boost.entry = id
	}
	return s, nil
}

// fire runs j unless its previous tick is still busy. It reports whether j ran.
func (s *Scheduler) fire(j *job) bool {
	if !j.running.CAS(false, true) {
		n := j.skipped.Inc()
		s.logger.Warn("%s tick skipped, previous run still busy (%d skipped)", j.name, n)
		return false
	}
	defer j.running.Store(false)
	if err := j.run(s.ctx); err != nil {
		s.logger.Error("%s job: %v", j.name, err)
	}
	return true
}

// Run starts the cron and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run() error {
	s.logger.Info("scheduler started with %d jobs", len(s.cron.Entries()))
	s.cron.Start()
	<-s.ctx.Done()
	s.logger.Info("scheduler receives shutdown signal.")
	<-s.cron.Stop().Done()
	return nil
}

// Next returns the next fire time after now of every job, by name.
func (s *Scheduler) Next(now time.Time) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, j := range []*job{s.snapshot, s.boost} {
		if j == nil {
			continue
		}
		if e := s.cron.Entry(j.entry); e.Valid() {
			out[j.name] = e.Schedule.Next(now.UTC())
		}
	}
	return out
}
