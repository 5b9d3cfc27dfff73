// Package validator cross-checks the daily scores written to several replicas of the
// race database.
package validator

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/coreezy/sloth-race-watcher/common/logging"
	database "github.com/coreezy/sloth-race-watcher/database/db"
)

const daySeconds = 24 * 60 * 60

var ErrNotReady = errors.New("replica has not reached the day")

type Validator struct {
	OnOK       func(context.Context, int64) error
	OnConflict func(context.Context, int64) error

	config      *Config
	replicas    []*gorm.DB
	dao         *database.DAO
	lastChecked int64
	now         func() time.Time
	logger      logging.Logger
}

// NewValidator dials every url of config.
func NewValidator(config *Config, logger logging.Logger) (*Validator, error) {
	replicas := make([]*gorm.DB, len(config.DatabaseURLs))
	for i, u := range config.DatabaseURLs {
		db, err := database.NewDB(u)
		if err != nil {
			return nil, fmt.Errorf("replica %d: %w", i, err)
		}
		replicas[i] = db
	}
	return NewValidatorWithReplicas(config, replicas, logger), nil
}

// NewValidatorWithReplicas checks already opened databases.
func NewValidatorWithReplicas(config *Config, replicas []*gorm.DB, logger logging.Logger) *Validator {
	return &Validator{
		config:   config,
		replicas: replicas,
		dao:      database.NewDAO(),
		now:      time.Now,
		logger:   logger,
	}
}

// Run checks the last finished day every RoundInterval until ctx is done.
func (v *Validator) Run(ctx context.Context) error {
	interval := v.config.RoundInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	for {
		day := v.now().UTC().Unix()/daySeconds*daySeconds - daySeconds
		if day > v.lastChecked {
			v.logger.Info("going to check snapshot of %v", formatDay(day))
			ok, err := v.Check(ctx, day)
			switch {
			case err != nil:
				v.logger.Warn("error occurs while check snapshots: day=%v, error=%v", formatDay(day), err)
			case ok:
				v.onOK(ctx, day)
				v.lastChecked = day
			default:
				v.onConflict(ctx, day)
			}
		}
		select {
		case <-ctx.Done():
			v.logger.Info("validator receives shutdown signal.")
			return nil
		case <-time.After(interval):
		}
	}
}

// Check reports whether every replica holds the same scores for day.
func (v *Validator) Check(ctx context.Context, day int64) (bool, error) {
	if len(v.replicas) == 0 {
		return false, errors.New("no replicas")
	}
	if err := v.ensureProgress(ctx, day); err != nil {
		return false, err
	}
	return v.compareDigest(ctx, day)
}

// FindSafeDay walks back from endDay to the latest day all replicas agree on.
func (v *Validator) FindSafeDay(ctx context.Context, endDay int64, maxDays int) (int64, error) {
	day := endDay / daySeconds * daySeconds
	for i := 0; i < maxDays; i++ {
		ok, err := v.Check(ctx, day)
		if err != nil {
			return day, fmt.Errorf("error when looking for safe day: day=%v %w", formatDay(day), err)
		}
		if ok {
			return day, nil
		}
		day -= daySeconds
	}
	return 0, fmt.Errorf("no agreeing day within %d days of %v", maxDays, formatDay(endDay))
}

func (v *Validator) onOK(ctx context.Context, day int64) {
	if v.OnOK != nil {
		if err := v.OnOK(ctx, day); err != nil {
			v.logger.Warn("ok hook: %v", err)
		}
	}
	v.logger.Info("all snapshots verified. day=%v", formatDay(day))
}

func (v *Validator) onConflict(ctx context.Context, day int64) {
	if v.OnConflict != nil {
		if err := v.OnConflict(ctx, day); err != nil {
			v.logger.Warn("conflict hook: %v", err)
		}
	}
	v.logger.Warn("found conflict snapshot score checksum. day=%v", formatDay(day))
}

func (v *Validator) ensureProgress(ctx context.Context, day int64) error {
	for i, db := range v.replicas {
		latest, err := v.dao.LatestDay(db.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("progress not ready: replica_index=%v %w", i, err)
		}
		if latest < day {
			return fmt.Errorf("replica=%v latest=%v: %w", i, formatDay(latest), ErrNotReady)
		}
	}
	return nil
}

func (v *Validator) compareDigest(ctx context.Context, day int64) (bool, error) {
	var expect []byte
	for i, db := range v.replicas {
		d, err := v.calcScoreDigest(db.WithContext(ctx), day)
		if err != nil {
			return false, fmt.Errorf("digest of replica %d: %w", i, err)
		}
		if i == 0 {
			expect = d
			continue
		}
		if !bytes.Equal(d, expect) {
			v.logger.Warn("replica %d digest %x differs from %x", i, d, expect)
			return false, nil
		}
	}
	return true, nil
}

func (v *Validator) calcScoreDigest(db *gorm.DB, day int64) ([]byte, error) {
	rows, err := v.dao.ListScoresOfDay(db, day)
	if err != nil {
		return nil, err
	}
	h := md5.New()
	for _, r := range rows {
		h.Write([]byte(r.Address))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(r.DailyScore, 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(r.DelegationAmount, 10)))
		h.Write([]byte{'\n'})
	}
	return h.Sum(nil), nil
}
