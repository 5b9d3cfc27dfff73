package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coreezy/sloth-race-watcher/api"
	"github.com/coreezy/sloth-race-watcher/boost"
	"github.com/coreezy/sloth-race-watcher/chain"
	"github.com/coreezy/sloth-race-watcher/common/config"
	cerrors "github.com/coreezy/sloth-race-watcher/common/errors"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	database "github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/env"
	"github.com/coreezy/sloth-race-watcher/race"
	"github.com/coreezy/sloth-race-watcher/scheduler"
	"github.com/coreezy/sloth-race-watcher/snapshot"
	"github.com/coreezy/sloth-race-watcher/types"
	"github.com/coreezy/sloth-race-watcher/validator"
)

func main() {
	name := "sloth-race-watcher"
	// Initialize logger.
	logging.Initialize(name)
	defer logging.Finalize()
	logger := logging.NewLoggerTag(name)

	// Setup panic handler.
	cerrors.Initialize(logger)
	defer cerrors.Catch()

	season, err := race.LoadConfig(config.GetString("SEASON_CONFIG", ""))
	if err != nil {
		logger.Critical("season config: %s", err)
	}
	logger.Info("%s started, season %s", name, season.Season)

	database.Initialize()
	defer database.Finalize()
	db := database.GetDB()
	if env.ResetDatabase() {
		database.Reset(db, types.Race, true)
	} else if err = database.Migrate(db, types.Race); err != nil {
		logger.Critical("migrate: %s", err)
	}

	backgroundCtx, stop := context.WithCancel(context.Background())
	go WaitExitSignal(stop, logger)
	group, ctx := errgroup.WithContext(backgroundCtx)

	orchestrator := snapshot.New(db, chain.NewClientFromEnv(), config.GetString("VALIDATOR_ADDRESS"), season,
		snapshot.WithLockTTL(config.GetDuration("SNAPSHOT_LOCK_TTL", 2*time.Hour)))
	verifier, err := boost.NewVerifier(db, season, boost.NewHTTPProviderFromEnv(),
		config.GetInt("BOOST_USED_CACHE_SIZE", 4096),
		boost.WithBatchSize(config.GetInt("BOOST_BATCH_SIZE", 100)))
	if err != nil {
		logger.Critical("boost verifier: %s", err)
	}

	server := api.NewServer(ctx, logger, db, api.ServerConfigFromEnv(), season, orchestrator, verifier)
	group.Go(func() error {
		return server.Run()
	})

	internalServer := api.NewInternalServer(ctx, logger, db)
	group.Go(func() error {
		return internalServer.Run()
	})

	sch, err := scheduler.NewScheduler(ctx, logger, scheduler.ConfigFromEnv(), orchestrator, verifier)
	if err != nil {
		logger.Critical("scheduler: %s", err)
	}
	group.Go(func() error {
		return sch.Run()
	})
	for job, next := range sch.Next(time.Now()) {
		logger.Info("%s job next runs at %s", job, next.Format(time.RFC3339))
	}

	if env.ValidatorEnabled() {
		vld, err := validator.NewValidator(
			&validator.Config{
				RoundInterval: config.GetDuration("VALIDATOR_ROUND_INTERVAL", 10*time.Minute),
				DatabaseURLs:  optional("DB_ARGS", "BACKUP_DB_ARGS"),
			},
			logger,
		)
		if err != nil {
			logger.Warn("fail to start validate service, ignored: %s", err)
		} else {
			group.Go(func() error {
				return vld.Run(ctx)
			})
		}
	}

	if err := group.Wait(); err != nil {
		logger.Critical("service stopped: %s", err)
	}
}

func WaitExitSignal(ctxStop context.CancelFunc, logger logging.Logger) {
	var exitSignal = make(chan os.Signal, 1)
	signal.Notify(exitSignal, syscall.SIGTERM)
	signal.Notify(exitSignal, syscall.SIGINT)

	sig := <-exitSignal
	logger.Info("caught sig: %+v, Stopping...", sig)
	ctxStop()
}

func optional(names ...string) []string {
	var res []string
	for _, n := range names {
		if s := config.GetString(n, ""); s != "" {
			res = append(res, s)
		}
	}
	return res
}
