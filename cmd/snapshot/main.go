package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/coreezy/sloth-race-watcher/chain"
	cerrors "github.com/coreezy/sloth-race-watcher/common/errors"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	database "github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/race"
	"github.com/coreezy/sloth-race-watcher/snapshot"
	"github.com/coreezy/sloth-race-watcher/types"
)

type args struct {
	RecalculateClasses bool   `arg:"--recalculate-classes" help:"re-band every profile after scoring, for season starts"`
	Validator          string `arg:"--validator,env:VALIDATOR_ADDRESS,required" help:"valoper address whose delegators race"`
	Season             string `arg:"--season,env:SEASON_CONFIG" help:"season tuning yaml"`
}

func main() {
	name := "sloth-snapshot"
	logging.Initialize(name)
	defer logging.Finalize()
	logger := logging.NewLoggerTag(name)
	cerrors.Initialize(logger)
	defer cerrors.Catch()

	var a args
	arg.MustParse(&a)

	season, err := race.LoadConfig(a.Season)
	if err != nil {
		logger.Critical("season config: %s", err)
	}

	database.Initialize()
	defer database.Finalize()
	db := database.GetDB()
	if err = database.Migrate(db, types.Race); err != nil {
		logger.Critical("migrate: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := snapshot.New(db, chain.NewClientFromEnv(), a.Validator, season).
		Run(ctx, snapshot.Options{RecalculateClasses: a.RecalculateClasses})
	if err != nil {
		logger.Error("snapshot failed: %s", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err = enc.Encode(res); err != nil {
		logger.Error("print result: %s", err)
	}
	if res.Failed > 0 {
		os.Exit(2)
	}
}
