package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/coreezy/sloth-race-watcher/common/logging"
	"github.com/coreezy/sloth-race-watcher/validator"
)

func main() {
	name := "sloth-race-validator"
	// Initialize logger.
	logging.Initialize(name)
	defer logging.Finalize()
	logger := logging.NewLoggerTag(name)

	// postgres://sloth@localhost:5432/sloth?sslmode=disable
	args := new(validator.Config)
	arg.MustParse(args)
	logger.Info("checking %d replicas every %s", len(args.DatabaseURLs), args.RoundInterval)

	v, err := validator.NewValidator(args, logger)
	if err != nil {
		logger.Error("open replicas: %s", err)
		os.Exit(1)
	}
	ctx, cancelFunc := context.WithCancel(context.Background())

	if args.Day != "" {
		day, err := validator.ParseDay(args.Day)
		if err != nil {
			logger.Error("%s", err)
			os.Exit(1)
		}
		ok, err := v.Check(ctx, day)
		cancelFunc()
		switch {
		case err != nil:
			logger.Error("check %s: %s", args.Day, err)
			os.Exit(1)
		case !ok:
			logger.Warn("replicas disagree on %s", args.Day)
			os.Exit(2)
		}
		logger.Info("replicas agree on %s", args.Day)
		return
	}

	go func() {
		_ = v.Run(ctx)
	}()
	wait(cancelFunc)
}

func wait(stop context.CancelFunc) {
	var exitSignal = make(chan os.Signal, 1)
	signal.Notify(exitSignal, syscall.SIGTERM)
	signal.Notify(exitSignal, syscall.SIGINT)
	<-exitSignal
	stop()
}
