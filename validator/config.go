package validator

import "time"

type Config struct {
	RoundInterval time.Duration `arg:"env:ROUND_INTERVAL" default:"10m" help:"pause between two checks"`
	DatabaseURLs  []string      `arg:"--db,env:DATABASE_URLS,required" help:"postgres urls of the replicas, the first is the reference"`
	Day           string        `arg:"--day" help:"check one day (YYYY-MM-DD) and exit"`
}
