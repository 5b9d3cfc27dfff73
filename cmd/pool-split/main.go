package main

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/alexflint/go-arg"
	"github.com/shopspring/decimal"

	"github.com/coreezy/sloth-race-watcher/common/logging"
	database "github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/race"
)

type args struct {
	Output string `arg:"-o,--output" help:"csv path, stdout when empty"`
	Total  string `arg:"--total" help:"split this amount instead of the stored pool total"`
	Season string `arg:"--season,env:SEASON_CONFIG" help:"season tuning yaml"`
}

func main() {
	name := "pool-split"
	logging.Initialize(name)
	defer logging.Finalize()
	logger := logging.NewLoggerTag(name)

	var a args
	arg.MustParse(&a)

	season, err := race.LoadConfig(a.Season)
	if err != nil {
		logger.Critical("season config: %s", err)
	}

	database.Initialize()
	defer database.Finalize()
	db := database.GetDB()
	dao := database.NewDAO()

	var total decimal.Decimal
	if a.Total != "" {
		if total, err = decimal.NewFromString(a.Total); err != nil {
			logger.Critical("invalid --total %q: %s", a.Total, err)
		}
	} else {
		pool, err := dao.GetPool(db)
		if err != nil {
			logger.Critical("read pool: %s", err)
		}
		total = pool.TotalAmount
	}
	counts, err := dao.CountProfilesByClass(db)
	if err != nil {
		logger.Critical("count classes: %s", err)
	}
	breakdown := race.NewPool(season.Pool).Split(total, counts)

	out := os.Stdout
	if a.Output != "" {
		if out, err = os.Create(a.Output); err != nil {
			logger.Critical("create %s: %s", a.Output, err)
		}
		defer out.Close()
	}
	w := csv.NewWriter(out)
	defer w.Flush()

	if err = w.Write([]string{"class", "percent", "pool", "participants", "per_participant"}); err != nil {
		logger.Critical("write csv: %s", err)
	}
	for _, s := range breakdown.Shares {
		row := []string{
			string(s.Class),
			strconv.FormatInt(s.Percent, 10),
			s.Pool.StringFixed(6),
			strconv.FormatInt(s.Participants, 10),
			s.PerParticipant.StringFixed(6),
		}
		if err = w.Write(row); err != nil {
			logger.Critical("write csv: %s", err)
		}
	}
	logger.Info("split %s across %d classes", total, len(breakdown.Shares))
}
