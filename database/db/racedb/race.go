package racedb

import (
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coreezy/sloth-race-watcher/common/logging"
	"github.com/coreezy/sloth-race-watcher/database/models"
	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/types"
)

var logger = logging.NewLoggerTag("database")

// RaceDBApp is the database application of the sloth race.
type RaceDBApp struct {
}

// Models returns the models for a given database app.
func (e *RaceDBApp) Models() []interface{} {
	return sloth.AllModels
}

// IsEmpty check if a given database is empty.
func (e *RaceDBApp) IsEmpty(db *gorm.DB) bool {
	return !db.Migrator().HasTable(&sloth.Profile{})
}

// PreReset is executed before db is reset.
func (e *RaceDBApp) PreReset(tx *gorm.DB) error {
	return nil
}

// PostReset bumps the schema version and makes sure the prize pool row exists.
func (e *RaceDBApp) PostReset(tx *gorm.DB) error {
	if err := initSchemaVersion(tx); err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&sloth.PrizePool{
		ID:          sloth.PrizePoolID,
		TotalAmount: decimal.Zero,
	}).Error
}

func initSchemaVersion(db *gorm.DB) error {
	var result models.System
	var v int
	err := db.Where("name = ?", types.SysVarSchemaVersion).Order("id desc").First(&result).Error
	if err == nil {
		if v, err = strconv.Atoi(result.Value); err != nil {
			logger.Warn("bad schema_version %q, restart from 1", result.Value)
			v = 0
		}
	}
	if res := db.Create(&models.System{
		Name:  types.SysVarSchemaVersion,
		Value: strconv.Itoa(v + 1),
	}); res.Error != nil {
		return res.Error
	}
	logger.Info("Initialized DB Schema version to %v.", v+1)
	return nil
}
