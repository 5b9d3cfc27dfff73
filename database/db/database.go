package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/coreezy/sloth-race-watcher/common/config"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	"github.com/coreezy/sloth-race-watcher/database/db/racedb"
	"github.com/coreezy/sloth-race-watcher/database/models"
	"github.com/coreezy/sloth-race-watcher/env"
	"github.com/coreezy/sloth-race-watcher/types"
)

// Host specifies the database host.
type Host string

// Host enums.
const (
	Default Host = "default"
	Master  Host = "master"
)

var logger = logging.NewLoggerTag("database")

var dbMap map[Host]*gorm.DB
var dbMapMutex sync.Mutex

var dbName = fmt.Sprintf("test_%v", time.Now().UnixNano())

// Open wraps a dialector with the shared gorm settings: singular table names, silent
// gorm logging and driver errors translated into gorm sentinels.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
}

// NewDB dials postgres with args and applies the connection pool limits.
func NewDB(args string) (db *gorm.DB, err error) {
	db, err = Open(postgres.Open(args))
	if err != nil {
		logger.Warn("failed to open gorm db err=%v", err)
		return
	}
	var sqlDB *sql.DB
	sqlDB, err = db.DB()
	if err != nil {
		logger.Warn("failed to get sql.DB from gorm db err=%v", err)
		return
	}

	sqlDB.SetMaxIdleConns(config.GetInt("DB_MAX_IDLE_CONNS", 4))
	sqlDB.SetMaxOpenConns(config.GetInt("DB_MAX_OPEN_CONNS", 16))
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	return
}

// Initialize only creates the connection instances, it doesn't reset or migrate anything.
// In CI a throwaway database is created and used as Default.
func Initialize(extraHosts ...Host) {
	dbMapMutex.Lock()
	defer dbMapMutex.Unlock()

	hosts := append(extraHosts, Default)
	if dbMap == nil {
		dbMap = make(map[Host]*gorm.DB)
	}

	for _, host := range hosts {
		if _, e := dbMap[host]; !e {
			logger.Info("Initializing %s database ...", host)
			dbMap[host] = dialDB(host)
		}
	}

	if env.IsCI() {
		if str := config.GetString("DBNAME", ""); str != "" {
			dbName = str
		}
		if err := dbMap[Default].Exec("CREATE DATABASE " + dbName).Error; err != nil {
			logger.Warn("create database: %v", err)
		}
		closeAll()

		req, err := url.Parse(config.GetString("DB_ARGS"))
		if err != nil {
			panic(err)
		}
		req.Path = "/" + dbName
		logger.Info("Dial to %s", req.Redacted())

		db, err := NewDB(req.String())
		if err != nil {
			logger.Critical(err.Error())
		}
		dbMap[Default] = db
	}
	logger.Info("Initialize DONE")
}

// Finalize closes every database handle.
func Finalize() {
	dbMapMutex.Lock()
	defer dbMapMutex.Unlock()
	closeAll()
}

func closeAll() {
	for key, db := range dbMap {
		sqlDB, err := db.DB()
		if err != nil {
			logger.Warn("failed to get sql.DB of %s, err=%v", key, err)
			continue
		}
		if err = sqlDB.Close(); err != nil {
			logger.Warn("failed to close %s db, err=%v", key, err)
		}
		delete(dbMap, key)
	}
}

// GetDB returns the database handle, dialing it on first use.
func GetDB(host ...Host) *gorm.DB {
	if len(host) > 1 {
		panic("invalid usage of GetDB")
	}

	target := Default
	if len(host) == 1 {
		target = host[0]
	}

	dbMapMutex.Lock()
	ret := dbMap[target]
	dbMapMutex.Unlock()
	if ret != nil {
		return ret
	}

	Initialize(target)

	dbMapMutex.Lock()
	ret = dbMap[target]
	dbMapMutex.Unlock()
	if ret == nil {
		panic("gets nil db: " + target)
	}
	return ret
}

func dbAppFromType(appType types.AppType) (dbApp DBApp) {
	switch appType {
	case types.Race:
		dbApp = &racedb.RaceDBApp{}
	default:
		panic("undefined application environment")
	}
	return
}

// Reset drops the tables of the app and migrates them again. Without force it refuses
// to touch a database that already holds data.
func Reset(db *gorm.DB, appType types.AppType, force bool) {
	dbApp := dbAppFromType(appType)

	if !force && !dbApp.IsEmpty(db) {
		logger.Critical("race database exists, reset aborted.")
	}

	logger.Info("Resetting database ...")
	if err := dbApp.PreReset(db); err != nil {
		logger.Warn("pre reset: %v", err)
	}
	dropAllTables(db, dbApp)

	if err := migrate(db, dbApp); err != nil {
		panic(err)
	}
	logger.Info("Reset Done")
}

// Migrate creates missing tables, custom indices and constraints for the app and runs
// its post reset hook. It is safe on an existing schema.
func Migrate(db *gorm.DB, appType types.AppType) error {
	return migrate(db, dbAppFromType(appType))
}

func migrate(db *gorm.DB, dbApp DBApp) error {
	logger.Info("Creating models ...")
	err := Transaction(db, func(tx *gorm.DB) error {
		for _, model := range dbApp.Models() {
			if e := tx.AutoMigrate(model); e != nil {
				return fmt.Errorf("auto migrate %T: %w", model, e)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return Transaction(db, func(tx *gorm.DB) error {
		logger.Info("Creating indices and constraints ...")
		stmt := &gorm.Statement{DB: db}
		for _, v := range dbApp.Models() {
			if e := stmt.Parse(v); e != nil {
				return fmt.Errorf("parse model %T: %w", v, e)
			}
			tableName := stmt.Schema.Table
			if e := CreateCustomIndices(tx, v, tableName); e != nil {
				return e
			}
			// ALTER TABLE ... ADD CONSTRAINT is postgres only.
			if tx.Dialector.Name() != "postgres" {
				continue
			}
			if e := CreateForeignKeyConstraintsSelf(tx, v, tableName); e != nil {
				return e
			}
		}
		logger.Info("Running post reset hook ...")
		return dbApp.PostReset(tx)
	})
}

func dialDB(host Host) *gorm.DB {
	var args string
	switch host {
	case Default, Master:
		args = config.GetString("DB_ARGS")
	}
	db, err := NewDB(args)
	if err != nil {
		logger.Critical(err.Error())
	}
	return db
}

// Transaction runs body in a transaction, rolling back on error or panic.
func Transaction(db *gorm.DB, body func(*gorm.DB) error) (err error) {
	tx := db.Begin()
	if tx.Error != nil {
		logger.Error("Transaction: Cannot open transaction %s", tx.Error.Error())
		return tx.Error
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("Transaction: rollback due to panic: %v\n%s",
				recovered, string(debug.Stack()))
			if rbErr := tx.Rollback().Error; rbErr != nil {
				logger.Error("Transaction: rollback failed: %v", rbErr)
			}
			panic(recovered)
		}
		if err != nil {
			logger.Warn("Transaction: rollback due to error: %v", err)
			if rbErr := tx.Rollback().Error; rbErr != nil {
				logger.Error("Transaction: rollback failed: %v", rbErr)
			}
		}
	}()

	if err = body(tx); err != nil {
		return err
	}
	return tx.Commit().Error
}

// DeleteAllData empties every table of the app, children first. Used by tests that keep
// the schema between cases.
func DeleteAllData(db *gorm.DB, appType types.AppType) error {
	dbApp := dbAppFromType(appType)
	return Transaction(db, func(tx *gorm.DB) error {
		allModels := dbApp.Models()
		stmt := &gorm.Statement{DB: db}
		for i := len(allModels) - 1; i >= 0; i-- {
			if err := stmt.Parse(allModels[i]); err != nil {
				return err
			}
			if err := tx.Exec(fmt.Sprintf(`DELETE FROM "%v"`, stmt.Schema.Table)).Error; err != nil {
				return err
			}
		}
		return dbApp.PostReset(tx)
	})
}

// CreateCustomIndices creates custom indices if model implements models.CustomIndexer.
func CreateCustomIndices(tx *gorm.DB, model interface{}, tableName string) error {
	m, ok := model.(models.CustomIndexer)
	if !ok {
		return nil
	}
	for _, idx := range m.Indexes() {
		unique := ""
		using := ""
		if idx.Unique {
			unique = "UNIQUE"
		}
		if len(idx.Type) != 0 {
			using = "USING " + idx.Type
		}
		stat := fmt.Sprintf(`CREATE %s INDEX IF NOT EXISTS %s_%s ON "%s" %s(%s) %s`,
			unique, tableName, idx.Name, tableName, using, strings.Join(idx.Fields, ","), idx.Condition)
		if err := tx.Exec(stat).Error; err != nil {
			return fmt.Errorf("create index %s_%s: %w", tableName, idx.Name, err)
		}
	}
	return nil
}

var fkNameCleaner = regexp.MustCompile("(_*[^a-zA-Z]+_*|_+)")

func buildForeignKeyName(tableName, field, dest string) string {
	keyName := fmt.Sprintf("%s_%s_%s_foreign", tableName, field, dest)
	return fkNameCleaner.ReplaceAllString(keyName, "_")
}

// CreateForeignKeyConstraintsSelf creates foreign key constraints if model implements
// models.ForeignKeyConstrainer. Existing constraints are left alone.
func CreateForeignKeyConstraintsSelf(tx *gorm.DB, model interface{}, tableName string) error {
	m, ok := model.(models.ForeignKeyConstrainer)
	if !ok {
		return nil
	}
	for _, c := range m.ForeignKeyConstraints() {
		keyName := buildForeignKeyName(tableName, c.Field, c.Dest)
		if tx.Migrator().HasConstraint(model, keyName) {
			continue
		}
		err := tx.Exec(fmt.Sprintf(`ALTER TABLE IF EXISTS "%s" ADD CONSTRAINT %s FOREIGN KEY (%s) `+
			`REFERENCES %s ON DELETE %s ON UPDATE %s`,
			tableName, keyName, c.Field, c.Dest, c.OnDelete, c.OnUpdate)).Error
		if err != nil {
			return fmt.Errorf("create constraint %s: %w", keyName, err)
		}
	}
	return nil
}

func dropAllTables(db *gorm.DB, dbApp DBApp) {
	logger.Info("Dropping old tables ...")
	err := Transaction(db, func(tx *gorm.DB) error {
		stmt := &gorm.Statement{DB: db}
		for _, model := range dbApp.Models() {
			if err := stmt.Parse(model); err != nil {
				return err
			}
			if stmt.Schema.Table == "system" {
				logger.Info("Skip system table")
				continue
			}
			q := fmt.Sprintf(`DROP TABLE IF EXISTS "%s" CASCADE`, stmt.Schema.Table)
			if err := tx.Exec(q).Error; err != nil {
				return fmt.Errorf("exec '%s': %w", q, err)
			}
		}
		return nil
	})
	if err != nil {
		panic(err)
	}
}
