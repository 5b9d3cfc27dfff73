package db

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type TransactionFunc = func(db *gorm.DB) error

// WithTransaction runs p in a transaction bound to ctx. Unlike Transaction it stays
// quiet on rollback; callers that loop over many units of work log the error themselves.
func WithTransaction(ctx context.Context, db *gorm.DB, p TransactionFunc, opts ...*sql.TxOptions) (err error) {
	tx := db.WithContext(ctx).Begin(opts...)
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	if err = p(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}
