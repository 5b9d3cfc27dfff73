package db

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/types"
)

type PoolDAO struct {
}

// GetPool returns the prize pool, a zero pool if the row was never written.
func (pd *PoolDAO) GetPool(db *gorm.DB) (*sloth.PrizePool, error) {
	var p sloth.PrizePool
	err := db.Where("id = ?", sloth.PrizePoolID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &sloth.PrizePool{ID: sloth.PrizePoolID, TotalAmount: decimal.Zero}, nil
		}
		return nil, fmt.Errorf("get prize pool: %w", err)
	}
	return &p, nil
}

// AddBonus adds a positive amount to the pool.
func (pd *PoolDAO) AddBonus(db *gorm.DB, amount decimal.Decimal, note string, now int64) (*sloth.PrizePool, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return pd.mutate(db, types.PoolBonus, amount, note, now, func(cur decimal.Decimal) decimal.Decimal {
		return cur.Add(amount)
	})
}

// RecordCommissionClaim adds a claimed validator commission to the pool.
func (pd *PoolDAO) RecordCommissionClaim(db *gorm.DB, amount decimal.Decimal, note string, now int64) (*sloth.PrizePool, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return pd.mutate(db, types.PoolCommission, amount, note, now, func(cur decimal.Decimal) decimal.Decimal {
		return cur.Add(amount)
	})
}

// SetPoolTotal overwrites the pool total.
func (pd *PoolDAO) SetPoolTotal(db *gorm.DB, amount decimal.Decimal, note string, now int64) (*sloth.PrizePool, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return pd.mutate(db, types.PoolSetTotal, amount, note, now, func(decimal.Decimal) decimal.Decimal {
		return amount
	})
}

func (pd *PoolDAO) mutate(db *gorm.DB, kind types.PoolEventKind, amount decimal.Decimal, note string,
	now int64, apply func(decimal.Decimal) decimal.Decimal) (*sloth.PrizePool, error) {
	var pool sloth.PrizePool
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", sloth.PrizePoolID).First(&pool).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			pool = sloth.PrizePool{ID: sloth.PrizePoolID, TotalAmount: decimal.Zero}
			err = tx.Create(&pool).Error
		}
		if err != nil {
			return fmt.Errorf("load prize pool: %w", err)
		}
		pool.TotalAmount = apply(pool.TotalAmount)
		if err = tx.Model(&sloth.PrizePool{}).Where("id = ?", sloth.PrizePoolID).
			Update("total_amount", pool.TotalAmount).Error; err != nil {
			return fmt.Errorf("update prize pool: %w", err)
		}
		return tx.Create(&sloth.PrizePoolEvent{
			Kind:       kind,
			Amount:     amount,
			TotalAfter: pool.TotalAmount,
			Note:       note,
			Timestamp:  now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// ListPoolEvents returns the latest audit rows, newest first.
func (pd *PoolDAO) ListPoolEvents(db *gorm.DB, limit int) ([]*sloth.PrizePoolEvent, error) {
	var events []*sloth.PrizePoolEvent
	if err := db.Order("id desc").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list pool events: %w", err)
	}
	return events, nil
}

// CountProfilesByClass counts the awake profiles of every class. Sleeping sloths are
// not racing and take no share.
func (pd *PoolDAO) CountProfilesByClass(db *gorm.DB) (map[types.Class]int64, error) {
	type row struct {
		Class types.Class
		N     int64
	}
	var rows []row
	err := db.Model(&sloth.Profile{}).Select("class, count(*) AS n").
		Where("is_sleeping = ?", false).Group("class").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count profiles by class: %w", err)
	}
	counts := make(map[types.Class]int64, len(types.Classes))
	for _, c := range types.Classes {
		counts[c] = 0
	}
	for _, r := range rows {
		counts[r.Class] = r.N
	}
	return counts, nil
}
