package sloth

import (
	"github.com/coreezy/sloth-race-watcher/database/models"
	"github.com/coreezy/sloth-race-watcher/types"
	"github.com/shopspring/decimal"
)

// PrizePoolID is the id of the single prize pool row.
const PrizePoolID int64 = 1

// PrizePool holds the running prize total.
type PrizePool struct {
	ID          int64           `gorm:"column:id;primaryKey" json:"-"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:decimal(38,6);not null" json:"totalAmount"`
	models.Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*PrizePool) ForeignKeyConstraints() []models.ForeignKeyConstraint {
	return nil
}

// Indexes returns information to create index.
func (*PrizePool) Indexes() []models.CustomIndex {
	return nil
}

// PrizePoolEvent audits one mutation of the prize pool.
type PrizePoolEvent struct {
	ID         int64               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Kind       types.PoolEventKind `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	Amount     decimal.Decimal     `gorm:"column:amount;type:decimal(38,6);not null" json:"amount"`
	TotalAfter decimal.Decimal     `gorm:"column:total_after;type:decimal(38,6);not null" json:"totalAfter"`
	Note       string              `gorm:"column:note;type:varchar(256)" json:"note"`
	Timestamp  int64               `gorm:"column:timestamp;type:bigint;not null;index" json:"timestamp"`
	models.Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*PrizePoolEvent) ForeignKeyConstraints() []models.ForeignKeyConstraint {
	return nil
}

// Indexes returns information to create index.
func (*PrizePoolEvent) Indexes() []models.CustomIndex {
	return nil
}
