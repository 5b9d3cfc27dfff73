package models

import (
	"github.com/coreezy/sloth-race-watcher/types"
)

// System defines the table to store system variables.
type System struct {
	Base

	ID    int64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name  types.SysVar `gorm:"column:name;type:varchar(50);not null;index" json:"-"`
	Value string       `gorm:"column:value;type:varchar(512)" json:"-"`
}
