package models

// ForeignKeyConstraint defines the required arguments to the AddForeignKey call.
type ForeignKeyConstraint struct {
	Field    string
	Dest     string
	OnDelete string
	OnUpdate string
}

// ForeignKeyConstrainer defines a interface for models that support creating foreign key
// constraints.
type ForeignKeyConstrainer interface {
	ForeignKeyConstraints() []ForeignKeyConstraint
}

// CustomIndex defines index information. Fields may hold expressions such as lower(name).
type CustomIndex struct {
	Name      string
	Unique    bool
	Fields    []string
	Type      string
	Condition string
}

// CustomIndexer defines a interface for models that decouples creating index from Gorm tag
// functionality
type CustomIndexer interface {
	Indexes() []CustomIndex
}

// Base is the base model for all data model. Both columns hold unix seconds.
type Base struct {
	UpdatedAt int64 `gorm:"column:updated_at;type:bigint;autoUpdateTime" json:"-"`
	CreatedAt int64 `gorm:"column:created_at;type:bigint;autoCreateTime" json:"-"`
}
