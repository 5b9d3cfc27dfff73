package db

import (
	"errors"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrNameTaken     = errors.New("profile name already taken")
	ErrInvalidAmount = errors.New("invalid pool amount")
	ErrProofUsed     = errors.New("proof url already used")
)

// DAO bundles every accessor of the race store. Each method takes the *gorm.DB to run
// on, so the same DAO serves plain handles and open transactions.
type DAO struct {
	ProfileDAO
	SnapshotDAO
	BoostDAO
	PoolDAO
	LockDAO
}

// NewDAO returns a ready DAO.
func NewDAO() *DAO {
	return &DAO{}
}
