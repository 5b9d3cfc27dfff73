package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/types"
)

type BoostDAO struct {
}

// ActiveBoosts returns the boosts of profile still running at now.
func (bd *BoostDAO) ActiveBoosts(db *gorm.DB, profileID, now int64) ([]sloth.Boost, error) {
	var boosts []sloth.Boost
	if err := db.Where("profile_id = ? AND expires_at > ?", profileID, now).
		Order("id asc").Find(&boosts).Error; err != nil {
		return nil, fmt.Errorf("active boosts of profile %d: %w", profileID, err)
	}
	return boosts, nil
}

// ProofURLUsed reports whether proofURL already backs an approved boost.
func (bd *BoostDAO) ProofURLUsed(db *gorm.DB, proofURL string) (bool, error) {
	var n int64
	if err := db.Model(&sloth.Boost{}).Where("proof_url = ?", proofURL).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check proof %s: %w", proofURL, err)
	}
	return n > 0, nil
}

// FindOpenRequest returns a pending request of profile for proofURL, nil when none.
func (bd *BoostDAO) FindOpenRequest(db *gorm.DB, profileID int64, proofURL string) (*sloth.BoostRequest, error) {
	var r sloth.BoostRequest
	err := db.Where("profile_id = ? AND proof_url = ? AND status = ?", profileID, proofURL, types.BoostPending).
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open request: %w", err)
	}
	return &r, nil
}

func (bd *BoostDAO) CreateBoostRequest(db *gorm.DB, r *sloth.BoostRequest) error {
	if err := db.Create(r).Error; err != nil {
		return fmt.Errorf("create boost request: %w", err)
	}
	return nil
}

func (bd *BoostDAO) FindBoostRequest(db *gorm.DB, id int64) (*sloth.BoostRequest, error) {
	var r sloth.BoostRequest
	if err := db.First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find boost request %d: %w", id, err)
	}
	return &r, nil
}

// PendingBoostRequests returns up to limit pending requests, oldest first.
func (bd *BoostDAO) PendingBoostRequests(db *gorm.DB, limit int) ([]*sloth.BoostRequest, error) {
	var reqs []*sloth.BoostRequest
	if err := db.Where("status = ?", types.BoostPending).Order("id asc").Limit(limit).Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("pending boost requests: %w", err)
	}
	return reqs, nil
}

// UpdateBoostRequest writes status, attempts, reason and check time of r.
func (bd *BoostDAO) UpdateBoostRequest(db *gorm.DB, r *sloth.BoostRequest) error {
	err := db.Model(&sloth.BoostRequest{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
		"status":          r.Status,
		"attempts":        r.Attempts,
		"reason":          r.Reason,
		"last_checked_at": r.LastCheckedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("update boost request %d: %w", r.ID, err)
	}
	return nil
}

// ApproveBoost creates boost and marks r approved atomically. A proof url that already
// backs a boost yields ErrProofUsed.
func (bd *BoostDAO) ApproveBoost(db *gorm.DB, r *sloth.BoostRequest, boost *sloth.Boost) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(boost).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrProofUsed
			}
			return fmt.Errorf("create boost: %w", err)
		}
		r.Status = types.BoostApproved
		return bd.UpdateBoostRequest(tx, r)
	})
}
