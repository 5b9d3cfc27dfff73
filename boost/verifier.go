// Package boost verifies social posts submitted as proof and turns them into
// time-boxed score multipliers.
package boost

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"gorm.io/gorm"

	"github.com/coreezy/sloth-race-watcher/common/logging"
	database "github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/metrics"
	"github.com/coreezy/sloth-race-watcher/race"
	"github.com/coreezy/sloth-race-watcher/types"
)

var (
	ErrUnknownPlatform = errors.New("unknown boost platform")
	ErrInvalidProof    = errors.New("proof url does not match the platform")
	ErrProofUsed       = database.ErrProofUsed
	ErrVerifyBusy      = errors.New("boost verification already running")
)

type platformRule struct {
	race.BoostRule
	pattern *regexp.Regexp
}

// postID returns the post id captured from proofURL, "" when it does not match.
func (r *platformRule) postID(proofURL string) string {
	m := r.pattern.FindStringSubmatch(strings.TrimSpace(proofURL))
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Outcome is the verdict on one request.
type Outcome struct {
	RequestID int64             `json:"requestId"`
	Status    types.BoostStatus `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	Boost     *sloth.Boost      `json:"boost,omitempty"`
}

// Summary counts the verdicts of one ProcessPending batch.
type Summary struct {
	Checked  int `json:"checked"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
}

// Verifier owns boost requests from submission to approval.
type Verifier struct {
	db        *gorm.DB
	dao       *database.DAO
	rules     map[string]*platformRule
	provider  EngagementProvider
	used      *lru.Cache
	batchSize int
	lockTTL   time.Duration
	now       func() time.Time
	logger    logging.Logger
}

// Option tunes a Verifier.
type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithBatchSize bounds how many requests one ProcessPending call checks.
func WithBatchSize(n int) Option {
	return func(v *Verifier) { v.batchSize = n }
}

// NewVerifier compiles the platform rules of cfg. usedCacheSize sizes the hot cache of
// proofs known to back a boost.
func NewVerifier(db *gorm.DB, cfg *race.Config, provider EngagementProvider, usedCacheSize int, opts ...Option) (*Verifier, error) {
	rules := make(map[string]*platformRule, len(cfg.Boosts))
	for platform, rule := range cfg.Boosts {
		re, err := regexp.Compile(rule.URLPattern)
		if err != nil {
			return nil, fmt.Errorf("boost platform %s: %w", platform, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("boost platform %s: url pattern has no post id group", platform)
		}
		rules[platform] = &platformRule{BoostRule: rule, pattern: re}
	}
	used, err := lru.New(usedCacheSize)
	if err != nil {
		return nil, err
	}
	v := &Verifier{
		db:        db,
		dao:       database.NewDAO(),
		rules:     rules,
		provider:  provider,
		used:      used,
		batchSize: 100,
		lockTTL:   time.Hour,
		now:       time.Now,
		logger:    logging.NewLoggerTag("boost"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func proofKey(platform, postID string) string {
	return platform + ":" + postID
}

func (v *Verifier) proofUsed(db *gorm.DB, key string) (bool, error) {
	if v.used.Contains(key) {
		return true, nil
	}
	used, err := v.dao.ProofURLUsed(db, key)
	if err != nil {
		return false, err
	}
	if used {
		v.used.Add(key, struct{}{})
	}
	return used, nil
}

// Submit records a pending request of address. Resubmitting an open proof returns the
// existing request.
func (v *Verifier) Submit(ctx context.Context, address, platform, proofURL string) (*sloth.BoostRequest, error) {
	rule, ok := v.rules[platform]
	if !ok {
		return nil, ErrUnknownPlatform
	}
	proofURL = strings.TrimSpace(proofURL)
	id := rule.postID(proofURL)
	if id == "" {
		return nil, ErrInvalidProof
	}
	db := v.db.WithContext(ctx)
	used, err := v.proofUsed(db, proofKey(platform, id))
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrProofUsed
	}

	var req *sloth.BoostRequest
	err = database.WithTransaction(ctx, v.db, func(tx *gorm.DB) error {
		now := v.now().Unix()
		_, p, _, err := v.dao.EnsureProfile(tx, address, now)
		if err != nil {
			return err
		}
		if req, err = v.dao.FindOpenRequest(tx, p.ID, proofURL); err != nil || req != nil {
			return err
		}
		req = &sloth.BoostRequest{
			ProfileID: p.ID,
			Platform:  platform,
			ProofURL:  proofURL,
			Status:    types.BoostPending,
		}
		return v.dao.CreateBoostRequest(tx, req)
	})
	if err != nil {
		return nil, err
	}
	metrics.Race().ObserveBoost(platform, "submitted")
	return req, nil
}

// Verify checks req against its platform and writes the verdict. Requests that are not
// yet engaging enough, or whose platform could not be reached, stay pending with one
// more attempt counted. The error is only set for storage failures.
func (v *Verifier) Verify(ctx context.Context, req *sloth.BoostRequest) (*Outcome, error) {
	db := v.db.WithContext(ctx)
	now := v.now()
	req.LastCheckedAt = now.Unix()
	out := &Outcome{RequestID: req.ID}

	reject := func(reason string) (*Outcome, error) {
		req.Status = types.BoostRejected
		req.Reason = reason
		if err := v.dao.UpdateBoostRequest(db, req); err != nil {
			return nil, err
		}
		out.Status, out.Reason = req.Status, reason
		metrics.Race().ObserveBoost(req.Platform, string(req.Status))
		return out, nil
	}
	retry := func(reason string) (*Outcome, error) {
		req.Status = types.BoostPending
		req.Attempts++
		req.Reason = reason
		if err := v.dao.UpdateBoostRequest(db, req); err != nil {
			return nil, err
		}
		out.Status, out.Reason = req.Status, reason
		metrics.Race().ObserveBoost(req.Platform, string(req.Status))
		return out, nil
	}

	rule, ok := v.rules[req.Platform]
	if !ok {
		return reject("unsupported platform")
	}
	id := rule.postID(req.ProofURL)
	if id == "" {
		return reject("proof url does not match the platform")
	}
	key := proofKey(req.Platform, id)
	used, err := v.proofUsed(db, key)
	if err != nil {
		return nil, err
	}
	if used {
		return reject("proof already used")
	}

	eng, err := v.provider.Engagement(ctx, req.Platform, id)
	if err != nil {
		v.logger.Warn("engagement of %s: %v", key, err)
		return retry(truncate("provider: "+err.Error(), 256))
	}
	text := strings.ToLower(eng.Text)
	var missing []string
	for _, marker := range rule.RequiredMarkers {
		if !strings.Contains(text, strings.ToLower(marker)) {
			missing = append(missing, marker)
		}
	}
	if len(missing) > 0 {
		return reject("missing markers: " + strings.Join(missing, ", "))
	}
	if total := eng.Total(); total < rule.MinEngagement {
		return retry(fmt.Sprintf("engagement %d below %d", total, rule.MinEngagement))
	}

	boost := &sloth.Boost{
		ProfileID:  req.ProfileID,
		Platform:   req.Platform,
		Multiplier: rule.Multiplier,
		ProofURL:   key,
		ExpiresAt:  now.Add(rule.Duration).Unix(),
	}
	req.Reason = ""
	if err = v.dao.ApproveBoost(db, req, boost); err != nil {
		if errors.Is(err, database.ErrProofUsed) {
			v.used.Add(key, struct{}{})
			return reject("proof already used")
		}
		return nil, err
	}
	v.used.Add(key, struct{}{})
	out.Status, out.Boost = types.BoostApproved, boost
	metrics.Race().ObserveBoost(req.Platform, string(types.BoostApproved))
	v.logger.Info("boost approved profile=%d platform=%s x%d%%", req.ProfileID, req.Platform, rule.Multiplier)
	return out, nil
}

// ProcessPending verifies one batch of pending requests, oldest first. Only one batch
// runs at a time across processes.
func (v *Verifier) ProcessPending(ctx context.Context) (Summary, error) {
	var sum Summary
	holder := uuid.NewString()
	ok, err := v.dao.AcquireLock(v.db, types.LockBoostVerify, holder, v.now(), v.lockTTL)
	if err != nil {
		return sum, err
	}
	if !ok {
		return sum, ErrVerifyBusy
	}
	defer func() {
		if err := v.dao.ReleaseLock(v.db, types.LockBoostVerify, holder); err != nil {
			v.logger.Error("release lock: %v", err)
		}
	}()

	reqs, err := v.dao.PendingBoostRequests(v.db.WithContext(ctx), v.batchSize)
	if err != nil {
		return sum, err
	}
	for _, req := range reqs {
		if err = ctx.Err(); err != nil {
			return sum, err
		}
		out, err := v.Verify(ctx, req)
		if err != nil {
			v.logger.Error("verify request %d: %v", req.ID, err)
			continue
		}
		sum.Checked++
		switch out.Status {
		case types.BoostApproved:
			sum.Approved++
		case types.BoostRejected:
			sum.Rejected++
		default:
			sum.Pending++
		}
	}
	if sum.Checked > 0 {
		v.logger.Info("boost batch %+v", sum)
	}
	return sum, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
