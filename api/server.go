package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/coreezy/sloth-race-watcher/boost"
	"github.com/coreezy/sloth-race-watcher/chain"
	"github.com/coreezy/sloth-race-watcher/common/config"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	database "github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/race"
	"github.com/coreezy/sloth-race-watcher/snapshot"
	"github.com/coreezy/sloth-race-watcher/types"
)

// SnapshotRunner runs the daily snapshot.
type SnapshotRunner interface {
	Run(ctx context.Context, opts snapshot.Options) (*snapshot.Result, error)
}

// BoostSubmitter queues boost proofs for verification.
type BoostSubmitter interface {
	Submit(ctx context.Context, address, platform, proofURL string) (*sloth.BoostRequest, error)
}

var profileName = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// ServerConfig is the public listener setup.
type ServerConfig struct {
	Addr          string
	CronSecret    string
	AddressPrefix string
	// EstimateDays is the horizon of the distance projection on profiles.
	EstimateDays int
}

// ServerConfigFromEnv reads API_ADDR, CRON_SECRET, ADDRESS_PREFIX and ESTIMATE_DAYS.
func ServerConfigFromEnv() ServerConfig {
	return ServerConfig{
		Addr:          config.GetString("API_ADDR", ":9487"),
		CronSecret:    config.GetString("CRON_SECRET", ""),
		AddressPrefix: config.GetString("ADDRESS_PREFIX", "core"),
		EstimateDays:  config.GetInt("ESTIMATE_DAYS", 7),
	}
}

// Server is the public race api.
type Server struct {
	ctx       context.Context
	logger    logging.Logger
	db        *gorm.DB
	dao       *database.DAO
	cfg       ServerConfig
	engine    *race.Engine
	pool      *race.Pool
	snapshots SnapshotRunner
	boosts    BoostSubmitter
	router    chi.Router
	server    *http.Server
	now       func() time.Time
}

func NewServer(ctx context.Context, logger logging.Logger, db *gorm.DB, cfg ServerConfig, season *race.Config,
	snapshots SnapshotRunner, boosts BoostSubmitter) *Server {
	s := &Server{
		ctx:       ctx,
		logger:    logger,
		db:        db,
		dao:       database.NewDAO(),
		cfg:       cfg,
		engine:    race.NewEngine(season.Scoring),
		pool:      race.NewPool(season.Pool),
		snapshots: snapshots,
		boosts:    boosts,
		now:       time.Now,
	}
	s.router = s.buildRouter()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Minute,
		Handler:      s.router,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.With(bearerAuth(s.cfg.CronSecret, s.logger)).Post("/snapshot", s.OnSnapshot)
		api.Post("/visit", s.OnVisit)
		api.Post("/profile/name", s.OnSetName)
		api.Post("/boost", s.OnSubmitBoost)
		api.Get("/profile/{address}", s.OnQueryProfile)
		api.Get("/leaderboard", s.OnQueryLeaderboard)
		api.Get("/pool", s.OnQueryPool)
	})
	return r
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	s.logger.Info("Starting race api httpserver on %s", s.server.Addr)
	return serve(s.ctx, s.logger, s.server)
}

type snapshotReq struct {
	RecalculateClasses bool `json:"recalculateClasses"`
}

type SnapshotResp struct {
	RunID               string    `json:"runId"`
	Processed           int       `json:"processed"`
	NewUsers            int       `json:"newUsers"`
	RestakeCount        int       `json:"restakeCount"`
	ClassesRecalculated bool      `json:"classesRecalculated"`
	Failed              int       `json:"failed"`
	Timestamp           time.Time `json:"timestamp"`
}

func (s *Server) OnSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotReq
	if err := decodeBody(w, r, &req, true); err != nil {
		jsonError(w, "invalid body", http.StatusBadRequest)
		return
	}
	// the run outlives a caller that hangs up
	ctx := context.WithoutCancel(r.Context())
	res, err := s.snapshots.Run(ctx, snapshot.Options{RecalculateClasses: req.RecalculateClasses})
	if err != nil {
		if errors.Is(err, snapshot.ErrRunInProgress) {
			jsonError(w, err.Error(), http.StatusConflict)
			return
		}
		s.logger.Error("snapshot run: %v", err)
		jsonError(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, SnapshotResp{
		RunID:               res.RunID,
		Processed:           res.Processed,
		NewUsers:            res.NewUsers,
		RestakeCount:        res.RestakeCount,
		ClassesRecalculated: res.ClassesRecalculated,
		Failed:              res.Failed,
		Timestamp:           res.Timestamp,
	})
}

func (s *Server) validAddress(w http.ResponseWriter, address string) bool {
	if err := chain.ValidateAddress(address, s.cfg.AddressPrefix); err != nil {
		s.logger.Debug("reject address %q: %v", address, err)
		jsonError(w, "invalid address", http.StatusBadRequest)
		return false
	}
	return true
}

type visitReq struct {
	Address string `json:"address"`
}

func (s *Server) OnVisit(w http.ResponseWriter, r *http.Request) {
	var req visitReq
	if err := decodeBody(w, r, &req, false); err != nil {
		jsonError(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !s.validAddress(w, req.Address) {
		return
	}
	var p *sloth.Profile
	err := database.WithTransaction(r.Context(), s.db, func(tx *gorm.DB) (err error) {
		p, err = s.dao.RecordSiteVisit(tx, req.Address, s.now().Unix())
		return err
	})
	if err != nil {
		s.logger.Error("record visit of %s: %v", req.Address, err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":       req.Address,
		"lastSiteVisit": p.LastSiteVisit,
	})
}

type nameReq struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

func (s *Server) OnSetName(w http.ResponseWriter, r *http.Request) {
	var req nameReq
	if err := decodeBody(w, r, &req, false); err != nil {
		jsonError(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !s.validAddress(w, req.Address) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !profileName.MatchString(req.Name) {
		jsonError(w, "name must be 3 to 20 letters, digits or underscores", http.StatusBadRequest)
		return
	}
	err := s.dao.SetProfileName(s.db.WithContext(r.Context()), req.Address, req.Name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, req)
	case errors.Is(err, database.ErrNotFound):
		jsonError(w, "profile not found", http.StatusNotFound)
	case errors.Is(err, database.ErrNameTaken):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("set name of %s: %v", req.Address, err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

type boostReq struct {
	Address  string `json:"address"`
	Platform string `json:"platform"`
	ProofURL string `json:"proofUrl"`
}

func (s *Server) OnSubmitBoost(w http.ResponseWriter, r *http.Request) {
	var req boostReq
	if err := decodeBody(w, r, &req, false); err != nil {
		jsonError(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !s.validAddress(w, req.Address) {
		return
	}
	br, err := s.boosts.Submit(r.Context(), req.Address, req.Platform, req.ProofURL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, br)
	case errors.Is(err, boost.ErrUnknownPlatform), errors.Is(err, boost.ErrInvalidProof):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, boost.ErrProofUsed):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("submit boost of %s: %v", req.Address, err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// ProfileResp is the public view of a racer. Meters are score / 1000.
type ProfileResp struct {
	Address         string               `json:"address"`
	Name            *string              `json:"name"`
	Class           types.Class          `json:"class"`
	TotalScore      int64                `json:"totalScore"`
	TotalMeters     decimal.Decimal      `json:"totalMeters"`
	DelegationScore int64                `json:"delegationScore"`
	RestakeStreak   int64                `json:"restakeStreak"`
	DaysAwake       int64                `json:"daysAwake"`
	IsSleeping      bool                 `json:"isSleeping"`
	SleepUntil      int64                `json:"sleepUntil"`
	LastSiteVisit   int64                `json:"lastSiteVisit"`
	JoinedAt        int64                `json:"joinedAt"`
	Boosts          []sloth.Boost        `json:"boosts"`
	LastSnapshot    *sloth.DailySnapshot `json:"lastSnapshot"`
	EstimateDays    int                  `json:"estimateDays"`
	EstimatedMeters decimal.Decimal      `json:"estimatedMeters"`
}

func meters(score int64) decimal.Decimal {
	return decimal.New(score, -3)
}

func (s *Server) OnQueryProfile(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !s.validAddress(w, address) {
		return
	}
	now := s.now()
	d, err := s.dao.ProfileDetail(s.db.WithContext(r.Context()), address, now.Unix())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			jsonError(w, "profile not found", http.StatusNotFound)
			return
		}
		s.logger.Error("profile of %s: %v", address, err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	p := d.Profile
	resp := ProfileResp{
		Address:         d.User.Address,
		Name:            p.Name,
		Class:           p.Class,
		TotalScore:      p.TotalScore,
		TotalMeters:     meters(p.TotalScore),
		DelegationScore: p.DelegationScore,
		RestakeStreak:   p.RestakeStreak,
		DaysAwake:       p.DaysAwake,
		IsSleeping:      p.IsSleeping,
		SleepUntil:      p.SleepUntil,
		LastSiteVisit:   p.LastSiteVisit,
		JoinedAt:        p.JoinedAt,
		Boosts:          d.Boosts,
		LastSnapshot:    d.LastSnapshot,
		EstimateDays:    s.cfg.EstimateDays,
		EstimatedMeters: decimal.Zero,
	}
	if d.LastSnapshot != nil && !d.LastSnapshot.Undelegated && !p.IsSleeping {
		percents := make([]int64, 0, len(d.Boosts))
		for _, b := range d.Boosts {
			percents = append(percents, b.Multiplier)
		}
		resp.EstimatedMeters = s.engine.EstimateDistance(s.engine.Units(d.LastSnapshot.DelegationAmount),
			d.LastSnapshot.RestakeActive, s.engine.SiteVisited(p.LastSiteVisit, now), percents,
			int(p.RestakeStreak), s.cfg.EstimateDays).Round(3)
	}
	writeJSON(w, http.StatusOK, resp)
}

type leaderboardEntry struct {
	Rank        int             `json:"rank"`
	ProfileID   int64           `json:"profileId"`
	Name        *string         `json:"name"`
	Class       types.Class     `json:"class"`
	TotalScore  int64           `json:"totalScore"`
	TotalMeters decimal.Decimal `json:"totalMeters"`
	IsSleeping  bool            `json:"isSleeping"`
}

func (s *Server) OnQueryLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	class := types.Class(strings.ToUpper(q.Get("class")))
	if class != "" && class != types.ClassAdult && class != types.ClassTeen && class != types.ClassBaby {
		jsonError(w, "unknown class", http.StatusBadRequest)
		return
	}
	offset, err1 := queryInt(q.Get("offset"), 0)
	limit, err2 := queryInt(q.Get("limit"), 50)
	if err1 != nil || err2 != nil || offset < 0 || limit <= 0 || limit > 200 {
		jsonError(w, "invalid offset or limit", http.StatusBadRequest)
		return
	}
	profiles, err := s.dao.Leaderboard(s.db.WithContext(r.Context()), class, offset, limit)
	if err != nil {
		s.logger.Error("leaderboard: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	entries := make([]leaderboardEntry, 0, len(profiles))
	for i, p := range profiles {
		entries = append(entries, leaderboardEntry{
			Rank:        offset + i + 1,
			ProfileID:   p.ID,
			Name:        p.Name,
			Class:       p.Class,
			TotalScore:  p.TotalScore,
			TotalMeters: meters(p.TotalScore),
			IsSleeping:  p.IsSleeping,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func queryInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) OnQueryPool(w http.ResponseWriter, r *http.Request) {
	db := s.db.WithContext(r.Context())
	pool, err := s.dao.GetPool(db)
	if err != nil {
		s.logger.Error("get pool: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	counts, err := s.dao.CountProfilesByClass(db)
	if err != nil {
		s.logger.Error("count classes: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.pool.Split(pool.TotalAmount, counts))
}
