package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/coreezy/sloth-race-watcher/common/config"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	database "github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/metrics"
	"github.com/coreezy/sloth-race-watcher/race"
	"github.com/coreezy/sloth-race-watcher/types"
)

// InternalServer serves health, metrics and the admin routes. It is not meant to be
// exposed publicly.
type InternalServer struct {
	ctx         context.Context
	logger      logging.Logger
	db          *gorm.DB
	dao         *database.DAO
	adminSecret string
	router      chi.Router
	server      *http.Server
	now         func() time.Time
}

// NewInternalServer listens on INTERNAL_ADDR and guards admin routes with ADMIN_SECRET.
func NewInternalServer(ctx context.Context, logger logging.Logger, db *gorm.DB) *InternalServer {
	s := &InternalServer{
		ctx:         ctx,
		logger:      logger,
		db:          db,
		dao:         database.NewDAO(),
		adminSecret: config.GetString("ADMIN_SECRET", ""),
		now:         time.Now,
	}
	s.router = s.buildRouter()
	s.server = &http.Server{
		Addr:         config.GetString("INTERNAL_ADDR", ":9453"),
		WriteTimeout: time.Second * 25,
		Handler:      s.router,
	}
	return s
}

func (s *InternalServer) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthCheckup", s.OnQueryHealthCheckup)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(admin chi.Router) {
		admin.Use(bearerAuth(s.adminSecret, s.logger))
		admin.Get("/pool/events", s.OnQueryPoolEvents)
		admin.Post("/pool/bonus", s.onPoolChange(s.dao.AddBonus))
		admin.Post("/pool/commission", s.onPoolChange(s.dao.RecordCommissionClaim))
		admin.Post("/pool/total", s.onPoolChange(s.dao.SetPoolTotal))
		admin.Post("/season/reset", s.OnResetSeason)
	})
	return r
}

func (s *InternalServer) Handler() http.Handler {
	return s.router
}

func (s *InternalServer) Run() error {
	s.logger.Info("Starting race internal httpserver on %s", s.server.Addr)
	return serve(s.ctx, s.logger, s.server)
}

func (s *InternalServer) OnQueryHealthCheckup(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		s.logger.Warn("health check: %v", err)
		jsonError(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "alive"})
}

type poolReq struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type poolMutation func(db *gorm.DB, amount decimal.Decimal, note string, now int64) (*sloth.PrizePool, error)

func (s *InternalServer) onPoolChange(mutate poolMutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req poolReq
		if err := decodeBody(w, r, &req, false); err != nil {
			jsonError(w, "invalid body", http.StatusBadRequest)
			return
		}
		pool, err := mutate(s.db.WithContext(r.Context()), req.Amount, req.Note, s.now().Unix())
		if err != nil {
			if errors.Is(err, database.ErrInvalidAmount) {
				jsonError(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.logger.Error("pool change %s: %v", r.URL.Path, err)
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.logger.Info("pool %s amount=%s total=%s note=%q", r.URL.Path, req.Amount, pool.TotalAmount, req.Note)
		metrics.Race().SetPoolTotal(pool.TotalAmount.InexactFloat64())
		writeJSON(w, http.StatusOK, pool)
	}
}

func (s *InternalServer) OnQueryPoolEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	events, err := s.dao.ListPoolEvents(s.db.WithContext(r.Context()), limit)
	if err != nil {
		s.logger.Error("pool events: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type resetReq struct {
	// FromDay is a unix UTC midnight; zero means today.
	FromDay int64 `json:"fromDay"`
}

func (s *InternalServer) OnResetSeason(w http.ResponseWriter, r *http.Request) {
	var req resetReq
	if err := decodeBody(w, r, &req, true); err != nil {
		jsonError(w, "invalid body", http.StatusBadRequest)
		return
	}
	fromDay := req.FromDay
	if fromDay == 0 {
		fromDay = race.DayOf(s.now())
	}
	if fromDay != race.DayOf(time.Unix(fromDay, 0)) {
		jsonError(w, "fromDay must be a UTC midnight", http.StatusBadRequest)
		return
	}
	n, err := s.dao.ResetSeason(s.db.WithContext(r.Context()), fromDay)
	if err != nil {
		s.logger.Error("reset season: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.logger.Notice("season reset from %d, %d profiles", fromDay, n)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fromDay":  fromDay,
		"profiles": n,
		"class":    types.ClassBaby,
	})
}
