package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/coreezy/sloth-race-watcher/common/config"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	database "github.com/coreezy/sloth-race-watcher/database/db"
	"github.com/coreezy/sloth-race-watcher/database/db/dbtest"
	"github.com/coreezy/sloth-race-watcher/database/models/sloth"
	"github.com/coreezy/sloth-race-watcher/race"
	"github.com/coreezy/sloth-race-watcher/types"
)

func mustDecimal(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type InternalSuite struct {
	suite.Suite
	db      *gorm.DB
	dao     *database.DAO
	clock   time.Time
	handler http.Handler
}

func (s *InternalSuite) SetupTest() {
	config.SetString("ADMIN_SECRET", "admin-secret")
	s.db = dbtest.New(s.T())
	s.dao = database.NewDAO()
	s.clock = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	srv := NewInternalServer(context.Background(), logging.NewLoggerTag("internal-test"), s.db)
	srv.now = func() time.Time { return s.clock }
	s.handler = srv.Handler()
}

func (s *InternalSuite) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *InternalSuite) TestHealthAndMetrics() {
	rec := s.do(http.MethodGet, "/healthCheckup", "", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().JSONEq(`{"message":"alive"}`, rec.Body.String())

	s.Require().Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", "", "").Code)
}

func (s *InternalSuite) TestAdminNeedsSecret() {
	s.Require().Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/pool/bonus", "", `{"amount":"5"}`).Code)
	s.Require().Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/season/reset", "wrong", "").Code)
}

func (s *InternalSuite) TestPoolChanges() {
	rec := s.do(http.MethodPost, "/pool/bonus", "admin-secret", `{"amount":"250.5","note":"sponsor"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/pool/commission", "admin-secret", `{"amount":49.5}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	var pool sloth.PrizePool
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &pool))
	s.Require().True(mustDecimal("300").Equal(pool.TotalAmount))

	s.Require().Equal(http.StatusBadRequest,
		s.do(http.MethodPost, "/pool/bonus", "admin-secret", `{"amount":"-1"}`).Code)
	s.Require().Equal(http.StatusBadRequest,
		s.do(http.MethodPost, "/pool/bonus", "admin-secret", `{"amount":"1","extra":true}`).Code)

	rec = s.do(http.MethodPost, "/pool/total", "admin-secret", `{"amount":"1000"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	got, err := s.dao.GetPool(s.db)
	s.Require().NoError(err)
	s.Require().True(mustDecimal("1000").Equal(got.TotalAmount))

	rec = s.do(http.MethodGet, "/pool/events?limit=10", "admin-secret", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var events []sloth.PrizePoolEvent
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &events))
	s.Require().Len(events, 3)
}

func (s *InternalSuite) TestResetSeason() {
	u, p, _, err := s.dao.EnsureProfile(s.db, "core1a", s.clock.Unix())
	s.Require().NoError(err)
	s.Require().NoError(s.dao.UpdateProfile(s.db, p.ID, map[string]interface{}{
		"total_score": 5000, "restake_streak": 4, "class": types.ClassAdult,
	}))
	today := race.DayOf(s.clock)
	s.Require().NoError(s.dao.UpsertSnapshot(s.db, &sloth.DailySnapshot{UserID: u.ID, Day: today, DailyScore: 5000}))

	s.Require().Equal(http.StatusBadRequest,
		s.do(http.MethodPost, "/season/reset", "admin-secret", `{"fromDay":12345}`).Code)

	rec := s.do(http.MethodPost, "/season/reset", "admin-secret", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	got, err := s.dao.FindProfileByUserID(s.db, u.ID)
	s.Require().NoError(err)
	s.Require().Zero(got.TotalScore)
	s.Require().Zero(got.RestakeStreak)
	s.Require().Equal(types.ClassBaby, got.Class)
	snap, err := s.dao.FindSnapshot(s.db, u.ID, today)
	s.Require().NoError(err)
	s.Require().Nil(snap)
}

func TestInternalServer(t *testing.T) {
	suite.Run(t, new(InternalSuite))
}
