package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func testAddress(t require.TestingT, prefix string, seed byte) string {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	addr, err := EncodeAddress(prefix, raw)
	require.NoError(t, err)
	return addr
}

type record struct {
	address string
	amount  string
}

func pageBody(records []record, nextKey string) []byte {
	type entry struct {
		Delegation map[string]string `json:"delegation"`
		Balance    map[string]string `json:"balance"`
	}
	body := map[string]interface{}{}
	entries := []entry{}
	for _, r := range records {
		entries = append(entries, entry{
			Delegation: map[string]string{"delegator_address": r.address},
			Balance:    map[string]string{"denom": "ucore", "amount": r.amount},
		})
	}
	body["delegation_responses"] = entries
	if nextKey == "" {
		body["pagination"] = map[string]interface{}{"next_key": nil}
	} else {
		body["pagination"] = map[string]interface{}{"next_key": nextKey}
	}
	raw, _ := json.Marshal(body)
	return raw
}

type ChainSuite struct {
	suite.Suite
	pages map[string][]byte
	fail  map[string]bool
	mu    sync.Mutex
	seen  []string
	srv   *httptest.Server
}

func (s *ChainSuite) SetupTest() {
	s.pages = map[string][]byte{}
	s.fail = map[string]bool{}
	s.seen = nil
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/validators/corevaloper1xyz/delegations") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		key := r.URL.Query().Get("pagination.key")
		s.mu.Lock()
		s.seen = append(s.seen, key)
		s.mu.Unlock()
		if s.fail[key] {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(s.pages[key])
	}))
}

func (s *ChainSuite) TearDownTest() {
	s.srv.Close()
}

func (s *ChainSuite) seenKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func (s *ChainSuite) client() *Client {
	return NewClient(s.srv.URL, "core", WithPageLimit(2), WithRateLimit(1000))
}

func (s *ChainSuite) TestFollowsPagination() {
	a, b, c := testAddress(s.T(), "core", 1), testAddress(s.T(), "core", 2), testAddress(s.T(), "core", 3)
	s.pages[""] = pageBody([]record{{a, "1000000"}, {b, "2500000"}}, "k1")
	s.pages["k1"] = pageBody([]record{{c, "7"}, {a, "1"}}, "")

	set := s.client().FetchDelegators(context.Background(), "corevaloper1xyz")
	s.Require().False(set.Partial)
	s.Require().Equal(2, set.Pages)
	s.Require().Equal([]string{"", "k1"}, s.seenKeys())
	s.Require().Len(set.Items, 3)
	s.Require().Equal(Delegator{Address: a, Amount: 1000001}, set.Items[0])
	s.Require().Equal("2.5", set.Items[1].Units().String())
	s.Require().Contains(set.Addresses(), c)
}

func (s *ChainSuite) TestSkipsMalformedRecords() {
	good := testAddress(s.T(), "core", 1)
	s.pages[""] = pageBody([]record{
		{good, "10"},
		{testAddress(s.T(), "cosmos", 2), "10"},
		{"core1notbech32", "10"},
		{testAddress(s.T(), "core", 3), "-5"},
		{testAddress(s.T(), "core", 4), "1.5"},
		{testAddress(s.T(), "core", 5), ""},
	}, "")

	set := s.client().FetchDelegators(context.Background(), "corevaloper1xyz")
	s.Require().False(set.Partial)
	s.Require().Equal(5, set.Skipped)
	s.Require().Equal([]Delegator{{Address: good, Amount: 10}}, set.Items)
}

func (s *ChainSuite) TestFailedPageKeepsWhatWasRead() {
	a := testAddress(s.T(), "core", 1)
	s.pages[""] = pageBody([]record{{a, "10"}}, "k1")
	s.fail["k1"] = true

	set := s.client().FetchDelegators(context.Background(), "corevaloper1xyz")
	s.Require().True(set.Partial)
	s.Require().Len(set.Items, 1)
}

func (s *ChainSuite) TestEmptyPageStops() {
	a := testAddress(s.T(), "core", 1)
	s.pages[""] = pageBody([]record{{a, "10"}}, "k1")
	s.pages["k1"] = pageBody(nil, "k2")
	s.pages["k2"] = pageBody([]record{{testAddress(s.T(), "core", 9), "10"}}, "")

	// the api still had a page to give, so the set cannot be complete
	set := s.client().FetchDelegators(context.Background(), "corevaloper1xyz")
	s.Require().True(set.Partial)
	s.Require().Len(set.Items, 1)
	s.Require().Equal(2, set.Pages)
	s.Require().Equal([]string{"", "k1"}, s.seenKeys())
}

func (s *ChainSuite) TestEmptyLastPageIsComplete() {
	a := testAddress(s.T(), "core", 1)
	s.pages[""] = pageBody([]record{{a, "10"}}, "k1")
	s.pages["k1"] = pageBody(nil, "")

	set := s.client().FetchDelegators(context.Background(), "corevaloper1xyz")
	s.Require().False(set.Partial)
	s.Require().Len(set.Items, 1)
}

func (s *ChainSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	set := s.client().FetchDelegators(ctx, "corevaloper1xyz")
	s.Require().True(set.Partial)
	s.Require().Empty(set.Items)
}

func TestChain(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func TestValidateAddress(t *testing.T) {
	addr := testAddress(t, "core", 7)
	require.NoError(t, ValidateAddress(addr, "core"))
	require.Error(t, ValidateAddress(addr, "cosmos"))
	last := "q"
	if strings.HasSuffix(addr, "q") {
		last = "p"
	}
	require.Error(t, ValidateAddress(addr[:len(addr)-1]+last, "core"))
	short, err := EncodeAddress("core", []byte{1, 2, 3})
	require.NoError(t, err)
	require.Error(t, ValidateAddress(short, "core"))
}
