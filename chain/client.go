// Package chain reads the delegator set of a validator from a Cosmos SDK REST api.
package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/coreezy/sloth-race-watcher/common/config"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	"github.com/coreezy/sloth-race-watcher/metrics"
	utils "github.com/coreezy/sloth-race-watcher/utils/http"
)

const microPerUnit = 1000000

// Delegator is one delegation to the validator. Amount is in micro units.
type Delegator struct {
	Address string
	Amount  int64
}

// Units returns the delegation in principal units.
func (d Delegator) Units() decimal.Decimal {
	return decimal.New(d.Amount, 0).Div(decimal.NewFromInt(microPerUnit))
}

// DelegatorSet is the outcome of one read. Partial is set when a page failed and the
// set may miss delegators.
type DelegatorSet struct {
	Items   []Delegator
	Partial bool
	Skipped int
	Pages   int
}

// Addresses returns the set of addresses in the read.
func (s *DelegatorSet) Addresses() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Items))
	for _, d := range s.Items {
		out[d.Address] = struct{}{}
	}
	return out
}

// Source produces the delegator set of a validator.
type Source interface {
	FetchDelegators(ctx context.Context, validator string) *DelegatorSet
}

type delegationsPage struct {
	DelegationResponses []struct {
		Delegation struct {
			DelegatorAddress string `json:"delegator_address"`
		} `json:"delegation"`
		Balance struct {
			Denom  string `json:"denom"`
			Amount string `json:"amount"`
		} `json:"balance"`
	} `json:"delegation_responses"`
	Pagination struct {
		NextKey *string `json:"next_key"`
	} `json:"pagination"`
}

// Client walks the paginated delegations endpoint.
type Client struct {
	http      utils.IHttpClient
	limiter   *rate.Limiter
	prefix    string
	pageLimit int
	maxPages  int
	logger    logging.Logger
}

// Option tunes a Client.
type Option func(*Client)

// WithPageLimit sets the page size requested from the api.
func WithPageLimit(n int) Option {
	return func(c *Client) { c.pageLimit = n }
}

// WithRateLimit caps requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// NewClient reads delegations from baseURL, accepting addresses with prefix.
func NewClient(baseURL, prefix string, opts ...Option) *Client {
	logger := logging.NewLoggerTag("chain")
	c := &Client{
		http:      utils.NewHttpClient(nil, logger, baseURL, config.GetDuration("HTTP_TIMEOUT", 15*time.Second)),
		limiter:   rate.NewLimiter(rate.Limit(5), 1),
		prefix:    prefix,
		pageLimit: 200,
		maxPages:  10000,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromEnv builds a client from CHAIN_REST_URL, ADDRESS_PREFIX,
// CHAIN_PAGE_LIMIT and CHAIN_REQUESTS_PER_SECOND.
func NewClientFromEnv() *Client {
	return NewClient(config.GetString("CHAIN_REST_URL"), config.GetString("ADDRESS_PREFIX", "core"),
		WithPageLimit(config.GetInt("CHAIN_PAGE_LIMIT", 200)),
		WithRateLimit(config.GetFloat64("CHAIN_REQUESTS_PER_SECOND", 5)))
}

// FetchDelegators follows next_key until the api reports no more pages. A failed or
// empty page ends the walk; whatever was read is returned. The set is marked partial
// unless the api said there was nothing left. It never fails.
func (c *Client) FetchDelegators(ctx context.Context, validator string) *DelegatorSet {
	set := &DelegatorSet{}
	index := make(map[string]int)
	path := fmt.Sprintf("/cosmos/staking/v1beta1/validators/%s/delegations", validator)
	key := ""
	for {
		if set.Pages >= c.maxPages {
			c.logger.Warn("stop after %d pages, next_key=%s", set.Pages, key)
			set.Partial = true
			break
		}
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Warn("rate limiter: %v", err)
			set.Partial = true
			break
		}
		params := []utils.KeyValue{{Key: "pagination.limit", Value: strconv.Itoa(c.pageLimit)}}
		if key != "" {
			params = append(params, utils.KeyValue{Key: "pagination.key", Value: key})
		}
		var page delegationsPage
		if err := c.http.GetJSON(ctx, path, params, nil, &page); err != nil {
			c.logger.Warn("fetch delegations page %d of %s: %v", set.Pages+1, validator, err)
			metrics.Race().ObserveChainPage(false)
			set.Partial = true
			break
		}
		metrics.Race().ObserveChainPage(true)
		set.Pages++
		if len(page.DelegationResponses) == 0 {
			if page.Pagination.NextKey != nil && *page.Pagination.NextKey != "" {
				c.logger.Warn("empty page %d of %s still points to next_key=%s", set.Pages, validator, *page.Pagination.NextKey)
				set.Partial = true
			}
			break
		}
		for _, r := range page.DelegationResponses {
			d, err := c.parse(r.Delegation.DelegatorAddress, r.Balance.Amount)
			if err != nil {
				c.logger.Debug("skip delegation record: %v", err)
				set.Skipped++
				continue
			}
			if i, seen := index[d.Address]; seen {
				set.Items[i].Amount += d.Amount
				continue
			}
			index[d.Address] = len(set.Items)
			set.Items = append(set.Items, d)
		}
		if page.Pagination.NextKey == nil || *page.Pagination.NextKey == "" {
			break
		}
		key = *page.Pagination.NextKey
	}
	metrics.Race().ObserveSkippedRecords(set.Skipped)
	c.logger.Info("read %d delegators of %s in %d pages (skipped=%d partial=%v)",
		len(set.Items), validator, set.Pages, set.Skipped, set.Partial)
	return set
}

func (c *Client) parse(address, amount string) (Delegator, error) {
	address = strings.TrimSpace(address)
	if err := ValidateAddress(address, c.prefix); err != nil {
		return Delegator{}, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
	if err != nil {
		return Delegator{}, fmt.Errorf("amount %q of %s: %w", amount, address, err)
	}
	if v < 0 {
		return Delegator{}, fmt.Errorf("negative amount %d of %s", v, address)
	}
	return Delegator{Address: address, Amount: v}, nil
}
