package boost

import (
	"context"
	"fmt"
	"time"

	"github.com/coreezy/sloth-race-watcher/common/config"
	"github.com/coreezy/sloth-race-watcher/common/logging"
	utils "github.com/coreezy/sloth-race-watcher/utils/http"
)

// Engagement is what a platform reports about one post.
type Engagement struct {
	Text    string
	Likes   int64
	Reposts int64
	Replies int64
	Quotes  int64
}

// Total sums every interaction kind.
func (e *Engagement) Total() int64 {
	return e.Likes + e.Reposts + e.Replies + e.Quotes
}

// EngagementProvider looks a post up on its platform.
type EngagementProvider interface {
	Engagement(ctx context.Context, platform, postID string) (*Engagement, error)
}

type tweetResponse struct {
	Data *struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		PublicMetrics struct {
			RetweetCount int64 `json:"retweet_count"`
			ReplyCount   int64 `json:"reply_count"`
			LikeCount    int64 `json:"like_count"`
			QuoteCount   int64 `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

// HTTPProvider reads posts from an X v2 style api.
type HTTPProvider struct {
	http  utils.IHttpClient
	token string
}

var _ EngagementProvider = (*HTTPProvider)(nil)

func NewHTTPProvider(baseURL, token string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		http:  utils.NewHttpClient(nil, logging.NewLoggerTag("boost-api"), baseURL, timeout),
		token: token,
	}
}

// NewHTTPProviderFromEnv reads BOOST_API_URL and BOOST_API_TOKEN.
func NewHTTPProviderFromEnv() *HTTPProvider {
	return NewHTTPProvider(config.GetString("BOOST_API_URL", "https://api.twitter.com"),
		config.GetString("BOOST_API_TOKEN", ""), config.GetDuration("HTTP_TIMEOUT", 15*time.Second))
}

func (p *HTTPProvider) Engagement(ctx context.Context, platform, postID string) (*Engagement, error) {
	if platform != "x" {
		return nil, fmt.Errorf("platform %s has no engagement api", platform)
	}
	var resp tweetResponse
	err := p.http.GetJSON(ctx, "/2/tweets/"+postID,
		[]utils.KeyValue{{Key: "tweet.fields", Value: "public_metrics,text"}},
		[]utils.KeyValue{{Key: "Authorization", Value: "Bearer " + p.token}},
		&resp)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("post %s: %s", postID, resp.Errors[0].Detail)
		}
		return nil, fmt.Errorf("post %s: empty response", postID)
	}
	m := resp.Data.PublicMetrics
	return &Engagement{
		Text:    resp.Data.Text,
		Likes:   m.LikeCount,
		Reposts: m.RetweetCount,
		Replies: m.ReplyCount,
		Quotes:  m.QuoteCount,
	}, nil
}
