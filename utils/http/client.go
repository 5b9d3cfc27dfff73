package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreezy/sloth-race-watcher/common/logging"
)

// Client talks JSON to one base url. Every call is bounded by the client timeout and
// by the context passed in.
type Client struct {
	client *http.Client
	logger logging.Logger
	url    string
}

var _ IHttpClient = (*Client)(nil)

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var DefaultTransport = &http.Transport{
	DialContext: (&net.Dialer{
		Timeout: 2 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout: 3 * time.Second,
	MaxIdleConns:        100,
	IdleConnTimeout:     30 * time.Second,
}

// NewHttpClient builds a client for baseURL. A nil transport means DefaultTransport.
func NewHttpClient(transport *http.Transport, logger logging.Logger, baseURL string, timeout time.Duration) *Client {
	if transport == nil {
		transport = DefaultTransport
	}
	return &Client{
		client: &http.Client{Transport: transport, Timeout: timeout},
		logger: logger,
		url:    strings.TrimRight(baseURL, "/"),
	}
}

const ErrorCode = -1

// Request sends method to base url + path. code is ErrorCode when no response arrived.
func (h *Client) Request(ctx context.Context, method, path string, params []KeyValue, requestBody interface{},
	headers []KeyValue) (code int, respBody []byte, err error) {
	code = ErrorCode
	if len(h.url) == 0 {
		return code, nil, fmt.Errorf("url is empty")
	}

	target, err := url.Parse(h.url + path)
	if err != nil {
		return code, nil, fmt.Errorf("parse url %s%s: %w", h.url, path, err)
	}
	if len(params) > 0 {
		q := target.Query()
		for _, param := range params {
			q.Set(param.Key, param.Value)
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return code, nil, fmt.Errorf("build request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return code, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, header := range headers {
		req.Header.Set(header.Key, header.Value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return code, nil, fmt.Errorf("http call %s %s: %w", method, target.Path, err)
	}
	defer closeBody(resp, h.logger)

	respBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body of %s: %w", target.Path, err)
	}
	return resp.StatusCode, respBody, nil
}

func (h *Client) Get(ctx context.Context, path string, params []KeyValue, header []KeyValue) (int, []byte, error) {
	return h.Request(ctx, http.MethodGet, path, params, nil, header)
}

func (h *Client) Post(ctx context.Context, path string, params []KeyValue, body interface{}, header []KeyValue) (int, []byte, error) {
	return h.Request(ctx, http.MethodPost, path, params, body, header)
}

// GetJSON fetches path and decodes a 200 response into out.
func (h *Client) GetJSON(ctx context.Context, path string, params []KeyValue, header []KeyValue, out interface{}) error {
	code, body, err := h.Get(ctx, path, params, header)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return &StatusError{Code: code, Body: truncate(body, 256)}
	}
	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// StatusError is a non-200 answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func closeBody(resp *http.Response, logger logging.Logger) {
	if resp != nil && resp.Body != nil {
		if err := resp.Body.Close(); err != nil {
			logger.Error("response body close error: %v, req: %v", err.Error(), resp.Request.URL)
		}
	}
}
