// Package client is a typed HTTP client for the hatch API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/hatch/internal/domain/model"
)

const defaultTimeout = 10 * time.Second

// Client calls the hatch HTTP API.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// New creates a client for the server at baseURL, e.g. http://localhost:9080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListTalents calls GET /talents.
func (c *Client) ListTalents(ctx context.Context) ([]model.Talent, error) {
	var out []model.Talent
	_, err := c.do(ctx, http.MethodGet, "/talents", nil, &out)
	return out, err
}

// CreateTalent calls POST /talents. A zero target uses the server default.
func (c *Client) CreateTalent(ctx context.Context, name string, progressTarget float64) (model.Talent, error) {
	body := map[string]any{"name": name}
	if progressTarget > 0 {
		body["progressTarget"] = progressTarget
	}
	var out model.Talent
	_, err := c.do(ctx, http.MethodPost, "/talents", body, &out)
	return out, err
}

// GetTalent calls GET /talents/{id}.
func (c *Client) GetTalent(ctx context.Context, id int64) (model.Talent, error) {
	var out model.Talent
	_, err := c.do(ctx, http.MethodGet, talentPath(id), nil, &out)
	return out, err
}

// DeleteTalent calls DELETE /talents/{id}.
func (c *Client) DeleteTalent(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, talentPath(id), nil, nil)
	return err
}

// StartSession calls POST /talents/{id}/start.
func (c *Client) StartSession(ctx context.Context, talentID int64) (model.Pair, error) {
	var out model.Pair
	_, err := c.do(ctx, http.MethodPost, talentPath(talentID)+"/start", nil, &out)
	return out, err
}

// StopSession calls POST /incubation/stop.
func (c *Client) StopSession(ctx context.Context) (model.Session, error) {
	var out model.Session
	_, err := c.do(ctx, http.MethodPost, "/incubation/stop", nil, &out)
	return out, err
}

// Incubation calls GET /incubation. It returns nil while idle.
func (c *Client) Incubation(ctx context.Context) (*model.Pair, error) {
	var out model.Pair
	status, err := c.do(ctx, http.MethodGet, "/incubation", nil, &out)
	if err != nil || status == http.StatusNoContent {
		return nil, err
	}
	return &out, nil
}

// ListSessions calls GET /sessions, filtered by talent when talentID is
// non-nil.
func (c *Client) ListSessions(ctx context.Context, talentID *int64) ([]model.Session, error) {
	path := "/sessions"
	if talentID != nil {
		path += "?talent_id=" + strconv.FormatInt(*talentID, 10)
	}
	var out []model.Session
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Evaluation is the population as evaluated by POST /evaluate.
type Evaluation struct {
	Talents  []model.Talent  `json:"talents"`
	Sessions []model.Session `json:"sessions"`
}

// Evaluate calls POST /evaluate. It returns nil when nothing was evaluated.
func (c *Client) Evaluate(ctx context.Context) (*Evaluation, error) {
	var out Evaluation
	status, err := c.do(ctx, http.MethodPost, "/evaluate", nil, &out)
	if err != nil || status == http.StatusNoContent {
		return nil, err
	}
	return &out, nil
}

// Stats calls GET /stats.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	_, err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

func talentPath(id int64) string {
	return "/talents/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Code = "unknown"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
