package taskerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/taskerco/complaintdesk/internal/app"
	"github.com/taskerco/complaintdesk/internal/domain"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(context.Context) (string, error)
}

// Ensure Client implements the app port at compile time.
var _ app.ComplaintAPI = (*Client)(nil)

// Client talks to the Tasker complaint REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	tokens    TokenSource
	limiter   *rate.Limiter
	requestID func() string
}

const (
	defaultBaseURL   = "http://127.0.0.1:8000/api"
	defaultTimeout   = 15 * time.Second
	defaultRateLimit = 5
	defaultRateBurst = 5
	maxErrorBody     = 1 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Version   string
	Tokens    TokenSource
	RateLimit float64
	RateBurst int
	// RequestID overrides the per-request id generator.
	RequestID func() string
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// NewClient builds a Client from opts.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = defaultRateBurst
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "dev"
	}
	requestID := opts.RequestID
	if requestID == nil {
		requestID = func() string { return uuid.NewString() }
	}
	return &Client{
		baseURL:   base,
		http:      httpClient,
		userAgent: "complaintdesk/" + version,
		tokens:    opts.Tokens,
		limiter:   rate.NewLimiter(rate.Limit(limit), burst),
		requestID: requestID,
	}, nil
}

// envelope is the success body shape of the API.
type envelope struct {
	Message string           `json:"message"`
	Data    domain.Complaint `json:"data"`
}

// errorEnvelope is the failure body shape of the API.
type errorEnvelope struct {
	Message string                     `json:"message"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

// CreateComplaint posts a new complaint.
func (c *Client) CreateComplaint(ctx context.Context, complaint domain.Complaint) (domain.Complaint, error) {
	var payload envelope
	if err := c.do(ctx, http.MethodPost, c.baseURL.JoinPath("complaints"), complaint, &payload); err != nil {
		return domain.Complaint{}, err
	}
	return payload.Data, nil
}

// UpdateComplaint replaces an existing complaint.
func (c *Client) UpdateComplaint(ctx context.Context, complaint domain.Complaint) (domain.Complaint, error) {
	id := strings.TrimSpace(complaint.ID)
	if id == "" {
		return domain.Complaint{}, fmt.Errorf("update complaint: id required")
	}
	var payload envelope
	if err := c.do(ctx, http.MethodPut, c.baseURL.JoinPath("complaints", id), complaint, &payload); err != nil {
		return domain.Complaint{}, err
	}
	return payload.Data, nil
}

// GetComplaint fetches one complaint.
func (c *Client) GetComplaint(ctx context.Context, id string) (domain.Complaint, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Complaint{}, fmt.Errorf("get complaint: id required")
	}
	var payload envelope
	if err := c.do(ctx, http.MethodGet, c.baseURL.JoinPath("complaints", id), nil, &payload); err != nil {
		return domain.Complaint{}, err
	}
	return payload.Data, nil
}

// Health checks API reachability. It bypasses the rate limiter.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath("health").String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", app.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health returned status %d", app.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, reqURL *url.URL, body, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", c.requestID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", app.ErrUnauthorized, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %w", app.ErrUnavailable, method, reqURL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeError(method, reqURL.Path, resp)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError maps an error response onto app errors.
func decodeError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload errorEnvelope
	_ = json.Unmarshal(raw, &payload)
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &app.ValidationError{Message: message, Fields: firstMessages(payload.Errors)}
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", app.ErrUnauthorized, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", app.ErrNotFound, method, path)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s %s returned status %d: %s", app.ErrUnavailable, method, path, resp.StatusCode, message)
	}
	return fmt.Errorf("api %s %s returned status %d: %s", method, path, resp.StatusCode, message)
}

// firstMessages keeps the first message per field. Values may be a string or a list.
func firstMessages(raw map[string]json.RawMessage) domain.FieldErrors {
	out := domain.FieldErrors{}
	for field, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			if len(list) > 0 {
				out[field] = list[0]
			}
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil && single != "" {
			out[field] = single
		}
	}
	return out
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base_url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api base_url %q: host required", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
