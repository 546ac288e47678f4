package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/config"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

const (
	// SpacesPath is the base path of the spaces API.
	SpacesPath = "/api/2.0/genie/spaces"

	// MaxListPages bounds pagination so a misbehaving server cannot loop us.
	MaxListPages = 100

	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
	DefaultTimeout    = 60 * time.Second
)

// HTTPClient is the subset of *http.Client the client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	// Host is the workspace URL. A missing scheme defaults to https.
	Host string

	// Token is sent as a bearer token.
	Token string

	// HTTPClient overrides the transport. Defaults to an *http.Client with
	// Timeout.
	HTTPClient HTTPClient

	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Negative disables retries.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	UserAgent  string
	Logger     zerolog.Logger
	Metrics    *telemetry.Metrics
	Serializer *Serializer
}

// Client talks to the spaces API of one workspace. It implements
// engine.RemoteClient and is safe for concurrent use.
type Client struct {
	host       string
	token      string
	http       HTTPClient
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	userAgent  string
	logger     zerolog.Logger
	metrics    *telemetry.Metrics
	serializer *Serializer
	tracer     trace.Tracer
}

var _ engine.RemoteClient = (*Client)(nil)

// NewClient creates a client for cfg.Host.
func NewClient(cfg Config) (*Client, error) {
	host, err := NormalizeHost(cfg.Host)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	} else if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "genie-forge"
	}
	if cfg.Serializer == nil {
		cfg.Serializer = NewSerializer()
	}

	return &Client{
		host:       host,
		token:      cfg.Token,
		http:       cfg.HTTPClient,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		userAgent:  cfg.UserAgent,
		logger:     cfg.Logger.With().Str("component", "remote").Str("host", host).Logger(),
		metrics:    cfg.Metrics,
		serializer: cfg.Serializer,
		tracer:     otel.Tracer("genie-forge/remote"),
	}, nil
}

// NormalizeHost adds a missing https scheme and strips trailing slashes.
func NormalizeHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", errors.New("workspace host is required")
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid workspace host %q", host)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

// Endpoint returns the normalized workspace URL.
func (c *Client) Endpoint() string {
	return c.host
}

// Create creates a space and returns its id.
func (c *Client) Create(ctx context.Context, cfg *config.SpaceConfig) (string, error) {
	body, err := c.serializer.ToRequest(cfg)
	if err != nil {
		return "", err
	}

	var resp spaceResponse
	if err := c.do(ctx, http.MethodPost, SpacesPath, nil, body, &resp); err != nil {
		return "", fmt.Errorf("failed to create space '%s': %w", cfg.Title, err)
	}
	id := resp.id()
	if id == "" {
		return "", fmt.Errorf("failed to create space '%s': %w", cfg.Title, ErrNoSpaceID)
	}
	c.logger.Debug().Str("space_id", id).Str("title", cfg.Title).Msg("Created space")
	return id, nil
}

// Update replaces the title, warehouse and serialized document of a space.
func (c *Client) Update(ctx context.Context, remoteID string, cfg *config.SpaceConfig) error {
	body, err := c.serializer.ToRequest(cfg)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPatch, spacePath(remoteID), nil, body, nil); err != nil {
		return fmt.Errorf("failed to update space '%s': %w", remoteID, err)
	}
	return nil
}

// Delete deletes a space.
func (c *Client) Delete(ctx context.Context, remoteID string) error {
	if err := c.do(ctx, http.MethodDelete, spacePath(remoteID), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete space '%s': %w", remoteID, err)
	}
	return nil
}

// Get fetches one space including its serialized document.
func (c *Client) Get(ctx context.Context, remoteID string) (*engine.RemoteSpace, error) {
	query := url.Values{"include_serialized_space": {"true"}}
	var raw map[string]any
	if err := c.do(ctx, http.MethodGet, spacePath(remoteID), query, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get space '%s': %w", remoteID, err)
	}
	sp, err := decodeSpace(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to get space '%s': %w", remoteID, err)
	}
	if sp.ID == "" {
		sp.ID = remoteID
	}
	return sp, nil
}

// List returns every space, following next_page_token up to MaxListPages.
func (c *Client) List(ctx context.Context) ([]engine.RemoteSpace, error) {
	var out []engine.RemoteSpace
	token := ""
	for page := 0; page < MaxListPages; page++ {
		var query url.Values
		if token != "" {
			query = url.Values{"page_token": {token}}
		}

		var resp struct {
			Spaces        []map[string]any `json:"spaces"`
			NextPageToken string           `json:"next_page_token"`
		}
		if err := c.do(ctx, http.MethodGet, SpacesPath, query, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to list spaces: %w", err)
		}
		for _, raw := range resp.Spaces {
			sp, err := decodeSpace(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to list spaces: %w", err)
			}
			out = append(out, *sp)
		}

		if resp.NextPageToken == "" {
			return out, nil
		}
		token = resp.NextPageToken
	}

	c.logger.Warn().Int("pages", MaxListPages).Msg("Stopped listing spaces at page limit")
	return out, nil
}

// FindByNamePattern matches titles case-insensitively.
func (c *Client) FindByNamePattern(ctx context.Context, pattern string) ([]engine.RemoteSpace, error) {
	return c.FindByName(ctx, pattern, false)
}

// FindByName returns spaces whose title matches a shell-style glob.
func (c *Client) FindByName(ctx context.Context, pattern string, caseSensitive bool) ([]engine.RemoteSpace, error) {
	matcher, err := CompileTitlePattern(pattern, caseSensitive)
	if err != nil {
		return nil, err
	}
	spaces, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []engine.RemoteSpace
	for _, sp := range spaces {
		if matcher(sp.Title) {
			out = append(out, sp)
		}
	}
	return out, nil
}

// CompileTitlePattern compiles a glob (*, ?, [abc], {a,b}) into a matcher.
func CompileTitlePattern(pattern string, caseSensitive bool) (func(string) bool, error) {
	if !caseSensitive {
		pattern = strings.ToLower(pattern)
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, engine.NewPermanentError(fmt.Sprintf("invalid name pattern %q", pattern), err).WithCode(engine.ErrCodeValidation)
	}
	return func(title string) bool {
		if !caseSensitive {
			title = strings.ToLower(title)
		}
		return g.Match(title)
	}, nil
}

func spacePath(remoteID string) string {
	return SpacesPath + "/" + url.PathEscape(remoteID)
}

func decodeSpace(raw map[string]any) (*engine.RemoteSpace, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var resp spaceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid space payload: %w", err)
	}
	return resp.toRemoteSpace(raw), nil
}

// do sends one API call with retries. Transport errors and throttling are
// retried with exponential backoff, and so are 5xx and 409 responses to
// idempotent methods. out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "remote."+strings.ToLower(method),
		trace.WithAttributes(telemetry.AttrHTTPMethod.String(method), telemetry.AttrHTTPPath.String(path)))
	defer func() { telemetry.EndSpan(span, err) }()

	var payload []byte
	if in != nil {
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.baseDelay
	policy.MaxInterval = c.maxDelay
	policy.Multiplier = 2

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		data, err := c.roundTrip(ctx, method, path, query, payload)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil || !engine.IsRetryable(attemptError(method, err)) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.metrics.RecordRemoteRetry(method)
			c.logger.Warn().Err(err).Str("method", method).Str("path", path).
				Str("trace_id", telemetry.TraceID(ctx)).Dur("wait", wait).Msg("Retrying remote request")
		}),
	)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	target := c.host + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordRemoteRequest(method, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %s", method, path, telemetry.MaskSecrets(err.Error()))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.RecordRemoteRequest(method, resp.StatusCode, time.Since(start))
	trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrHTTPStatus.Int(resp.StatusCode))
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, message := parseErrorBody(data)
		return nil, newAPIError(method, path, resp.StatusCode, code, message)
	}
	return data, nil
}

// parseErrorBody extracts error_code and message from an API error body,
// falling back to the raw text.
func parseErrorBody(data []byte) (string, string) {
	var body struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && (body.ErrorCode != "" || body.Message != "") {
		return body.ErrorCode, body.Message
	}
	return "", strings.TrimSpace(string(data))
}
