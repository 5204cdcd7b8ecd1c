// Package httpsource reads statistic values and display names from an HTTP
// JSON service. Every call goes through one circuit breaker so a failing
// upstream marks all derived sources unavailable.
package httpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/okian/tops/internal/domain/model"
	"github.com/okian/tops/internal/domain/source"
	"github.com/okian/tops/pkg/logger"
	"github.com/okian/tops/pkg/metrics"
)

const (
	defaultTimeout = 2 * time.Second
	metricsSource  = "http"
)

var (
	// ErrNotFound is returned when the upstream has no value for the key.
	ErrNotFound = errors.New("value not found")
	// ErrUpstream wraps non-2xx responses and transport failures.
	ErrUpstream = errors.New("upstream request failed")
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithBreakerSettings overrides the circuit breaker settings.
func WithBreakerSettings(s gobreaker.Settings) Option {
	return func(cl *Client) { cl.settings = &s }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// Client talks to the value service:
//
//	GET {base}/values/{key}/{id} -> {"value": 12.5}
//	GET {base}/names/{id}        -> {"name": "alice"}
type Client struct {
	base     *url.URL
	client   *http.Client
	timeout  time.Duration
	settings *gobreaker.Settings
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	log      logger.Logger
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	c := &Client{
		base:    u,
		client:  &http.Client{},
		timeout: defaultTimeout,
		log:     logger.Get().Named("httpsource"),
	}
	for _, opt := range opts {
		opt(c)
	}
	settings := gobreaker.Settings{
		Name:        "httpsource",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// a missing value is an answer, not an outage
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	}
	if c.settings != nil {
		settings = *c.settings
	}
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](settings)
	return c, nil
}

// Available reports whether the breaker lets requests through.
func (c *Client) Available() bool {
	return c.breaker.State() != gobreaker.StateOpen
}

// Value fetches the raw value of key for id.
func (c *Client) Value(ctx context.Context, key string, id model.Identifier) (float64, error) {
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := c.getJSON(ctx, &body, "values", key, id.String()); err != nil {
		return 0, err
	}
	if body.Value == nil {
		return 0, ErrNotFound
	}
	return *body.Value, nil
}

// DisplayName fetches the display name of id.
func (c *Client) DisplayName(ctx context.Context, id model.Identifier) (string, error) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, &body, "names", id.String()); err != nil {
		return "", err
	}
	if body.Name == "" {
		return "", ErrNotFound
	}
	return body.Name, nil
}

func (c *Client) getJSON(ctx context.Context, out any, segments ...string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath(segments...).String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstream, doErr)
		}
		switch {
		case r.StatusCode == http.StatusNotFound:
			r.Body.Close()
			return nil, ErrNotFound
		case r.StatusCode >= 300:
			r.Body.Close()
			return nil, fmt.Errorf("%w: status %d", ErrUpstream, r.StatusCode)
		}
		return r, nil
	})
	if err != nil {
		metrics.RecordSourceRequest(metricsSource, result(err))
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordSourceRequest(metricsSource, "decode_error")
		return fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}
	metrics.RecordSourceRequest(metricsSource, "ok")
	return nil
}

func result(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "open"
	default:
		return "error"
	}
}

// Source returns a ScoreSource for key. When active is non-nil only active
// identifiers are queried.
func (c *Client) Source(key string, active source.ActiveSet) source.ScoreSource {
	return &scoreSource{client: c, key: key, active: active}
}

// Names returns a NameSource backed by the client.
func (c *Client) Names() source.NameSource {
	return source.NameFunc(func(ctx context.Context, id model.Identifier) (string, bool) {
		name, err := c.DisplayName(ctx, id)
		if err != nil {
			return "", false
		}
		return name, true
	})
}

type scoreSource struct {
	client *Client
	key    string
	active source.ActiveSet
}

func (s *scoreSource) Value(ctx context.Context, id model.Identifier) (float64, bool) {
	if s.active != nil && !s.active.IsActive(id) {
		return 0, false
	}
	v, err := s.client.Value(ctx, s.key, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.client.log.Debug(ctx, "value lookup failed",
				logger.String("key", s.key),
				logger.String("id", id.String()),
				logger.Error(err),
			)
		}
		return 0, false
	}
	return v, true
}

func (s *scoreSource) Name() string { return s.key }

func (s *scoreSource) RequiresActiveSubject() bool { return s.active != nil }

func (s *scoreSource) Available() bool { return s.client.Available() }
