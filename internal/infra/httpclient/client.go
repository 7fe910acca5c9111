// Package httpclient provides the connector-scoped authenticated HTTP client
// used to execute triggering, status, and result requests against external
// privacy APIs.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethyca/fides-sub009/internal/app/polling"
	"github.com/ethyca/fides-sub009/internal/config"
	"github.com/ethyca/fides-sub009/pkg/common"
	"github.com/ethyca/fides-sub009/pkg/common/logger"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultRetryMaxElapsed = 15 * time.Second
	defaultRetryInitial    = 500 * time.Millisecond
)

// Client sends requests to a single connector's API, applying the
// connector's base URL, authentication, and rate limit to every request.
// Transient transport failures are retried with exponential backoff; HTTP
// status handling is left to the caller.
type Client struct {
	baseURL *url.URL
	auth    config.AuthConfig

	httpClient *http.Client
	limiter    *common.RateLimiter

	logger *logger.Logger
	tracer trace.Tracer
}

var _ polling.AuthenticatedClient = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, primarily for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client scoped to the connector described by cfg.
func New(cfg *config.ConnectorConfig, log *logger.Logger, tracer trace.Tracer, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}

	c := &Client{
		baseURL:    base,
		auth:       cfg.Auth,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log.With("component", "http_client", "connector", cfg.Name),
		tracer:     tracer,
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = common.NewRateLimiter(cfg.RateLimit, burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send executes a single request against the connector, honoring the rate
// limit and retrying transient transport failures. The response is returned
// for every HTTP status; when ignoreErrors is set, non-2xx responses are
// logged at debug rather than warn level.
func (c *Client) Send(ctx context.Context, params polling.RequestParams, ignoreErrors bool) (*polling.Response, error) {
	ctx, span := c.tracer.Start(ctx, "http_client.send",
		trace.WithAttributes(
			attribute.String("http.method", params.Method),
			attribute.String("http.path", params.Path),
		),
	)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	target := c.resolve(params.Path, params.Query)

	var resp *polling.Response
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(params.Method), target, bytes.NewReader(params.Body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		for k, v := range params.Headers {
			req.Header.Set(k, v)
		}
		if len(params.Body) > 0 && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if err := c.applyAuth(req); err != nil {
			return backoff.Permanent(err)
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn(ctx, "Request failed, will retry", "url", target, "error", err)
			return err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		resp = &polling.Response{StatusCode: httpResp.StatusCode, Body: body}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = defaultRetryMaxElapsed
	expBackoff.InitialInterval = defaultRetryInitial

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("request to %s failed after retries: %w", target, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if !resp.OK() {
		if ignoreErrors {
			c.logger.Debug(ctx, "Ignoring non-2xx response",
				"url", target, "status_code", resp.StatusCode)
		} else {
			c.logger.Warn(ctx, "Non-2xx response",
				"url", target, "status_code", resp.StatusCode)
		}
	}
	return resp, nil
}

// resolve joins the request path onto the connector base URL and encodes
// query parameters.
func (c *Client) resolve(path string, query map[string]string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")

	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) applyAuth(req *http.Request) error {
	switch c.auth.Type {
	case "", "none":
		return nil
	case "bearer":
		token, ok := c.auth.Config["token"].(string)
		if !ok || token == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case "basic":
		username, _ := c.auth.Config["username"].(string)
		password, _ := c.auth.Config["password"].(string)
		if username == "" {
			return fmt.Errorf("basic auth requires a username")
		}
		req.SetBasicAuth(username, password)
	default:
		return fmt.Errorf("unsupported auth type: %s", c.auth.Type)
	}
	return nil
}
