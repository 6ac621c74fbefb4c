package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/anonymizer"
	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/audit"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "canvas-mcp"

	// maxRetries applies to 429 responses only. Other failures are
	// returned on the first attempt.
	maxRetries     = 3
	retryBaseDelay = 2 * time.Second
)

// TrackFunc opens an observability span for one request and returns the
// derived context plus a completion callback.
type TrackFunc func(ctx context.Context, name string) (context.Context, func(error))

// Options configures the gateway client.
type Options struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration

	// HTTPClient overrides the default transport, for tests.
	HTTPClient *http.Client

	Limiter *AdaptiveLimiter

	// Anonymizer, when non-nil, is applied to every response from a
	// student-bearing endpoint.
	Anonymizer *anonymizer.Anonymizer

	Audit       audit.Logger
	AuditAccess bool

	LogRequests bool
	Logger      *slog.Logger
	Track       TrackFunc
}

// Client is the single gateway through which every Canvas API call
// flows. Nothing else in the server holds the token or opens a
// connection to Canvas; centralizing here is what makes the
// anonymization and audit guarantees hold.
type Client struct {
	http      *http.Client
	baseURL   string
	token     string
	userAgent string
	timeout   time.Duration
	limiter   *AdaptiveLimiter
	anon      *anonymizer.Anonymizer
	auditLog  audit.Logger
	auditOn   bool
	logAPI    bool
	logger    *slog.Logger
	track     TrackFunc
	sleep     func(ctx context.Context, d time.Duration) error
}

// RequestOptions carries the optional parts of one request. Form takes
// precedence over JSON when both are set; Canvas grading endpoints
// require the bracketed form encoding.
type RequestOptions struct {
	Query url.Values
	JSON  any
	Form  url.Values

	// SkipAnonymize suppresses response anonymization for this call.
	// Internal consumers (course resolution, the grader's preflight)
	// need real fields and never surface them to the model.
	SkipAnonymize bool
}

// New builds a gateway client. BaseURL must already include the /api/v1
// prefix; config.Load normalizes this.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, NewError(CodeValidation, "Canvas base URL is required")
	}
	if opts.Token == "" {
		return nil, NewError(CodeValidation, "Canvas API token is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limiter == nil {
		opts.Limiter = NewAdaptiveLimiter(5, 0.5, 10, 10, WithLimiterLogger(opts.Logger))
	}
	if opts.Track == nil {
		opts.Track = func(ctx context.Context, _ string) (context.Context, func(error)) {
			return ctx, func(error) {}
		}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		limiter:   opts.Limiter,
		anon:      opts.Anonymizer,
		auditLog:  opts.Audit,
		auditOn:   opts.AuditAccess && opts.Audit != nil,
		logAPI:    opts.LogRequests,
		logger:    opts.Logger,
		track:     opts.Track,
		sleep:     sleepCtx,
	}, nil
}

// Limiter exposes the client's rate limiter for diagnostics.
func (c *Client) Limiter() *AdaptiveLimiter { return c.limiter }

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (any, error) {
	return c.Do(ctx, http.MethodGet, endpoint, &RequestOptions{Query: query})
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, endpoint string, opts *RequestOptions) (any, error) {
	return c.Do(ctx, http.MethodPost, endpoint, opts)
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, endpoint string, opts *RequestOptions) (any, error) {
	return c.Do(ctx, http.MethodPut, endpoint, opts)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string) (any, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil)
}

// Follow performs an authenticated request against a location handed
// back by Canvas (an upload confirmation, for instance). The location
// must resolve under the gateway's own base URL; the bearer token is
// never sent anywhere else.
func (c *Client) Follow(ctx context.Context, method, location string) (any, error) {
	rest, ok := strings.CutPrefix(location, c.baseURL)
	if !ok {
		// Relative form of the same API base.
		if after, found := strings.CutPrefix(location, "/api/v1"); found {
			rest = after
			ok = true
		}
	}
	if !ok || rest == "" {
		return nil, NewError(CodeValidation, "refusing to follow location outside the Canvas API").
			WithDetail("location_host", hostOf(location))
	}
	path, rawQuery, _ := strings.Cut(rest, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, WrapError(CodeValidation, err, "invalid location query")
	}
	return c.Do(ctx, method, path, &RequestOptions{Query: query, SkipAnonymize: true})
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "unparseable"
	}
	return u.Host
}

// Do performs one Canvas API call end to end: rate limiting, the
// request itself, 429 retries, error mapping, response decoding,
// anonymization, and the audit record. The returned value is the
// decoded JSON tree (nil for empty bodies).
func (c *Client) Do(ctx context.Context, method, endpoint string, opts *RequestOptions) (any, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx, done := c.track(ctx, "canvas."+strings.ToLower(method))
	out, err := c.do(ctx, method, endpoint, opts)
	done(err)
	return out, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, opts *RequestOptions) (any, error) {
	reqURL, err := c.buildURL(endpoint, opts.Query)
	if err != nil {
		return nil, c.fail(method, endpoint, WrapError(CodeValidation, err, "invalid endpoint %q", endpoint))
	}
	body, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, c.fail(method, endpoint, WrapError(CodeValidation, err, "encode request body"))
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(method, endpoint, classifyTransport(err, method, endpoint))
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader(body))
		if err != nil {
			return nil, c.fail(method, endpoint, WrapError(CodeValidation, err, "build request"))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, c.fail(method, endpoint, classifyTransport(err, method, endpoint))
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, c.fail(method, endpoint, WrapError(CodeNetwork, err, "read canvas response"))
		}

		if c.logAPI {
			c.logger.Debug("canvas api request",
				"method", method,
				"endpoint", audit.SanitizePath(endpoint),
				"status", resp.StatusCode,
				"attempt", attempt)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.OnRateLimited()
			if attempt < maxRetries {
				delay := retryDelay(attempt, resp.Header.Get("Retry-After"))
				c.logger.Warn("canvas throttled request; backing off",
					"endpoint", audit.SanitizePath(endpoint),
					"delay", delay,
					"attempt", attempt+1)
				if err := c.sleep(ctx, delay); err != nil {
					return nil, c.fail(method, endpoint, classifyTransport(err, method, endpoint))
				}
				continue
			}
			return nil, c.fail(method, endpoint, FromStatus(resp.StatusCode, method, endpoint, respBody))
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, c.fail(method, endpoint, FromStatus(resp.StatusCode, method, endpoint, respBody))
		}

		var decoded any
		if len(bytes.TrimSpace(respBody)) > 0 {
			if err := json.Unmarshal(respBody, &decoded); err != nil {
				return nil, c.fail(method, endpoint, WrapError(CodeCanvasAPI, err, "decode canvas response"))
			}
		}
		decoded = c.maybeAnonymize(endpoint, decoded, opts.SkipAnonymize)
		c.auditAccess(method, endpoint, audit.StatusSuccess, "")
		return decoded, nil
	}
}

// maybeAnonymize applies the anonymizer to responses from
// student-bearing endpoints. A panic inside the anonymizer must not
// take the request down with it; the raw value is returned and the
// failure logged loudly so operators notice.
func (c *Client) maybeAnonymize(endpoint string, v any, skip bool) (out any) {
	if c.anon == nil || skip || v == nil || !anonymizer.IsStudentBearing(endpoint) {
		return v
	}
	out = v
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("anonymization failed; response returned without anonymization",
				"endpoint", audit.SanitizePath(endpoint),
				"panic", r)
			out = v
		}
	}()
	out = c.anon.Anonymize(v)
	return out
}

func (c *Client) fail(method, endpoint string, err error) error {
	c.auditAccess(method, endpoint, audit.StatusError, ErrorTag(err))
	return err
}

func (c *Client) auditAccess(method, endpoint string, status audit.Status, errTag string) {
	if !c.auditOn {
		return
	}
	audit.Emit(c.auditLog, audit.AccessEvent(method, endpoint, status, errTag))
}

func (c *Client) buildURL(endpoint string, query url.Values) (string, error) {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	if _, err := url.Parse(u); err != nil {
		return "", err
	}
	return u, nil
}

func encodeBody(opts *RequestOptions) ([]byte, string, error) {
	switch {
	case opts.Form != nil:
		return []byte(opts.Form.Encode()), "application/x-www-form-urlencoded", nil
	case opts.JSON != nil:
		raw, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, "", err
		}
		return raw, "application/json", nil
	default:
		return nil, "", nil
	}
}

func bodyReader(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return bytes.NewReader(body)
}

// retryDelay honors Retry-After when Canvas provides one, otherwise
// backs off exponentially: 2s, 4s, 8s.
func retryDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(retryAfter), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return retryBaseDelay << attempt
}

// classifyTransport maps pre-response failures onto the taxonomy:
// deadline expiry is a timeout, everything else is a network error.
func classifyTransport(err error, method, endpoint string) *Error {
	var nerr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &nerr) && nerr.Timeout())
	if timeout {
		return WrapError(CodeTimeout, err, "canvas request timed out").
			WithDetail("method", method).
			WithDetail("endpoint", endpoint)
	}
	return WrapError(CodeNetwork, err, "canvas request failed").
		WithDetail("method", method).
		WithDetail("endpoint", endpoint)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
