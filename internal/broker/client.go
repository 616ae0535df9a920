// Package broker talks to the Libris interlibrary-loan broker API and
// translates its statuses into status graph node ids.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/illsync/internal/debug"
	"github.com/steveyegge/illsync/internal/telemetry"
)

const (
	DefaultBaseURL         = "https://iller.libris.kb.se/librisfjarrlan/api"
	DefaultCatalogURL      = "https://libris.kb.se/xsearch"
	DefaultTimeout         = 30 * time.Second
	DefaultRetryMaxElapsed = 10 * time.Second

	// PlaceholderPrefix marks locally minted bibliographic ids that the
	// catalog does not know.
	PlaceholderPrefix = "tmp:"

	maxErrorBody = 4 << 10
)

const tracerName = "github.com/steveyegge/illsync/broker"

// Client provides methods to interact with the broker REST API.
//
// GETs are retried with exponential backoff on transport errors and 5xx
// replies. POSTs are never retried: the broker has no idempotency key, so a
// repeated action could be applied twice.
type Client struct {
	BaseURL    string
	CatalogURL string
	Sigil      string // local library code, part of every request path
	APIKey     string
	HTTPClient *http.Client

	RetryMaxElapsed time.Duration
	Logger          *slog.Logger

	tracer trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithCatalogURL overrides the bibliographic catalog endpoint.
func WithCatalogURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.CatalogURL = u
		}
	}
}

// WithRetryMaxElapsed bounds the total time spent retrying a GET.
// Zero disables retries.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.RetryMaxElapsed = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.Logger = l
		}
	}
}

// NewClient creates a broker client for the library identified by sigil.
func NewClient(baseURL, sigil, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		CatalogURL:      DefaultCatalogURL,
		Sigil:           sigil,
		APIKey:          apiKey,
		HTTPClient:      &http.Client{Timeout: DefaultTimeout},
		RetryMaxElapsed: DefaultRetryMaxElapsed,
		Logger:          slog.Default(),
		tracer:          telemetry.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) requestPath(orderID string) string {
	return "/illrequests/" + url.PathEscape(c.Sigil) + "/" + url.PathEscape(orderID)
}

// doRequest sends one HTTP request and returns the body of a 2xx reply.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("api-key", c.APIKey)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read broker response: %w", err)
	}
	debug.Logf("broker: %s %s -> %d\n", method, rawURL, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(respBody)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: snippet}
	}
	return respBody, nil
}

// get performs a GET, retrying transient failures.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.RetryMaxElapsed <= 0 {
		return c.doRequest(ctx, http.MethodGet, rawURL, nil)
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.RetryMaxElapsed

	var out []byte
	err := backoff.Retry(func() error {
		body, err := c.doRequest(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.IsTransient() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = body
		return nil
	}, backoff.WithContext(bo, ctx))
	return out, err
}

func (c *Client) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "broker."+name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func decodeRequests(body []byte, orderID string) (*ILLRequest, error) {
	var resp requestsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse broker response: %w", err)
	}
	if resp.Count == 0 || len(resp.ILLRequests) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNoData)
	}
	return &resp.ILLRequests[0], nil
}

// FetchRequest retrieves the full broker record for an order.
func (c *Client) FetchRequest(ctx context.Context, orderID string) (_ *ILLRequest, err error) {
	ctx, span := c.span(ctx, "FetchRequest", attribute.String("ill.order_id", orderID))
	defer func() { endSpan(span, err) }()

	body, err := c.get(ctx, c.BaseURL+c.requestPath(orderID))
	if err != nil {
		return nil, err
	}
	return decodeRequests(body, orderID)
}

// FetchRequestSnapshot retrieves the current status and concurrency token.
func (c *Client) FetchRequestSnapshot(ctx context.Context, orderID string) (*Snapshot, error) {
	r, err := c.FetchRequest(ctx, orderID)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("broker snapshot", "order_id", orderID, "status", r.Status, "last_modified", r.LastModified)
	return snapshotOf(r), nil
}

// PushAction posts a state-changing action. timestamp must be the
// last_modified value of a snapshot fetched in the same logical operation.
// The call is made exactly once.
func (c *Client) PushAction(ctx context.Context, orderID string, action Action, timestamp string, extra url.Values) (_ *Snapshot, err error) {
	ctx, span := c.span(ctx, "PushAction",
		attribute.String("ill.order_id", orderID),
		attribute.String("ill.broker.action", string(action)),
	)
	defer func() { endSpan(span, err) }()

	form := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			form.Add(k, v)
		}
	}
	form.Set("action", string(action))
	form.Set("timestamp", timestamp)

	body, err := c.doRequest(ctx, http.MethodPost, c.BaseURL+c.requestPath(orderID), form)
	if err != nil {
		c.Logger.Warn("broker action failed", "order_id", orderID, "action", action, "error", err)
		return nil, err
	}
	r, err := decodeRequests(body, orderID)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("broker action applied", "order_id", orderID, "action", action, "status", r.Status)
	return snapshotOf(r), nil
}

// FetchLibrary retrieves a library record by sigil.
func (c *Client) FetchLibrary(ctx context.Context, sigil string) (_ *Library, err error) {
	ctx, span := c.span(ctx, "FetchLibrary", attribute.String("ill.library", sigil))
	defer func() { endSpan(span, err) }()

	body, err := c.get(ctx, c.BaseURL+"/libraries/"+url.PathEscape(sigil))
	if err != nil {
		return nil, err
	}
	var resp librariesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse libraries response: %w", err)
	}
	if len(resp.Libraries) == 0 {
		return nil, fmt.Errorf("library %s: %w", sigil, ErrNoData)
	}
	return &resp.Libraries[0], nil
}
