package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-sync/pkg/errors"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
)

const (
	ordersPath                = "wp-json/wc/v3/orders"
	defaultPerPage            = 50
	maxPerPage                = 100
	defaultTimeout            = 15 * time.Second
	responseBodyReadLimit     = 1024
	defaultMaxRetries  uint64 = 3
	defaultRetryBase          = 250 * time.Millisecond
)

var (
	errBaseURLRequired     = errors.New("woocommerce base url is required")
	errCredentialsRequired = errors.New("woocommerce consumer key and secret are required")
)

// Client reads orders from the platform REST API using Basic auth over HTTPS.
type Client struct {
	httpClient *http.Client
	baseURL    string
	key        string
	secret     string
	perPage    int
	backoff    func() retry.Backoff
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches request logging.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// WithRetryBackoff overrides the retry policy for transient upstream failures.
func WithRetryBackoff(fn func() retry.Backoff) Option {
	return func(c *Client) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

// NewClient builds the REST client from config.
func NewClient(cfg config.WooCommerceConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	key := strings.TrimSpace(cfg.ConsumerKey)
	secret := strings.TrimSpace(cfg.ConsumerSecret)
	if key == "" || secret == "" {
		return nil, errCredentialsRequired
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		key:        key,
		secret:     secret,
		perPage:    perPage,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(defaultMaxRetries, retry.NewExponential(defaultRetryBase))
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ListOrdersParams filters the orders collection.
type ListOrdersParams struct {
	Page          int
	PerPage       int
	Search        string
	Customer      int64
	After         *time.Time
	ModifiedAfter *time.Time
}

// OrdersPage is one page of the orders collection.
type OrdersPage struct {
	Orders     []Order
	Page       int
	TotalPages int
}

// HasMore reports whether another page should be requested.
func (p OrdersPage) HasMore(perPage int) bool {
	if p.TotalPages > 0 {
		return p.Page < p.TotalPages
	}
	return len(p.Orders) >= perPage
}

// PerPage reports the page size used when the caller does not set one.
func (c *Client) PerPage() int {
	if c == nil {
		return defaultPerPage
	}
	return c.perPage
}

// ListOrders fetches one page, newest first. Transient failures (network,
// 429, 5xx) are retried with exponential backoff.
func (c *Client) ListOrders(ctx context.Context, params ListOrdersParams) (*OrdersPage, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "woocommerce client not configured")
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = c.perPage
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("orderby", "date")
	query.Set("order", "desc")
	if s := strings.TrimSpace(params.Search); s != "" {
		query.Set("search", s)
	}
	if params.Customer > 0 {
		query.Set("customer", strconv.FormatInt(params.Customer, 10))
	}
	if params.After != nil {
		query.Set("after", params.After.UTC().Format(time.RFC3339))
	}
	if params.ModifiedAfter != nil {
		query.Set("modified_after", params.ModifiedAfter.UTC().Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, ordersPath, query.Encode())

	c.log(ctx, "request", "list_orders", map[string]any{"page": page, "per_page": perPage})

	var result *OrdersPage
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		out, err := c.fetchOrders(ctx, endpoint)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		c.log(ctx, "error", "list_orders", map[string]any{"page": page, "error": err.Error()})
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list woocommerce orders")
	}
	result.Page = page
	c.log(ctx, "response", "list_orders", map[string]any{
		"page":        page,
		"count":       len(result.Orders),
		"total_pages": result.TotalPages,
	})
	return result, nil
}

func (c *Client) fetchOrders(ctx context.Context, endpoint string) (*OrdersPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build list orders request")
	}
	req.SetBasicAuth(c.key, c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, retry.RetryableError(statusErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, statusErr, "list orders request rejected")
	}

	var orders []Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode list orders response")
	}

	totalPages, _ := strconv.Atoi(resp.Header.Get("X-WP-TotalPages"))
	return &OrdersPage{Orders: orders, TotalPages: totalPages}, nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c.logg == nil {
		return
	}
	payload := map[string]any{
		"provider": "woocommerce",
		"phase":    phase,
		"op":       op,
	}
	for k, v := range fields {
		payload[k] = v
	}
	logCtx := c.logg.WithFields(ctx, payload)
	if phase == "error" {
		c.logg.Warn(logCtx, "woocommerce call failed")
		return
	}
	c.logg.Debug(logCtx, "woocommerce call")
}
