// pkg/smd/client.go

package smd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// BasePath is the HSM v2 API root every endpoint hangs off.
const BasePath = "/hsm/v2"

// DefaultTimeout bounds a single request, including reading the body.
const DefaultTimeout = 10 * time.Second

const (
	ComponentsEndpoint  = "State/Components"
	MembershipsEndpoint = "memberships"
)

// Filter holds the query-string filters sent with every request (type, role, state, ...).
type Filter map[string]any

// Encode renders the filter as a query string. List values become repeated
// parameters. Floats are written without an exponent, everything else with %v.
func (f Filter) Encode() string {
	values := url.Values{}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := f[k].(type) {
		case nil:
			continue
		case []any:
			for _, item := range v {
				values.Add(k, formatValue(item))
			}
		case []string:
			for _, item := range v {
				values.Add(k, item)
			}
		default:
			values.Add(k, formatValue(v))
		}
	}
	return values.Encode()
}

func formatValue(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// ParseFilter decodes a JSON object of filters, keeping numbers as json.Number
// so they are sent exactly as written.
func ParseFilter(data []byte) (Filter, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var filter Filter
	if err := dec.Decode(&filter); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	if filter == nil {
		filter = Filter{}
	}
	return filter, nil
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Tests use it to trust httptest certificates.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithInsecureTLS skips certificate verification, for SMD instances behind self-signed certs.
func WithInsecureTLS() Option {
	return func(c *Client) {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		c.HTTPClient.Transport = tr
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client talks to the SMD (hardware State Manager) HTTP API.
type Client struct {
	BaseURL     string
	AccessToken string
	RequestID   string
	HTTPClient  *http.Client

	log *slog.Logger
}

// NewClient initializes a client for server, given as host[:port] with no scheme.
// An empty token means requests are sent without an Authorization header.
func NewClient(server, token string, opts ...Option) *Client {
	c := &Client{
		BaseURL:     "https://" + server + BasePath,
		AccessToken: token,
		RequestID:   uuid.NewString(),
		HTTPClient:  &http.Client{Timeout: DefaultTimeout},
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("request_id", c.RequestID)
	return c
}

// Fetch issues a GET against endpoint (relative, no leading slash) with the
// filter as query string and returns the decoded JSON body. Numbers are
// decoded as json.Number.
func (c *Client) Fetch(ctx context.Context, endpoint string, filter Filter) (any, error) {
	targetURL := c.BaseURL + "/" + endpoint
	if q := filter.Encode(); q != "" {
		targetURL += "?" + q
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &QueryError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", c.RequestID)
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	c.log.Debug("querying smd", "url", targetURL)
	start := time.Now()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &QueryError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &QueryError{Endpoint: endpoint, Status: resp.StatusCode, Reason: reason(resp), Err: err}
	}
	c.log.Debug("smd responded", "endpoint", endpoint, "status", resp.StatusCode,
		"bytes", len(body), "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &QueryError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Reason:   reason(resp),
			Detail:   problemDetail(body),
		}
	}

	value, err := decode(body)
	if err != nil {
		return nil, &QueryError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Reason:   reason(resp),
			Err:      fmt.Errorf("failed to decode response body: %w", err),
		}
	}
	return value, nil
}

func decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return value, nil
}

// reason returns the reason phrase of the status line, e.g. "Unauthorized".
func reason(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// problem is the RFC 7807 body SMD sends with error statuses.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func problemDetail(body []byte) string {
	var p problem
	if err := json.Unmarshal(body, &p); err != nil {
		return ""
	}
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}
