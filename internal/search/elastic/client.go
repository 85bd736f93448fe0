// Package elastic implements search.Client on top of the official Elasticsearch client.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tidwall/gjson"

	"github.com/sha1n/es2csv/internal/domain"
	"github.com/sha1n/es2csv/internal/search"
)

// DefaultTimeout bounds a single request to the cluster.
const DefaultTimeout = 120 * time.Second

// Config describes how to reach the cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	Timeout   time.Duration
	// Transport overrides the HTTP transport; used by tests.
	Transport http.RoundTripper
}

// Client is a search.Client backed by go-elasticsearch.
type Client struct {
	es        *elasticsearch.Client
	transport *http.Transport
}

var _ search.Client = (*Client)(nil)

// ResponseError is a non-success reply from the cluster.
type ResponseError struct {
	Status int
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch returned status %d", e.Status)
	}
	return fmt.Sprintf("elasticsearch returned status %d: %s: %s", e.Status, e.Type, e.Reason)
}

// New creates a client. No request is made until Health is called.
func New(cfg Config) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("at least one address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{}
	rt := cfg.Transport
	if rt == nil {
		c.transport = http.DefaultTransport.(*http.Transport).Clone()
		c.transport.ResponseHeaderTimeout = timeout
		rt = c.transport
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: rt,
		// Retries are driven by the caller's policy.
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	c.es = es
	return c, nil
}

// Health checks that the cluster answers.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return transportError("health", err)
	}
	_, err = readResponse(res)
	return err
}

// IndexExists reports whether an index, alias or matching pattern exists.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, transportError("index exists", err)
	}
	defer drain(res)

	switch {
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	case res.IsError():
		return false, statusError(res.StatusCode, nil)
	default:
		return true, nil
	}
}

// Search opens a scroll context and returns its first page.
func (c *Client) Search(ctx context.Context, req search.Request) (*search.Page, error) {
	s := c.es.Search
	opts := []func(*esapi.SearchRequest){
		s.WithContext(ctx),
		s.WithIndex(req.Indices...),
		s.WithTrackTotalHits(true),
	}
	if len(req.Body) > 0 {
		opts = append(opts, s.WithBody(bytes.NewReader(req.Body)))
	} else {
		opts = append(opts, s.WithQuery(req.QueryString))
	}
	if req.ScrollTimeout > 0 {
		opts = append(opts, s.WithScroll(req.ScrollTimeout))
	}
	if req.Size > 0 {
		opts = append(opts, s.WithSize(req.Size))
	}
	if len(req.Sort) > 0 {
		opts = append(opts, s.WithSort(req.Sort...))
	}
	if len(req.SourceIncludes) > 0 {
		opts = append(opts, s.WithSourceIncludes(req.SourceIncludes...))
	}
	if req.TerminateAfter > 0 {
		opts = append(opts, s.WithTerminateAfter(req.TerminateAfter))
	}

	res, err := s(opts...)
	if err != nil {
		return nil, transportError("search", err)
	}
	body, err := readResponse(res)
	if err != nil {
		return nil, err
	}
	return parsePage(body), nil
}

// Scroll fetches the page following scrollID.
func (c *Client) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*search.Page, error) {
	payload := map[string]any{"scroll_id": scrollID}
	if keepAlive > 0 {
		payload["scroll"] = formatDuration(keepAlive)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	res, err := c.es.Scroll(
		c.es.Scroll.WithContext(ctx),
		c.es.Scroll.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, transportError("scroll", err)
	}
	data, err := readResponse(res)
	if err != nil {
		var rerr *ResponseError
		if errors.As(err, &rerr) && (rerr.Status == http.StatusNotFound || rerr.Type == "search_context_missing_exception") {
			return nil, fmt.Errorf("%w: %w", search.ErrCursorExpired, err)
		}
		return nil, err
	}
	return parsePage(data), nil
}

// ClearScroll releases server-side scroll contexts.
func (c *Client) ClearScroll(ctx context.Context, scrollIDs []string) error {
	if len(scrollIDs) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string][]string{"scroll_id": scrollIDs})
	if err != nil {
		return err
	}
	res, err := c.es.ClearScroll(
		c.es.ClearScroll.WithContext(ctx),
		c.es.ClearScroll.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return transportError("clear scroll", err)
	}
	_, err = readResponse(res)
	return err
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}

func parsePage(body []byte) *search.Page {
	doc := gjson.ParseBytes(body)
	page := &search.Page{ScrollID: doc.Get("_scroll_id").String()}

	total := doc.Get("hits.total")
	if total.IsObject() {
		total = total.Get("value")
	}
	page.Total = total.Int()

	doc.Get("hits.hits").ForEach(func(_, h gjson.Result) bool {
		page.Hits = append(page.Hits, parseHit(h))
		return true
	})
	return page
}

func parseHit(h gjson.Result) domain.Hit {
	hit := domain.Hit{
		ID:    h.Get(domain.FieldID).String(),
		Index: h.Get(domain.FieldIndex).String(),
		Type:  h.Get(domain.FieldType).String(),
	}
	if score := h.Get(domain.FieldScore); score.Type == gjson.Number {
		v := score.Float()
		hit.Score = &v
	}
	if src := h.Get("_source"); src.Exists() {
		hit.Source = domain.FromResult(src)
	}
	return hit
}

func readResponse(res *esapi.Response) ([]byte, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if res.IsError() {
		return nil, statusError(res.StatusCode, body)
	}
	return body, nil
}

func statusError(status int, body []byte) error {
	rerr := &ResponseError{Status: status}
	if len(body) > 0 {
		e := gjson.GetBytes(body, "error")
		if e.IsObject() {
			rerr.Type = e.Get("type").String()
			rerr.Reason = e.Get("reason").String()
		} else {
			rerr.Reason = e.String()
		}
	}
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", search.ErrUnavailable, rerr)
	}
	return rerr
}

func transportError(op string, err error) error {
	return fmt.Errorf("%s request failed: %w", op, err)
}

func drain(res *esapi.Response) {
	if res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}

// formatDuration renders d in the cluster's time-unit syntax.
func formatDuration(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}
