package bleveindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sha1n/es2csv/internal/domain"
	"github.com/sha1n/es2csv/internal/search"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func load(t *testing.T, dir, index string, lines ...string) int {
	t.Helper()
	n, err := NewLoader(dir, quietLogger()).Load(context.Background(), index, strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return n
}

func envelopes(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		color := "blue"
		if i%2 == 0 {
			color = "red"
		}
		lines[i] = fmt.Sprintf(`{"_index":"src","_id":"d%d","_source":{"n":%d,"color":%q,"nested":{"k":"v%d"}}}`, i+1, i+1, color, i+1)
	}
	return lines
}

func newClient(t *testing.T, dir string) *Client {
	t.Helper()
	c := NewClient(dir)
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Failed to close client: %v", err)
		}
	})
	return c
}

func ids(hits []domain.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func drain(t *testing.T, c *Client, req search.Request) (int64, []string) {
	t.Helper()
	ctx := context.Background()
	page, err := c.Search(ctx, req)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	total := page.Total
	all := ids(page.Hits)
	for len(page.Hits) > 0 {
		if page, err = c.Scroll(ctx, page.ScrollID, time.Minute); err != nil {
			t.Fatalf("Scroll failed: %v", err)
		}
		all = append(all, ids(page.Hits)...)
	}
	return total, all
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()

	if n := load(t, dir, "logs", envelopes(3)...); n != 3 {
		t.Errorf("Expected 3 documents, got %d", n)
	}
	count, err := NewStore(dir).DocumentCount("logs")
	if err != nil {
		t.Fatalf("DocumentCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 documents in index, got %d", count)
	}
}

func TestLoader_LoadSpansBatches(t *testing.T) {
	dir := t.TempDir()

	if n := load(t, dir, "big", envelopes(2*MaxBatchSize+17)...); n != 2*MaxBatchSize+17 {
		t.Errorf("Expected %d documents, got %d", 2*MaxBatchSize+17, n)
	}
}

func TestLoader_BareDocumentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()

	n := load(t, dir, "bare", `{"a":1}`, "", `  `, `{"a":2,"_source":"not an envelope"}`)
	if n != 2 {
		t.Errorf("Expected 2 documents, got %d", n)
	}
}

func TestLoader_InvalidLine(t *testing.T) {
	dir := t.TempDir()
	input := strings.NewReader("{\"a\":1}\n[1,2]\n{\"a\":3}\n")

	n, err := NewLoader(dir, quietLogger()).Load(context.Background(), "bad", input)
	if !errors.Is(err, domain.ErrInvalidJSON) {
		t.Fatalf("Expected ErrInvalidJSON, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected error to name line 2, got %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no committed documents, got %d", n)
	}
}

func TestStore_Resolve(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs-1", `{"a":1}`)
	load(t, dir, "logs-2", `{"a":1}`)
	load(t, dir, "audit", `{"a":1}`)
	store := NewStore(dir)

	tests := []struct {
		name      string
		requested []string
		want      []string
	}{
		{"exact", []string{"audit"}, []string{"audit"}},
		{"pattern", []string{"logs-*"}, []string{"logs-1", "logs-2"}},
		{"all", []string{search.AllIndices}, []string{"audit", "logs-1", "logs-2"}},
		{"empty request", nil, []string{"audit", "logs-1", "logs-2"}},
		{"dedupe", []string{"logs-1", "logs-*"}, []string{"logs-1", "logs-2"}},
		{"skips missing", []string{"missing", "audit"}, []string{"audit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Resolve(tt.requested)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := store.Resolve([]string{"missing"}); !errors.Is(err, ErrNoIndex) {
		t.Errorf("Expected ErrNoIndex, got %v", err)
	}
}

func TestClient_HealthAndIndexExists(t *testing.T) {
	dir := t.TempDir()
	c := newClient(t, dir)
	ctx := context.Background()

	if err := c.Health(ctx); err == nil {
		t.Error("Expected health check to fail without indexes")
	}

	load(t, dir, "logs", `{"a":1}`)
	if err := c.Health(ctx); err != nil {
		t.Errorf("Health failed: %v", err)
	}
	for name, want := range map[string]bool{"logs": true, "lo*": true, "_all": true, "nope": false} {
		got, err := c.IndexExists(ctx, name)
		if err != nil {
			t.Fatalf("IndexExists(%s) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("IndexExists(%s): expected %v, got %v", name, want, got)
		}
	}
}

func TestClient_ScrollsThroughAllPages(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs", envelopes(5)...)
	c := newClient(t, dir)

	total, got := drain(t, c, search.Request{Indices: []string{"logs"}, Sort: []string{"_id"}, Size: 2, ScrollTimeout: time.Minute})
	if total != 5 {
		t.Errorf("Expected total 5, got %d", total)
	}
	want := []string{"d1", "d2", "d3", "d4", "d5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestClient_DescendingSort(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs", envelopes(3)...)
	c := newClient(t, dir)

	_, got := drain(t, c, search.Request{Indices: []string{"logs"}, Sort: []string{"_id:desc"}, Size: 10})
	if !reflect.DeepEqual(got, []string{"d3", "d2", "d1"}) {
		t.Errorf("Expected descending ids, got %v", got)
	}
}

func TestClient_HitContent(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs", `{"_id":"x","_source":{"z":1,"a":{"b":"c"}}}`)
	c := newClient(t, dir)

	page, err := c.Search(context.Background(), search.Request{Indices: []string{"logs"}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(page.Hits) != 1 {
		t.Fatalf("Expected 1 hit, got %d", len(page.Hits))
	}
	hit := page.Hits[0]
	if hit.ID != "x" || hit.Index != "logs" || hit.Type != DocType || hit.Score == nil {
		t.Errorf("Unexpected hit metadata: %+v", hit)
	}
	var keys []string
	for _, f := range hit.Source.Fields() {
		keys = append(keys, f.Key)
	}
	if !reflect.DeepEqual(keys, []string{"z", "a"}) {
		t.Errorf("Expected source key order [z a], got %v", keys)
	}
}

func TestClient_SourceIncludes(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs", envelopes(1)...)
	c := newClient(t, dir)

	page, err := c.Search(context.Background(), search.Request{Indices: []string{"logs"}, SourceIncludes: []string{"nested.*"}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	src := page.Hits[0].Source
	if src.Len() != 1 {
		t.Fatalf("Expected only the nested field, got %d fields", src.Len())
	}
	if src.Fields()[0].Key != "nested" {
		t.Error("Expected nested field to be kept")
	}
}

func TestClient_Queries(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs", envelopes(6)...)
	c := newClient(t, dir)

	tests := []struct {
		name string
		req  search.Request
		want int64
	}{
		{"match all", search.Request{QueryString: "*"}, 6},
		{"empty query", search.Request{}, 6},
		{"query string", search.Request{QueryString: "color:red"}, 3},
		{"raw body", search.Request{Body: []byte(`{"query":{"match":"blue","field":"color"}}`)}, 3},
		{"raw bare query", search.Request{Body: []byte(`{"match_all":{}}`)}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Indices = []string{"logs"}
			total, got := drain(t, c, tt.req)
			if total != tt.want || int64(len(got)) != tt.want {
				t.Errorf("Expected %d hits, got total %d and %d hits", tt.want, total, len(got))
			}
		})
	}
}

func TestClient_InvalidBody(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs", envelopes(1)...)
	c := newClient(t, dir)

	if _, err := c.Search(context.Background(), search.Request{Indices: []string{"logs"}, Body: []byte(`{"bogus":1}`)}); err == nil {
		t.Error("Expected error for unknown query type")
	}
}

func TestClient_TerminateAfter(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs", envelopes(5)...)
	c := newClient(t, dir)

	total, got := drain(t, c, search.Request{Indices: []string{"logs"}, Size: 2, TerminateAfter: 3})
	if total != 3 || len(got) != 3 {
		t.Errorf("Expected 3 hits, got total %d and %v", total, got)
	}
}

func TestClient_AcrossIndexes(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "a", `{"_id":"1","_source":{"v":1}}`)
	load(t, dir, "b", `{"_id":"2","_source":{"v":2}}`)
	c := newClient(t, dir)

	total, got := drain(t, c, search.Request{Indices: []string{"_all"}, Sort: []string{"_id"}})
	if total != 2 || !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("Expected hits from both indexes, got total %d and %v", total, got)
	}
}

func TestClient_RetiredAndExpiredTokens(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs", envelopes(5)...)
	c := newClient(t, dir)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := c.Search(ctx, search.Request{Indices: []string{"logs"}, Size: 2, ScrollTimeout: time.Minute})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	second, err := c.Scroll(ctx, first.ScrollID, time.Minute)
	if err != nil {
		t.Fatalf("Scroll failed: %v", err)
	}
	if second.ScrollID == first.ScrollID {
		t.Error("Expected a fresh token per page")
	}

	if _, err := c.Scroll(ctx, first.ScrollID, time.Minute); !errors.Is(err, search.ErrCursorExpired) {
		t.Errorf("Expected retired token to be rejected, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Scroll(ctx, second.ScrollID, time.Minute); !errors.Is(err, search.ErrCursorExpired) {
		t.Errorf("Expected expired token to be rejected, got %v", err)
	}
}

func TestClient_ClearScroll(t *testing.T) {
	dir := t.TempDir()
	load(t, dir, "logs", envelopes(3)...)
	c := newClient(t, dir)
	ctx := context.Background()

	page, err := c.Search(ctx, search.Request{Indices: []string{"logs"}, Size: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if err := c.ClearScroll(ctx, []string{page.ScrollID, "unknown"}); err != nil {
		t.Fatalf("ClearScroll failed: %v", err)
	}
	if _, err := c.Scroll(ctx, page.ScrollID, time.Minute); !errors.Is(err, search.ErrCursorExpired) {
		t.Errorf("Expected cleared token to be rejected, got %v", err)
	}
}

func TestSortOrder(t *testing.T) {
	got := sortOrder([]string{"ts:desc", "name", "n:asc", "_score:DESC"})
	want := []string{"-ts", "name", "n", "-_score"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
