package testkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// PropertyClusterURL is the property under which FakeCluster publishes its base URL.
const PropertyClusterURL = "cluster.url"

// FakeCluster is an in-memory cluster speaking the subset of the search REST
// API used by exports: health, index existence, scroll search and clear scroll.
type FakeCluster struct {
	// FailHealth makes that many health checks answer 503 before succeeding.
	FailHealth int

	mu      sync.Mutex
	indices map[string][]json.RawMessage
	order   []string
	cursors map[string]*fakeCursor
	cleared []string
	seq     int

	server *http.Server
	done   chan struct{}
}

type fakeCursor struct {
	docs   []fakeDoc
	offset int
	size   int
}

type fakeDoc struct {
	index  string
	id     string
	source json.RawMessage
}

// NewFakeCluster creates an empty cluster.
func NewFakeCluster() *FakeCluster {
	return &FakeCluster{
		indices: make(map[string][]json.RawMessage),
		cursors: make(map[string]*fakeCursor),
	}
}

// AddDocuments appends raw JSON sources to an index, creating it when missing.
func (c *FakeCluster) AddDocuments(index string, sources ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indices[index]; !ok {
		c.order = append(c.order, index)
	}
	for _, s := range sources {
		c.indices[index] = append(c.indices[index], json.RawMessage(s))
	}
}

// Cleared returns every scroll id released through clear scroll.
func (c *FakeCluster) Cleared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.cleared)
}

// OpenCursors returns the number of scroll contexts still held.
func (c *FakeCluster) OpenCursors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cursors)
}

func (c *FakeCluster) GetName() string { return "fake-cluster" }

// Start listens on a free local port.
func (c *FakeCluster) Start() (map[string]any, error) {
	port, err := GetFreePort()
	if err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return nil, err
	}

	c.server = &http.Server{Handler: http.HandlerFunc(c.serve), ReadHeaderTimeout: 5 * time.Second}
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		_ = c.server.Serve(l)
	}()

	return map[string]any{PropertyClusterURL: fmt.Sprintf("http://localhost:%d", port)}, nil
}

// Stop shuts the server down.
func (c *FakeCluster) Stop() error {
	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.server.Shutdown(ctx)
	<-c.done
	c.server = nil
	return err
}

func (c *FakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	body, _ := io.ReadAll(r.Body)

	c.mu.Lock()
	defer c.mu.Unlock()

	p := r.URL.Path
	switch {
	case p == "/_cluster/health":
		if c.FailHealth > 0 {
			c.FailHealth--
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]string{"type": "unavailable", "reason": "starting"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "green"})
	case strings.HasPrefix(p, "/_search/scroll"):
		if r.Method == http.MethodDelete {
			c.clearScroll(w, body)
			return
		}
		c.scroll(w, body)
	case strings.HasSuffix(p, "/_search") || p == "/_search":
		c.search(w, r, strings.TrimSuffix(strings.TrimPrefix(p, "/"), "_search"))
	case r.Method == http.MethodHead:
		if len(c.match(strings.TrimPrefix(p, "/"))) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"type": "unsupported", "reason": p}})
	}
}

// match expands a comma-separated list of names and patterns into index names.
func (c *FakeCluster) match(expr string) []string {
	var names []string
	for _, pattern := range strings.Split(strings.Trim(expr, "/"), ",") {
		if pattern == "" || pattern == "_all" {
			pattern = "*"
		}
		for _, name := range c.order {
			if ok, _ := path.Match(pattern, name); ok && !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	return names
}

func (c *FakeCluster) search(w http.ResponseWriter, r *http.Request, indices string) {
	q := r.URL.Query()
	var docs []fakeDoc
	for _, index := range c.match(indices) {
		for i, src := range c.indices[index] {
			docs = append(docs, fakeDoc{index: index, id: fmt.Sprintf("%s-%d", index, i+1), source: src})
		}
	}
	if text := q.Get("q"); text != "" && text != "*" {
		docs = filterByQuery(docs, text)
	}
	if limit, err := strconv.Atoi(q.Get("terminate_after")); err == nil && limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	size := 10
	if s, err := strconv.Atoi(q.Get("size")); err == nil && s > 0 {
		size = s
	}

	cur := &fakeCursor{docs: docs, size: size}
	writeJSON(w, http.StatusOK, c.page(cur, len(docs)))
}

func (c *FakeCluster) scroll(w http.ResponseWriter, body []byte) {
	id := gjson.GetBytes(body, "scroll_id").String()
	cur, ok := c.cursors[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"type": "search_context_missing_exception", "reason": "No search context found for id [" + id + "]"}})
		return
	}
	writeJSON(w, http.StatusOK, c.page(cur, -1))
}

func (c *FakeCluster) clearScroll(w http.ResponseWriter, body []byte) {
	freed := 0
	for _, id := range gjson.GetBytes(body, "scroll_id").Array() {
		c.cleared = append(c.cleared, id.String())
		if _, ok := c.cursors[id.String()]; ok {
			delete(c.cursors, id.String())
			freed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"succeeded": true, "num_freed": freed})
}

// page serves the next batch of cur under its scroll id. A negative total omits it.
func (c *FakeCluster) page(cur *fakeCursor, total int) map[string]any {
	c.seq++
	id := fmt.Sprintf("scroll-%d", c.seq)
	c.cursors[id] = cur

	end := min(cur.offset+cur.size, len(cur.docs))
	hits := make([]map[string]any, 0, end-cur.offset)
	for _, d := range cur.docs[cur.offset:end] {
		hits = append(hits, map[string]any{"_index": d.index, "_id": d.id, "_score": 1.0, "_source": d.source})
	}
	cur.offset = end

	result := map[string]any{"hits": hits}
	if total >= 0 {
		result["total"] = map[string]any{"value": total, "relation": "eq"}
	}
	return map[string]any{"_scroll_id": id, "hits": result}
}

// filterByQuery supports "field:value" queries against top-level source fields.
func filterByQuery(docs []fakeDoc, text string) []fakeDoc {
	field, value, ok := strings.Cut(text, ":")
	if !ok {
		return docs
	}
	var out []fakeDoc
	for _, d := range docs {
		if gjson.GetBytes(d.source, field).String() == value {
			out = append(out, d)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
