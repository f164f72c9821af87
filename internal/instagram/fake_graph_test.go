package instagram

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/time/rate"
)

// fakeGraph is an in-process stand-in for the Graph API. Routes are keyed by
// "METHOD /path" without the version prefix.
type fakeGraph struct {
	t      *testing.T
	server *httptest.Server

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	calls  map[string]int
	forms  map[string][]map[string]string
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()
	fg := &fakeGraph{
		t:      t,
		routes: map[string]http.HandlerFunc{},
		calls:  map[string]int{},
		forms:  map[string][]map[string]string{},
	}
	fg.server = httptest.NewServer(http.HandlerFunc(fg.serve))
	t.Cleanup(fg.server.Close)
	return fg
}

func (fg *fakeGraph) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v21.0")
	key := r.Method + " " + path
	_ = r.ParseForm()
	values := map[string]string{}
	for k := range r.Form {
		values[k] = r.Form.Get(k)
	}

	fg.mu.Lock()
	fg.calls[key]++
	fg.forms[key] = append(fg.forms[key], values)
	handler, ok := fg.routes[key]
	fg.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"no route ` + key + `","type":"GraphMethodException","code":100}}`))
		return
	}
	handler(w, r)
}

func (fg *fakeGraph) handle(key string, h http.HandlerFunc) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.routes[key] = h
}

func (fg *fakeGraph) json(key string, body any) {
	fg.handle(key, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, body)
	})
}

func (fg *fakeGraph) count(key string) int {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.calls[key]
}

func (fg *fakeGraph) total() int {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	n := 0
	for _, c := range fg.calls {
		n += c
	}
	return n
}

func (fg *fakeGraph) lastForm(key string) map[string]string {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	forms := fg.forms[key]
	if len(forms) == 0 {
		return nil
	}
	return forms[len(forms)-1]
}

func (fg *fakeGraph) client() *Client {
	return NewClient(Options{
		BaseURL:    fg.server.URL,
		Version:    "v21.0",
		HTTPClient: fg.server.Client(),
		Limiter:    rate.NewLimiter(rate.Inf, 1),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
