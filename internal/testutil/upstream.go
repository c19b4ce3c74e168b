package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Origin is a stand-in for the FiadoApp backend: it serves the static page
// and JSON for the API paths, counts hits per path and can be taken
// offline, after which connections are refused.
type Origin struct {
	URL  string
	Addr string

	server  *httptest.Server
	mu      sync.Mutex
	bodies  map[string]string
	hits    map[string]int
	offline bool
}

func StartOrigin(tb testing.TB) *Origin {
	tb.Helper()
	origin := &Origin{
		bodies: map[string]string{
			"/":                  "<html>FiadoApp</html>",
			"/static/index.html": "<html>FiadoApp</html>",
			"/manifest.json":     `{"name":"FiadoApp","start_url":"/"}`,
		},
		hits: map[string]int{},
	}
	origin.server = httptest.NewServer(http.HandlerFunc(origin.serve))
	origin.URL = origin.server.URL
	origin.Addr = origin.server.Listener.Addr().String()
	tb.Cleanup(origin.GoOffline)
	return origin
}

func (o *Origin) serve(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.hits[r.URL.Path]++
	body, ok := o.bodies[r.URL.Path]
	o.mu.Unlock()

	switch {
	case ok:
		if strings.HasSuffix(r.URL.Path, ".json") {
			w.Header().Set("Content-Type", "application/json")
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		_, _ = io.WriteString(w, body)
	case isAPIPath(r.URL.Path):
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	default:
		http.NotFound(w, r)
	}
}

func isAPIPath(path string) bool {
	for _, prefix := range []string{"/auth/", "/contactos", "/ventas", "/stock", "/negocios", "/resumen"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (o *Origin) SetBody(path string, body string) {
	o.mu.Lock()
	o.bodies[path] = body
	o.mu.Unlock()
}

func (o *Origin) Hits(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

// GoOffline closes the origin listener. It is safe to call more than once.
func (o *Origin) GoOffline() {
	o.mu.Lock()
	if o.offline {
		o.mu.Unlock()
		return
	}
	o.offline = true
	o.mu.Unlock()
	o.server.CloseClientConnections()
	o.server.Close()
}
