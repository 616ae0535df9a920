// Package brokertest provides an in-process fake of the Libris broker API
// for tests.
package brokertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/steveyegge/illsync/internal/broker"
)

// ResponseStatuses maps response_id values to the raw status the fake
// broker moves the request to.
var ResponseStatuses = func() map[string]string {
	m := make(map[string]string, len(broker.ResponseOptions))
	for _, o := range broker.ResponseOptions {
		m[o.ID] = o.Label
	}
	return m
}()

// Post records one POST the fake received.
type Post struct {
	OrderID string
	Form    url.Values
	APIKey  string
}

// Server is a fake broker. Zero-value fields fall back to permissive defaults.
type Server struct {
	*httptest.Server

	Sigil  string
	APIKey string // when set, requests without a matching api-key header get 401

	mu        sync.Mutex
	requests  map[string]*broker.ILLRequest
	libraries map[string]broker.Library
	catalog   map[string]map[string]string
	posts     []Post
	gets      int
	failGets  int // remaining GETs to answer with 503
	stamp     int
}

// New starts a fake broker for sigil and closes it when the test ends.
func New(t testing.TB, sigil string) *Server {
	t.Helper()
	s := &Server{
		Sigil:     sigil,
		requests:  make(map[string]*broker.ILLRequest),
		libraries: make(map[string]broker.Library),
		catalog:   make(map[string]map[string]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Client returns a broker client pointed at the fake with retries disabled.
func (s *Server) Client(opts ...broker.Option) *broker.Client {
	base := []broker.Option{
		broker.WithHTTPClient(s.Server.Client()),
		broker.WithCatalogURL(s.URL + "/xsearch"),
		broker.WithRetryMaxElapsed(0),
	}
	return broker.NewClient(s.URL, s.Sigil, s.APIKey, append(base, opts...)...)
}

// AddRequest registers a broker request. A blank LastModified gets a fresh stamp.
func (s *Server) AddRequest(r broker.ILLRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.LastModified == "" {
		r.LastModified = s.nextStamp()
	}
	s.requests[r.RequestID] = &r
}

// SetStatus changes a request's raw status as if another party acted on it.
func (s *Server) SetStatus(orderID, raw, lastModified string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.requests[orderID]
	r.Status = raw
	r.LastModified = lastModified
}

// AddLibrary registers a library record.
func (s *Server) AddLibrary(sigil string, lib broker.Library) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libraries[sigil] = lib
}

// AddCatalogRecord registers a catalog hit for bibID.
func (s *Server) AddCatalogRecord(bibID, title, creator, isbn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[bibID] = map[string]string{"identifier": bibID, "title": title, "creator": creator, "isbn": isbn}
}

// FailNextGets makes the next n GETs answer 503.
func (s *Server) FailNextGets(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGets = n
}

// Posts returns the POSTs received so far.
func (s *Server) Posts() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Post(nil), s.posts...)
}

// Gets returns how many GETs were received.
func (s *Server) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// Request returns a copy of the broker-side state of an order.
func (s *Server) Request(orderID string) broker.ILLRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.requests[orderID]
}

func (s *Server) nextStamp() string {
	s.stamp++
	return fmt.Sprintf("2024-05-01 10:%02d:00", s.stamp)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.APIKey != "" && r.Header.Get("api-key") != s.APIKey {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}
	if r.Method == http.MethodGet {
		s.gets++
		if s.failGets > 0 {
			s.failGets--
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "illrequests" && parts[1] == s.Sigil:
		s.serveRequest(w, r, parts[2])
	case len(parts) == 2 && parts[0] == "libraries":
		lib, ok := s.libraries[parts[1]]
		libs := []broker.Library{}
		if ok {
			libs = append(libs, lib)
		}
		writeJSON(w, map[string]any{"libraries": libs})
	case len(parts) == 1 && parts[0] == "xsearch":
		bibID := strings.TrimPrefix(r.URL.Query().Get("query"), "ONR:")
		list := []map[string]string{}
		if rec, ok := s.catalog[bibID]; ok {
			list = append(list, rec)
		}
		writeJSON(w, map[string]any{"xsearch": map[string]any{"records": len(list), "list": list}})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveRequest(w http.ResponseWriter, r *http.Request, orderID string) {
	req, ok := s.requests[orderID]
	if r.Method == http.MethodGet {
		if !ok {
			writeJSON(w, map[string]any{"count": 0, "ill_requests": []any{}})
			return
		}
		writeJSON(w, map[string]any{"count": 1, "ill_requests": []broker.ILLRequest{*req}})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.posts = append(s.posts, Post{OrderID: orderID, Form: r.PostForm, APIKey: r.Header.Get("api-key")})
	if !ok {
		http.Error(w, "no such request", http.StatusNotFound)
		return
	}
	if r.PostForm.Get("timestamp") != req.LastModified {
		http.Error(w, "request modified since "+r.PostForm.Get("timestamp"), http.StatusConflict)
		return
	}

	switch r.PostForm.Get("action") {
	case string(broker.ActionRead):
		req.Status = "Läst"
	case string(broker.ActionResponse):
		raw, known := ResponseStatuses[r.PostForm.Get(broker.FieldResponseID)]
		if !known {
			http.Error(w, "unknown response_id", http.StatusBadRequest)
			return
		}
		req.Status = raw
		if msg := r.PostForm.Get(broker.FieldAddedResponse); msg != "" {
			req.Message = msg
		}
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	req.LastModified = s.nextStamp()
	writeJSON(w, map[string]any{"count": 1, "ill_requests": []broker.ILLRequest{*req}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
