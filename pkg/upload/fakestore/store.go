// Package fakestore is an in-memory object store served over httptest,
// used to exercise the upload client.
package fakestore

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
)

type Object struct {
	Body        []byte
	ContentType string
	Auth        string
}

type Server struct {
	HS *httptest.Server
	// Token, when set, is required as a bearer token on every request.
	Token string

	mu      sync.Mutex
	objects map[string]Object
	// failures maps a key to the status code returned for it.
	failures map[string]int
}

func New(token string) *Server {
	s := &Server{
		Token:    token,
		objects:  make(map[string]Object),
		failures: make(map[string]int),
	}
	s.HS = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) Close() {
	s.HS.Close()
}

func (s *Server) URL() string {
	return s.HS.URL
}

// FailKey makes every request for key answer with status.
func (s *Server) FailKey(key string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = status
}

func (s *Server) Get(key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[key]
	return o, ok
}

func (s *Server) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  code,
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	if key == "" {
		writeError(w, 400, "missing key", "bad_request")
		return
	}

	auth := r.Header.Get("Authorization")
	if s.Token != "" && auth != "Bearer "+s.Token {
		writeError(w, 401, "invalid token", "unauthorized")
		return
	}

	s.mu.Lock()
	status, failing := s.failures[key]
	s.mu.Unlock()
	if failing {
		http.Error(w, http.StatusText(status), status)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, 500, err.Error(), "read_failed")
			return
		}
		s.mu.Lock()
		s.objects[key] = Object{
			Body:        body,
			ContentType: r.Header.Get("Content-Type"),
			Auth:        auth,
		}
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"key":  key,
			"size": len(body),
		})
	case http.MethodGet:
		o, ok := s.Get(key)
		if !ok {
			writeError(w, 404, "no such key", "not_found")
			return
		}
		w.Header().Set("Content-Type", o.ContentType)
		w.Write(o.Body)
	default:
		http.Error(w, "method not allowed", 405)
	}
}
