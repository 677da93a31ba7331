package subscription

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/sub-tracker/internal/domains"
	"github.com/zombor/sub-tracker/internal/scanning"
)

// ScanRunner is the slice of the scan coordinator the server needs: trigger
// a scan for a tab and deliver verdicts arriving from outside the process.
type ScanRunner interface {
	RequestScan(ctx context.Context, tabID int) (scanning.Verdict, error)
	Deliver(tabID int, verdict scanning.Verdict)
}

// SnapshotRegistry holds page snapshots for the in-process injector.
type SnapshotRegistry interface {
	Register(tabID int, snapshot scanning.PageSnapshot)
	Release(tabID int)
}

// Server handles HTTP requests for scans and subscription records.
type Server struct {
	store     *Store
	queries   *Queries
	scans     ScanRunner
	snapshots SnapshotRegistry
	links     domains.Links
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux.
func NewServer(store *Store, queries *Queries, scans ScanRunner, snapshots SnapshotRegistry, links domains.Links, basicAuth BasicAuth) *Server {
	return NewServerWithMux(store, queries, scans, snapshots, links, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(store *Store, queries *Queries, scans ScanRunner, snapshots SnapshotRegistry, links domains.Links, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		store:     store,
		queries:   queries,
		scans:     scans,
		snapshots: snapshots,
		links:     links,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			// Ensure CORS headers are set before error response
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Sub Tracker"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	// Scan protocol
	s.mux.HandleFunc("POST /api/scan/verdict", s.requireAuth(s.handleDeliverVerdict))
	s.mux.HandleFunc("POST /api/scan", s.requireAuth(s.handleScan))

	// Subscription records (most specific paths first)
	s.mux.HandleFunc("GET /api/subscriptions/upcoming", s.requireAuth(s.handleUpcoming))
	s.mux.HandleFunc("GET /api/subscriptions/{id}/cancellation", s.requireAuth(s.handleCancellation))
	s.mux.HandleFunc("PATCH /api/subscriptions/{id}", s.requireAuth(s.handleEditSubscription))
	s.mux.HandleFunc("DELETE /api/subscriptions/{id}", s.requireAuth(s.handleDeleteSubscription))
	s.mux.HandleFunc("GET /api/subscriptions", s.requireAuth(s.handleListSubscriptions))
	s.mux.HandleFunc("POST /api/subscriptions", s.requireAuth(s.handleSaveSubscription))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
