package analysis

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// Server handles HTTP requests for analyses
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
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

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return username == s.basicAuth.Username && password == s.basicAuth.Password
}

// corsMiddleware adds CORS headers and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="OCR Analytics"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux.
// Most specific paths first.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/analyses/batch", s.requireAuth(s.handleAnalyzeBatch))
	s.mux.HandleFunc("GET /api/analyses/{id}/file", s.requireAuth(s.handleGetAnalysisFile))
	s.mux.HandleFunc("GET /api/analyses/{id}", s.requireAuth(s.handleGetAnalysis))
	s.mux.HandleFunc("DELETE /api/analyses/{id}", s.requireAuth(s.handleDeleteAnalysis))
	s.mux.HandleFunc("GET /api/analyses", s.requireAuth(s.handleListAnalyses))
	s.mux.HandleFunc("POST /api/analyses", s.requireAuth(s.handleAnalyze))

	s.mux.HandleFunc("POST /api/classify", s.requireAuth(s.handleClassify))

	// Probes stay open so scrapers and orchestrators need no credentials
	s.mux.Handle("GET /metrics", s.service.Metrics().Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the mux wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
