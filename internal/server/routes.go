package server

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/info", s.handleInfo)

	// Uploads.
	mux.HandleFunc("POST /api/upload", s.handleUpload)

	// Garbage collection.
	mux.HandleFunc("POST /api/gc", s.handleGC)
	mux.HandleFunc("GET /api/gc/runs", s.handleListGCRuns)

	// Retrieval.
	mux.HandleFunc("GET "+s.mountPattern(), s.handleGetBlob)

	var handler http.Handler = mux
	handler = middleware.Recoverer(handler)
	handler = s.withRequestLogging(handler)
	handler = middleware.RealIP(handler)
	handler = middleware.RequestID(handler)
	handler = s.withCORS(handler)
	return handler
}

func (s *Server) mountPattern() string {
	if s.opts.Mount == "/" {
		return "/{identifier}"
	}
	return s.opts.Mount + "/{identifier}"
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		return next
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})(next)
}
