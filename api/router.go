// Package api is the HTTP front door of the support agent.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// NewRouter mounts the routes under prefix (for example "/api").
func NewRouter(handler *Handler, prefix string) http.Handler {
	prefix = "/" + strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "/" {
		prefix = ""
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+prefix+"/session", handler.CreateSession)
	mux.HandleFunc("GET "+prefix+"/session/{id}", handler.GetSession)
	mux.HandleFunc("DELETE "+prefix+"/session/{id}", handler.DeleteSession)
	mux.HandleFunc("GET "+prefix+"/list_sessions", handler.ListSessions)
	mux.HandleFunc("POST "+prefix+"/message", handler.SendMessage)
	mux.HandleFunc("GET "+prefix+"/health", handler.Health)

	return withCORS(withAccessLog(mux))
}

// withCORS allows every origin, method and header.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			methods := r.Header.Get("Access-Control-Request-Method")
			headers := r.Header.Get("Access-Control-Request-Headers")
			if headers == "" {
				headers = "*"
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx := log.Logger.With().Str("path", r.URL.Path).Logger().WithContext(r.Context())
		next.ServeHTTP(rec, r.WithContext(ctx))

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
