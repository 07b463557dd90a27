package main

import (
	"net/http"
	"strings"
	"time"

	"transitions-api-go/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// setupRoutes configures all HTTP routes for the API
func (s *server) setupRoutes(router *mux.Router) {
	// Transition pipeline
	router.HandleFunc("/transitions/generate", s.generateTransition).Methods(http.MethodPost)
	router.HandleFunc("/transitions/generate", s.methodNotAllowed)
	router.HandleFunc("/transitions/status/{id}", s.getTransitionStatus).Methods(http.MethodGet)
	router.HandleFunc("/transitions/{id}", s.downloadTransition).Methods(http.MethodGet, http.MethodHead)

	// Health, stats and provider overview
	router.HandleFunc("/health", s.getHealthStatus).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)
	router.HandleFunc("/providers", s.listProviders).Methods(http.MethodGet)

	// Admin endpoints require X-API-Key
	admin := router.NewRoute().Subrouter()
	admin.Use(middleware.APIKeyMiddleware(func() string { return s.conf().Configuration.APIKey }))
	admin.HandleFunc("/cache", s.getCache).Methods(http.MethodGet)
	admin.HandleFunc("/cache/clear", s.clearCache).Methods(http.MethodPost)
	admin.HandleFunc("/circuit-breaker", s.getCircuitBreakerStatus).Methods(http.MethodGet)
	admin.HandleFunc("/circuit-breaker/reset", s.resetCircuitBreaker).Methods(http.MethodPost)
	admin.HandleFunc("/circuit-breaker/{provider}/simulate-failure", s.simulateCircuitBreakerFailure).Methods(http.MethodPost)
	admin.HandleFunc("/test-notifications", s.testNotifications).Methods(http.MethodPost)

	// Help endpoint
	router.HandleFunc("/", s.helpHandler).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(s.notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)
}

// handler builds the full middleware chain around the router
func (s *server) handler() http.Handler {
	router := mux.NewRouter()
	s.setupRoutes(router)

	limited := middleware.RateLimitMiddleware(s.limiter, middleware.RateLimitOptions{
		APIKey:     func() string { return s.conf().Configuration.APIKey },
		IsGenerate: isGenerateRequest,
		OnDecision: s.stats.RecordRateLimit,
	})(router)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(s.conf().Configuration.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key", middleware.RequestIDHeader},
		ExposedHeaders: []string{
			middleware.RequestIDHeader, "X-Cache-Status", "Retry-After",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Type",
		},
	})

	h := c.Handler(limited)
	h = s.recordStats(router)(h)
	h = middleware.LoggingMiddleware(h)
	return middleware.RequestID(h)
}

func isGenerateRequest(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == "/transitions/generate"
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// recordStats counts every request against its route template, including rejected ones
func (s *server) recordStats(router *mux.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := middleware.NewResponseRecorder(w)
			next.ServeHTTP(rec, r)

			route := "unmatched"
			var match mux.RouteMatch
			if router.Match(r, &match) && match.Route != nil {
				if tpl, err := match.Route.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			s.stats.RecordRequest(route)
			s.stats.RecordStatusCode(rec.StatusCode)
			s.stats.RecordResponseTime(time.Since(start))
		})
	}
}
