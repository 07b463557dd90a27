package main

import (
	"transitions-api-go/cache"
	"transitions-api-go/circuitbreaker"
	"transitions-api-go/services/providers"
)

// envelope is the body of every JSON response
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *apiError   `json:"error,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// HealthResponse is served by /health
type HealthResponse struct {
	Status          string                    `json:"status"`
	Timestamp       string                    `json:"timestamp"`
	Uptime          float64                   `json:"uptime"`
	Provider        string                    `json:"provider"`
	Fallbacks       []string                  `json:"fallbacks"`
	Error           string                    `json:"error,omitempty"`
	CircuitBreakers []circuitbreaker.Snapshot `json:"circuit_breakers"`
}

// CachePerformance contains result cache hit/miss statistics
type CachePerformance struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Stale   int64   `json:"stale"`
	HitRate float64 `json:"hit_rate_percent"`
}

// CacheResponse is the response format for the /cache endpoint
type CacheResponse struct {
	cache.Stats
	Performance CachePerformance `json:"performance"`
}

// ProvidersResponse is served by /providers
type ProvidersResponse struct {
	Primary   string                   `json:"primary"`
	Fallbacks []string                 `json:"fallbacks"`
	Providers []providers.ProviderInfo `json:"providers"`
}
