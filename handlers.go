package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"transitions-api-go/logcolors"
	"transitions-api-go/services/notifier"
	"transitions-api-go/services/transitions"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// maxRequestBody bounds the JSON accepted by the generate endpoint
const maxRequestBody = 64 << 10

func (s *server) generateTransition(w http.ResponseWriter, r *http.Request) {
	var req transitions.Request
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		log.Debugf("%s Rejected malformed body: %v", logcolors.LogRequest, err)
		Respond(w, r).Fail(http.StatusBadRequest, string(transitions.KindValidation), "Request body must be a JSON transition request")
		return
	}

	result, err := s.service.GenerateOrGet(r.Context(), req)
	if err != nil {
		Respond(w, r).Error(err)
		return
	}

	cacheStatus := "MISS"
	if result.Cached {
		cacheStatus = "HIT"
	}
	Respond(w, r).SetCacheStatus(cacheStatus).JSON(result)
}

func (s *server) getTransitionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		Respond(w, r).Error(err)
		return
	}
	Respond(w, r).JSON(st)
}

func (s *server) downloadTransition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, err := s.service.ReadArtifact(r.Context(), id)
	if err != nil {
		Respond(w, r).Error(err)
		return
	}

	// ServeContent fills in Content-Length and answers Range requests
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", id+".wav"))
	http.ServeContent(w, r, id+".wav", time.Time{}, bytes.NewReader(data))
}

func (s *server) getHealthStatus(w http.ResponseWriter, r *http.Request) {
	sel := s.router.Selection()
	health := HealthResponse{
		Status:          "ok",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Uptime:          time.Since(s.startedAt).Seconds(),
		Provider:        sel.Primary,
		Fallbacks:       sel.Fallbacks,
		CircuitBreakers: s.router.Breakers(),
	}
	if health.Fallbacks == nil {
		health.Fallbacks = []string{}
	}

	// If any provider breaker is open, mark as degraded
	if s.router.AnyOpen() {
		health.Status = "degraded"
	}

	// If no provider can take a request, mark as unhealthy
	statusCode := http.StatusOK
	if err := s.router.Plan(); err != nil {
		health.Status = "unhealthy"
		health.Error = planProblem(err)
		statusCode = http.StatusServiceUnavailable
		log.Warnf("%s Unhealthy: %s", logcolors.LogHealthCheck, health.Error)
	}

	Respond(w, r).JSONStatus(statusCode, health)
}

// planProblem describes a configuration failure without any upstream payload
func planProblem(err error) string {
	var te *transitions.Error
	if errors.As(err, &te) {
		return string(te.Kind) + ": " + te.Message
	}
	return string(transitions.KindOf(err))
}

func (s *server) listProviders(w http.ResponseWriter, r *http.Request) {
	sel := s.router.Selection()
	resp := ProvidersResponse{
		Primary:   sel.Primary,
		Fallbacks: sel.Fallbacks,
		Providers: s.router.Describe(),
	}
	if resp.Fallbacks == nil {
		resp.Fallbacks = []string{}
	}
	Respond(w, r).JSON(resp)
}

func (s *server) getStats(w http.ResponseWriter, r *http.Request) {
	snapshot := s.stats.Snapshot()
	snapshot["result_cache"] = s.service.CacheStats()
	snapshot["circuit_breakers"] = s.router.Breakers()
	snapshot["rate_limiter"] = map[string]interface{}{
		"tracked_clients": s.limiter.Len(),
		"api_limit":       s.limiter.GetAPILimit(),
		"generate_limit":  s.limiter.GetGenerateLimit(),
	}
	Respond(w, r).JSON(snapshot)
}

func (s *server) getCache(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(CacheResponse{
		Stats: s.service.CacheStats(),
		Performance: CachePerformance{
			Hits:    s.stats.CacheHits.Load(),
			Misses:  s.stats.CacheMisses.Load(),
			Stale:   s.stats.CacheStale.Load(),
			HitRate: s.stats.CacheHitRate(),
		},
	})
}

func (s *server) clearCache(w http.ResponseWriter, r *http.Request) {
	entries := s.service.CacheStats().Size
	s.service.ClearCache()
	notifier.PublishCacheCleared(entries)

	Respond(w, r).JSON(map[string]interface{}{
		"message":         "Result cache cleared, stored transitions were kept",
		"entries_cleared": entries,
	})
}

func (s *server) getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.conf()
	Respond(w, r).JSON(map[string]interface{}{
		"breakers": s.router.Breakers(),
		"config": map[string]interface{}{
			"threshold":    cfg.Configuration.CircuitBreakerThreshold,
			"cooldown_sec": cfg.Configuration.CircuitBreakerCooldownSecs,
		},
	})
}

func (s *server) resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	s.router.ResetBreakers()
	Respond(w, r).JSON(map[string]interface{}{
		"message": "All circuit breakers reset to CLOSED state",
	})
}

func (s *server) simulateCircuitBreakerFailure(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]
	if !s.registry.Has(name) {
		Respond(w, r).Fail(http.StatusNotFound, string(transitions.KindNotFound), fmt.Sprintf("Provider %s not found", name))
		return
	}

	cb := s.router.Breaker(name)
	cb.RecordFailure()

	Respond(w, r).JSON(map[string]interface{}{
		"message": "Simulated a failure",
		"breaker": cb.Snapshot(),
	})
}

func (s *server) testNotifications(w http.ResponseWriter, r *http.Request) {
	notifiers := s.notifiers()
	if len(notifiers) == 0 {
		Respond(w, r).Fail(http.StatusBadRequest, "NO_NOTIFIERS",
			"No notifiers configured. Set NOTIFIER_TELEGRAM_BOT_TOKEN and NOTIFIER_TELEGRAM_CHAT_ID, "+
				"NOTIFIER_NTFY_TOPIC, or the NOTIFIER_SMTP_* settings")
		return
	}

	sel := s.router.Selection()
	var breakerLines []string
	for _, b := range s.router.Breakers() {
		breakerLines = append(breakerLines, fmt.Sprintf("%s: %s (%d failures)", b.Name, b.State, b.Failures))
	}
	if len(breakerLines) == 0 {
		breakerLines = []string{"no provider has been called yet"}
	}

	subject := "🧪 Test: Transitions API Alerts"
	message := fmt.Sprintf(
		"🧪 TRANSITIONS API - TEST NOTIFICATION\n\n"+
			"✅ Status: Your notification setup is working correctly.\n\n"+
			"Primary provider:   %s\n"+
			"Fallback providers: %s\n\n"+
			"Circuit breakers:\n  %s\n\n"+
			"You will receive similar notifications when a provider\n"+
			"fails, falls back, or rejects its credentials.",
		sel.Primary,
		strings.Join(sel.Fallbacks, ", "),
		strings.Join(breakerLines, "\n  "),
	)

	results := make(map[string]interface{})
	successCount := 0
	failCount := 0

	for _, n := range notifiers {
		notifierType := n.Name()
		if err := n.Send(subject, message); err != nil {
			results[notifierType] = map[string]string{
				"status": "failed",
				"error":  err.Error(),
			}
			failCount++
			log.Errorf("%s %s failed: %v", logcolors.LogTestNotifications, notifierType, err)
		} else {
			results[notifierType] = map[string]string{
				"status": "success",
			}
			successCount++
			log.Infof("%s %s sent successfully", logcolors.LogTestNotifications, notifierType)
		}
	}

	statusCode := http.StatusOK
	if failCount > 0 {
		statusCode = http.StatusMultiStatus
	}
	Respond(w, r).JSONStatus(statusCode, map[string]interface{}{
		"message":    "Test notifications sent",
		"total":      len(notifiers),
		"successful": successCount,
		"failed":     failCount,
		"results":    results,
	})
}

func (s *server) helpHandler(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"help": "POST a JSON transition request to /transitions/generate, poll /transitions/status/{id}, then fetch the audio from the returned url.",
		"example": map[string]interface{}{
			"trackA":  map[string]string{"id": "spotify:track:1", "name": "Song A", "artist": "Artist A"},
			"trackB":  map[string]string{"id": "spotify:track:2", "name": "Song B", "artist": "Artist B"},
			"seconds": 5,
			"style":   "ambient",
		},
		"styles": transitions.Styles,
		"endpoints": []string{
			"POST /transitions/generate",
			"GET  /transitions/status/{id}",
			"GET  /transitions/{id}",
			"GET  /health",
			"GET  /providers",
			"GET  /stats",
		},
	})
}

func (s *server) notFound(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).Fail(http.StatusNotFound, string(transitions.KindNotFound), "Route not found")
}

func (s *server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).Fail(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", fmt.Sprintf("%s is not allowed on %s", r.Method, r.URL.Path))
}
