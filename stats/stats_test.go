package stats

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	tests := []struct {
		route string
		check func(s *Stats) int64
	}{
		{"/transitions/generate", func(s *Stats) int64 { return s.GenerateRequests.Load() }},
		{"/transitions/status/{id}", func(s *Stats) int64 { return s.StatusRequests.Load() }},
		{"/transitions/{id}", func(s *Stats) int64 { return s.DownloadRequests.Load() }},
		{"/health", func(s *Stats) int64 { return s.HealthRequests.Load() }},
		{"/stats", func(s *Stats) int64 { return s.StatsRequests.Load() }},
		{"/cache/clear", func(s *Stats) int64 { return s.AdminRequests.Load() }},
		{"/circuit-breaker/reset", func(s *Stats) int64 { return s.AdminRequests.Load() }},
		{"/test-notifications", func(s *Stats) int64 { return s.AdminRequests.Load() }},
		{"/", func(s *Stats) int64 { return s.OtherRequests.Load() }},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			s := New()
			s.RecordRequest(tt.route)
			if got := tt.check(s); got != 1 {
				t.Errorf("Expected route %s to be counted once, got %d", tt.route, got)
			}
			if s.TotalRequests.Load() != 1 {
				t.Errorf("Expected total 1, got %d", s.TotalRequests.Load())
			}
		})
	}
}

func TestRecordRateLimit(t *testing.T) {
	s := New()
	for _, tier := range []string{"api", "api", "generate", "bypass", "exceeded", "unknown"} {
		s.RecordRateLimit(tier)
	}

	if s.RateLimitAPI.Load() != 2 {
		t.Errorf("Expected 2 api, got %d", s.RateLimitAPI.Load())
	}
	if s.RateLimitGenerate.Load() != 1 || s.RateLimitBypass.Load() != 1 || s.RateLimitExceeded.Load() != 1 {
		t.Errorf("Unexpected tier counts: generate=%d bypass=%d exceeded=%d",
			s.RateLimitGenerate.Load(), s.RateLimitBypass.Load(), s.RateLimitExceeded.Load())
	}
}

func TestRecordStatusCode(t *testing.T) {
	s := New()
	for _, code := range []int{200, 201, 304, 400, 429, 500, 503} {
		s.RecordStatusCode(code)
	}
	if s.Status2xx.Load() != 2 || s.Status4xx.Load() != 2 || s.Status5xx.Load() != 2 {
		t.Errorf("Unexpected status classes: 2xx=%d 4xx=%d 5xx=%d",
			s.Status2xx.Load(), s.Status4xx.Load(), s.Status5xx.Load())
	}
}

func TestGenerationCounters(t *testing.T) {
	s := New()
	s.RecordGenerationStarted()
	s.RecordGenerationStarted()
	s.RecordGenerationStarted()
	s.RecordGenerationSucceeded(2 * time.Second)
	s.RecordGenerationSucceeded(4 * time.Second)
	s.RecordGenerationFailed("TIMEOUT")

	if s.GenerationsStarted.Load() != 3 {
		t.Errorf("Expected 3 started, got %d", s.GenerationsStarted.Load())
	}
	if got := s.AvgGenerationTime(); got != 3*time.Second {
		t.Errorf("Expected avg 3s, got %v", got)
	}
	rate := s.GenerationSuccessRate()
	if rate < 66.6 || rate > 66.7 {
		t.Errorf("Expected success rate ~66.67, got %f", rate)
	}
	if got := s.FailuresByKind()["TIMEOUT"]; got != 1 {
		t.Errorf("Expected 1 TIMEOUT failure, got %d", got)
	}
}

func TestRecordFallback(t *testing.T) {
	s := New()
	s.RecordFallback("musicgen", "musicgen-local")
	s.RecordFallback("musicgen", "musicgen-local")
	s.RecordFallback("stable-audio", "fal")

	if s.ProviderFallbacks.Load() != 3 {
		t.Errorf("Expected 3 fallbacks, got %d", s.ProviderFallbacks.Load())
	}
	routes := s.FallbackRoutes()
	if routes["musicgen->musicgen-local"] != 2 || routes["stable-audio->fal"] != 1 {
		t.Errorf("Unexpected routes: %v", routes)
	}
}

func TestCacheHitRate(t *testing.T) {
	s := New()
	if s.CacheHitRate() != 0 {
		t.Errorf("Expected 0 with no traffic, got %f", s.CacheHitRate())
	}
	s.RecordCacheHit()
	s.RecordCacheHit()
	s.RecordCacheHit()
	s.RecordCacheMiss()
	s.RecordCacheStale()

	if s.CacheHitRate() != 75 {
		t.Errorf("Expected 75%%, got %f", s.CacheHitRate())
	}
	if s.CacheStale.Load() != 1 {
		t.Errorf("Expected 1 stale, got %d", s.CacheStale.Load())
	}
}

func TestResponseTimes(t *testing.T) {
	s := New()
	if s.MinResponseTime() != 0 || s.MaxResponseTime() != 0 || s.AvgResponseTime() != 0 {
		t.Error("Expected zero response times before any request")
	}

	s.RecordResponseTime(10 * time.Millisecond)
	s.RecordResponseTime(30 * time.Millisecond)
	s.RecordResponseTime(20 * time.Millisecond)

	if s.MinResponseTime() != 10*time.Millisecond {
		t.Errorf("Expected min 10ms, got %v", s.MinResponseTime())
	}
	if s.MaxResponseTime() != 30*time.Millisecond {
		t.Errorf("Expected max 30ms, got %v", s.MaxResponseTime())
	}
	if s.AvgResponseTime() != 20*time.Millisecond {
		t.Errorf("Expected avg 20ms, got %v", s.AvgResponseTime())
	}
}

func TestConcurrentRecording(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordRequest("/transitions/generate")
			s.RecordGenerationFailed("NETWORK_ERROR")
			s.RecordResponseTime(time.Millisecond)
		}()
	}
	wg.Wait()

	if s.GenerateRequests.Load() != 50 {
		t.Errorf("Expected 50 generate requests, got %d", s.GenerateRequests.Load())
	}
	if s.FailuresByKind()["NETWORK_ERROR"] != 50 {
		t.Errorf("Expected 50 NETWORK_ERROR failures, got %d", s.FailuresByKind()["NETWORK_ERROR"])
	}
}

func TestSnapshot(t *testing.T) {
	s := New()
	s.RecordRequest("/transitions/generate")
	s.RecordGenerationFailed("AUTHENTICATION_ERROR")

	snap := s.Snapshot()
	for _, section := range []string{"server", "requests", "generations", "fallbacks", "cache", "rate_limiting", "responses", "response_times"} {
		if _, ok := snap[section]; !ok {
			t.Errorf("Expected section %q in snapshot", section)
		}
	}

	gens := snap["generations"].(map[string]interface{})
	if gens["failed"].(int64) != 1 {
		t.Errorf("Expected 1 failed generation, got %v", gens["failed"])
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "stats.db")

	original := New()
	original.RecordRequest("/transitions/generate")
	original.RecordRequest("/health")
	original.RecordCacheHit()
	original.RecordGenerationSucceeded(time.Second)
	original.RecordGenerationFailed("TIMEOUT")
	original.RecordFallback("musicgen", "fal")
	original.RecordResponseTime(5 * time.Millisecond)

	store, err := NewStore(dbPath, original)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	restored := New()
	store, err = NewStore(dbPath, restored)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if restored.TotalRequests.Load() != 2 {
		t.Errorf("Expected 2 total requests, got %d", restored.TotalRequests.Load())
	}
	if restored.CacheHits.Load() != 1 {
		t.Errorf("Expected 1 cache hit, got %d", restored.CacheHits.Load())
	}
	if restored.FailuresByKind()["TIMEOUT"] != 1 {
		t.Errorf("Expected TIMEOUT failure to survive a restart, got %v", restored.FailuresByKind())
	}
	if restored.FallbackRoutes()["musicgen->fal"] != 1 {
		t.Errorf("Expected fallback route to survive a restart, got %v", restored.FallbackRoutes())
	}
	if restored.MinResponseTime() != 5*time.Millisecond {
		t.Errorf("Expected min response time 5ms, got %v", restored.MinResponseTime())
	}
	if !restored.StartTime.Equal(original.StartTime) {
		t.Errorf("Expected first start time %v, got %v", original.StartTime, restored.StartTime)
	}
}

func TestStore_LoadEmpty(t *testing.T) {
	s := New()
	before := s.StartTime

	store, err := NewStore(filepath.Join(t.TempDir(), "stats.db"), s)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Load(); err != nil {
		t.Fatalf("Load on empty store failed: %v", err)
	}
	if !s.StartTime.Equal(before) {
		t.Error("Expected start time to be untouched when nothing was persisted")
	}
}

func TestStore_AutoSave(t *testing.T) {
	s := New()
	dbPath := filepath.Join(t.TempDir(), "stats.db")
	store, err := NewStore(dbPath, s)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	store.StartAutoSave(10 * time.Millisecond)
	s.RecordRequest("/stats")
	time.Sleep(50 * time.Millisecond)

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	restored := New()
	store, err = NewStore(dbPath, restored)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if restored.StatsRequests.Load() != 1 {
		t.Errorf("Expected 1 stats request persisted, got %d", restored.StatsRequests.Load())
	}
}
