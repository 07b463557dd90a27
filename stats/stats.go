package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Stats holds all server statistics with atomic counters
type Stats struct {
	// Server info
	StartTime time.Time

	// Request counters
	TotalRequests    atomic.Int64
	GenerateRequests atomic.Int64
	StatusRequests   atomic.Int64
	DownloadRequests atomic.Int64
	HealthRequests   atomic.Int64
	StatsRequests    atomic.Int64
	AdminRequests    atomic.Int64
	OtherRequests    atomic.Int64

	// Generation pipeline
	GenerationsStarted   atomic.Int64
	GenerationsSucceeded atomic.Int64
	GenerationsFailed    atomic.Int64
	ProviderFallbacks    atomic.Int64

	// Result cache
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64
	CacheStale  atomic.Int64 // Hits whose artifact had disappeared

	// Rate limiting
	RateLimitAPI      atomic.Int64 // Requests admitted by the api tier only
	RateLimitGenerate atomic.Int64 // Generation requests admitted by both tiers
	RateLimitBypass   atomic.Int64 // Requests carrying a valid API key
	RateLimitExceeded atomic.Int64 // Requests rejected (429)

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response time tracking (in microseconds for precision)
	totalResponseTime atomic.Int64
	responseCount     atomic.Int64
	minResponseTime   atomic.Int64
	maxResponseTime   atomic.Int64

	// Generation time tracking (microseconds)
	generationTime  atomic.Int64
	generationCount atomic.Int64

	failuresByKind sync.Map // kind -> *atomic.Int64
	fallbackRoutes sync.Map // "from->to" -> *atomic.Int64
}

// New creates an empty stats instance starting now
func New() *Stats {
	s := &Stats{StartTime: time.Now()}
	s.minResponseTime.Store(maxInt64)
	return s
}

// RecordRequest records a request against its route template
func (s *Stats) RecordRequest(route string) {
	s.TotalRequests.Add(1)
	switch {
	case route == "/transitions/generate":
		s.GenerateRequests.Add(1)
	case route == "/transitions/status/{id}":
		s.StatusRequests.Add(1)
	case route == "/transitions/{id}":
		s.DownloadRequests.Add(1)
	case route == "/health":
		s.HealthRequests.Add(1)
	case route == "/stats":
		s.StatsRequests.Add(1)
	case strings.HasPrefix(route, "/cache"),
		strings.HasPrefix(route, "/circuit-breaker"),
		route == "/test-notifications":
		s.AdminRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

// RecordCacheHit records a verified result cache hit
func (s *Stats) RecordCacheHit() {
	s.CacheHits.Add(1)
}

// RecordCacheMiss records a result cache miss
func (s *Stats) RecordCacheMiss() {
	s.CacheMisses.Add(1)
}

// RecordCacheStale records a cache hit that was dropped because its artifact was gone
func (s *Stats) RecordCacheStale() {
	s.CacheStale.Add(1)
}

// RecordGenerationStarted records a generation attempt
func (s *Stats) RecordGenerationStarted() {
	s.GenerationsStarted.Add(1)
}

// RecordGenerationSucceeded records a successful generation and its duration
func (s *Stats) RecordGenerationSucceeded(d time.Duration) {
	s.GenerationsSucceeded.Add(1)
	s.generationTime.Add(d.Microseconds())
	s.generationCount.Add(1)
}

// RecordGenerationFailed records a failed generation by error kind
func (s *Stats) RecordGenerationFailed(kind string) {
	s.GenerationsFailed.Add(1)
	counter(&s.failuresByKind, kind).Add(1)
}

// RecordFallback records a provider handing over to the next candidate
func (s *Stats) RecordFallback(from, to string) {
	s.ProviderFallbacks.Add(1)
	counter(&s.fallbackRoutes, from+"->"+to).Add(1)
}

// RecordRateLimit records rate limit tier usage
func (s *Stats) RecordRateLimit(tier string) {
	switch tier {
	case "api":
		s.RateLimitAPI.Add(1)
	case "generate":
		s.RateLimitGenerate.Add(1)
	case "bypass":
		s.RateLimitBypass.Add(1)
	case "exceeded":
		s.RateLimitExceeded.Add(1)
	}
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records a response time
func (s *Stats) RecordResponseTime(duration time.Duration) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
}

func counter(m *sync.Map, key string) *atomic.Int64 {
	if c, ok := m.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := m.LoadOrStore(key, &atomic.Int64{})
	return c.(*atomic.Int64)
}

func snapshotCounters(m *sync.Map) map[string]int64 {
	out := make(map[string]int64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return out
}

// FailuresByKind returns generation failure counts keyed by error kind
func (s *Stats) FailuresByKind() map[string]int64 {
	return snapshotCounters(&s.failuresByKind)
}

// FallbackRoutes returns fallback counts keyed by "from->to"
func (s *Stats) FallbackRoutes() map[string]int64 {
	return snapshotCounters(&s.fallbackRoutes)
}

// Uptime returns the server uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CacheHitRate returns the cache hit rate as a percentage
func (s *Stats) CacheHitRate() float64 {
	hits := s.CacheHits.Load()
	total := hits + s.CacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// GenerationSuccessRate returns the share of finished generations that succeeded, as a percentage
func (s *Stats) GenerationSuccessRate() float64 {
	ok := s.GenerationsSucceeded.Load()
	total := ok + s.GenerationsFailed.Load()
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total) * 100
}

// AvgResponseTime returns the average response time
func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

// MinResponseTime returns the minimum response time
func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == maxInt64 {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// MaxResponseTime returns the maximum response time
func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// AvgGenerationTime returns the average duration of successful generations
func (s *Stats) AvgGenerationTime() time.Duration {
	count := s.generationCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.generationTime.Load()/count) * time.Microsecond
}

// Snapshot returns a point-in-time snapshot of all stats
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":    s.TotalRequests.Load(),
			"generate": s.GenerateRequests.Load(),
			"status":   s.StatusRequests.Load(),
			"download": s.DownloadRequests.Load(),
			"health":   s.HealthRequests.Load(),
			"stats":    s.StatsRequests.Load(),
			"admin":    s.AdminRequests.Load(),
			"other":    s.OtherRequests.Load(),
		},
		"generations": map[string]interface{}{
			"started":          s.GenerationsStarted.Load(),
			"succeeded":        s.GenerationsSucceeded.Load(),
			"failed":           s.GenerationsFailed.Load(),
			"success_rate":     s.GenerationSuccessRate(),
			"avg_duration":     s.AvgGenerationTime().String(),
			"failures_by_kind": s.FailuresByKind(),
		},
		"fallbacks": map[string]interface{}{
			"total":  s.ProviderFallbacks.Load(),
			"routes": s.FallbackRoutes(),
		},
		"cache": map[string]interface{}{
			"hits":     s.CacheHits.Load(),
			"misses":   s.CacheMisses.Load(),
			"stale":    s.CacheStale.Load(),
			"hit_rate": s.CacheHitRate(),
		},
		"rate_limiting": map[string]interface{}{
			"api_tier":      s.RateLimitAPI.Load(),
			"generate_tier": s.RateLimitGenerate.Load(),
			"bypass":        s.RateLimitBypass.Load(),
			"exceeded":      s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg": s.AvgResponseTime().String(),
			"min": s.MinResponseTime().String(),
			"max": s.MaxResponseTime().String(),
		},
	}
}
