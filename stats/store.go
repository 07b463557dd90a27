package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"transitions-api-go/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	statsBucketName = "stats"
	statsKey        = "server_stats"
)

// Store handles persistent storage for stats
type Store struct {
	db       *bolt.DB
	dbPath   string
	stats    *Stats
	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// PersistedStats represents the stats data that gets persisted to disk
type PersistedStats struct {
	// Cumulative counters (these accumulate across restarts)
	TotalRequests        int64 `json:"total_requests"`
	GenerateRequests     int64 `json:"generate_requests"`
	StatusRequests       int64 `json:"status_requests"`
	DownloadRequests     int64 `json:"download_requests"`
	HealthRequests       int64 `json:"health_requests"`
	StatsRequests        int64 `json:"stats_requests"`
	AdminRequests        int64 `json:"admin_requests"`
	OtherRequests        int64 `json:"other_requests"`
	GenerationsStarted   int64 `json:"generations_started"`
	GenerationsSucceeded int64 `json:"generations_succeeded"`
	GenerationsFailed    int64 `json:"generations_failed"`
	ProviderFallbacks    int64 `json:"provider_fallbacks"`
	CacheHits            int64 `json:"cache_hits"`
	CacheMisses          int64 `json:"cache_misses"`
	CacheStale           int64 `json:"cache_stale"`
	RateLimitAPI         int64 `json:"rate_limit_api"`
	RateLimitGenerate    int64 `json:"rate_limit_generate"`
	RateLimitBypass      int64 `json:"rate_limit_bypass"`
	RateLimitExceeded    int64 `json:"rate_limit_exceeded"`
	Status2xx            int64 `json:"status_2xx"`
	Status4xx            int64 `json:"status_4xx"`
	Status5xx            int64 `json:"status_5xx"`

	// Response time tracking
	TotalResponseTime int64 `json:"total_response_time"`
	ResponseCount     int64 `json:"response_count"`
	MinResponseTime   int64 `json:"min_response_time"`
	MaxResponseTime   int64 `json:"max_response_time"`
	GenerationTime    int64 `json:"generation_time"`
	GenerationCount   int64 `json:"generation_count"`

	FailuresByKind map[string]int64 `json:"failures_by_kind"`
	FallbackRoutes map[string]int64 `json:"fallback_routes"`

	// Metadata
	LastSaved    time.Time `json:"last_saved"`
	FirstStarted time.Time `json:"first_started"`
}

// NewStore creates a stats store with a dedicated BoltDB file backing s
func NewStore(dbPath string, s *Stats) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(statsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create stats bucket: %w", err)
	}

	log.Infof("%s Stats store initialized at %s", logcolors.LogStats, dbPath)
	return &Store{
		db:       db,
		dbPath:   dbPath,
		stats:    s,
		stopChan: make(chan struct{}),
	}, nil
}

// Load reads persisted stats from disk and applies them to the live counters
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var persisted PersistedStats
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(statsBucketName))
		if b == nil {
			return nil
		}

		data := b.Get([]byte(statsKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &persisted)
	})
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if !found {
		return nil
	}

	st := s.stats
	st.TotalRequests.Store(persisted.TotalRequests)
	st.GenerateRequests.Store(persisted.GenerateRequests)
	st.StatusRequests.Store(persisted.StatusRequests)
	st.DownloadRequests.Store(persisted.DownloadRequests)
	st.HealthRequests.Store(persisted.HealthRequests)
	st.StatsRequests.Store(persisted.StatsRequests)
	st.AdminRequests.Store(persisted.AdminRequests)
	st.OtherRequests.Store(persisted.OtherRequests)
	st.GenerationsStarted.Store(persisted.GenerationsStarted)
	st.GenerationsSucceeded.Store(persisted.GenerationsSucceeded)
	st.GenerationsFailed.Store(persisted.GenerationsFailed)
	st.ProviderFallbacks.Store(persisted.ProviderFallbacks)
	st.CacheHits.Store(persisted.CacheHits)
	st.CacheMisses.Store(persisted.CacheMisses)
	st.CacheStale.Store(persisted.CacheStale)
	st.RateLimitAPI.Store(persisted.RateLimitAPI)
	st.RateLimitGenerate.Store(persisted.RateLimitGenerate)
	st.RateLimitBypass.Store(persisted.RateLimitBypass)
	st.RateLimitExceeded.Store(persisted.RateLimitExceeded)
	st.Status2xx.Store(persisted.Status2xx)
	st.Status4xx.Store(persisted.Status4xx)
	st.Status5xx.Store(persisted.Status5xx)
	st.totalResponseTime.Store(persisted.TotalResponseTime)
	st.responseCount.Store(persisted.ResponseCount)
	st.generationTime.Store(persisted.GenerationTime)
	st.generationCount.Store(persisted.GenerationCount)

	// Only update min/max if we have valid persisted values
	if persisted.MinResponseTime > 0 && persisted.MinResponseTime < maxInt64 {
		st.minResponseTime.Store(persisted.MinResponseTime)
	}
	if persisted.MaxResponseTime > 0 {
		st.maxResponseTime.Store(persisted.MaxResponseTime)
	}

	restoreCounters(&st.failuresByKind, persisted.FailuresByKind)
	restoreCounters(&st.fallbackRoutes, persisted.FallbackRoutes)

	if !persisted.FirstStarted.IsZero() {
		st.StartTime = persisted.FirstStarted
	}

	log.Infof("%s Loaded persisted stats (total requests: %d, generations: %d, first started: %s)",
		logcolors.LogStats, persisted.TotalRequests, persisted.GenerationsStarted,
		persisted.FirstStarted.Format(time.RFC3339))

	return nil
}

func restoreCounters(m *sync.Map, values map[string]int64) {
	for name, count := range values {
		c := &atomic.Int64{}
		c.Store(count)
		m.Store(name, c)
	}
}

// Save persists current stats to disk
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	persisted := PersistedStats{
		TotalRequests:        st.TotalRequests.Load(),
		GenerateRequests:     st.GenerateRequests.Load(),
		StatusRequests:       st.StatusRequests.Load(),
		DownloadRequests:     st.DownloadRequests.Load(),
		HealthRequests:       st.HealthRequests.Load(),
		StatsRequests:        st.StatsRequests.Load(),
		AdminRequests:        st.AdminRequests.Load(),
		OtherRequests:        st.OtherRequests.Load(),
		GenerationsStarted:   st.GenerationsStarted.Load(),
		GenerationsSucceeded: st.GenerationsSucceeded.Load(),
		GenerationsFailed:    st.GenerationsFailed.Load(),
		ProviderFallbacks:    st.ProviderFallbacks.Load(),
		CacheHits:            st.CacheHits.Load(),
		CacheMisses:          st.CacheMisses.Load(),
		CacheStale:           st.CacheStale.Load(),
		RateLimitAPI:         st.RateLimitAPI.Load(),
		RateLimitGenerate:    st.RateLimitGenerate.Load(),
		RateLimitBypass:      st.RateLimitBypass.Load(),
		RateLimitExceeded:    st.RateLimitExceeded.Load(),
		Status2xx:            st.Status2xx.Load(),
		Status4xx:            st.Status4xx.Load(),
		Status5xx:            st.Status5xx.Load(),
		TotalResponseTime:    st.totalResponseTime.Load(),
		ResponseCount:        st.responseCount.Load(),
		MinResponseTime:      st.minResponseTime.Load(),
		MaxResponseTime:      st.maxResponseTime.Load(),
		GenerationTime:       st.generationTime.Load(),
		GenerationCount:      st.generationCount.Load(),
		FailuresByKind:       st.FailuresByKind(),
		FallbackRoutes:       st.FallbackRoutes(),
		LastSaved:            time.Now(),
		FirstStarted:         st.StartTime,
	}

	data, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(statsBucketName))
		if b == nil {
			return fmt.Errorf("stats bucket not found")
		}
		return b.Put([]byte(statsKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}

	return nil
}

// StartAutoSave begins periodic saving of stats
func (s *Store) StartAutoSave(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Save(); err != nil {
					log.Warnf("%s Failed to auto-save stats: %v", logcolors.LogStats, err)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
	log.Infof("%s Started auto-save with interval %v", logcolors.LogStats, interval)
}

// Close saves stats and closes the database
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	if err := s.Save(); err != nil {
		log.Warnf("%s Failed to save stats on close: %v", logcolors.LogStats, err)
	} else {
		log.Infof("%s Stats saved on shutdown", logcolors.LogStats)
	}

	return s.db.Close()
}
