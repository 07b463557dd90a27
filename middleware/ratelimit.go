package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"transitions-api-go/logcolors"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Rate limit tiers, also used as the X-RateLimit-Type header value
const (
	TierAPI      = "api"
	TierGenerate = "generate"
	TierBypass   = "bypass"
	TierExceeded = "exceeded"
)

// RateLimitCode is the error code returned once a tier is exhausted
const RateLimitCode = "RATE_LIMIT_EXCEEDED"

// PerWindow converts "n requests per window" into a refill rate
func PerWindow(n int, window time.Duration) rate.Limit {
	if n <= 0 || window <= 0 {
		return rate.Inf
	}
	return rate.Every(window / time.Duration(n))
}

// LimiterPair holds the api and generate tier limiters for an IP
type LimiterPair struct {
	API      *rate.Limiter
	Generate *rate.Limiter
}

// GetAPITokens returns the number of tokens available in the api tier
func (lp *LimiterPair) GetAPITokens() int {
	return int(math.Floor(lp.API.Tokens()))
}

// GetGenerateTokens returns the number of tokens available in the generate tier
func (lp *LimiterPair) GetGenerateTokens() int {
	return int(math.Floor(lp.Generate.Tokens()))
}

// IPRateLimiter manages two-tier rate limiting per IP
type IPRateLimiter struct {
	ips           map[string]*LimiterPair
	mu            *sync.RWMutex
	apiRate       rate.Limit
	apiBurst      int
	generateRate  rate.Limit
	generateBurst int
}

// NewIPRateLimiter creates a new two-tier rate limiter
func NewIPRateLimiter(apiRate rate.Limit, apiBurst int, generateRate rate.Limit, generateBurst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:           make(map[string]*LimiterPair),
		mu:            &sync.RWMutex{},
		apiRate:       apiRate,
		apiBurst:      apiBurst,
		generateRate:  generateRate,
		generateBurst: generateBurst,
	}
}

// GetAPILimit returns the api tier burst limit
func (i *IPRateLimiter) GetAPILimit() int {
	return i.apiBurst
}

// GetGenerateLimit returns the generate tier burst limit
func (i *IPRateLimiter) GetGenerateLimit() int {
	return i.generateBurst
}

func (i *IPRateLimiter) AddIP(ip string) *LimiterPair {
	i.mu.Lock()
	defer i.mu.Unlock()

	if pair, exists := i.ips[ip]; exists {
		return pair
	}

	pair := &LimiterPair{
		API:      rate.NewLimiter(i.apiRate, i.apiBurst),
		Generate: rate.NewLimiter(i.generateRate, i.generateBurst),
	}
	i.ips[ip] = pair

	return pair
}

func (i *IPRateLimiter) GetLimiter(ip string) *LimiterPair {
	i.mu.RLock()
	limiter, exists := i.ips[ip]
	i.mu.RUnlock()

	if !exists {
		return i.AddIP(ip)
	}
	return limiter
}

// Len returns the number of tracked IPs
func (i *IPRateLimiter) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.ips)
}

// Prune forgets IPs whose buckets have fully refilled
func (i *IPRateLimiter) Prune() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for ip, pair := range i.ips {
		if pair.GetAPITokens() >= i.apiBurst && pair.GetGenerateTokens() >= i.generateBurst {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}

// RateLimitOptions configures RateLimitMiddleware
type RateLimitOptions struct {
	// APIKey returns the key that bypasses both tiers; empty disables the bypass
	APIKey func() string
	// IsGenerate reports whether a request also counts against the generate tier
	IsGenerate func(r *http.Request) bool
	// OnDecision observes every decision by tier
	OnDecision func(tier string)
}

// RateLimitMiddleware applies the api tier to every request and the generate tier on top
// for generation requests. A valid X-API-Key skips both.
func RateLimitMiddleware(limiter *IPRateLimiter, opts RateLimitOptions) func(http.Handler) http.Handler {
	record := func(tier string) {
		if opts.OnDecision != nil {
			opts.OnDecision(tier)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.APIKey != nil {
				if key := opts.APIKey(); key != "" && r.Header.Get("X-API-Key") == key {
					record(TierBypass)
					w.Header().Set("X-RateLimit-Bypass", "true")
					next.ServeHTTP(w, r)
					return
				}
			}

			ip := ClientIP(r)
			limiters := limiter.GetLimiter(ip)

			if !limiters.API.Allow() {
				reject(w, r, ip, TierAPI, limiter.GetAPILimit(), limiters.API)
				record(TierExceeded)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.GetAPILimit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiters.GetAPITokens()))
			tier := TierAPI

			if opts.IsGenerate != nil && opts.IsGenerate(r) {
				if !limiters.Generate.Allow() {
					reject(w, r, ip, TierGenerate, limiter.GetGenerateLimit(), limiters.Generate)
					record(TierExceeded)
					return
				}
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.GetGenerateLimit()))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiters.GetGenerateTokens()))
				tier = TierGenerate
			}

			record(tier)
			w.Header().Set("X-RateLimit-Type", tier)
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, ip, tier string, limit int, lim *rate.Limiter) {
	log.Warnf("%s IP %s exceeded the %s tier", logcolors.LogRateLimit, ip, tier)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Type", TierExceeded)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(lim)))

	message := "Too many requests, please try again later."
	if tier == TierGenerate {
		message = "Too many generation requests, please try again later."
	}
	WriteError(w, r, http.StatusTooManyRequests, RateLimitCode, message)
}

// retryAfterSeconds peeks at when the next token arrives without consuming it
func retryAfterSeconds(lim *rate.Limiter) int {
	res := lim.Reserve()
	delay := res.Delay()
	res.Cancel()

	secs := int(math.Ceil(delay.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ClientIP returns the remote host without its port
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
