package providers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"transitions-api-go/circuitbreaker"
	"transitions-api-go/logcolors"
	"transitions-api-go/services/notifier"
	"transitions-api-go/services/transitions"

	log "github.com/sirupsen/logrus"
)

// Disabled as the primary provider turns generation off entirely
const Disabled = "none"

// Selection is the configured provider order
type Selection struct {
	Primary   string
	Fallbacks []string
}

// RouterOptions configures a Router
type RouterOptions struct {
	Registry  *Registry
	Selection func() Selection

	BreakerThreshold int
	BreakerCooldown  time.Duration

	// OnFallback is called each time generation moves past a provider
	OnFallback func(from, to string, kind transitions.Kind)
}

// Router picks a provider per request from the current selection, skipping
// providers whose breaker is open and falling back on configuration or
// credential failures. It satisfies transitions.Generator.
type Router struct {
	registry   *Registry
	selection  func() Selection
	onFallback func(from, to string, kind transitions.Kind)

	breakerCfg circuitbreaker.Config
	breakers   map[string]*circuitbreaker.CircuitBreaker
	mu         sync.Mutex
}

// NewRouter creates a router over the registry
func NewRouter(opts RouterOptions) *Router {
	if opts.OnFallback == nil {
		opts.OnFallback = func(string, string, transitions.Kind) {}
	}
	return &Router{
		registry:   opts.Registry,
		selection:  opts.Selection,
		onFallback: opts.OnFallback,
		breakerCfg: circuitbreaker.Config{
			Threshold:    opts.BreakerThreshold,
			Cooldown:     opts.BreakerCooldown,
			OnTransition: publishBreakerTransition,
			OnWarning:    notifier.PublishHighFailureRate,
		},
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

// candidates resolves the selection to registered providers, primary first
func (r *Router) candidates() ([]Provider, error) {
	sel := r.selection()
	if sel.Primary == Disabled {
		return nil, transitions.Errorf(transitions.KindServiceUnavailable, "generation is disabled")
	}

	primary, err := r.registry.Get(sel.Primary)
	if err != nil {
		return nil, transitions.Errorf(transitions.KindInvalidProvider, "unknown generation provider %q", sel.Primary)
	}

	out := []Provider{primary}
	seen := map[string]bool{sel.Primary: true}
	for _, name := range sel.Fallbacks {
		if seen[name] || name == Disabled {
			continue
		}
		seen[name] = true
		p, err := r.registry.Get(name)
		if err != nil {
			log.Warnf("%s Ignoring unknown fallback provider %q", logcolors.LogFallback, name)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Plan fails fast when no configured provider could serve a request.
// When every candidate is unavailable the primary's reason is returned.
func (r *Router) Plan() error {
	cands, err := r.candidates()
	if err != nil {
		return err
	}

	var primaryErr error
	for i, p := range cands {
		err := p.Available()
		if err == nil {
			if i > 0 {
				log.Warnf("%s Primary %s is unavailable (%v), %s will serve", logcolors.LogFallback, cands[0].Name(), primaryErr, p.Name())
			}
			return nil
		}
		if i == 0 {
			primaryErr = err
		}
	}
	return primaryErr
}

// Generate tries each candidate in order until one produces audio
func (r *Router) Generate(ctx context.Context, req transitions.Resolved) ([]byte, error) {
	cands, err := r.candidates()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i, p := range cands {
		name := p.Name()
		next := ""
		if i+1 < len(cands) {
			next = cands[i+1].Name()
		}

		if err := p.Available(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			r.fallback(name, next, transitions.KindOf(err))
			continue
		}

		cb := r.Breaker(name)
		if !cb.Allow() {
			log.Warnf("%s Circuit open for %s, retry in %v", logcolors.LogFallback, name, cb.TimeUntilRetry())
			if lastErr == nil {
				lastErr = transitions.Errorf(transitions.KindServiceUnavailable,
					"provider temporarily disabled after repeated failures").WithProvider(name)
			}
			r.fallback(name, next, transitions.KindServiceUnavailable)
			continue
		}

		log.Infof("%s Generating %ds %s transition", logcolors.ProviderPrefix(name), req.Seconds, req.Style)
		started := time.Now()
		audio, err := p.Generate(ctx, req)
		if err == nil {
			if _, err = InspectAudio(name, audio); err == nil {
				cb.RecordSuccess()
				log.Infof("%s Generated %d bytes in %v", logcolors.ProviderPrefix(name), len(audio), time.Since(started))
				return audio, nil
			}
		}

		te := attribute(name, err)
		if countsAgainstBreaker(te.Kind) {
			cb.RecordFailure()
		}
		if te.Kind == transitions.KindAuthentication {
			log.Errorf("%s %s rejected its credentials", logcolors.LogAuthError, name)
			notifier.PublishProviderAuthFailure(name, te.Status)
		}

		if !fallsBack(te.Kind) {
			return nil, te
		}
		lastErr = te
		r.fallback(name, next, te.Kind)
	}

	if lastErr == nil {
		lastErr = transitions.Errorf(transitions.KindServiceUnavailable, "no generation provider available")
	}
	return nil, lastErr
}

func (r *Router) fallback(from, to string, kind transitions.Kind) {
	if to == "" {
		log.Warnf("%s %s failed with %s and no fallback remains", logcolors.LogFallback, from, kind)
		return
	}
	log.Warnf("%s %s failed with %s, trying %s", logcolors.LogFallback, from, kind, to)
	notifier.PublishProviderFallback(from, to, string(kind))
	r.onFallback(from, to, kind)
}

// attribute normalizes any provider error to a *transitions.Error carrying the provider name
func attribute(name string, err error) *transitions.Error {
	var te *transitions.Error
	if errors.As(err, &te) {
		if te.Provider == "" {
			return te.WithProvider(name)
		}
		return te
	}
	return transitions.NewError(transitions.KindOf(err), "generation failed", err).WithProvider(name)
}

// fallsBack reports whether the next candidate should be tried after this kind
func fallsBack(kind transitions.Kind) bool {
	return kind == transitions.KindMissingConfig || kind == transitions.KindAuthentication
}

// countsAgainstBreaker reports whether a failure indicates an unhealthy upstream
func countsAgainstBreaker(kind transitions.Kind) bool {
	switch kind {
	case transitions.KindTimeout,
		transitions.KindNetwork,
		transitions.KindModelLoading,
		transitions.KindServiceUnavailable,
		transitions.KindInvalidResponse,
		transitions.KindDownload:
		return true
	default:
		return false
	}
}

// publishBreakerTransition turns breaker state changes into alert events
func publishBreakerTransition(t circuitbreaker.Transition) {
	switch {
	case t.To == circuitbreaker.StateOpen:
		notifier.PublishCircuitBreakerOpen(t.Name, t.Failures, t.Cooldown)
	case t.From == circuitbreaker.StateHalfOpen && t.To == circuitbreaker.StateClosed:
		notifier.PublishCircuitBreakerRecovered(t.Name)
	}
}

// Breaker returns the breaker for a provider, creating it on first use
func (r *Router) Breaker(name string) *circuitbreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[name]
	if !ok {
		cfg := r.breakerCfg
		cfg.Name = name
		cb = circuitbreaker.New(cfg)
		r.breakers[name] = cb
	}
	return cb
}

// Breakers returns a snapshot of every breaker created so far
func (r *Router) Breakers() []circuitbreaker.Snapshot {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	snaps := make([]circuitbreaker.Snapshot, 0, len(names))
	for _, name := range names {
		snaps = append(snaps, r.Breaker(name).Snapshot())
	}
	return snaps
}

// AnyOpen reports whether some provider is currently being skipped
func (r *Router) AnyOpen() bool {
	for _, snap := range r.Breakers() {
		if snap.State == circuitbreaker.StateOpen.String() {
			return true
		}
	}
	return false
}

// ResetBreakers closes every breaker
func (r *Router) ResetBreakers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}

// ProviderInfo describes a registered provider for the admin surface
type ProviderInfo struct {
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Breaker   string `json:"circuitBreaker"`
}

// Describe lists every registered provider with its role in the current selection
func (r *Router) Describe() []ProviderInfo {
	sel := r.selection()
	roles := map[string]string{sel.Primary: "primary"}
	for _, name := range sel.Fallbacks {
		if _, ok := roles[name]; !ok {
			roles[name] = "fallback"
		}
	}

	var infos []ProviderInfo
	for _, name := range r.registry.List() {
		p, err := r.registry.Get(name)
		if err != nil {
			continue
		}
		info := ProviderInfo{
			Name:      name,
			Role:      roles[name],
			Available: true,
			Breaker:   r.Breaker(name).State().String(),
		}
		if err := p.Available(); err != nil {
			info.Available = false
			info.Reason = "unavailable"
			var te *transitions.Error
			if errors.As(err, &te) {
				info.Reason = te.Message
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Selection returns the current provider order
func (r *Router) Selection() Selection {
	return r.selection()
}

