package transitions

import (
	"context"
	"errors"
	"regexp"
	"time"

	"transitions-api-go/cache"
	"transitions-api-go/logcolors"
	"transitions-api-go/status"
	"transitions-api-go/storage"
	"transitions-api-go/utils"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// IDPrefix namespaces generated transition ids
const IDPrefix = "trans_"

var idPattern = regexp.MustCompile(`^trans_[0-9a-f]{32}$`)

// ValidID reports whether id has the shape of a generated transition id
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Generator turns a resolved request into audio bytes.
// Plan must fail fast on misconfiguration so no status record is created for it.
type Generator interface {
	Plan() error
	Generate(ctx context.Context, req Resolved) ([]byte, error)
}

// Observer receives pipeline outcomes for metrics and alerting. All methods may be no-ops.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheStale()
	GenerationStarted()
	GenerationSucceeded(d time.Duration)
	GenerationFailed(id string, err *Error, d time.Duration)
}

type noopObserver struct{}

func (noopObserver) CacheHit()                                      {}
func (noopObserver) CacheMiss()                                     {}
func (noopObserver) CacheStale()                                    {}
func (noopObserver) GenerationStarted()                             {}
func (noopObserver) GenerationSucceeded(time.Duration)              {}
func (noopObserver) GenerationFailed(string, *Error, time.Duration) {}

// Options configures a Service
type Options struct {
	Cache     *cache.ResultCache
	Store     storage.Store
	Status    status.Tracker
	Generator Generator
	Defaults  func() Defaults
	Observer  Observer

	// Dedupe joins concurrent misses for the same fingerprint into one generation
	Dedupe bool
}

// Service coordinates fingerprinting, the result cache, the artifact
// store, the status tracker and the generator.
type Service struct {
	cache     *cache.ResultCache
	store     storage.Store
	status    status.Tracker
	generator Generator
	defaults  func() Defaults
	observer  Observer
	dedupe    bool

	inFlight singleflight.Group
	now      func() time.Time
	newID    func() (string, error)
}

// NewService wires the pipeline together
func NewService(opts Options) *Service {
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Defaults == nil {
		opts.Defaults = func() Defaults {
			return Defaults{Seconds: 5, Style: StyleAmbient}
		}
	}
	return &Service{
		cache:     opts.Cache,
		store:     opts.Store,
		status:    opts.Status,
		generator: opts.Generator,
		defaults:  opts.Defaults,
		observer:  opts.Observer,
		dedupe:    opts.Dedupe,
		now:       time.Now,
		newID:     newTransitionID,
	}
}

func newTransitionID() (string, error) {
	suffix, err := utils.RandomHex(16)
	if err != nil {
		return "", err
	}
	return IDPrefix + suffix, nil
}

// GenerateOrGet returns a cached transition when its artifact still exists,
// otherwise generates, persists and caches a new one.
func (s *Service) GenerateOrGet(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	resolved := req.Resolve(s.defaults())
	fp := Fingerprint(resolved)

	if result, ok := s.lookup(ctx, fp); ok {
		return result, nil
	}
	s.observer.CacheMiss()

	if !s.dedupe {
		return s.generate(ctx, fp, resolved)
	}

	v, err, shared := s.inFlight.Do(fp, func() (interface{}, error) {
		return s.generate(ctx, fp, resolved)
	})
	if shared {
		log.Infof("%s Joined in-flight generation for %s", logcolors.LogTransitions, shortFP(fp))
	}
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// lookup returns a verified cache hit. A hit whose artifact is gone is evicted.
func (s *Service) lookup(ctx context.Context, fp string) (Result, bool) {
	entry, ok := s.cache.Get(fp)
	if !ok {
		return Result{}, false
	}

	if s.store.Exists(ctx, entry.TransitionID) {
		s.observer.CacheHit()
		log.Infof("%s Returning cached transition %s", logcolors.LogCache, entry.TransitionID)
		return Result{
			TransitionID: entry.TransitionID,
			URL:          URLFor(entry.TransitionID),
			Cached:       true,
		}, true
	}

	s.cache.Delete(fp)
	s.observer.CacheStale()
	log.Warnf("%s Cached artifact %s missing, regenerating", logcolors.LogCache, entry.TransitionID)
	return Result{}, false
}

func (s *Service) generate(ctx context.Context, fp string, req Resolved) (Result, error) {
	if err := s.generator.Plan(); err != nil {
		return Result{}, err
	}

	id, err := s.newID()
	if err != nil {
		return Result{}, NewError(KindInternal, "failed to allocate transition id", err)
	}

	// Generation outlives the inbound request: a client disconnect must not
	// discard a result that will be cached for the next caller.
	genCtx := context.WithoutCancel(ctx)

	if err := s.status.SetPending(genCtx, id); err != nil {
		log.Warnf("%s Failed to record pending status for %s: %v", logcolors.LogStatus, id, err)
	}
	s.observer.GenerationStarted()
	started := s.now()

	log.WithFields(log.Fields{
		"transitionId": id,
		"trackA":       req.TrackA.ID,
		"trackB":       req.TrackB.ID,
		"seconds":      req.Seconds,
		"style":        req.Style,
	}).Infof("%s Generating new transition", logcolors.LogTransitions)

	audio, err := s.generator.Generate(genCtx, req)
	if err != nil {
		return Result{}, s.fail(genCtx, id, err, started)
	}

	path, err := s.store.Write(genCtx, id, audio)
	if err != nil {
		return Result{}, s.fail(genCtx, id, NewError(KindInternal, "failed to persist transition", err), started)
	}

	s.cache.Set(fp, cache.Entry{
		TransitionID: id,
		Path:         path,
		CreatedAt:    s.now(),
	})

	if err := s.status.MarkReady(genCtx, id); err != nil {
		log.Warnf("%s Failed to mark %s ready: %v", logcolors.LogStatus, id, err)
	}

	elapsed := s.now().Sub(started)
	s.observer.GenerationSucceeded(elapsed)
	log.Infof("%s Transition %s generated and cached (%d bytes, %v)",
		logcolors.LogTransitions, id, len(audio), elapsed)

	return Result{
		TransitionID: id,
		URL:          URLFor(id),
		Cached:       false,
	}, nil
}

// fail records the failure before handing the normalized error back
func (s *Service) fail(ctx context.Context, id string, err error, started time.Time) error {
	var te *Error
	if !errors.As(err, &te) {
		te = NewError(KindOf(err), "generation failed", err)
	}

	if markErr := s.status.MarkFailed(ctx, id, string(te.Kind)+": "+te.Message); markErr != nil {
		log.Warnf("%s Failed to mark %s failed: %v", logcolors.LogStatus, id, markErr)
	}
	s.observer.GenerationFailed(id, te, s.now().Sub(started))

	log.WithFields(log.Fields{
		"transitionId": id,
		"kind":         te.Kind,
		"provider":     te.Provider,
	}).Errorf("%s Generation failed: %v", logcolors.LogTransitions, err)

	return te
}

// Status returns the tracked status of a transition id, or NOT_FOUND
func (s *Service) Status(ctx context.Context, id string) (*status.Status, error) {
	if !ValidID(id) {
		return nil, Errorf(KindValidation, "transitionId: must match %s<32 hex chars>", IDPrefix)
	}
	st, err := s.status.Get(ctx, id)
	if err != nil {
		return nil, NewError(KindInternal, "failed to read status", err)
	}
	if st == nil {
		return nil, Errorf(KindNotFound, "Transition %s not found", id)
	}
	return st, nil
}

// ReadArtifact returns the stored audio for id, or NOT_FOUND
func (s *Service) ReadArtifact(ctx context.Context, id string) ([]byte, error) {
	if !ValidID(id) {
		return nil, Errorf(KindValidation, "transitionId: must match %s<32 hex chars>", IDPrefix)
	}
	data, err := s.store.Read(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, Errorf(KindNotFound, "Transition %s not found", id)
	}
	if err != nil {
		return nil, NewError(KindInternal, "failed to read transition", err)
	}
	return data, nil
}

// CacheStats exposes result cache occupancy
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearCache drops every cached fingerprint. Artifacts stay on disk.
func (s *Service) ClearCache() {
	s.cache.Clear()
	log.Infof("%s Result cache cleared", logcolors.LogCacheClear)
}

// CleanupStatuses removes status records older than maxAge
func (s *Service) CleanupStatuses(ctx context.Context, maxAge time.Duration) (int, error) {
	return s.status.Cleanup(ctx, maxAge)
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
