package transitions_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"transitions-api-go/cache"
	"transitions-api-go/services/providers"
	"transitions-api-go/services/transitions"
	"transitions-api-go/status"
	"transitions-api-go/storage"
)

type stubProvider struct {
	name  string
	calls int
}

func (p *stubProvider) Name() string     { return p.name }
func (p *stubProvider) Available() error { return nil }

func (p *stubProvider) Generate(context.Context, transitions.Resolved) ([]byte, error) {
	p.calls++
	return []byte("RIFF....WAVE"), nil
}

func TestGenerateOrGet_UnknownPrimaryProvider(t *testing.T) {
	known := &stubProvider{name: "musicgen"}
	reg := providers.NewRegistry()
	reg.Register(known)

	router := providers.NewRouter(providers.RouterOptions{
		Registry: reg,
		Selection: func() providers.Selection {
			return providers.Selection{Primary: "suno", Fallbacks: []string{"musicgen"}}
		},
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	})

	tracker := status.NewMemoryTracker()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "transitions"))
	svc := transitions.NewService(transitions.Options{
		Cache:     cache.NewResultCache(10, time.Hour),
		Store:     store,
		Status:    tracker,
		Generator: router,
	})

	_, err := svc.GenerateOrGet(context.Background(), transitions.Request{
		TrackA: transitions.Track{ID: "t1", Name: "Song A"},
		TrackB: transitions.Track{ID: "t2", Name: "Song B"},
	})

	if transitions.KindOf(err) != transitions.KindInvalidProvider {
		t.Errorf("Expected INVALID_PROVIDER, got %v", err)
	}
	if tracker.Len() != 0 {
		t.Errorf("Expected no status records, got %d", tracker.Len())
	}
	if known.calls != 0 {
		t.Errorf("Expected the fallback to not be tried, got %d calls", known.calls)
	}
}
