package providers

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"transitions-api-go/services/transitions"
)

// mockProvider is a scriptable provider for registry and router tests
type mockProvider struct {
	name  string
	avail error
	audio []byte
	err   error

	mu    sync.Mutex
	calls int
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Available() error {
	return m.avail
}

func (m *mockProvider) Generate(ctx context.Context, req transitions.Resolved) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.audio != nil {
		return m.audio, nil
	}
	return makeWAV(44100 * 4), nil
}

func (m *mockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newMockProvider(name string) *mockProvider {
	return &mockProvider{name: name}
}

// makeWAV builds a minimal RIFF/WAVE payload with a fmt chunk and dataBytes of silence
func makeWAV(dataBytes int) []byte {
	buf := make([]byte, 0, 44+dataBytes)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataBytes))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)     // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 2)     // channels
	buf = binary.LittleEndian.AppendUint32(buf, 44100) // sample rate
	buf = binary.LittleEndian.AppendUint32(buf, 44100*4)
	buf = binary.LittleEndian.AppendUint16(buf, 4)
	buf = binary.LittleEndian.AppendUint16(buf, 16)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataBytes))
	return append(buf, make([]byte, dataBytes)...)
}

func TestRegistry_Register(t *testing.T) {
	t.Run("Register single provider", func(t *testing.T) {
		r := NewRegistry()
		r.Register(newMockProvider("musicgen"))

		if !r.Has("musicgen") {
			t.Error("Provider 'musicgen' should be registered")
		}
	})

	t.Run("Register multiple providers", func(t *testing.T) {
		r := NewRegistry()

		r.Register(newMockProvider("musicgen"))
		r.Register(newMockProvider("stable-audio"))
		r.Register(newMockProvider("fal"))

		if len(r.providers) != 3 {
			t.Errorf("Expected 3 providers, got %d", len(r.providers))
		}
	})

	t.Run("Register overwrites existing provider", func(t *testing.T) {
		r := NewRegistry()

		old := newMockProvider("musicgen")
		replacement := newMockProvider("musicgen")
		r.Register(old)
		r.Register(replacement)

		p, err := r.Get("musicgen")
		if err != nil {
			t.Fatalf("Failed to get provider: %v", err)
		}
		if p != replacement {
			t.Error("Expected the second registration to win")
		}
	})
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(newMockProvider("musicgen"))

	t.Run("Get existing provider", func(t *testing.T) {
		p, err := r.Get("musicgen")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if p.Name() != "musicgen" {
			t.Errorf("Expected 'musicgen', got %s", p.Name())
		}
	})

	t.Run("Get non-existent provider returns error", func(t *testing.T) {
		_, err := r.Get("nonexistent")
		if err == nil {
			t.Fatal("Expected error for non-existent provider")
		}

		expectedErr := "provider not found: nonexistent"
		if err.Error() != expectedErr {
			t.Errorf("Expected error %q, got %q", expectedErr, err.Error())
		}
	})
}

func TestRegistry_ListIsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(newMockProvider("stable-audio"))
	r.Register(newMockProvider("fal"))
	r.Register(newMockProvider("musicgen"))

	names := r.List()
	want := []string{"fal", "musicgen", "stable-audio"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d names, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistry_Has(t *testing.T) {
	r := NewRegistry()
	r.Register(newMockProvider("musicgen"))

	tests := []struct {
		name     string
		provider string
		expected bool
	}{
		{"Existing provider", "musicgen", true},
		{"Non-existent provider", "fal", false},
		{"Empty name", "", false},
		{"Case sensitive", "MusicGen", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Has(tt.provider)
			if result != tt.expected {
				t.Errorf("Has(%q) = %v, expected %v", tt.provider, result, tt.expected)
			}
		})
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	r.Register(newMockProvider("musicgen"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.List()
				r.Has("musicgen")
				r.Get("musicgen")
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.Register(newMockProvider("concurrent" + string(rune('a'+id))))
			}
		}(i)
	}
	wg.Wait()

	if len(r.List()) != 11 {
		t.Errorf("Expected 11 providers, got %d", len(r.List()))
	}
}
