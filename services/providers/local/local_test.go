package local

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"transitions-api-go/services/transitions"
)

func sampleRequest() transitions.Resolved {
	return transitions.Resolved{
		TrackA:  transitions.Track{ID: "a", Name: "A"},
		TrackB:  transitions.Track{ID: "b", Name: "B"},
		Seconds: 4,
		Style:   transitions.StyleHouse,
	}
}

func TestProvider_Generate(t *testing.T) {
	var body generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("Expected /generate, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Expected no credentials for the local service")
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte("RIFF....WAVE"))
	}))
	defer srv.Close()

	p := New(srv.URL+"/", 0)
	if p.Available() != nil {
		t.Error("Expected the local provider to always be available")
	}

	audio, err := p.Generate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(audio) != "RIFF....WAVE" {
		t.Errorf("Unexpected audio %q", audio)
	}
	if body.Duration != 4 || body.Style != "house" || body.Prompt == "" {
		t.Errorf("Unexpected request body %+v", body)
	}
}

func TestProvider_ServiceNotRunning(t *testing.T) {
	// Grab a free port and close it so nothing is listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := New("http://"+addr, 0)
	_, err = p.Generate(context.Background(), sampleRequest())

	te, ok := err.(*transitions.Error)
	if !ok {
		t.Fatalf("Expected *transitions.Error, got %T (%v)", err, err)
	}
	if te.Kind != transitions.KindServiceUnavailable {
		t.Errorf("Expected SERVICE_UNAVAILABLE, got %s", te.Kind)
	}
	if te.Provider != Name {
		t.Errorf("Expected provider %q, got %q", Name, te.Provider)
	}
}

func TestProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, 0).Generate(context.Background(), sampleRequest())
	if transitions.KindOf(err) != transitions.KindServiceUnavailable {
		t.Errorf("Expected SERVICE_UNAVAILABLE, got %v", err)
	}
}

func TestNew_DefaultURL(t *testing.T) {
	if p := New("", 0); p.baseURL != DefaultURL {
		t.Errorf("Expected %q, got %q", DefaultURL, p.baseURL)
	}
}
