package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"transitions-api-go/services/transitions"
)

func failWith(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"success":false,"error":{"message":"nope","code":%q}}`, code)
}

func testClient(url string, retries int) (*Client, *[]time.Duration) {
	var waits []time.Duration
	c := NewClient(ClientOptions{BaseURL: url, Retries: retries, Backoff: time.Second})
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

var testRequest = transitions.Request{
	TrackA: transitions.Track{ID: "a", Name: "A"},
	TrackB: transitions.Track{ID: "b", Name: "B"},
}

func TestGenerate_RetriesRetryableKinds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			failWith(w, http.StatusServiceUnavailable, "MODEL_LOADING")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":{"transitionId":"trans_1","url":"/transitions/trans_1","cached":false}}`)
	}))
	defer srv.Close()

	c, waits := testClient(srv.URL, 3)
	result, err := c.Generate(context.Background(), testRequest)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if result.TransitionID != "trans_1" {
		t.Errorf("Expected trans_1, got %s", result.TransitionID)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("Expected waits %v, got %v", want, *waits)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Errorf("Wait %d: expected %v, got %v", i, want[i], (*waits)[i])
		}
	}
}

func TestGenerate_HonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			failWith(w, http.StatusTooManyRequests, "RATE_LIMIT")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":{"transitionId":"trans_1","url":"/transitions/trans_1","cached":true}}`)
	}))
	defer srv.Close()

	c, waits := testClient(srv.URL, 2)
	if _, err := c.Generate(context.Background(), testRequest); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 7*time.Second {
		t.Errorf("Expected a single 7s wait, got %v", *waits)
	}
}

func TestGenerate_DoesNotRetryPermanentKinds(t *testing.T) {
	tests := []string{"VALIDATION", "AUTHENTICATION_ERROR", "MISSING_CONFIG", "INVALID_RESPONSE"}

	for _, code := range tests {
		t.Run(code, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				failWith(w, http.StatusBadRequest, code)
			}))
			defer srv.Close()

			c, _ := testClient(srv.URL, 5)
			_, err := c.Generate(context.Background(), testRequest)

			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Code != code {
				t.Fatalf("Expected APIError %s, got %v", code, err)
			}
			if calls.Load() != 1 {
				t.Errorf("Expected a single call, got %d", calls.Load())
			}
		})
	}
}

func TestGenerate_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failWith(w, http.StatusGatewayTimeout, "TIMEOUT")
	}))
	defer srv.Close()

	c, waits := testClient(srv.URL, 2)
	_, err := c.Generate(context.Background(), testRequest)
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if len(*waits) != 2 {
		t.Errorf("Expected 2 waits, got %d", len(*waits))
	}
}

func TestDelay_Caps(t *testing.T) {
	c := NewClient(ClientOptions{Backoff: time.Minute})
	if d := c.delay(10, nil); d != maxBackoff {
		t.Errorf("Expected cap %v, got %v", maxBackoff, d)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transitions/trans_ok" {
			failWith(w, http.StatusNotFound, "NOT_FOUND")
			return
		}
		if r.Header.Get("X-API-Key") != "k" {
			t.Errorf("Expected API key header")
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFdata"))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL + "/", APIKey: "k"})

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "trans_ok", &buf)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if n != 8 || buf.String() != "RIFFdata" {
		t.Errorf("Unexpected download %d %q", n, buf.String())
	}

	_, err = c.Download(context.Background(), "trans_missing", &buf)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND APIError, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":{"status":"PENDING","transitionId":"trans_1","createdAt":"2026-01-01T00:00:00Z"}}`)
	}))
	defer srv.Close()

	st, err := NewClient(ClientOptions{BaseURL: srv.URL}).Status(context.Background(), "trans_1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.State != "PENDING" || st.TransitionID != "trans_1" {
		t.Errorf("Unexpected status %+v", st)
	}
}

func TestApp_GenerateCommand(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		got = buf.String()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":{"transitionId":"trans_1","url":"/transitions/trans_1","cached":false}}`)
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), []string{
		"transitionctl", "--server", srv.URL, "generate",
		"--from-id", "a", "--from-name", "A", "--to-id", "b", "--to-name", "B",
		"--seconds", "4", "--energy", "0.5",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := `{"trackA":{"id":"a","name":"A"},"trackB":{"id":"b","name":"B"},"seconds":4,"overrides":{"energy":0.5}}`
	if got != want {
		t.Errorf("Expected body %s, got %s", want, got)
	}
	if !bytes.Contains(out.Bytes(), []byte(`"transitionId": "trans_1"`)) {
		t.Errorf("Expected result printed, got %s", out.String())
	}
}
