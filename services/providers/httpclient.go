package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"transitions-api-go/logcolors"
	"transitions-api-go/services/transitions"

	log "github.com/sirupsen/logrus"
)

// MaxAudioBytes caps how much audio a single upstream response may return
var MaxAudioBytes int64 = 64 << 20

// ReadLimited reads up to MaxAudioBytes from r. over reports that r held more.
func ReadLimited(r io.Reader) (data []byte, over bool, err error) {
	data, err = io.ReadAll(io.LimitReader(r, MaxAudioBytes+1))
	if int64(len(data)) > MaxAudioBytes {
		return data[:MaxAudioBytes], true, err
	}
	return data, false, err
}

// TooLarge is returned when an upstream payload exceeds MaxAudioBytes
func TooLarge(provider string) *transitions.Error {
	return transitions.NewError(transitions.KindInvalidResponse, "response exceeded the audio size limit",
		fmt.Errorf("more than %d bytes", MaxAudioBytes)).WithProvider(provider)
}

// PostJSON sends payload as JSON and returns the body of a 2xx response.
// Every failure comes back as a *transitions.Error attributed to provider.
func PostJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload interface{}) ([]byte, http.Header, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, transitions.NewError(transitions.KindInternal, "failed to encode request", err).WithProvider(provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, transitions.NewError(transitions.KindMissingConfig, "invalid endpoint URL", err).WithProvider(provider)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debugf("%s POST %s", logcolors.LogHTTP, url)
	return Do(client, provider, req)
}

// Do executes req and returns the body of a 2xx response
func Do(client *http.Client, provider string, req *http.Request) ([]byte, http.Header, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, ClassifyTransport(provider, err)
	}
	defer resp.Body.Close()

	data, over, err := ReadLimited(resp.Body)
	if err != nil {
		return nil, nil, ClassifyTransport(provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		te := ClassifyStatus(provider, resp.StatusCode, data)
		log.WithFields(log.Fields{
			"provider": provider,
			"status":   resp.StatusCode,
			"kind":     te.Kind,
		}).Errorf("%s Upstream request failed: %v", logcolors.ProviderPrefix(provider), te.Err)
		return nil, nil, te
	}
	if over {
		log.Errorf("%s Response body exceeded %d bytes", logcolors.ProviderPrefix(provider), MaxAudioBytes)
		return nil, nil, TooLarge(provider)
	}

	return data, resp.Header, nil
}
