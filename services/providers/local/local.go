// Package local talks to a self-hosted MusicGen service exposing POST /generate.
package local

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"syscall"
	"time"

	"transitions-api-go/services/providers"
	"transitions-api-go/services/transitions"
)

// Name is the registry name of the local MusicGen provider
const Name = "musicgen-local"

const (
	DefaultURL     = "http://localhost:5000"
	defaultTimeout = 2 * time.Minute
)

// Provider generates transitions with a MusicGen service on the local network
type Provider struct {
	baseURL string
	http    *http.Client
}

// New creates the provider. An empty baseURL uses DefaultURL.
func New(baseURL string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return Name }

// Available is always nil: reachability is only known once a request is made
func (p *Provider) Available() error { return nil }

type generateRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
	Style    string `json:"style"`
}

func (p *Provider) Generate(ctx context.Context, req transitions.Resolved) ([]byte, error) {
	prompt := providers.MusicGenPrompt(req)
	providers.LogPrompt(Name, prompt)

	audio, _, err := providers.PostJSON(ctx, p.http, Name, p.baseURL+"/generate", nil, generateRequest{
		Prompt:   prompt,
		Duration: req.Seconds,
		Style:    string(req.Style),
	})
	if err != nil && errors.Is(err, syscall.ECONNREFUSED) {
		return nil, transitions.NewError(transitions.KindServiceUnavailable,
			"local MusicGen service is not running", err).WithProvider(Name)
	}
	return audio, err
}
