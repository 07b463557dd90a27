// Package huggingface implements generation providers backed by the
// Hugging Face Inference API.
package huggingface

import (
	"context"
	"net/http"
	"strings"
	"time"

	"transitions-api-go/services/providers"
)

const (
	DefaultMusicGenModel    = "facebook/musicgen-small"
	DefaultStableAudioModel = "stabilityai/stable-audio-open-1.0"

	musicGenBaseURL    = "https://router.huggingface.co/hf-inference/models/"
	stableAudioBaseURL = "https://api-inference.huggingface.co/models/"
)

// Config holds the Hugging Face settings shared by both providers
type Config struct {
	APIKey string

	MusicGenModel    string
	MusicGenEndpoint string // overrides the URL derived from MusicGenModel
	MusicGenTimeout  time.Duration

	StableAudioModel    string
	StableAudioEndpoint string // overrides the URL derived from StableAudioModel
	StableAudioTimeout  time.Duration
}

// client is the authenticated HTTP plumbing shared by both providers
type client struct {
	apiKey string
	http   *http.Client
}

func newClient(apiKey string, timeout time.Duration) *client {
	return &client{
		apiKey: strings.TrimSpace(apiKey),
		http:   &http.Client{Timeout: timeout},
	}
}

func (c *client) available(provider string) error {
	if c.apiKey == "" {
		return providers.MissingConfig(provider, "HUGGINGFACE_API_KEY")
	}
	return nil
}

type inferenceRequest struct {
	Inputs     string      `json:"inputs"`
	Parameters interface{} `json:"parameters"`
}

func (c *client) infer(ctx context.Context, provider, url, prompt string, params interface{}) ([]byte, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"Accept":        "audio/wav",
	}
	audio, _, err := providers.PostJSON(ctx, c.http, provider, url, headers, inferenceRequest{
		Inputs:     prompt,
		Parameters: params,
	})
	return audio, err
}

func endpoint(override, base, model, fallbackModel string) string {
	if override != "" {
		return override
	}
	if model == "" {
		model = fallbackModel
	}
	return base + model
}
