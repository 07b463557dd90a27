package huggingface

import (
	"context"
	"time"

	"transitions-api-go/services/providers"
	"transitions-api-go/services/transitions"
)

// MusicGenName is the registry name of the MusicGen provider
const MusicGenName = "musicgen"

const defaultMusicGenTimeout = 2 * time.Minute

// MusicGen generates transitions with a hosted MusicGen model
type MusicGen struct {
	client *client
	url    string
}

// NewMusicGen creates the provider from cfg
func NewMusicGen(cfg Config) *MusicGen {
	timeout := cfg.MusicGenTimeout
	if timeout <= 0 {
		timeout = defaultMusicGenTimeout
	}
	return &MusicGen{
		client: newClient(cfg.APIKey, timeout),
		url:    endpoint(cfg.MusicGenEndpoint, musicGenBaseURL, cfg.MusicGenModel, DefaultMusicGenModel),
	}
}

func (m *MusicGen) Name() string { return MusicGenName }

func (m *MusicGen) Available() error {
	return m.client.available(MusicGenName)
}

type musicGenParams struct {
	Duration int `json:"duration"`
}

func (m *MusicGen) Generate(ctx context.Context, req transitions.Resolved) ([]byte, error) {
	if err := m.Available(); err != nil {
		return nil, err
	}
	prompt := providers.MusicGenPrompt(req)
	providers.LogPrompt(MusicGenName, prompt)

	return m.client.infer(ctx, MusicGenName, m.url, prompt, musicGenParams{Duration: req.Seconds})
}

// URL returns the inference endpoint in use
func (m *MusicGen) URL() string {
	return m.url
}
