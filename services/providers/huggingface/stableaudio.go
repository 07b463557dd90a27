package huggingface

import (
	"context"
	"time"

	"transitions-api-go/services/providers"
	"transitions-api-go/services/transitions"
)

// StableAudioName is the registry name of the Stable Audio provider
const StableAudioName = "stable-audio"

const defaultStableAudioTimeout = 5 * time.Minute

// StableAudio generates transitions with a hosted Stable Audio Open model
type StableAudio struct {
	client *client
	url    string
}

// NewStableAudio creates the provider from cfg
func NewStableAudio(cfg Config) *StableAudio {
	timeout := cfg.StableAudioTimeout
	if timeout <= 0 {
		timeout = defaultStableAudioTimeout
	}
	return &StableAudio{
		client: newClient(cfg.APIKey, timeout),
		url:    endpoint(cfg.StableAudioEndpoint, stableAudioBaseURL, cfg.StableAudioModel, DefaultStableAudioModel),
	}
}

func (s *StableAudio) Name() string { return StableAudioName }

func (s *StableAudio) Available() error {
	return s.client.available(StableAudioName)
}

type stableAudioParams struct {
	AudioEndInS           int `json:"audio_end_in_s"`
	NumInferenceSteps     int `json:"num_inference_steps"`
	GuidanceScale         int `json:"guidance_scale"`
	NumWaveformsPerPrompt int `json:"num_waveforms_per_prompt"`
}

func (s *StableAudio) Generate(ctx context.Context, req transitions.Resolved) ([]byte, error) {
	if err := s.Available(); err != nil {
		return nil, err
	}
	prompt := providers.StableAudioPrompt(req)
	providers.LogPrompt(StableAudioName, prompt)

	return s.client.infer(ctx, StableAudioName, s.url, prompt, stableAudioParams{
		AudioEndInS:           req.Seconds,
		NumInferenceSteps:     150,
		GuidanceScale:         7,
		NumWaveformsPerPrompt: 1,
	})
}

// URL returns the inference endpoint in use
func (s *StableAudio) URL() string {
	return s.url
}
