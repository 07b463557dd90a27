// Package fal implements a Stable Audio provider on fal.ai. Generation returns
// a URL which is then downloaded.
package fal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"transitions-api-go/logcolors"
	"transitions-api-go/services/providers"
	"transitions-api-go/services/transitions"
	"transitions-api-go/utils"

	log "github.com/sirupsen/logrus"
)

// Name is the registry name of the fal.ai provider
const Name = "fal"

const (
	DefaultBaseURL = "https://fal.run"
	DefaultModel   = "fal-ai/stable-audio"
	defaultSteps   = 100
	defaultTimeout = 5 * time.Minute
)

// Config holds the fal.ai settings
type Config struct {
	Key     string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Provider generates transitions through fal.ai
type Provider struct {
	key     string
	url     string
	timeout time.Duration
	http    *http.Client
}

// New creates the provider from cfg
func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{
		key:     strings.TrimSpace(cfg.Key),
		url:     strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Model, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Available() error {
	if p.key == "" {
		return providers.MissingConfig(Name, "FAL_KEY")
	}
	return nil
}

type generateRequest struct {
	Prompt       string `json:"prompt"`
	SecondsTotal int    `json:"seconds_total"`
	Steps        int    `json:"steps"`
}

func (p *Provider) Generate(ctx context.Context, req transitions.Resolved) ([]byte, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}
	prompt := providers.StableAudioPrompt(req)
	providers.LogPrompt(Name, prompt)

	// The timeout covers the generation call and the download together
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, _, err := providers.PostJSON(ctx, p.http, Name, p.url, map[string]string{
		"Authorization": "Key " + p.key,
	}, generateRequest{
		Prompt:       prompt,
		SecondsTotal: req.Seconds,
		Steps:        defaultSteps,
	})
	if err != nil {
		return nil, err
	}

	audioURL, ok := extractAudioURL(body)
	if !ok {
		log.Errorf("%s Response did not contain an audio URL: %s", logcolors.ProviderPrefix(Name), utils.Truncate(string(body), 300))
		return nil, transitions.Errorf(transitions.KindInvalidResponse, "response did not contain an audio URL").WithProvider(Name)
	}

	log.Infof("%s Downloading audio from %s", logcolors.ProviderPrefix(Name), audioURL)
	return p.download(ctx, audioURL)
}

// extractAudioURL accepts the response shapes fal.ai models are known to return
func extractAudioURL(body []byte) (string, bool) {
	var bare string
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, bare != ""
	}

	type fileRef struct {
		URL string `json:"url"`
	}
	var resp struct {
		AudioFile *fileRef `json:"audio_file"`
		Audio     *fileRef `json:"audio"`
		URL       string   `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}

	switch {
	case resp.AudioFile != nil && resp.AudioFile.URL != "":
		return resp.AudioFile.URL, true
	case resp.Audio != nil && resp.Audio.URL != "":
		return resp.Audio.URL, true
	case resp.URL != "":
		return resp.URL, true
	}
	return "", false
}

func (p *Provider) download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, transitions.NewError(transitions.KindInvalidResponse, "audio URL is malformed", err).WithProvider(Name)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, providers.ClassifyTransport(Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transitions.NewError(transitions.KindDownload, "failed to download generated audio",
			fmt.Errorf("HTTP %d from file host", resp.StatusCode)).WithProvider(Name)
	}

	audio, over, err := providers.ReadLimited(resp.Body)
	if err != nil {
		return nil, transitions.NewError(transitions.KindDownload, "failed to read generated audio", err).WithProvider(Name)
	}
	if over {
		return nil, providers.TooLarge(Name)
	}

	log.Debugf("%s Downloaded %d bytes (%s)", logcolors.ProviderPrefix(Name), len(audio), resp.Header.Get("Content-Type"))
	return audio, nil
}
