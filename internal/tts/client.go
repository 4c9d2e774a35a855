// Package tts proxies short guardian messages to the ElevenLabs
// text-to-speech API. When the upstream cannot produce audio the HTTP layer
// tells the client to speak the text with its own browser voice instead.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/safewalk/guardian/internal/credentials"
	"github.com/safewalk/guardian/internal/health"
	"github.com/safewalk/guardian/internal/retry"
	"github.com/safewalk/guardian/internal/traces"
)

const (
	// DefaultBaseURL is the public ElevenLabs API root.
	DefaultBaseURL = "https://api.elevenlabs.io"

	// ModelID is the ElevenLabs synthesis model.
	ModelID = "eleven_turbo_v2_5"

	// MaxAudioBytes caps how much audio is accepted from upstream.
	MaxAudioBytes = 10 << 20

	// DefaultTimeout bounds one synthesis including retries.
	DefaultTimeout = 15 * time.Second
)

var (
	// ErrNotConfigured means the API key or voice id is missing or a placeholder.
	ErrNotConfigured = errors.New("tts: elevenlabs not configured")
	// ErrUpstream wraps every failure to obtain audio from ElevenLabs.
	ErrUpstream = errors.New("tts: elevenlabs unavailable")
)

// Config configures the ElevenLabs client.
type Config struct {
	APIKey     string
	VoiceID    string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Retry governs retries of transient failures (network errors, 429, 5xx).
	Retry retry.Policy
}

// Client calls the ElevenLabs text-to-speech endpoint.
type Client struct {
	apiKey  string
	voiceID string
	baseURL string
	timeout time.Duration
	http    *http.Client
	retry   retry.Policy
}

// NewClient creates a new ElevenLabs client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.Policy{MaxAttempts: 2, BaseDelay: 250 * time.Millisecond, MaxDelay: time.Second}
	}

	return &Client{
		apiKey:  cfg.APIKey,
		voiceID: cfg.VoiceID,
		baseURL: baseURL,
		timeout: timeout,
		http:    httpClient,
		retry:   policy,
	}
}

// Configured reports whether both the key and the voice id look real.
func (c *Client) Configured() bool {
	return credentials.Configured(c.apiKey) && credentials.Configured(c.voiceID)
}

// APIKey returns the configured key so callers can redact it from logs.
func (c *Client) APIKey() string { return c.apiKey }

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize returns MP3 audio for text. The whole response is buffered so
// that a failure part-way through can still be answered with the fallback.
// Errors are ErrNotConfigured or wrap ErrUpstream.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, span := traces.StartSpan(ctx, "tts.synthesize", traces.Provider("elevenlabs"), traces.TextLength(len(text)))
	defer span.End()

	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       ModelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var audio []byte
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		audio, callErr = c.call(ctx, body)
		return callErr
	})
	if err != nil {
		traces.Fail(span, "synthesis failed")
		if !errors.Is(err, ErrUpstream) {
			err = fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		return nil, err
	}
	return audio, nil
}

// call makes one attempt. Client errors other than 429 are permanent.
func (c *Client) call(ctx context.Context, body []byte) ([]byte, error) {
	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: build request: %v", ErrUpstream, err))
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused; the body is never
		// forwarded to the caller.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		statusErr := fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, retry.Permanent(statusErr)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", ErrUpstream, err)
	}
	if len(audio) > MaxAudioBytes {
		return nil, retry.Permanent(fmt.Errorf("%w: audio exceeds %d bytes", ErrUpstream, MaxAudioBytes))
	}
	if len(audio) == 0 {
		return nil, retry.Permanent(fmt.Errorf("%w: empty audio", ErrUpstream))
	}
	return audio, nil
}

// Check reports the speech provider's configuration. An unconfigured
// provider is still healthy because clients fall back to browser speech.
func (c *Client) Check(_ context.Context) health.Status {
	detail := "configured"
	if !c.Configured() {
		detail = "browser_tts fallback"
	}
	return health.Status{Name: "speech_provider", Healthy: true, Detail: detail}
}
