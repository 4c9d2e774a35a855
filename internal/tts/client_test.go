package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safewalk/guardian/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey   = "el-live-9f8e7d6c"
	testVoice = "voice-abc123"
)

var fakeAudio = []byte("ID3\x03\x00fake-mp3-frames")

type upstream struct {
	srv   *httptest.Server
	calls atomic.Int32
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, attempt int)) *upstream {
	t.Helper()
	u := &upstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(w, r, int(u.calls.Add(1)))
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:  testKey,
		VoiceID: testVoice,
		BaseURL: baseURL,
		Retry:   retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	})
}

func TestSynthesize_Success(t *testing.T) {
	var gotBody map[string]any
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/"+testVoice, r.URL.Path)
		assert.Equal(t, testKey, r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(fakeAudio)
	})

	audio, err := newTestClient(u.srv.URL+"/").Synthesize(context.Background(), "Stay alert.")
	require.NoError(t, err)
	assert.Equal(t, fakeAudio, audio)

	assert.Equal(t, "Stay alert.", gotBody["text"])
	assert.Equal(t, ModelID, gotBody["model_id"])
	settings, ok := gotBody["voice_settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.5, settings["stability"])
	assert.Equal(t, 0.75, settings["similarity_boost"])
}

func TestSynthesize_NotConfigured(t *testing.T) {
	tests := []struct{ key, voice string }{
		{"", testVoice},
		{testKey, ""},
		{"your-elevenlabs-key", testVoice},
		{testKey, "REPLACE_WITH_VOICE"},
	}
	for _, tc := range tests {
		c := NewClient(Config{APIKey: tc.key, VoiceID: tc.voice, BaseURL: "http://127.0.0.1:1"})
		assert.False(t, c.Configured())

		_, err := c.Synthesize(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrNotConfigured)
	}
}

func TestSynthesize_ClientErrorIsNotRetried(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	})

	_, err := newTestClient(u.srv.URL).Synthesize(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "401")
	assert.NotContains(t, err.Error(), "invalid api key", "upstream body must not leak")
	assert.Equal(t, int32(1), u.calls.Load())
}

func TestSynthesize_ServerErrorIsRetried(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request, attempt int) {
		if attempt == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(fakeAudio)
	})

	audio, err := newTestClient(u.srv.URL).Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, fakeAudio, audio)
	assert.Equal(t, int32(2), u.calls.Load())
}

func TestSynthesize_PersistentServerError(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := newTestClient(u.srv.URL).Synthesize(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, int32(2), u.calls.Load())
}

func TestSynthesize_NetworkError(t *testing.T) {
	u := newUpstream(t, func(http.ResponseWriter, *http.Request, int) {})
	base := u.srv.URL
	u.srv.Close()

	_, err := newTestClient(base).Synthesize(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := newTestClient(u.srv.URL).Synthesize(context.Background(), "hi")
	assert.True(t, errors.Is(err, ErrUpstream))
}

func TestSynthesize_Timeout(t *testing.T) {
	// The server only sees the client hang up once the body is read, so drain
	// it and also unblock on release before the server closes.
	release := make(chan struct{})
	u := newUpstream(t, func(_ http.ResponseWriter, r *http.Request, _ int) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })

	c := NewClient(Config{
		APIKey:  testKey,
		VoiceID: testVoice,
		BaseURL: u.srv.URL,
		Timeout: 30 * time.Millisecond,
		Retry:   retry.Policy{MaxAttempts: 1},
	})

	start := time.Now()
	_, err := c.Synthesize(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAPIKey(t *testing.T) {
	assert.Equal(t, testKey, newTestClient("http://example.invalid").APIKey())
	assert.Empty(t, NewClient(Config{}).APIKey())
}

func TestCheck(t *testing.T) {
	st := newTestClient("http://example.invalid").Check(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, "configured", st.Detail)

	st = NewClient(Config{}).Check(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, "speech_provider", st.Name)
	assert.Equal(t, "browser_tts fallback", st.Detail)
}
