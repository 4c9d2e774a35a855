package risk

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/safewalk/guardian/internal/circuitbreaker"
	"github.com/safewalk/guardian/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-live-4f9a8b7c6d5e"

type fakeProvider struct {
	mu       sync.Mutex
	name     string
	response string
	err      error
	block    bool
	calls    int
	prompts  []string
	deadline time.Time
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	p.mu.Lock()
	p.calls++
	p.prompts = append(p.prompts, prompt)
	p.deadline, _ = ctx.Deadline()
	block, resp, err := p.block, p.response, p.err
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return resp, err
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeRecorder struct {
	mu      sync.Mutex
	records [][2]string
	err     error
}

func (r *fakeRecorder) RecordLow(scenarioID, saferAction string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, [2]string{scenarioID, saferAction})
	return r.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func withTestLogger(ctx context.Context, w *bytes.Buffer) context.Context {
	return logging.WithLogger(ctx, slog.New(slog.NewTextHandler(w, nil)))
}

func highScenario() ScenarioInput {
	return ScenarioInput{ScenarioID: "night-industrial-solo", TimeOfDay: "night", UserAlone: true, NeighborhoodType: "industrial", RouteLighting: "poor"}
}

func lowScenario() ScenarioInput {
	return ScenarioInput{ScenarioID: "residential-daytime", TimeOfDay: "day", NeighborhoodType: "residential", RouteLighting: "good"}
}

func TestAssess_PlaceholderKeyUsesFallback(t *testing.T) {
	for _, key := range []string{"", "your-api-key-here", "YOUR-API-KEY-HERE", "sk-XXXX", "replace-me"} {
		t.Run(key, func(t *testing.T) {
			p := &fakeProvider{name: "openai", response: `{"riskScore":5}`}
			a := NewAssessor(p, key, nil, quietLogger())

			res := a.Assess(context.Background(), highScenario())
			assert.Equal(t, ModelFallback, res.Model)
			assert.Equal(t, 90, res.RiskScore)
			assert.Zero(t, p.callCount(), "provider must not be called with a placeholder key")
			assert.False(t, a.ProviderConfigured())
		})
	}
}

func TestAssess_NilProviderUsesFallback(t *testing.T) {
	a := NewAssessor(nil, testKey, nil, quietLogger())
	res := a.Assess(context.Background(), lowScenario())
	assert.Equal(t, ModelFallback, res.Model)
	assert.Equal(t, ModelFallback, a.ProviderName())
}

func TestAssess_ProviderSuccess(t *testing.T) {
	p := &fakeProvider{name: "openai", response: `{"riskScore":64,"riskLevel":"MEDIUM","reasoning":"Dim path.","guardianMessage":"Stay alert.","saferAction":"Use the main road."}`}
	a := NewAssessor(p, testKey, nil, quietLogger())

	res := a.Assess(context.Background(), highScenario())
	assert.Equal(t, RiskResult{
		RiskScore:       64,
		RiskLevel:       LevelMedium,
		Reasoning:       "Dim path.",
		GuardianMessage: "Stay alert.",
		SaferAction:     "Use the main road.",
		Model:           "openai",
	}, res)

	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], "Scenario ID: night-industrial-solo")
	assert.Contains(t, p.prompts[0], "User alone: true")
	assert.Contains(t, p.prompts[0], `"saferAction"`)
}

func TestAssess_ProviderErrorUsesFallback(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	p := &fakeProvider{name: "openai", err: errors.New("401 unauthorized for key " + testKey)}
	a := NewAssessor(p, testKey, nil, logger)

	res := a.Assess(context.Background(), highScenario())
	assert.Equal(t, ModelFallback, res.Model)
	assert.Equal(t, Fallback(highScenario()), res)
	assert.Equal(t, 1, p.callCount())
	assert.Contains(t, logs.String(), "using fallback", "assessor logger is used without a context logger")
	assert.NotContains(t, logs.String(), testKey)
}

func TestAssess_ProviderErrorIsRedactedInLogs(t *testing.T) {
	var logs bytes.Buffer
	p := &fakeProvider{name: "openai", err: errors.New("401 unauthorized for key " + testKey)}
	a := NewAssessor(p, testKey, nil, quietLogger())

	// Assess logs through the context logger.
	ctx := withTestLogger(context.Background(), &logs)
	a.Assess(ctx, highScenario())

	assert.Contains(t, logs.String(), "risk provider call failed")
	assert.NotContains(t, logs.String(), testKey)
	assert.Contains(t, logs.String(), "[REDACTED]")
}

func TestAssess_UnparseableUsesFallback(t *testing.T) {
	for _, raw := range []string{"no json here", `{"riskScore":"high"}`, `{"riskLevel":"LOW"}`} {
		p := &fakeProvider{name: "openai", response: raw}
		a := NewAssessor(p, testKey, nil, quietLogger())

		res := a.Assess(context.Background(), highScenario())
		assert.Equal(t, ModelFallback, res.Model, "raw=%q", raw)
		assert.Equal(t, 90, res.RiskScore)
	}
}

func TestAssess_TimeoutUsesFallback(t *testing.T) {
	p := &fakeProvider{name: "openai", block: true}
	a := NewAssessor(p, testKey, nil, quietLogger()).WithTimeout(20 * time.Millisecond)

	start := time.Now()
	res := a.Assess(context.Background(), highScenario())
	assert.Equal(t, ModelFallback, res.Model)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, p.deadline.IsZero(), "provider call must carry a deadline")
}

func TestAssess_LowResultIsRemembered(t *testing.T) {
	rec := &fakeRecorder{}
	a := NewAssessor(nil, "", rec, quietLogger())

	res := a.Assess(context.Background(), lowScenario())
	require.Equal(t, LevelLow, res.RiskLevel)
	require.Len(t, rec.records, 1)
	assert.Equal(t, [2]string{"residential-daytime", res.SaferAction}, rec.records[0])
}

func TestAssess_MediumAndHighAreNotRemembered(t *testing.T) {
	rec := &fakeRecorder{}
	a := NewAssessor(nil, "", rec, quietLogger())

	a.Assess(context.Background(), highScenario())
	a.Assess(context.Background(), ScenarioInput{ScenarioID: "m", TimeOfDay: "night", UserAlone: true})
	assert.Empty(t, rec.records)
}

func TestAssess_ProviderLowIsRemembered(t *testing.T) {
	rec := &fakeRecorder{}
	p := &fakeProvider{name: "openai", response: `{"riskScore":12,"riskLevel":"LOW","saferAction":"Walk on."}`}
	a := NewAssessor(p, testKey, rec, quietLogger())

	a.Assess(context.Background(), highScenario())
	require.Len(t, rec.records, 1)
	assert.Equal(t, [2]string{"night-industrial-solo", "Walk on."}, rec.records[0])
}

func TestAssess_RecorderErrorIsSwallowed(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	a := NewAssessor(nil, "", rec, quietLogger())

	res := a.Assess(context.Background(), lowScenario())
	assert.Equal(t, LevelLow, res.RiskLevel)
}

func TestAssess_OpenCircuitSkipsProvider(t *testing.T) {
	p := &fakeProvider{name: "openai", err: errors.New("connection refused")}
	a := NewAssessor(p, testKey, nil, quietLogger()).
		WithBreaker(circuitbreaker.New(2, time.Hour))

	a.Assess(context.Background(), highScenario())
	a.Assess(context.Background(), highScenario())
	require.Equal(t, 2, p.callCount())

	res := a.Assess(context.Background(), highScenario())
	assert.Equal(t, ModelFallback, res.Model)
	assert.Equal(t, 2, p.callCount(), "open circuit must not call the provider")
}

func TestAssess_UnparseableTripsCircuit(t *testing.T) {
	p := &fakeProvider{name: "openai", response: "nope"}
	b := circuitbreaker.New(1, time.Hour)
	a := NewAssessor(p, testKey, nil, quietLogger()).WithBreaker(b)

	a.Assess(context.Background(), highScenario())
	assert.Equal(t, circuitbreaker.StateOpen, b.State("openai"))
}
