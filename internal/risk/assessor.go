package risk

import (
	"context"
	"log/slog"
	"time"

	"github.com/safewalk/guardian/internal/circuitbreaker"
	"github.com/safewalk/guardian/internal/credentials"
	"github.com/safewalk/guardian/internal/logging"
	"github.com/safewalk/guardian/internal/metrics"
	"github.com/safewalk/guardian/internal/traces"
)

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 12 * time.Second

// Reasons the provider path was abandoned, as reported in metrics and spans.
const (
	reasonNotConfigured = "not_configured"
	reasonCircuitOpen   = "circuit_open"
	reasonCallFailed    = "call_failed"
	reasonUnparseable   = "unparseable"
)

const systemPrompt = "You are a personal-safety risk assessor for a walking companion app. " +
	"Respond with a single JSON object and nothing else: no prose, no code fences."

// Assessor picks between the external provider and the local heuristic.
type Assessor struct {
	provider Provider
	apiKey   string
	memory   LowRiskRecorder
	breaker  *circuitbreaker.Breaker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAssessor creates an assessor. provider may be nil, in which case every
// assessment uses the heuristic. apiKey is only inspected, never sent
// anywhere by the assessor; a placeholder key disables the provider.
func NewAssessor(provider Provider, apiKey string, memory LowRiskRecorder, logger *slog.Logger) *Assessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assessor{
		provider: provider,
		apiKey:   apiKey,
		memory:   memory,
		timeout:  DefaultProviderTimeout,
		logger:   logger,
	}
}

// WithTimeout overrides the provider call timeout.
func (a *Assessor) WithTimeout(d time.Duration) *Assessor {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// WithBreaker skips the provider while its circuit is open.
func (a *Assessor) WithBreaker(b *circuitbreaker.Breaker) *Assessor {
	a.breaker = b
	return a
}

// ProviderConfigured reports whether assessments will try the provider.
func (a *Assessor) ProviderConfigured() bool {
	return a.provider != nil && credentials.Configured(a.apiKey)
}

// ProviderName returns the provider's name, or ModelFallback without one.
func (a *Assessor) ProviderName() string {
	if a.provider == nil {
		return ModelFallback
	}
	return a.provider.Name()
}

// Assess always returns a result: provider failures of any kind degrade to
// the heuristic. A LOW result is handed to the memory recorder; recording
// errors are logged, never returned.
func (a *Assessor) Assess(ctx context.Context, in ScenarioInput) RiskResult {
	ctx, span := traces.StartSpan(ctx, "risk.assess", traces.ScenarioID(in.ScenarioID))
	defer span.End()

	result, reason := a.evaluate(ctx, in)
	if reason != "" {
		metrics.ProviderFallbacksTotal.WithLabelValues(reason).Inc()
		span.SetAttributes(traces.FallbackReason(reason))
	}
	span.SetAttributes(
		traces.Model(result.Model),
		traces.RiskLevel(string(result.RiskLevel)),
		traces.RiskScore(result.RiskScore),
	)
	metrics.RiskAssessmentsTotal.WithLabelValues(result.Model, string(result.RiskLevel)).Inc()

	if result.RiskLevel == LevelLow && a.memory != nil {
		if err := a.memory.RecordLow(in.ScenarioID, result.SaferAction); err != nil {
			logging.LOr(ctx, a.logger).Warn("failed to persist low-risk memory",
				"scenario_id", in.ScenarioID,
				"error", err,
			)
		}
	}

	return result
}

// evaluate returns the result and, when the heuristic served it, why.
func (a *Assessor) evaluate(ctx context.Context, in ScenarioInput) (RiskResult, string) {
	if !a.ProviderConfigured() {
		return Fallback(in), reasonNotConfigured
	}

	name := a.provider.Name()
	if a.breaker != nil && !a.breaker.Allow(name) {
		return Fallback(in), reasonCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.provider.Complete(callCtx, systemPrompt, buildPrompt(in))
	metrics.ProviderCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.recordFailure(name)
		logging.LOr(ctx, a.logger).Warn("risk provider call failed, using fallback",
			"provider", name,
			"error", logging.RedactError(err, a.apiKey),
		)
		return Fallback(in), reasonCallFailed
	}

	out, err := parseProviderOutput(raw)
	if err != nil {
		a.recordFailure(name)
		logging.LOr(ctx, a.logger).Warn("risk provider returned unusable output, using fallback",
			"provider", name,
			"output_bytes", len(raw),
		)
		return Fallback(in), reasonUnparseable
	}

	if a.breaker != nil {
		a.breaker.RecordSuccess(name)
	}
	return out.toResult(in, name), ""
}

func (a *Assessor) recordFailure(name string) {
	if a.breaker != nil {
		a.breaker.RecordFailure(name)
	}
}
