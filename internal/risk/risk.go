// Package risk assesses how risky a walking scenario is.
//
// An assessment is produced either by an external language-model provider or,
// whenever that provider is unconfigured, unreachable, or returns something
// unusable, by a deterministic weighted-sum heuristic. Callers always get a
// RiskResult; the Model field tells them which path served it.
package risk

import (
	"context"
)

// Level is the coarse three-tier risk classification.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

// Score thresholds. A score at or above a threshold is in that level.
const (
	HighThreshold   = 70
	MediumThreshold = 40

	MinScore = 0
	MaxScore = 100
)

// ModelFallback tags results computed by the local heuristic.
const ModelFallback = "fallback"

// ScenarioInput describes the situation being assessed. TimeOfDay is "day"
// or "night", RouteLighting "good", "mixed" or "poor". NeighborhoodType is
// usually "downtown", "residential" or "industrial" but any value is accepted.
type ScenarioInput struct {
	ScenarioID       string `json:"scenarioId"`
	TimeOfDay        string `json:"timeOfDay"`
	UserAlone        bool   `json:"userAlone"`
	NeighborhoodType string `json:"neighborhoodType"`
	RouteLighting    string `json:"routeLighting"`
}

// RiskResult is the answer returned to callers.
type RiskResult struct {
	RiskScore       int    `json:"riskScore"`
	RiskLevel       Level  `json:"riskLevel"`
	Reasoning       string `json:"reasoning"`
	GuardianMessage string `json:"guardianMessage"`
	SaferAction     string `json:"saferAction"`
	Model           string `json:"model"`
}

// Provider is an external model that answers a prompt with free-form text.
type Provider interface {
	// Name is reported in RiskResult.Model when the provider's answer is used.
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// LowRiskRecorder remembers the most recent LOW outcome.
type LowRiskRecorder interface {
	RecordLow(scenarioID, saferAction string) error
}

// LevelForScore maps a score onto a level using the fixed thresholds.
func LevelForScore(score int) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// clampScore bounds a score to [MinScore, MaxScore].
func clampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
