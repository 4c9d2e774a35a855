package risk

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// ErrUnparseable means the provider's answer held no usable assessment.
var ErrUnparseable = errors.New("risk: unparseable provider output")

// providerOutput is what we accept from a provider after parsing.
type providerOutput struct {
	score           int
	level           Level // empty when absent or not one of the known levels
	reasoning       string
	guardianMessage string
	saferAction     string
}

// parseProviderOutput decodes the provider's text in two stages: the whole
// trimmed text as JSON, then the span from the first '{' to the last '}'.
// Models often wrap JSON in prose or code fences; the second stage tolerates
// that. riskScore must be a JSON number.
func parseProviderOutput(raw string) (providerOutput, error) {
	v, err := decodeJSON(strings.TrimSpace(raw))
	if err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return providerOutput{}, ErrUnparseable
		}
		if v, err = decodeJSON(raw[start : end+1]); err != nil {
			return providerOutput{}, ErrUnparseable
		}
	}

	// Valid JSON that is not an object (array, null, bare value) has no score.
	fields, ok := v.(map[string]any)
	if !ok {
		return providerOutput{}, ErrUnparseable
	}

	score, ok := fields["riskScore"].(float64)
	if !ok || math.IsNaN(score) || math.IsInf(score, 0) {
		return providerOutput{}, ErrUnparseable
	}

	out := providerOutput{
		score:           int(math.Round(math.Max(MinScore, math.Min(MaxScore, score)))),
		reasoning:       stringField(fields, "reasoning"),
		guardianMessage: stringField(fields, "guardianMessage"),
		saferAction:     stringField(fields, "saferAction"),
	}
	if lvl := Level(strings.ToUpper(stringField(fields, "riskLevel"))); lvl.Valid() {
		out.level = lvl
	}
	return out, nil
}

func decodeJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

// toResult shapes a parsed answer into a RiskResult. The provider's own level
// and text are kept; gaps are filled from the score and the scenario.
func (o providerOutput) toResult(in ScenarioInput, model string) RiskResult {
	level := o.level
	if level == "" {
		level = LevelForScore(o.score)
	}
	g := guidanceByLevel[level]

	res := RiskResult{
		RiskScore:       o.score,
		RiskLevel:       level,
		Reasoning:       o.reasoning,
		GuardianMessage: o.guardianMessage,
		SaferAction:     o.saferAction,
		Model:           model,
	}
	if res.Reasoning == "" {
		res.Reasoning = Reasoning(in)
	}
	if res.GuardianMessage == "" {
		res.GuardianMessage = g.guardianMessage
	}
	if res.SaferAction == "" {
		res.SaferAction = g.saferAction
	}
	return res
}
