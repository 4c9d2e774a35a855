package risk

import "fmt"

// Factor weights for the local heuristic.
const (
	weightNight         = 25
	weightAlone         = 25
	weightIndustrial    = 20
	weightDowntown      = 10
	weightPoorLighting  = 20
	weightMixedLighting = 10
)

// guidance is the fixed advice attached to each level.
type guidance struct {
	guardianMessage string
	saferAction     string
}

var guidanceByLevel = map[Level]guidance{
	LevelLow: {
		guardianMessage: "Conditions look calm. Stay aware of your surroundings and enjoy your walk.",
		saferAction:     "Continue on your planned route and keep your phone charged and within reach.",
	},
	LevelMedium: {
		guardianMessage: "Some risk factors are present. Stay alert and let someone know where you are.",
		saferAction:     "Share your live location with a trusted contact and stick to busier, well-lit streets.",
	},
	LevelHigh: {
		guardianMessage: "Several risk factors stack up here. Please prioritize your safety right now.",
		saferAction:     "Avoid walking this route alone; wait somewhere staffed and well-lit or arrange a ride.",
	},
}

// Fallback scores a scenario with the local weighted-sum heuristic. It is
// pure: the same input always yields the same result. Zero-valued fields
// simply contribute nothing.
func Fallback(in ScenarioInput) RiskResult {
	score := clampScore(fallbackScore(in))
	level := LevelForScore(score)
	g := guidanceByLevel[level]

	return RiskResult{
		RiskScore:       score,
		RiskLevel:       level,
		Reasoning:       Reasoning(in),
		GuardianMessage: g.guardianMessage,
		SaferAction:     g.saferAction,
		Model:           ModelFallback,
	}
}

func fallbackScore(in ScenarioInput) int {
	score := 0
	if in.TimeOfDay == "night" {
		score += weightNight
	}
	if in.UserAlone {
		score += weightAlone
	}

	switch in.NeighborhoodType {
	case "industrial":
		score += weightIndustrial
	case "downtown":
		score += weightDowntown
	}

	switch in.RouteLighting {
	case "poor":
		score += weightPoorLighting
	case "mixed":
		score += weightMixedLighting
	}
	return score
}

// Reasoning renders the templated explanation echoing the scenario fields.
func Reasoning(in ScenarioInput) string {
	return fmt.Sprintf(
		"Assessed a %s scenario (user alone: %t) in a %s area with %s route lighting.",
		in.TimeOfDay, in.UserAlone, in.NeighborhoodType, in.RouteLighting,
	)
}
