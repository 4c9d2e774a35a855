package risk

import (
	"fmt"
	"strings"
)

// buildPrompt renders the strict instruction sent to the provider.
func buildPrompt(in ScenarioInput) string {
	var b strings.Builder
	b.WriteString("Assess the personal-safety risk of this walking scenario.\n\n")
	fmt.Fprintf(&b, "Scenario ID: %s\n", in.ScenarioID)
	fmt.Fprintf(&b, "Time of day: %s\n", in.TimeOfDay)
	fmt.Fprintf(&b, "User alone: %t\n", in.UserAlone)
	fmt.Fprintf(&b, "Neighborhood type: %s\n", in.NeighborhoodType)
	fmt.Fprintf(&b, "Route lighting: %s\n\n", in.RouteLighting)
	b.WriteString("Return ONLY a JSON object with exactly these keys:\n")
	b.WriteString(`  "riskScore": integer from 0 to 100,` + "\n")
	fmt.Fprintf(&b, `  "riskLevel": one of "%s", "%s", "%s" (HIGH when riskScore >= %d, MEDIUM when >= %d, otherwise LOW),`+"\n",
		LevelLow, LevelMedium, LevelHigh, HighThreshold, MediumThreshold)
	b.WriteString(`  "reasoning": one or two sentences explaining the score,` + "\n")
	b.WriteString(`  "guardianMessage": a short, calm message addressed to the user,` + "\n")
	b.WriteString(`  "saferAction": one concrete action that lowers the risk.` + "\n")
	b.WriteString("Do not include personal data, markdown, or any other keys.")
	return b.String()
}
