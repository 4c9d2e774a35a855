// Package scenario holds the fixed demo scenarios the client offers as
// one-tap presets.
package scenario

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safewalk/guardian/internal/risk"
)

// Preset is a named, ready-to-submit scenario.
type Preset struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Input       risk.ScenarioInput `json:"input"`
}

var presets = [...]Preset{
	{
		ID:          "night-industrial-solo",
		Title:       "Late night, industrial area, alone",
		Description: "Walking alone past warehouses after dark on a poorly lit route.",
		Input: risk.ScenarioInput{
			ScenarioID:       "night-industrial-solo",
			TimeOfDay:        "night",
			UserAlone:        true,
			NeighborhoodType: "industrial",
			RouteLighting:    "poor",
		},
	},
	{
		ID:          "downtown-evening-group",
		Title:       "Evening downtown with friends",
		Description: "Heading home through downtown with a group after dinner.",
		Input: risk.ScenarioInput{
			ScenarioID:       "downtown-evening-group",
			TimeOfDay:        "night",
			UserAlone:        false,
			NeighborhoodType: "downtown",
			RouteLighting:    "mixed",
		},
	},
	{
		ID:          "residential-daytime",
		Title:       "Daytime stroll in a residential area",
		Description: "A walk with company through a quiet, well-lit neighborhood.",
		Input: risk.ScenarioInput{
			ScenarioID:       "residential-daytime",
			TimeOfDay:        "day",
			UserAlone:        false,
			NeighborhoodType: "residential",
			RouteLighting:    "good",
		},
	},
	{
		ID:          "downtown-lunch-solo",
		Title:       "Solo lunch walk downtown",
		Description: "Walking alone to lunch on busy downtown streets at midday.",
		Input: risk.ScenarioInput{
			ScenarioID:       "downtown-lunch-solo",
			TimeOfDay:        "day",
			UserAlone:        true,
			NeighborhoodType: "downtown",
			RouteLighting:    "good",
		},
	},
	{
		ID:          "residential-late-return",
		Title:       "Returning home late, residential streets",
		Description: "Walking home alone at night through a residential area with patchy lighting.",
		Input: risk.ScenarioInput{
			ScenarioID:       "residential-late-return",
			TimeOfDay:        "night",
			UserAlone:        true,
			NeighborhoodType: "residential",
			RouteLighting:    "mixed",
		},
	},
}

// Presets returns the catalog. The slice is a fresh copy on every call.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets[:])
	return out
}

// Lookup returns the preset with the given id.
func Lookup(id string) (Preset, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Handler serves the catalog.
type Handler struct{}

// NewHandler creates a new scenario handler
func NewHandler() *Handler { return &Handler{} }

// RegisterRoutes sets up scenario routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/scenarios", h.List)
	r.GET("/scenarios/:id", h.Get)
}

// List handles GET /api/scenarios
func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, Presets())
}

// Get handles GET /api/scenarios/:id
func (h *Handler) Get(c *gin.Context) {
	p, ok := Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_scenario"})
		return
	}
	c.JSON(http.StatusOK, p)
}
