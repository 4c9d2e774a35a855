package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Endpoint describes one route in the API catalog.
type Endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{http.MethodGet, "/health", "Liveness ping with server timestamp"},
	{http.MethodGet, "/health/live", "Process liveness probe"},
	{http.MethodGet, "/health/ready", "Readiness probe with subsystem checks"},
	{http.MethodGet, "/metrics", "Prometheus metrics"},
	{http.MethodGet, "/api/docs", "This endpoint catalog"},
	{http.MethodGet, "/api/scenarios", "Preset walking scenarios"},
	{http.MethodGet, "/api/scenarios/:id", "One preset walking scenario"},
	{http.MethodGet, "/api/memory-echo", "Most recent low-risk scenario and its safer action"},
	{http.MethodPost, "/api/risk-assess", "Assess a scenario; body {scenarioId, timeOfDay, userAlone, neighborhoodType, routeLighting}"},
	{http.MethodPost, "/api/tts", "Speak up to 400 characters as audio/mpeg, or get a browser_tts fallback"},
}

func (s *Server) docsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":      "SafeWalk Guardian API",
		"version":   s.version,
		"endpoints": endpoints,
	})
}
