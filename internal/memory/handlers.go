package memory

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for the memory record
type Handler struct {
	store *Store
}

// NewHandler creates a new memory handler
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up memory routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/memory-echo", h.Echo)
}

// Echo handles GET /api/memory-echo
func (h *Handler) Echo(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Get())
}
