package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/slot-scheduler/internal/httperr"
	"github.com/BruksfildServices01/slot-scheduler/internal/httpresp"
	"github.com/BruksfildServices01/slot-scheduler/internal/middleware"
)

type MeHandler struct{}

func NewMeHandler() *MeHandler {
	return &MeHandler{}
}

// GetMe echoes the actor resolved from the bearer token.
func (h *MeHandler) GetMe(c *gin.Context) {
	id, email, role := middleware.Actor(c)
	if id == "" {
		httperr.Unauthorized(c, "actor_not_in_context", "No authenticated actor.")
		return
	}

	httpresp.OK(c, gin.H{
		"actor": gin.H{
			"id":    id,
			"email": email,
			"role":  role,
		},
	})
}
