package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"heatlens/api/scheduler"
)

type AdminHandlers struct {
	Scheduler *scheduler.Scheduler
	log       zerolog.Logger
}

func NewAdminHandlers(sched *scheduler.Scheduler, logger zerolog.Logger) *AdminHandlers {
	return &AdminHandlers{Scheduler: sched, log: logger}
}

// TriggerRebuild enqueues a full aggregate rebuild and returns immediately.
// Triggers while one is already pending coalesce into a single run.
func (h *AdminHandlers) TriggerRebuild(c *gin.Context) {
	queued := h.Scheduler.TriggerRebuild()
	status := "rebuild enqueued"
	if !queued {
		status = "rebuild already pending"
	}
	h.log.Info().Bool("queued", queued).Msg("rebuild trigger received")
	c.JSON(http.StatusAccepted, gin.H{"success": true, "status": status})
}
