package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/liveset-cataloger/internal/events"
)

// startScan kicks off a scan run in the background; progress is observed
// via the separate scanProgressStream SSE endpoint, matching the contract
// that ScanDirectories is a streaming, not request/response, operation.
func (h *handlers) startScan(c *gin.Context) {
	o := h.deps.NewScanner()
	go func() {
		if _, err := o.Run(context.Background()); err != nil {
			h.deps.Bus.Publish(events.Event{Type: events.TypeScanFailed, Data: gin.H{"error": err.Error()}})
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *handlers) scanProgressStream(c *gin.Context) {
	sseStream(c, h.deps.Bus, events.Filter{Types: []events.Type{
		events.TypeScanStarted, events.TypeScanProgress, events.TypeScanCompleted, events.TypeScanFailed,
	}})
}

func (h *handlers) watcherEventStream(c *gin.Context) {
	sseStream(c, h.deps.Bus, events.Filter{Types: []events.Type{
		events.TypeWatchCreated, events.TypeWatchModified, events.TypeWatchDeleted, events.TypeWatchRenamed,
	}})
}
