// Package server wires the gin router: CRUD routes for collections, tags,
// tasks and projects, SSE streams for scan progress and watcher events, and
// chunked media transfer. Route grouping and the overall setup shape
// follow the teacher's per-module route registration.
package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/liveset-cataloger/internal/catalog"
	"github.com/mantonx/liveset-cataloger/internal/events"
	"github.com/mantonx/liveset-cataloger/internal/media"
	"github.com/mantonx/liveset-cataloger/internal/scanner"
)

// Dependencies bundles everything the route handlers need.
type Dependencies struct {
	Store       *catalog.Store
	Bus         *events.Bus
	Media       *media.Store
	NewScanner  func() *scanner.Orchestrator
}

// SetupRouter builds the gin engine with all route groups registered.
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	h := &handlers{deps: deps}

	api := r.Group("/api")
	{
		projects := api.Group("/projects")
		projects.GET("", h.listProjects)
		projects.GET("/:id", h.getProject)
		projects.PUT("/:id/notes", h.updateProjectNotes)
		projects.PUT("/:id/name", h.updateProjectName)
		projects.GET("/search", h.searchProjects)
		projects.POST("/:id/tags", h.attachProjectTag)
		projects.DELETE("/:id/tags/:tagID", h.detachProjectTag)

		collections := api.Group("/collections")
		collections.GET("", h.listCollections)
		collections.POST("", h.createCollection)
		collections.GET("/:id", h.getCollection)
		collections.PUT("/:id", h.updateCollection)
		collections.DELETE("/:id", h.deleteCollection)

		tags := api.Group("/tags")
		tags.GET("", h.listTags)
		tags.POST("", h.createTag)
		tags.DELETE("/:id", h.deleteTag)

		tasks := api.Group("/tasks")
		tasks.POST("", h.createTask)
		tasks.PUT("/:id", h.updateTask)
		tasks.DELETE("/:id", h.deleteTask)

		scan := api.Group("/scan")
		scan.POST("", h.startScan)
		scan.GET("/stream", h.scanProgressStream)

		watch := api.Group("/watch")
		watch.GET("/stream", h.watcherEventStream)

		mediaGroup := api.Group("/media")
		mediaGroup.POST("/cover-art", h.uploadCoverArt)
		mediaGroup.POST("/audio", h.uploadAudioFile)
		mediaGroup.GET("/:id/download", h.downloadMedia)
		mediaGroup.DELETE("/:id", h.deleteMedia)
	}

	return r
}

type handlers struct {
	deps Dependencies
}

// streamFilterFrom builds an events.Filter from a comma-separated "types"
// query parameter, matching everything when absent.
func streamFilterFrom(c *gin.Context) events.Filter {
	raw := c.Query("types")
	if raw == "" {
		return events.Filter{}
	}
	var types []events.Type
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		types = append(types, events.Type(t))
	}
	return events.Filter{Types: types}
}

// sseStream is the generic subscribe-and-forward loop shared by the scan
// progress and watcher event endpoints, adapted from the teacher's
// EventStream handler (heartbeat-on-timeout, non-blocking buffered send,
// unsubscribe on client disconnect).
func sseStream(c *gin.Context, bus *events.Bus, filter events.Filter) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ch := make(chan events.Event, 16)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	subID := bus.Subscribe(ctx, filter, func(e events.Event) error {
		select {
		case ch <- e:
		default:
		}
		return nil
	})
	defer bus.Unsubscribe(subID)

	c.SSEvent("connected", gin.H{"time": time.Now()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("event", e)
			return true
		case <-time.After(30 * time.Second):
			c.SSEvent("heartbeat", gin.H{"time": time.Now()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}
