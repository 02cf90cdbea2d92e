package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vk/mathgrid/internal/archives"
	"github.com/vk/mathgrid/internal/ctxlog"
	"github.com/vk/mathgrid/internal/queue"
	"github.com/vk/mathgrid/internal/uri"
)

const shutdownTimeout = 5 * time.Second

// archiveView is the JSON shape of one archive on the status server.
type archiveView struct {
	ID    string                `json:"id"`
	URI   string                `json:"uri"`
	Files []archives.SourceFile `json:"files,omitempty"`
}

// statusHandler builds the status server's routes.
func (a *App) statusHandler(logger *slog.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), func(c *gin.Context) {
		c.Next()
		logger.Debug("Status endpoint hit.", "remote_addr", c.ClientIP(), "path", c.Request.URL.Path, "status", c.Writer.Status())
	})

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK\n") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/archives", a.listArchives)
	r.GET("/archive/*id", a.getArchive)
	r.GET("/queues", func(c *gin.Context) { c.JSON(http.StatusOK, a.queue.Queues()) })
	r.GET("/queues/:id", a.getQueue)
	r.GET("/tasks/:id", a.getTask)
	r.GET("/query", a.runQuery)
	return r
}

func (a *App) listArchives(c *gin.Context) {
	views := []archiveView{}
	a.archives.WithTree(func(t *archives.Tree) {
		for _, ar := range t.Archives() {
			views = append(views, archiveView{ID: ar.ID().String(), URI: ar.URI().String()})
		}
	})
	c.JSON(http.StatusOK, views)
}

func (a *App) getArchive(c *gin.Context) {
	id, err := uri.ParseArchiveID(strings.TrimLeft(c.Param("id"), "/"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var view archiveView
	found := a.archives.WithArchive(id, func(ar *archives.Archive) {
		view = archiveView{ID: ar.ID().String(), URI: ar.URI().String(), Files: ar.Files()}
	})
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("archive %q not found", id.String())})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *App) getQueue(c *gin.Context) {
	status, ok := a.queue.Status(queue.QueueID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": queue.ErrQueueNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *App) getTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, ok := a.queue.Task(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, t.Info())
}

func (a *App) runQuery(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	rs, err := a.Query(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rs)
}

// startStatusServer starts the status HTTP server in the background.
func (a *App) startStatusServer(ctx context.Context, port int) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring status server.")
	a.serverMu.Lock()
	defer a.serverMu.Unlock()
	if a.httpServer != nil {
		return errors.New("status server already running")
	}

	addr := fmt.Sprintf(":%d", port)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.statusHandler(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := a.httpServer
	go func() {
		logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func (a *App) closeStatusServer(ctx context.Context) error {
	a.serverMu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.serverMu.Unlock()
	if srv == nil {
		a.logger.Debug("Status server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	a.logger.Info("🩺 Shutting down status server...")
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("Status server shutdown failed", "error", err)
		return err
	}
	a.logger.Debug("Status server shut down gracefully.")
	return nil
}
