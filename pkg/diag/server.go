// Package diag exposes a small gin-backed HTTP server for operators:
// current connection state and a snapshot of open handles. Modeled on the
// embedded /health endpoint idiom, generalized to two read-only routes and a
// controllable lifecycle instead of one route run for the process lifetime.
package diag

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/owtaylor/organized/pkg/fsync"
)

// Server serves the diagnostics routes on its own listener.
type Server struct {
	httpServer *http.Server
}

// New builds a Server bound to addr, backed by client. gin runs in release
// mode; this surface is read-only and has no request body to log.
func New(addr string, client *fsync.Client) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/debug/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state": client.GetState().String(),
			"since": client.StateSince().Format(time.RFC3339),
		})
	})

	router.GET("/debug/handles", func(c *gin.Context) {
		handles := client.DebugHandles()
		out := make([]gin.H, 0, len(handles))
		for _, h := range handles {
			out = append(out, gin.H{
				"handle":         h.Handle,
				"path":           h.Path,
				"hasBeenOpened":  h.HasBeenOpened,
				"bufferedEvents": h.BufferedEvents,
			})
		}
		c.JSON(http.StatusOK, out)
	})

	return &Server{httpServer: &http.Server{Addr: addr, Handler: router}}
}

// Run starts serving and blocks until the listener fails or Shutdown is
// called. Unlike router.Run, it returns the error rather than fataling, so
// the caller decides how to react.
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
