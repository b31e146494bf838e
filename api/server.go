// Package api exposes the historian's HTTP control surface: CRUD on
// groups and watches, range-query history, and a websocket stream of
// real-time writes — the Go-native successor to the original bus
// node-tree action surface described in §6.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ilovepumpkin/dsa-historian/internal/provider"
)

// Server wires gin routes against a Provider.
type Server struct {
	provider *provider.Provider
	engine   *gin.Engine
}

// New builds a Server with every route registered, matching the
// teacher's practice of a flat route list assembled in one place.
func New(p *provider.Provider) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), ginZapLogger())

	s := &Server{provider: p, engine: engine}
	s.registerRoutes()
	return s
}

// ServeHTTP lets Server itself be handed to http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	groups := s.engine.Group("/groups")
	{
		groups.POST("", s.createGroup)
		groups.GET("", s.listGroups)
		groups.PATCH("/:groupID", s.editGroupSettings)
		groups.DELETE("/:groupID", s.deleteGroup)
		groups.POST("/:groupID/restore-get-history", s.restoreGetHistory)

		groups.POST("/:groupID/watches", s.addWatch)
		groups.PATCH("/:groupID/watches/:watchID", s.setWatchEnabled)
		groups.GET("/:groupID/watches/:watchID", s.getWatch)
		groups.DELETE("/:groupID/watches/:watchID", s.deleteWatch)
		groups.GET("/:groupID/watches/:watchID/history", s.getWatchHistory)
		groups.GET("/:groupID/watches/:watchID/stream", s.streamWatch)
	}
}

func ginZapLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			zap.S().Errorw("api: request error", "path", c.Request.URL.Path, "errors", c.Errors.String())
		}
	}
}
