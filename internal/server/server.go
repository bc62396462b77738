// Package server exposes the engine over HTTP: trigger, resume, cancel, a
// websocket feed of live run events, health and metrics.
package server

import (
	"net/http"
	"strings"

	"xpertly/internal/hub"
	"xpertly/internal/logging"
	"xpertly/internal/users"
	"xpertly/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options wires the server's collaborators.
type Options struct {
	Logger         logging.Logger
	Hub            *hub.Hub
	Users          *users.Resolver
	Deps           *worker.Deps
	AllowedOrigins []string
}

// Server is the HTTP surface of the engine.
type Server struct {
	logger logging.Logger
	hub    *hub.Hub
	users  *users.Resolver
	deps   *worker.Deps
	engine *gin.Engine
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{
		logger: logging.OrNop(opts.Logger),
		hub:    opts.Hub,
		users:  opts.Users,
		deps:   opts.Deps,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(opts.AllowedOrigins) == 0 || contains(opts.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	engine.Use(cors.New(corsCfg))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	api.POST("/tenants/:tenantId/workers/:workerId/trigger", s.requireBearer, s.handleTrigger)
	api.POST("/resume", s.handleResume)
	api.POST("/cancel", s.handleCancel)

	engine.GET("/ws/:executionId", s.handleWebsocket)

	s.engine = engine
	return s
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

const bearerTokenKey = "bearerToken"

// requireBearer strips the Bearer prefix and stashes the raw token. The
// token is forwarded to upstream services which do the actual verification.
func (s *Server) requireBearer(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
		return
	}
	c.Set(bearerTokenKey, strings.TrimPrefix(header, "Bearer "))
	c.Next()
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
