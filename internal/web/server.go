package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dlemos/chatdesk/internal/outbox"
	"github.com/dlemos/chatdesk/internal/profile"
	"github.com/dlemos/chatdesk/internal/status"
	"github.com/dlemos/chatdesk/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes the cached chat state over a local admin HTTP API.
// Reads hit the sqlite cache only; the one write path (replying)
// goes through the outbox.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

// NewServer builds the gin router and wraps it in an http.Server bound
// to addr. token guards every /api route when non-empty.
func NewServer(addr, token string, db *store.DB, sender *outbox.Sender, identity profile.Identity, machine *status.Machine, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	h := newHandlers(db, sender, identity, machine, logger)

	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	api.Use(bearerAuth(token))
	{
		api.GET("/chats", h.ListChats)
		api.GET("/chats/:id", h.GetChat)
		api.GET("/chats/:id/messages", h.ListChatMessages)
		api.POST("/chats/:id/messages", h.SendChatMessage)
		api.POST("/chats/:id/read", h.MarkChatRead)
		api.GET("/search", h.SearchMessages)
	}

	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router for in-process use and tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("admin API listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin API stopped", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+token {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
