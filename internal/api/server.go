package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"lookout/config"
	"lookout/internal/api/handlers"
	"lookout/internal/api/middleware"
	"lookout/internal/db/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Server hosts the REST API.
type Server struct {
	httpServer *http.Server
}

// NewServer builds the gin router and mounts the API under /api.
func NewServer(cfg *config.Config, handler *handlers.APIHandler, repo repository.Repository) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.APIKeyHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	auth := middleware.APIKeyAuth(repo, cfg.API.RequireKey)
	handler.RegisterRoutes(router.Group("/api"), auth)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves HTTP on a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Infof("Starting API server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
