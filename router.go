package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lancedesk/lancedesk/pkg/config"
	"github.com/lancedesk/lancedesk/pkg/db"
	"github.com/lancedesk/lancedesk/pkg/directory"
	"github.com/lancedesk/lancedesk/pkg/handler"
	"github.com/lancedesk/lancedesk/pkg/service"
	"github.com/lancedesk/lancedesk/pkg/storage"
	"github.com/lancedesk/lancedesk/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	cfg       *config.AppConfig
	port      int
}

func NewServer(cfg *config.AppConfig) (*Server, error) {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	server := &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		cfg:       cfg,
	}

	if err := server.setupRoutes(); err != nil {
		return nil, err
	}
	return server, nil
}

func (s *Server) setupRoutes() error {
	gdb, err := db.Open(s.cfg.DBDriver(), s.cfg.DBDSN())
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var users directory.UserDirectory = directory.NewGormUserDirectory(gdb)
	projects := directory.NewGormProjectDirectory(gdb)

	if addr := s.cfg.RedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: s.cfg.RedisPassword(),
			DB:       s.cfg.RedisDB(),
		})
		users = directory.NewCachedUserDirectory(users, client, s.logger)
		s.logger.Info("User directory cache enabled", "addr", addr)
	}

	var attachments storage.AttachmentStore
	switch s.cfg.StorageBackend() {
	case "s3":
		attachments, err = storage.NewS3Store(s.cfg.S3Bucket(), s.cfg.S3Prefix())
		if err != nil {
			return err
		}
	default:
		store, err := storage.NewDiskStore(s.cfg.StorageDir(), s.cfg.StorageBaseURL())
		if err != nil {
			return err
		}
		attachments = store
		// Disk-stored attachments are served straight from the base dir.
		s.ginEngine.Static(s.cfg.StorageBaseURL(), s.cfg.StorageDir())
	}

	messaging := service.NewMessagingService(gdb, users, projects, attachments)
	messagingHandler := handler.NewMessagingHandler(messaging, s.logger)

	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.ginEngine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API group
	// /api/v1
	apiGroup := s.ginEngine.Group("/api/v1")
	messagingHandler.RegisterRoutes(apiGroup)

	return nil
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Listen first so a busy port fails immediately.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}
	s.logger.Info("Server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
