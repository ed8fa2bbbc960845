package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/choraleia/xide/pkg/config"
	"github.com/choraleia/xide/pkg/event"
	"github.com/choraleia/xide/pkg/handler"
	"github.com/choraleia/xide/pkg/models"
	"github.com/choraleia/xide/pkg/service"
	"github.com/choraleia/xide/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Server is the companion file service: file operations, command execution,
// recents and the event bridge for one storage host.
type Server struct {
	ginEngine *gin.Engine
	cfg       *config.AppConfig
	reg       *service.FSRegistry
	fsService *service.FSService
	logger    *slog.Logger
	port      int
}

func NewServer(cfg *config.AppConfig, reg *service.FSRegistry, gdb *gorm.DB) *Server {
	gin.SetMode(gin.ReleaseMode)
	logger := utils.GetLogger()

	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery(), handler.RequestID(), handler.AccessLog(logger), handler.CORS())

	attachStatic(ginEngine, cfg.Server.StaticDir)

	server := &Server{
		ginEngine: ginEngine,
		cfg:       cfg,
		reg:       reg,
		fsService: service.NewFSService(reg),
		logger:    logger,
	}
	server.SetupRoutes(gdb)
	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.ginEngine }

func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host(), fmt.Sprint(s.cfg.Port()))
	srv := &http.Server{Addr: addr, Handler: s.ginEngine, ReadHeaderTimeout: 10 * time.Second}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = s.cfg.Port()
	}
	s.logger.Info("File service listening", "addr", ln.Addr().String(), "storage", s.reg.Type())

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
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) SetupRoutes(gdb *gorm.DB) {
	emitter := event.Global()

	fsHandler := handler.NewFSHandler(s.fsService, emitter)
	commandService := service.NewCommandService(s.reg, s.fsService, s.cfg.CommandTimeout())
	commandHandler := handler.NewCommandHandler(commandService, emitter, s.logger)

	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	apiGroup.GET("/runtime", s.runtimeInfo)

	fsHandler.RegisterRoutes(apiGroup)
	apiGroup.POST("/command/execute", commandHandler.Execute)

	if gdb != nil {
		recentHandler := handler.NewRecentHandler(service.NewRecentService(gdb, ""), s.logger)
		recentHandler.RegisterRoutes(apiGroup)
	}

	// Event notifications
	// /api/events/ws
	apiGroup.GET("/events/ws", event.NewWSHandler(emitter, s.logger).Handle)
}

func (s *Server) runtimeInfo(c *gin.Context) {
	port := s.port
	if port == 0 {
		port = s.cfg.Port()
	}
	host := s.cfg.Host()
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = config.DefaultHost
	}
	info := models.RuntimeInfo{
		HTTPBaseURL: "http://" + net.JoinHostPort(host, fmt.Sprint(port)),
		WSBaseURL:   "ws://" + net.JoinHostPort(host, fmt.Sprint(port)),
		Port:        port,
		Storage:     string(s.reg.Type()),
	}
	if home, err := s.fsService.Pwd(c.Request.Context()); err == nil {
		info.HomeDir = home
	}
	c.JSON(http.StatusOK, info)
}
