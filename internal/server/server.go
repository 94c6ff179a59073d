package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/jixiang52002/magenta/internal/api/http"
	"github.com/jixiang52002/magenta/internal/api/middleware"
	"github.com/jixiang52002/magenta/internal/infrastructure/config"
	"github.com/jixiang52002/magenta/internal/infrastructure/monitoring"
	"github.com/jixiang52002/magenta/internal/kernel/handle"
	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/syscalls"
	"github.com/jixiang52002/magenta/internal/kernel/task"
	"github.com/jixiang52002/magenta/internal/logging"
	"github.com/jixiang52002/magenta/internal/ws"
)

// Server hosts the kernel object layer and its introspection API.
type Server struct {
	cfg    *config.Config
	sys    *syscalls.System
	logger *logging.Logger
	http   *http.Server
}

// parsePolicy maps the config string to a bad-handle policy.
func parsePolicy(s string) task.BadHandlePolicy {
	switch s {
	case "exit":
		return task.BadHandleExit
	case "ignore":
		return task.BadHandleIgnore
	default:
		return task.BadHandleLog
	}
}

// New assembles the kernel and the HTTP surface from cfg.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	sys := syscalls.New(syscalls.Config{
		Arena:    handle.NewArena(cfg.Kernel.HandleCapacity),
		DebugLog: object.NewDebugLog(cfg.Kernel.DebugLogCapacity),
		Limits: syscalls.Limits{
			MaxMessageBytes:   cfg.Kernel.MaxMessageBytes,
			MaxMessageHandles: cfg.Kernel.MaxMessageHandles,
			MaxWaitHandles:    cfg.Kernel.MaxWaitHandles,
		},
		Policy:  parsePolicy(cfg.Kernel.BadHandlePolicy),
		Logger:  logger.Logger,
		Metrics: metrics,
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(sys, metrics)
	wsHandler := ws.NewHandler(sys.DebugLog(), logger.Logger, metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/processes", handlers.ListProcesses)
		api.GET("/processes/:koid", handlers.GetProcess)
		api.GET("/processes/:koid/handles", handlers.ListProcessHandles)
		api.GET("/objects/stats", handlers.ObjectStats)
		api.GET("/log", handlers.TailLog)
	}

	router.GET("/ws/logs", wsHandler.HandleConnection)

	return &Server{
		cfg:    cfg,
		sys:    sys,
		logger: logger,
		http: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
	}, nil
}

// System exposes the kernel facade for embedding callers.
func (s *Server) System() *syscalls.System { return s.sys }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("introspection server starting", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	_ = s.logger.Sync()
	return err
}
