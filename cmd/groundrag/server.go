package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/groundrag/api/handlers"
	"github.com/BaSui01/groundrag/config"
	"github.com/BaSui01/groundrag/internal/metrics"
	"github.com/BaSui01/groundrag/internal/server"
	"github.com/BaSui01/groundrag/internal/telemetry"
	"github.com/BaSui01/groundrag/rag/loader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 GroundRAG 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel
	telemetry  *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 指标
	registry         *prometheus.Registry
	metricsCollector *metrics.Collector

	components  *components
	rateLimiter *RateLimiter
	reloader    *config.Reloader

	// 后台任务生命周期
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
		telemetry:  otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 组装组件并启动 HTTP 与 Metrics 服务器，ctx 结束时后台任务退出
func (s *Server) Start(ctx context.Context) error {
	bg, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// 1. 指标收集器
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metricsCollector = metrics.NewCollectorWithRegistry("groundrag", s.registry, s.logger)

	// 2. 组件
	comps, err := buildComponents(s.cfg, s.metricsCollector, s.telemetry.Tracer("groundrag/orchestrator"), s.logger)
	if err != nil {
		return fmt.Errorf("failed to build components: %w", err)
	}
	s.components = comps

	if files := s.cfg.VectorStore.SeedFiles; len(files) > 0 {
		n, err := ingestFiles(bg, loader.NewLoaderRegistry(), comps.embedder, comps.corpus, files, s.cfg.VectorStore.IngestBatch, s.logger)
		if err != nil {
			return fmt.Errorf("failed to seed corpus: %w", err)
		}
		s.logger.Info("Corpus seeded", zap.Int("chunks", n))
	}

	if comps.pool != nil {
		s.goBackground(func() { reportDBStats(bg, comps.pool, s.metricsCollector, 15*time.Second) })
	}

	// 3. 限流器
	s.rateLimiter = NewRateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger)
	s.goBackground(func() { s.rateLimiter.Run(bg) })

	// 4. 配置热重载
	if s.configPath != "" {
		if err := s.startReloader(bg); err != nil {
			return fmt.Errorf("failed to start config reloader: %w", err)
		}
	}

	// 5. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
		zap.Bool("telemetry_enabled", s.telemetry.Enabled()),
	)
	return nil
}

func (s *Server) goBackground(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// startReloader 监听配置文件，日志级别与限流参数即时生效
func (s *Server) startReloader(ctx context.Context) error {
	s.reloader = config.NewReloader(s.configPath, s.cfg, s.logger)
	s.reloader.OnReload(func(_, next *config.Config, _ []config.Change) {
		s.level.SetLevel(parseLevel(next.Log.Level))
		s.rateLimiter.SetLimits(next.Server.RateLimitRPS, next.Server.RateLimitBurst)
	})
	return s.reloader.Start(ctx)
}

// routes 注册 API 与探针路由
func (s *Server) routes() *http.ServeMux {
	healthHandler := handlers.NewHealthHandler(s.logger)
	healthHandler.RegisterCheck(handlers.NewFuncCheck("kv", s.components.kv.Ping))
	if s.components.pool != nil {
		healthHandler.RegisterCheck(handlers.NewFuncCheck("database", s.components.pool.Ping))
	}
	healthHandler.RegisterCheck(handlers.NewFuncCheck("vector_store", func(ctx context.Context) error {
		_, err := s.components.corpus.Count(ctx)
		return err
	}))

	queryHandler := handlers.NewQueryHandler(s.components.orchestrator, s.logger)
	correctionHandler := handlers.NewCorrectionHandler(s.components.orchestrator, s.logger)

	mux := http.NewServeMux()

	// 探针
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReady)
	mux.HandleFunc("GET /version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 问答
	mux.HandleFunc("POST /api/v1/query", queryHandler.HandleQuery)

	// 纠错缓存，写接口需要审核人 JWT
	reviewerAuth := JWTAuth(s.cfg.Server.JWT, s.logger)
	mux.HandleFunc("POST /api/v1/corrections/check", correctionHandler.HandleCheck)
	mux.Handle("POST /api/v1/corrections", reviewerAuth(http.HandlerFunc(correctionHandler.HandleStore)))
	mux.HandleFunc("GET /api/v1/corrections/{id}", correctionHandler.HandleGet)
	mux.Handle("DELETE /api/v1/corrections/{id}", reviewerAuth(http.HandlerFunc(correctionHandler.HandleDelete)))

	return mux
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/version"}
	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		OTelTracing(s.telemetry.Tracer("groundrag/http")),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger),
		s.rateLimiter.Middleware(),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Name:            "http",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	s.metricsManager = server.NewManager(mux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞到 ctx 结束或任一服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	return server.WaitAny(ctx, s.httpManager, s.metricsManager)
}

// Shutdown 优雅关闭所有服务，可在启动失败后调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	if s.cancel != nil {
		s.cancel()
	}
	if s.reloader != nil {
		s.reloader.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接收请求，再释放存储连接
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	if s.components != nil {
		s.components.close(s.logger)
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
