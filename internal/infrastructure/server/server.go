package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	apihttp "github.com/GriffinCanCode/AgentOS/surfacehost/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/api/rpc"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	surfacegrpc "github.com/GriffinCanCode/AgentOS/surfacehost/internal/grpc"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/providers/chrome"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/providers/software"
)

// Server wires the multiplexer to its transports
type Server struct {
	config     *config.Config
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	router     *gin.Engine
	mux        *surface.Multiplexer
	dispatcher *rpc.Dispatcher
	wsHandler  *ws.Handler
	grpc       *surfacegrpc.Server
	browser    *chrome.Browser

	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing surface host",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("provider", cfg.Surface.Provider),
		zap.Bool("grpc", cfg.GRPC.Enabled),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("surfacehost", logger.Component("tracing"))

	breaker := resilience.New("provider", resilience.Settings{
		Timeout: 10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	factory, browser, err := newFactory(cfg, logger)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	mux := surface.NewMultiplexer(surface.Config{
		FrameRate:    cfg.Surface.FrameRate,
		ResourceRoot: cfg.Surface.ResourceRoot,
		MaxIdle:      cfg.Surface.MaxIdle,
		AllowLocal:   cfg.Surface.AllowLocal,
		MaxWidth:     cfg.Surface.MaxWidth,
		MaxHeight:    cfg.Surface.MaxHeight,
	}, factory, logger.Component("multiplexer")).
		WithMetrics(metrics).
		WithBreaker(breaker)

	dispatcher := rpc.NewDispatcher(mux, logger.Component("rpc"))
	wsHandler := ws.NewHandler(dispatcher, ws.Config{
		OutboundLimit:   cfg.Surface.OutboundLimit,
		MaxMessageBytes: cfg.Surface.MaxMessageBytes,
	}, logger.Component("ws")).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}
	if cfg.Server.Token != "" {
		router.Use(middleware.BearerToken(cfg.Server.Token, "/", "/health", "/metrics"))
	}

	handlers := apihttp.NewHandlers(mux, metrics, breaker, cfg.Surface.Provider).
		WithResources(cfg.Surface.ResourceRoot, cfg.Surface.AllowLocal)
	handlers.Register(router)
	router.GET("/ws", wsHandler.HandleConnection)

	s := &Server{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		router:     router,
		mux:        mux,
		dispatcher: dispatcher,
		wsHandler:  wsHandler,
		browser:    browser,
		httpServer: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if cfg.GRPC.Enabled {
		s.grpc = surfacegrpc.NewServer(dispatcher, surfacegrpc.ServerOptions{
			Token:           cfg.Server.Token,
			MaxMessageBytes: max(cfg.GRPC.MaxMessageBytes,
				protocol.PaintFrameLen(cfg.Surface.MaxWidth, cfg.Surface.MaxHeight)),
		}, logger.Component("grpc"),
			grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)),
			grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(tracer)),
		).WithMetrics(metrics)
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Level != "" {
		logCfg.Level = cfg.Level
	}
	return logging.New(logCfg)
}

// newFactory builds the provider factory named by the configuration. The
// returned browser is nil unless Chrome was launched.
func newFactory(cfg *config.Config, logger *logging.Logger) (surface.Factory, *chrome.Browser, error) {
	switch cfg.Surface.Provider {
	case config.ProviderChrome:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		browser, err := chrome.NewBrowser(ctx, chrome.Options{
			ExecPath:  cfg.Chrome.ExecPath,
			RemoteURL: cfg.Chrome.RemoteURL,
			Headless:  cfg.Chrome.Headless,
			NoSandbox: cfg.Chrome.NoSandbox,
			Quality:   cfg.Chrome.Quality,
			Logger:    logger.Component("chrome"),
		})
		if err != nil {
			return nil, nil, err
		}
		return browser.Factory(), browser, nil
	case config.ProviderSoftware, "":
		return software.NewFactory(software.Options{
			FetchTimeout:     cfg.Software.FetchTimeout.Std(),
			FetchRetries:     cfg.Software.FetchRetries,
			ScriptTimeout:    cfg.Software.ScriptTimeout.Std(),
			MaxDocumentBytes: cfg.Software.MaxDocumentBytes,
			UserAgent:        cfg.Software.UserAgent,
			Logger:           logger.Component("software"),
		}), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown surface provider %q", cfg.Surface.Provider)
	}
}

// Router returns the HTTP handler serving the REST and websocket endpoints
func (s *Server) Router() http.Handler {
	return s.router
}

// Multiplexer returns the surface multiplexer
func (s *Server) Multiplexer() *surface.Multiplexer {
	return s.mux
}

// Run listens on the configured addresses and serves until Close
func (s *Server) Run() error {
	lis, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	var grpcLis net.Listener
	if s.grpc != nil {
		grpcLis, err = net.Listen("tcp", s.config.GRPC.Address)
		if err != nil {
			lis.Close()
			return fmt.Errorf("failed to listen for grpc: %w", err)
		}
	}
	return s.Serve(lis, grpcLis)
}

// Serve serves HTTP on lis and, when gRPC is enabled, gRPC on grpcLis. It
// returns when either server stops.
func (s *Server) Serve(lis, grpcLis net.Listener) error {
	errc := make(chan error, 2)
	if s.grpc != nil && grpcLis != nil {
		s.logger.Info("Starting gRPC server", zap.String("addr", grpcLis.Addr().String()))
		go func() {
			errc <- s.grpc.Serve(grpcLis)
		}()
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", lis.Addr().String()))
	go func() {
		err := s.httpServer.Serve(lis)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()
	return <-errc
}

// Close stops the transports, then destroys every surface and provider
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	s.wsHandler.Close()
	if s.grpc != nil {
		s.grpc.Stop()
	}

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if err := s.mux.Close(); err != nil {
		s.logger.Error("Failed to close multiplexer", zap.Error(err))
		errs = append(errs, fmt.Errorf("multiplexer: %w", err))
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser: %w", err))
		}
		s.logger.Info("Closed Chrome")
	}

	s.tracer.Close()
	_ = s.logger.Sync()
	return errors.Join(errs...)
}
