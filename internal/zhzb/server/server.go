package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Jonas0119/zhzb/internal/zhzb/config"
	"github.com/Jonas0119/zhzb/internal/zhzb/events"
	"github.com/Jonas0119/zhzb/internal/zhzb/handlers"
	"github.com/Jonas0119/zhzb/internal/zhzb/middleware"
	"github.com/Jonas0119/zhzb/internal/zhzb/rate"
	"github.com/Jonas0119/zhzb/internal/zhzb/repository"
	"github.com/Jonas0119/zhzb/internal/zhzb/service"
)

// Server represents the HTTP server
type Server struct {
	cfg               *config.Config
	logger            *slog.Logger
	repo              repository.Repository
	registry          *prometheus.Registry
	httpMetrics       *middleware.HTTPMetrics
	limiter           rate.Limiter
	closeLimiter      func() error
	publisher         events.Publisher
	rechargeProcessor *service.RechargeProcessor
	jwt               *middleware.JWTConfig
	handler           *handlers.Handler
	httpServer        *http.Server
}

// NewServer wires storage, services and background workers. An empty
// database URI selects the in-memory repository.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var repo repository.Repository
	if cfg.DatabaseURI == "" {
		logger.Warn("no database configured, using in-memory storage")
		repo = repository.NewMemoryRepository()
	} else {
		repo = repository.NewPostgresRepository()
	}
	if err := repo.InitDB(cfg.DatabaseURI); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svcMetrics := service.NewMetrics(registry)

	limiter, closeLimiter, err := buildLimiter(cfg, logger)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	publisher, err := buildPublisher(cfg, logger, registry)
	if err != nil {
		_ = closeLimiter()
		_ = repo.Close()
		return nil, err
	}

	jwtConfig := &middleware.JWTConfig{
		SecretKey: cfg.JWTSecret,
		TTL:       cfg.JWTTTL,
		Users:     repo,
	}

	grant := service.SignupGrant{
		AICPoints: decimal.NewFromFloat(cfg.Signup.AICPoints),
		HHPoints:  decimal.NewFromFloat(cfg.Signup.HHPoints),
		Balance:   decimal.NewFromFloat(cfg.Signup.Balance),
	}
	authSvc := service.NewAuthService(repo, jwtConfig, grant, logger)
	walletSvc := service.NewWalletService(repo, logger, svcMetrics)

	if cfg.Admin.Username != "" {
		if err := authSvc.EnsureAdmin(context.Background(), cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			_ = publisher.Close()
			_ = closeLimiter()
			_ = repo.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		repo:         repo,
		registry:     registry,
		httpMetrics:  middleware.NewHTTPMetrics(registry),
		limiter:      limiter,
		closeLimiter: closeLimiter,
		publisher:    publisher,
		jwt:          jwtConfig,
		handler: &handlers.Handler{
			Auth:          authSvc,
			Market:        service.NewMarketService(repo, publisher, cfg.Kafka.TradeTopic, logger, svcMetrics),
			Wallet:        walletSvc,
			Admin:         service.NewAdminService(repo, logger),
			Announcements: service.NewAnnouncementService(repo),
			JWT:           jwtConfig,
			Logger:        logger,
		},
	}

	if cfg.Payment.GatewayAddress != "" {
		s.rechargeProcessor = service.NewRechargeProcessor(
			repo, walletSvc, service.NewPaymentGateway(cfg.Payment.GatewayAddress),
			cfg.Payment.PollInterval, cfg.Payment.PendingTTL, logger,
		)
	}
	return s, nil
}

func buildLimiter(cfg *config.Config, logger *slog.Logger) (rate.Limiter, func() error, error) {
	noop := func() error { return nil }
	if cfg.RateLimit.RedisAddr == "" {
		return rate.NewMemory(cfg.RateLimit.PerMinute, time.Minute), noop, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if cfg.Env == "dev" || cfg.Env == "test" {
			logger.Warn("redis rate limiter unavailable, falling back to memory", "error", err)
			return rate.NewMemory(cfg.RateLimit.PerMinute, time.Minute), noop, nil
		}
		return nil, nil, fmt.Errorf("connect rate limit redis: %w", err)
	}
	return rate.NewRedisLimiter(client, cfg.RateLimit.PerMinute, time.Minute, cfg.RateLimit.RedisPrefix), client.Close, nil
}

func buildPublisher(cfg *config.Config, logger *slog.Logger, registry prometheus.Registerer) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NopPublisher{}, nil
	}
	producer, err := events.NewSyncProducer(cfg.Kafka.Brokers, logger, events.NewProducerMetrics(registry))
	if err != nil {
		return nil, err
	}
	return producer, nil
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger, s.httpMetrics))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		// Public routes, limited per client address
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.limiter, s.logger))

			r.Post("/auth/register", s.handler.RegisterUser)
			r.Post("/auth/login", s.handler.LoginUser)
			r.Get("/market/orders", s.handler.ListOrders)
			r.Get("/announcements", s.handler.ListAnnouncements)
			r.Get("/announcements/{id}", s.handler.AnnouncementDetail)
		})

		// Protected routes, limited per user
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(s.jwt))
			r.Use(middleware.RateLimit(s.limiter, s.logger))

			r.Get("/auth/profile", s.handler.Profile)

			r.Route("/market", func(r chi.Router) {
				r.Post("/sell", s.handler.Sell)
				r.Post("/buy/{id}", s.handler.Buy)
				r.Get("/my-orders", s.handler.MyOrders)
				r.Get("/orders/{id}", s.handler.OrderDetail)
				r.Delete("/orders/{id}", s.handler.CancelOrder)
				r.Post("/orders/{id}/review", s.handler.ReviewOrder)
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/info", s.handler.WalletInfo)
				r.Post("/recharge", s.handler.Recharge)
				r.Post("/recharge/request", s.handler.RequestRecharge)
				r.With(middleware.RequireAdmin).Post("/recharge/{id}/confirm", s.handler.ConfirmRecharge)
				r.Post("/withdraw", s.handler.Withdraw)
				r.Get("/transactions", s.handler.Transactions)
				r.Get("/bank-cards", s.handler.ListCards)
				r.Post("/bank-cards", s.handler.AddCard)
				r.Delete("/bank-cards/{id}", s.handler.DeleteCard)
			})

			r.Get("/points/balance", s.handler.PointsBalance)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/stats", s.handler.AdminStats)
				r.Get("/users", s.handler.AdminUsers)
				r.Post("/users/{id}/points", s.handler.AdminAddPoints)
				r.Put("/users/{id}/role", s.handler.AdminUpdateRole)
				r.Get("/logs", s.handler.AdminLogs)
				r.Post("/announcements", s.handler.AdminCreateAnnouncement)
			})
		})
	})

	return r
}

// Run starts the background workers and blocks serving HTTP
func (s *Server) Run() error {
	if s.rechargeProcessor != nil {
		s.rechargeProcessor.Start()
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.RunAddress,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting server", "address", s.cfg.RunAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if s.rechargeProcessor != nil {
		s.rechargeProcessor.Stop()
	}

	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := s.closeLimiter(); err != nil {
		errs = append(errs, fmt.Errorf("close limiter: %w", err))
	}
	if err := s.repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}
