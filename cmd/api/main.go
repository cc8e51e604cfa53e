// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Camus10737/warket/internal/cache"
	"github.com/Camus10737/warket/internal/config"
	"github.com/Camus10737/warket/internal/events"
	"github.com/Camus10737/warket/internal/handler"
	"github.com/Camus10737/warket/internal/llm"
	"github.com/Camus10737/warket/internal/middleware"
	"github.com/Camus10737/warket/internal/service"
	"github.com/Camus10737/warket/internal/store"
	"github.com/Camus10737/warket/pkg/logger"
	"github.com/Camus10737/warket/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "warket", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS and ensure the commerce stream exists
	natsClient, err := events.Connect(ctx, events.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	publisher := events.NewJetStreamPublisher(natsClient)
	if err := publisher.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Select the store backend
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", zap.Error(err))
			os.Exit(1)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("failed to ensure schema", zap.Error(err))
			os.Exit(1)
		}
		st = pg
		log.Info("using postgres store")
	} else {
		st = store.NewMemory()
		log.Warn("DATABASE_URL not set, using in-memory store")
	}
	defer st.Close()

	// Optional product cache
	var productCache *cache.Cache
	if cfg.RedisAddr != "" {
		productCache, err = cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			log.Warn("failed to connect to redis, cache disabled", zap.Error(err))
			productCache = nil
		} else {
			defer productCache.Close()
		}
	}

	// Automated agent responder
	responder := service.NewTemplateResponder()
	if cfg.AgentEnabled {
		var llmClient llm.Client
		var llmErr error
		if cfg.AnthropicAPIKey != "" {
			llmClient, llmErr = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		} else if cfg.OpenAIAPIKey != "" {
			llmClient, llmErr = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		}
		if llmErr != nil {
			log.Warn("failed to create LLM client, using canned replies", zap.Error(llmErr))
		} else if llmClient != nil {
			responder = service.NewFallbackResponder(
				service.NewLLMResponder(llmClient, cfg.AgentModel),
				service.NewTemplateResponder(),
			)
		}
	}

	// Initialize services
	stockSvc := service.NewStockService(st, productCache, log)
	relationSvc := service.NewRelationService(st, log)
	orderSvc := service.NewOrderService(st, stockSvc, relationSvc, publisher, log)
	paymentSvc := service.NewPaymentService(st, stockSvc, relationSvc, publisher, log)
	escalationSvc := service.NewEscalationService(st, relationSvc, publisher, responder, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	productHandler := handler.NewProductHandler(stockSvc, log)
	orderHandler := handler.NewOrderHandler(orderSvc, paymentSvc, log)
	conversationHandler := handler.NewConversationHandler(escalationSvc, log)
	inboundHandler := handler.NewInboundHandler(escalationSvc, paymentSvc, log)
	clientHandler := handler.NewClientHandler(relationSvc, log)

	// Create router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Inbound channel integration
		r.Route("/inbound", func(r chi.Router) {
			r.Use(middleware.RequireScope("bot"))
			r.Post("/messages", inboundHandler.Ingest)
			r.Post("/payment-claims", inboundHandler.ClaimPayment)
		})

		// Products and stock
		r.Route("/products", func(r chi.Router) {
			r.Post("/", productHandler.Create)
			r.Get("/", productHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", productHandler.Get)
				r.Delete("/", productHandler.Discontinue)
				r.Post("/stock", productHandler.AdjustStock)
			})
		})

		// Orders and the payment workflow
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.Create)
			r.Get("/", orderHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", orderHandler.Get)
				r.Post("/payment/claim", orderHandler.ClaimPayment)
				r.Post("/payment/confirm", orderHandler.ConfirmPayment)
				r.Post("/payment/reject", orderHandler.RejectPayment)
				r.Post("/ship", orderHandler.Ship)
				r.Post("/deliver", orderHandler.Deliver)
				r.Post("/problem", orderHandler.ReportProblem)
				r.Post("/reopen", orderHandler.Reopen)
				r.Post("/cancel", orderHandler.Cancel)
			})
		})

		// Conversations and escalations
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Get("/messages", conversationHandler.Messages)
				r.Post("/messages", conversationHandler.Reply)
				r.Post("/escalate", conversationHandler.Escalate)
				r.Post("/resolve", conversationHandler.Resolve)
				r.Post("/close", conversationHandler.Close)
			})
		})

		// Buyer relations
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", clientHandler.List)
			r.Get("/{id}", clientHandler.Get)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
