// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matcher provides the trial matching service for TrialScout.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the search pipeline (gate, registry fetch,
// scoring, persistence), LLM clients, BadgerDB storage, and the
// observability infrastructure.
//
// # Usage
//
//	cfg := matcher.Config{Port: 12310, LLMBackend: "openai"}
//	svc, err := matcher.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	badgerstore "github.com/AleutianAI/TrialScout/pkg/storage/badger"
	"github.com/AleutianAI/TrialScout/services/llm"
	"github.com/AleutianAI/TrialScout/services/matcher/gate"
	"github.com/AleutianAI/TrialScout/services/matcher/observability"
	"github.com/AleutianAI/TrialScout/services/matcher/pipeline"
	"github.com/AleutianAI/TrialScout/services/matcher/ratelimit"
	"github.com/AleutianAI/TrialScout/services/matcher/registry"
	"github.com/AleutianAI/TrialScout/services/matcher/routes"
	"github.com/AleutianAI/TrialScout/services/matcher/scoring"
	"github.com/AleutianAI/TrialScout/services/matcher/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the matcher service.
//
// # Description
//
// Service abstracts the matcher lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Limitations
	//
	//   - Should not be used to modify routes after construction
	Router() *gin.Engine

	// Close releases storage and tracing resources. Safe to call after
	// Run returns; required when Run is never called.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds matcher configuration options.
//
// # Description
//
// Config centralizes all configuration for the matcher service. Values
// can be populated from environment variables or programmatically for
// testing. All fields have sensible defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// LLMBackend specifies the scoring LLM provider.
	// Valid values: "openai", "ollama", "claude", "anthropic"
	// Default: "openai"
	LLMBackend string

	// DataDir is the BadgerDB directory for the eligibility cache and
	// saved searches. Empty means an in-memory store (tests, demos).
	DataDir string

	// RegistryBaseURL overrides the ClinicalTrials.gov API base URL
	// (tests point it at a local stub).
	RegistryBaseURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "trialscout-otel-collector:4317"
	OTelEndpoint string

	// EnableTracing controls OTLP trace export. Default: false; flipped
	// on by the entrypoint when an endpoint is configured.
	EnableTracing bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string

	// RateLimit is the admission budget per client per window.
	// Default: 10
	RateLimit int

	// RateWindow is the fixed admission window. Default: 1 minute
	RateWindow time.Duration

	// CacheTTL bounds eligibility cache staleness. Default: 7 days
	CacheTTL time.Duration

	// MaxScoredTrials caps one scoring batch. Default: 25
	MaxScoredTrials int

	// VagueTerms overrides the gate's blocked-term list. Empty keeps
	// the curated default.
	VagueTerms []string

	// ConditionAbbreviations overrides the gate's allowed short-form
	// list. Empty keeps the curated default.
	ConditionAbbreviations []string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	db            *badgerstore.DB
	llmClient     llm.LLMClient
	pipeline      *pipeline.Pipeline
	searches      *store.SearchStore
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new matcher Service with the given configuration.
//
// # Description
//
// New initializes all matcher components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (when enabled)
//  3. Initializes Prometheus metrics
//  4. Opens the BadgerDB store
//  5. Creates the scoring LLM client
//  6. Wires the search pipeline and HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run matcher service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Environment variables are set for the chosen LLM provider
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if s.config.EnableTracing {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	observability.InitMetrics()

	if err := s.initStorage(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	s.initPipeline()
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer func() {
		if err := s.Close(); err != nil {
			slog.Warn("cleanup error", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting matcher server", "port", s.config.Port,
		"llmBackend", s.config.LLMBackend, "dataDir", s.config.DataDir)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases storage and tracing resources.
func (s *service) Close() error {
	var firstErr error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			firstErr = err
		}
		s.db = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
	return firstErr
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "trialscout-otel-collector:4317"
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateWindow == 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = registry.DefaultEligibilityTTL
	}
	if cfg.MaxScoredTrials == 0 {
		cfg.MaxScoredTrials = scoring.MaxScoredTrials
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("matcher-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStorage opens the BadgerDB store backing the eligibility cache
// and saved searches.
func (s *service) initStorage() error {
	var err error
	if s.config.DataDir == "" {
		slog.Info("No data directory configured, using in-memory store")
		s.db, err = badgerstore.OpenInMemory()
		return err
	}

	cfg := badgerstore.DefaultConfig()
	cfg.Path = s.config.DataDir
	s.db, err = badgerstore.Open(cfg)
	if err != nil {
		return err
	}
	slog.Info("Opened BadgerDB store", "path", s.config.DataDir)
	return nil
}

// initLLMClient initializes the scoring LLM client.
//
// # Assumptions
//
//   - Required environment variables are set for the chosen provider
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	case "claude", "anthropic":
		s.llmClient, err = llm.NewAnthropicClient()
		slog.Info("Using Anthropic (Claude) LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to openai", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOpenAIClient()
	}

	return err
}

// initPipeline wires the search pipeline from the configured components.
func (s *service) initPipeline() {
	gateCfg := gate.DefaultConfig()
	if len(s.config.VagueTerms) > 0 {
		gateCfg.VagueTerms = s.config.VagueTerms
	}
	if len(s.config.ConditionAbbreviations) > 0 {
		gateCfg.AllowedAbbreviations = s.config.ConditionAbbreviations
	}

	clientOpts := []registry.ClientOption{}
	if s.config.RegistryBaseURL != "" {
		clientOpts = append(clientOpts, registry.WithBaseURL(s.config.RegistryBaseURL))
	}
	client := registry.NewClient(clientOpts...)
	cache := registry.NewEligibilityCache(s.db, s.config.CacheTTL)
	fetcher := registry.NewFetcher(client, cache, slog.Default())
	scorer := scoring.NewScorer(s.llmClient, slog.Default())
	s.searches = store.NewSearchStore(s.db)

	s.pipeline = pipeline.New(
		gate.New(gateCfg),
		fetcher,
		scorer,
		s.searches,
		slog.Default(),
		pipeline.WithMaxScoredTrials(s.config.MaxScoredTrials),
	)
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("matcher-service"))

	routes.SetupRoutes(s.router, s.pipeline, s.searches, ratelimit.New(), routes.RateLimitConfig{
		Limit:  s.config.RateLimit,
		Window: s.config.RateWindow,
	})
}
