package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/victorjmlee/victory-integration/internal/anthropic"
	"github.com/victorjmlee/victory-integration/internal/api"
	"github.com/victorjmlee/victory-integration/internal/config"
	"github.com/victorjmlee/victory-integration/internal/middleware"
	"github.com/victorjmlee/victory-integration/internal/openai"
	"github.com/victorjmlee/victory-integration/internal/pricing"
	"github.com/victorjmlee/victory-integration/internal/vercel"
)

// loadPricing resolves the pricing tables: the optional override file on top
// of the embedded defaults, falling back to the defaults if the file is bad.
func loadPricing(cfg *config.Config) *pricing.Tables {
	if cfg.PricingFile == "" {
		return pricing.Defaults()
	}
	tables, err := pricing.LoadFile(cfg.PricingFile)
	if err != nil {
		log.Printf("WARNING: Failed to load pricing file (%v). Using embedded defaults.", err)
		return pricing.Defaults()
	}
	log.Printf("Pricing overrides loaded from %s.", cfg.PricingFile)
	return tables
}

func main() {
	fmt.Println("==============================================")
	fmt.Println("  Victory Integration - Dashboard API")
	fmt.Println("==============================================")

	// Local development convenience; a missing .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	fmt.Printf("Starting server on port %s...\n", cfg.Port)

	tables := loadPricing(cfg)

	// Provider services come up only when their credential is present; the
	// handlers answer "not configured" for the rest.
	var anthropicSvc *anthropic.Service
	if cfg.AnthropicKey != "" {
		anthropicSvc = anthropic.NewService(anthropic.NewClient(cfg.AnthropicKey), tables.Anthropic)
		log.Println("Anthropic usage endpoint enabled.")
	} else {
		log.Println("WARNING: ANTHROPIC_API_KEY not set. Anthropic usage endpoint is in not-configured mode.")
	}

	var openaiSvc *openai.Service
	if cfg.OpenAIKey != "" {
		openaiSvc = openai.NewService(openai.NewClient(cfg.OpenAIKey), tables.OpenAI)
		log.Println("OpenAI usage endpoint enabled.")
	} else {
		log.Println("WARNING: OPENAI_API_KEY not set. OpenAI usage endpoint is in not-configured mode.")
	}

	var vercelClient *vercel.Client
	if cfg.VercelToken != "" {
		vercelClient = vercel.NewClient(cfg.VercelToken)
		log.Println("Vercel projects endpoint enabled.")
	} else {
		log.Println("WARNING: VERCEL_TOKEN not set. Vercel projects endpoint is in not-configured mode.")
	}

	handlers := api.NewHandlers(anthropicSvc, openaiSvc, vercelClient)

	// Set up Gin router.
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging())

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	r.Use(limiter.Middleware())

	// CORS for the dashboard UI.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check.
	r.GET("/health", handlers.HealthCheck)

	// Integration routes.
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ai-usage/anthropic", handlers.GetAnthropicUsage)
		apiGroup.GET("/ai-usage/openai", handlers.GetOpenAIUsage)
		apiGroup.GET("/vercel/projects", handlers.GetVercelProjects)
	}

	// Start HTTP server with graceful shutdown.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Victory Integration API is ready on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited.")
}
