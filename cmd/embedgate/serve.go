package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/embedgate/embedgate/internal/agent"
	"github.com/embedgate/embedgate/internal/analytics"
	"github.com/embedgate/embedgate/internal/api"
	"github.com/embedgate/embedgate/internal/auth"
	"github.com/embedgate/embedgate/internal/config"
	"github.com/embedgate/embedgate/internal/metrics"
	"github.com/embedgate/embedgate/internal/ratelimit"
	"github.com/embedgate/embedgate/internal/retrieval"
	"github.com/embedgate/embedgate/internal/token"
	"github.com/embedgate/embedgate/internal/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the EmbedGate server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (set EMBEDGATE_JWT_SECRET)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	tokenStore := token.NewStore(pool)
	tokenStore.SetDefaults(cfg.Embed.DefaultRateLimit, cfg.Embed.DefaultMonthlyQuota)
	agentStore := agent.NewStore(pool)
	userStore := user.NewStore(pool)

	analyticsStore := analytics.NewStore(pool)
	collector := analytics.NewCollector(analyticsStore, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)

	// Rate-limit denial counters go to Redis when configured, so several
	// instances share one view of abusive tokens.
	var stats ratelimit.StatsRecorder
	if cfg.Redis.Addr != "" && cfg.Redis.StatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, rate-limit stats disabled", "error", err)
		} else {
			stats = ratelimit.NewRedisStats(rdb, "", 48*time.Hour)
			slog.Info("connected to redis", "addr", cfg.Redis.Addr)
		}
		defer rdb.Close()
	}

	embedLimiter := ratelimit.New(cfg.Embed.DefaultRateLimit, time.Minute)
	fallback := ratelimit.NewFallback(cfg.Embed.FallbackRateLimit)
	fallback.StartJanitor(ctx, time.Minute)

	gate := token.NewGate(token.GateDeps{
		Store:         tokenStore,
		Legacy:        agentStore,
		Limiter:       embedLimiter,
		Fallback:      fallback,
		Stats:         stats,
		RequireOrigin: cfg.Embed.RequireOrigin,
		StoreTimeout:  cfg.Database.QueryTimeout,
	})

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	apiLimiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)

	openai, err := retrieval.NewOpenAIClient(retrieval.OpenAIConfig{
		BaseURL:        cfg.Retrieval.EmbeddingBaseURL,
		APIKeyEnv:      cfg.Retrieval.APIKeyEnv,
		EmbeddingModel: cfg.Retrieval.EmbeddingModel,
		ChatModel:      cfg.Retrieval.ChatModel,
		Timeout:        cfg.Retrieval.Timeout,
	})
	if err != nil {
		return err
	}
	retrievalService := retrieval.NewService(
		retrieval.NewSentenceChunker(0, 0),
		openai,
		retrieval.NewMemoryStore(),
		openai,
		logger,
	)

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	})
	collector.SetInstrument(m.CollectorInstrument())
	go collector.Start(ctx)

	router := api.NewRouter(api.RouterDeps{
		Gate:           gate,
		Tokens:         tokenStore,
		Agents:         agentStore,
		Users:          userStore,
		Auth:           authService,
		Limiter:        apiLimiter,
		Retrieval:      retrievalService,
		Ingestor:       retrievalService,
		Collector:      collector,
		Analytics:      analyticsStore,
		Metrics:        m,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	collector.Stop()

	return srv.Shutdown(shutdownCtx)
}
