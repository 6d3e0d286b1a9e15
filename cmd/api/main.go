// Command copassenger serves the co-passenger assistant API: accounts,
// saved chat history, and the chat endpoint that returns spoken, lip-synced
// avatar replies.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/copassenger-api/internal/auth"
	"github.com/PaulBabatuyi/copassenger-api/internal/cache"
	"github.com/PaulBabatuyi/copassenger-api/internal/config"
	"github.com/PaulBabatuyi/copassenger-api/internal/data"
	"github.com/PaulBabatuyi/copassenger-api/internal/db"
	"github.com/PaulBabatuyi/copassenger-api/internal/lipsync"
	"github.com/PaulBabatuyi/copassenger-api/internal/logger"
	"github.com/PaulBabatuyi/copassenger-api/internal/metrics"
	"github.com/PaulBabatuyi/copassenger-api/internal/middleware"
	"github.com/PaulBabatuyi/copassenger-api/internal/pipeline"
	"github.com/PaulBabatuyi/copassenger-api/internal/textgen"
	"github.com/PaulBabatuyi/copassenger-api/internal/tts"
	"github.com/PaulBabatuyi/copassenger-api/internal/upstream"
	"github.com/PaulBabatuyi/copassenger-api/internal/vision"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthWatchInterval = 15 * time.Second
	limiterCleanup      = time.Minute
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "copassenger",
		Short:        "Serve the co-passenger assistant API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newFallbackCmd(&envFile))
	return root
}

// newFallbackCmd writes the neutral lip-sync document used whenever cue
// extraction fails.
func newFallbackCmd(envFile *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "fallback",
		Short: "Write the fallback lip-sync document into the audio directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			path, err := lipsync.EnsureFallback(cfg.LipSync.AudioDir, force)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing document")
	return cmd
}

func serve(ctx context.Context, envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Development: cfg.App.Development(), Name: cfg.App.Name})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if _, err := lipsync.EnsureFallback(cfg.LipSync.AudioDir, false); err != nil {
		// extraction failures then degrade to the built-in cues
		log.Warnw("could not write fallback lip-sync document", "dir", cfg.LipSync.AudioDir, "error", err)
	}

	dbClient, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = dbClient.Close(closeCtx)
	}()
	if err := dbClient.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	usersStore := data.NewUsersStore(dbClient.UsersCollection())
	chatsStore := data.NewChatsStore(dbClient.ChatsCollection())

	jwtMgr, err := newJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(usersStore, jwtMgr, log.Named("auth"))

	m := metrics.New()

	orchestrator, voices, closeCache := newPipeline(ctx, cfg, m, log)
	defer closeCache()

	limiter := middleware.NewLimiterStore(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, limiterCleanup)
	defer limiter.Stop()

	srv := newServer(Options{
		AppName:      cfg.App.Name,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
	}, authSvc, chatsStore, orchestrator, limiter, m, log.Named("http")).withDB(dbClient)
	if voices != nil {
		srv.withVoices(voices)
	}
	app := srv.routes()

	errCh := make(chan error, 2)

	if cfg.Server.HealthPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HealthPort))
		if err != nil {
			return fmt.Errorf("listen for grpc health: %w", err)
		}
		hs := newHealthService(dbClient, log.Named("health"))
		defer hs.stop()
		go hs.watch(ctx, healthWatchInterval)
		go func() {
			log.Infow("grpc health server listening", "addr", lis.Addr().String())
			if err := hs.serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		log.Infow("http server listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Infow("shutting down")
	case err := <-errCh:
		log.Errorw("server failed", "error", err)
		_ = app.ShutdownWithTimeout(shutdownTimeout)
		return err
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newJWTManager(cfg config.JWTConfig) (*auth.JWTManager, error) {
	if cfg.Keys == "" {
		return auth.NewJWTManager(cfg.Secret, cfg.TTL), nil
	}
	keys, err := cfg.KeyMap()
	if err != nil {
		return nil, err
	}
	return auth.NewJWTManagerFromKeys(keys, cfg.ActiveKid, cfg.TTL), nil
}

// newPipeline builds the adapters that have credentials and the orchestrator
// around them. Missing credentials leave the adapter out, which closes the
// orchestrator's credentials gate. The returned func releases the cache.
func newPipeline(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *zap.SugaredLogger) (*pipeline.Orchestrator, voiceLister, func()) {
	breaker := func(name string) *upstream.Breaker {
		return upstream.NewBreaker(name, upstream.BreakerSettings{
			MaxFailures: cfg.Breaker.MaxFailures,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
		}, log.Named("breaker"))
	}
	httpClient := upstream.NewHTTPClient()

	deps := pipeline.Deps{
		Extractor: lipsync.NewExtractor(lipsync.Config{
			FFmpegPath:  cfg.LipSync.FFmpegPath,
			RhubarbPath: cfg.LipSync.RhubarbPath,
			Timeout:     cfg.LipSync.Timeout,
		}, log.Named("lipsync")),
		Vision: vision.New(vision.Config{
			URL:              cfg.Vision.URL,
			DefaultStreamURL: cfg.Vision.DefaultStreamURL,
			Timeout:          cfg.Vision.Timeout,
		}, httpClient, breaker("vision"), log.Named("vision")),
		Metrics: m,
		Log:     log.Named("pipeline"),
	}

	if cfg.Gemini.Configured() {
		gen, err := textgen.NewGemini(ctx, textgen.Config{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			Timeout: cfg.Gemini.Timeout,
		}, log.Named("textgen"))
		if err != nil {
			log.Errorw("text generation client unavailable", "error", err)
		} else {
			deps.Generator = gen
		}
	} else {
		log.Warnw("GEMINI_API_KEY not set; chat replies will ask for credentials")
	}

	var voices voiceLister
	if cfg.ElevenLabs.Configured() {
		synth := tts.New(tts.Config{
			APIKey:  cfg.ElevenLabs.APIKey,
			BaseURL: cfg.ElevenLabs.BaseURL,
			VoiceID: cfg.ElevenLabs.VoiceID,
			ModelID: cfg.ElevenLabs.ModelID,
			Timeout: cfg.ElevenLabs.Timeout,
		}, httpClient, breaker("elevenlabs"), log.Named("tts"))
		deps.Synthesizer = synth
		voices = synth
	} else {
		log.Warnw("ELEVEN_LABS_API_KEY not set; chat replies will ask for credentials")
	}

	closeCache := func() {}
	if cfg.Redis.Addr != "" {
		sc, err := cache.New(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			log.Warnw("speech cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			deps.Cache = sc
			closeCache = func() {
				if err := sc.Close(); err != nil {
					log.Warnw("close speech cache", "error", err)
				}
			}
		}
	}

	orch := pipeline.New(pipeline.Options{
		CredentialsConfigured: cfg.Gemini.Configured() && cfg.ElevenLabs.Configured(),
		AudioDir:              cfg.LipSync.AudioDir,
		MaxReplies:            pipeline.DefaultMaxReplies,
	}, deps)
	return orch, voices, closeCache
}
