package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/copassenger-api/internal/auth"
	"github.com/PaulBabatuyi/copassenger-api/internal/data"
	"github.com/PaulBabatuyi/copassenger-api/internal/metrics"
	"github.com/PaulBabatuyi/copassenger-api/internal/middleware"
	"github.com/PaulBabatuyi/copassenger-api/internal/pipeline"
)

// authService is the credential store as seen by the handlers.
type authService interface {
	CreateUser(ctx context.Context, fullName, email, password string) (*auth.PublicUser, error)
	Authenticate(ctx context.Context, email, password string) (string, *auth.PublicUser, error)
	VerifyToken(token string) (*auth.Claims, error)
	Profile(ctx context.Context, userID string) (*auth.PublicUser, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
}

// chatStore is the chat history store as seen by the handlers.
type chatStore interface {
	ListSessions(ctx context.Context, userID bson.ObjectID) ([]data.ChatSummary, error)
	GetSession(ctx context.Context, userID bson.ObjectID, sessionID string) (*data.Chat, error)
	UpsertSession(ctx context.Context, userID bson.ObjectID, sessionID string, messages []data.ChatMessage) (*data.Chat, error)
}

// responder runs the chat pipeline.
type responder interface {
	Respond(ctx context.Context, req pipeline.Request) ([]pipeline.Reply, error)
}

// voiceLister lists synthesis voices.
type voiceLister interface {
	Voices(ctx context.Context) (json.RawMessage, error)
}

// pinger reports database health.
type pinger interface {
	Ping(ctx context.Context) error
}

// Options holds the HTTP settings the server needs from config.
type Options struct {
	AppName      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
}

// Server holds the dependencies shared by every handler. All of them are
// safe for concurrent use; the server itself keeps no per-request state.
type Server struct {
	opts    Options
	auth    authService
	chats   chatStore
	chat    responder
	voices  voiceLister // nil when no speech API key is configured
	db      pinger      // nil in tests
	limiter *middleware.LimiterStore
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

// newServer returns a ready-to-use Server.
func newServer(opts Options, authSvc authService, chats chatStore, chat responder, limiter *middleware.LimiterStore, m *metrics.Metrics, log *zap.SugaredLogger) *Server {
	return &Server{
		opts:    opts,
		auth:    authSvc,
		chats:   chats,
		chat:    chat,
		limiter: limiter,
		metrics: m,
		log:     log,
	}
}

// withVoices enables GET /api/voices.
func (s *Server) withVoices(v voiceLister) *Server {
	s.voices = v
	return s
}

// withDB makes /health check the database.
func (s *Server) withDB(p pinger) *Server {
	s.db = p
	return s
}

// routes builds the fiber app.
func (s *Server) routes() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               s.opts.AppName,
		ReadTimeout:           s.opts.ReadTimeout,
		WriteTimeout:          s.opts.WriteTimeout,
		BodyLimit:             s.opts.BodyLimit,
		ErrorHandler:          errorHandler(s.log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(middleware.RequestLogger(s.log, s.metrics))

	app.Get("/health", s.handleHealth)
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	limited := []fiber.Handler{}
	if s.limiter != nil {
		limited = append(limited, middleware.RateLimit(s.limiter, s.log))
	}
	authGroup.Post("/signup", append(limited, s.handleSignup)...)
	authGroup.Post("/login", append(limited, s.handleLogin)...)
	authGroup.Get("/me", s.requireAuth(), s.handleMe)
	authGroup.Post("/password", s.requireAuth(), s.handleChangePassword)

	history := api.Group("/chat-history", s.requireAuth())
	history.Get("/", s.handleListSessions)
	history.Get("/:id", s.handleGetSession)
	history.Post("/", s.handleUpsertSession)

	api.Post("/chat", s.requireAuth(), s.handleChat)
	api.Get("/voices", s.requireAuth(), s.handleVoices)

	return app
}
