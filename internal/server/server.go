// Package server exposes the JSON API behind the tag and config forms.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/config"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/ratelimit"
	"github.com/neoclaw-ai/tagbot/internal/tagging"
)

// maxBodyBytes caps request bodies. Captions are at most a few KB.
const maxBodyBytes = 1 << 20

// Tagger reads and rewrites tag blocks on live posts.
type Tagger interface {
	MessageData(ctx context.Context, req tagging.MessageDataRequest) (*tagging.MessageData, error)
	Submit(ctx context.Context, req tagging.SubmitRequest) (*tagging.SubmitResult, error)
}

// Suggester produces auto-fill values for a post.
type Suggester interface {
	Suggest(ctx context.Context, chatID string, cfg *chatconfig.ChatConfig, rawData string) (map[string]string, error)
}

// Deps are the collaborators the API serves.
type Deps struct {
	Configs chatconfig.Store
	Tagger  Tagger
	// Suggester and Limiter may be nil when auto-fill is disabled.
	Suggester Suggester
	Limiter   *ratelimit.KeyedRateLimiter
	// Webhook, when set, receives Telegram updates on POST /api/bot.
	Webhook        http.Handler
	AllowedOrigins []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	deps      Deps
	validator *Validator
	router    *chi.Mux
}

// New creates a Server with all routes configured.
func New(deps Deps) *Server {
	s := &Server{
		deps:      deps,
		validator: NewValidator(),
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Use(middleware.RequestSize(maxBodyBytes))
			r.Post("/config", s.handleSaveConfig)
			r.Post("/submit", s.handleSubmit)
			r.Post("/ai/suggest", s.handleSuggest)
			r.Post("/playground", s.handlePlayground)
		})
		r.Get("/config", s.handleGetConfig)
		r.Get("/message-data", s.handleMessageData)

		if s.deps.Webhook != nil {
			r.Post("/bot", s.deps.Webhook.ServeHTTP)
		}
	})
}

// Run serves on cfg.Listen until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, handler http.Handler, cfg config.HTTPConfig) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger().Info("http server listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}
