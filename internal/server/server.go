// Package server is the composition root: it opens the store, builds the
// limiters and the gateway, mounts the routes and runs everything until the
// process is told to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/motto-wall/internal/captcha"
	"github.com/sakif/motto-wall/internal/config"
	"github.com/sakif/motto-wall/internal/handler"
	"github.com/sakif/motto-wall/internal/middleware"
	"github.com/sakif/motto-wall/internal/moderation"
	"github.com/sakif/motto-wall/internal/notify"
	"github.com/sakif/motto-wall/internal/ratelimit"
	"github.com/sakif/motto-wall/internal/service"
)

// Server owns the router and every long-lived dependency behind it.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	throttle *ratelimit.Throttle
	discord  *notify.Discord

	janitors []func(ctx context.Context) error
	closers  []func() error
}

// New wires the server. Resources opened before a failure are released.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	repo, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	s.closers = append(s.closers, closeStore)

	limiters, err := buildLimiters(ctx, cfg.RateLimit, logger)
	if err != nil {
		return nil, err
	}
	s.janitors = append(s.janitors, limiters.janitors...)
	s.closers = append(s.closers, limiters.closers...)

	s.throttle = ratelimit.NewThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst, ratelimit.WithIdleTTL(cfg.Throttle.IdleTTL))
	s.janitors = append(s.janitors, func(ctx context.Context) error {
		return s.throttle.StartJanitor(ctx, cfg.RateLimit.SweepInterval)
	})

	rng := moderation.CaptchaRange{Min: cfg.Captcha.Min, Max: cfg.Captcha.Max}
	captchaOpts := []captcha.Option{captcha.WithTTL(cfg.Captcha.TTL)}
	if cfg.Captcha.Secret != "" {
		captchaOpts = append(captchaOpts, captcha.WithSecret(cfg.Captcha.Secret))
	}
	issuer, err := captcha.NewIssuer(rng, captchaOpts...)
	if err != nil {
		return nil, fmt.Errorf("captcha: %w", err)
	}

	svcOpts := []service.Option{service.WithCaptchaRange(rng)}
	if issuer.Signed() {
		svcOpts = append(svcOpts, service.WithTokenVerifier(issuer, cfg.Captcha.RequireToken))
	}
	if cfg.Discord.Enabled() {
		s.discord, err = notify.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID, cfg.Discord.QueueSize, logger)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		svcOpts = append(svcOpts, service.WithNotifier(s.discord))
	}

	svc := service.NewMottoService(repo, limiters.limiter, logger, svcOpts...)
	s.routes(handler.NewMottoHandler(svc, issuer, logger))

	ok = true
	return s, nil
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.router }

// routes mounts the middleware and the API.
//
// GET     /healthz              → liveness
// POST    /api/submit-motto     → submission gateway
// OPTIONS *                     → empty 200
// GET     /api/captcha          → new challenge
// GET     /api/mottos           → page of mottos
// GET     /api/mottos/count     → total
// GET     /api/mottos/{number}  → single motto
func (s *Server) routes(h *handler.MottoHandler) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: s.config.CORS.Origins(),
		AllowedHeaders: s.config.CORS.Headers(),
		MaxAge:         s.config.CORS.MaxAge,
	}))

	s.router.Get("/healthz", handler.HandleHealth)
	s.router.Options("/*", handler.HandlePreflight)

	s.router.Route("/api", func(r chi.Router) {
		// Submissions are limited per client by the gateway itself.
		r.Post("/submit-motto", h.HandleSubmit)
		r.Options("/*", handler.HandlePreflight)

		r.Group(func(r chi.Router) {
			r.Use(s.throttle.Middleware)
			r.Get("/captcha", h.HandleCaptcha)
			r.Get("/mottos", h.HandleList)
			r.Get("/mottos/count", h.HandleCount)
			r.Get("/mottos/{number}", h.HandleGet)
		})
	})
}

// Run serves HTTP, the limiter janitors and the notifier until ctx is
// cancelled or one of them fails, then shuts down gracefully and releases
// every resource.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	cfg := s.config.Server
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, janitor := range s.janitors {
		g.Go(func() error { return janitor(gctx) })
	}

	if s.discord != nil {
		s.discord.Start()
		g.Go(func() error {
			<-gctx.Done()
			s.discord.Stop()
			return nil
		})
	}

	g.Go(func() error {
		s.logger.Info("server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

// close releases resources in reverse order of acquisition.
func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("closing resource", slog.String("error", err.Error()))
		}
	}
	s.closers = nil
}
