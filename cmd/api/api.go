package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"acessolivre/internal/auth"
	"acessolivre/internal/config"
	"acessolivre/internal/domain/admins"
	"acessolivre/internal/moderation"
	"acessolivre/internal/places"
	"acessolivre/internal/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type application struct {
	config        *config.Config
	logger        *zap.SugaredLogger
	admins        admins.Store
	comments      *moderation.Service
	places        *places.Service
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
	rateLimit     ratelimiter.Config
	gatherer      prometheus.Gatherer
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)
		if app.gatherer != nil {
			r.With(app.BasicAuthMiddleware()).Handle("/metrics", promhttp.HandlerFor(app.gatherer, promhttp.HandlerOpts{}))
		}

		// Public routes
		r.Route("/authentication", func(r chi.Router) {
			r.Post("/token", app.createTokenHandler)
		})

		r.Route("/comments", func(r chi.Router) {
			r.With(app.RateLimiterMiddleware).Post("/", app.createCommentHandler)
			r.Get("/recent", app.getRecentCommentsHandler)
			r.Get("/{commentID}", app.getCommentHandler)

			// the permission check for deletion lives in the moderation service
			r.With(app.OptionalAuthMiddleware).Delete("/{commentID}", app.deleteCommentHandler)

			r.Group(func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)
				r.Get("/pending", app.getPendingCommentsHandler)
				r.Get("/{locationID}/comments", app.getLocationCommentsHandler)
				r.Patch("/{commentID}/status", app.updateCommentStatusHandler)
				r.Delete("/images/{imageID}", app.deleteCommentImageHandler)
			})
		})

		r.Route("/comment-icons", func(r chi.Router) {
			r.Get("/", app.listCommentIconsHandler)
			r.Get("/{iconID}", app.getCommentIconHandler)

			r.Group(func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)
				r.Post("/", app.createCommentIconHandler)
				r.Patch("/{iconID}", app.updateCommentIconHandler)
				r.Delete("/{iconID}", app.deleteCommentIconHandler)
			})
		})

		r.Route("/locations", func(r chi.Router) {
			r.Get("/", app.listLocationsHandler)
			r.Get("/{locationID}", app.getLocationHandler)

			r.Group(func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)
				r.Post("/", app.createLocationHandler)
				r.Patch("/{locationID}", app.updateLocationHandler)
				r.Delete("/{locationID}", app.deleteLocationHandler)
				r.Post("/{locationID}/images", app.uploadLocationImagesHandler)
			})
		})

		r.Route("/accessibility-items", func(r chi.Router) {
			r.Get("/", app.listItemsHandler)
			r.Get("/{itemID}", app.getItemHandler)
			r.With(app.AuthTokenMiddleware).Post("/", app.createItemHandler)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.Addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.Addr, "env", app.config.Env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.Addr, "env", app.config.Env)

	return nil
}
