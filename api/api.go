package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kiakiraki/location-sync/db"
)

// APIConfig carries everything the API needs at construction. Credentials
// and collaborators are threaded explicitly, never read from globals.
type APIConfig struct {
	DB *db.Database
	// Token is the static bearer token protecting the write and read
	// endpoints. The tracker endpoint additionally accepts it as a basic
	// auth password.
	Token string
	// Metrics enables the per-route prometheus middleware. It registers
	// collectors on the default registry, so only one API instance per
	// process may enable it.
	Metrics bool
	Debug   bool
}

// API type represents the API HTTP server.
type API struct {
	Router   *chi.Mux
	database *db.Database
	token    string
	metrics  bool
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if conf.Token == "" {
		return nil, fmt.Errorf("api token cannot be empty")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if conf.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Info().Msg("starting location-sync api")

	return &API{
		database: conf.DB,
		token:    conf.Token,
		metrics:  conf.Metrics,
	}, nil
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start(host string, port int) {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", host, port), a.router()); err != nil {
			log.Fatal().Err(err).Msg("failed to start api router")
		}
	}()
}

// Close closes the API service database.
func (a *API) Close() {
	if err := a.database.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}

// router creates the router with all the routes and middleware.
func (a *API) router() http.Handler {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.Timeout(120 * time.Second))
	a.Router = r
	if a.metrics {
		a.EnablePrometheusMetrics("")
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(a.authenticator)
		a.RegisterLocationRoutes(r)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Error().Err(err).Msg("failed to write response")
			}
		})

		log.Info().Msg("register route GET /metrics")
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	})

	return r
}
