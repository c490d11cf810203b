package service

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kiakiraki/location-sync/api"
	"github.com/kiakiraki/location-sync/db"
)

// Service is the main service struct for the location-sync backend.
type Service struct {
	Database *db.Database
	API      *api.API
	// Metrics enables the prometheus HTTP middleware; leave it off when
	// several service instances share one process, as in tests.
	Metrics bool
	token   string
	debug   bool
}

// New creates a new API service. It connects the database and ensures the
// collection indexes exist. It also sets the global log level to InfoLevel
// or DebugLevel if debug is true. The service must be started with
// Service.Start() and closed with Service.Close().
func New(mongoURI, token string, debug bool) (*Service, error) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Info().Msg("starting location-sync backend")

	database, err := db.New(mongoURI)
	if err != nil {
		return nil, err
	}
	if err := database.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return &Service{
		Database: database,
		token:    token,
		debug:    debug,
	}, nil
}

// Start starts the API service.
func (s *Service) Start(host string, port int) error {
	a, err := api.New(&api.APIConfig{
		DB:      s.Database,
		Token:   s.token,
		Metrics: s.Metrics,
		Debug:   s.debug,
	})
	if err != nil {
		return err
	}
	s.API = a
	s.API.Start(host, port)
	log.Info().Msgf("api service started at %s:%d", host, port)
	return nil
}

// Close closes the API service database.
func (s *Service) Close() {
	if err := s.Database.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}
