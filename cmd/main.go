package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rs/zerolog/log"

	"github.com/kiakiraki/location-sync/service"
)

func main() {
	flag.Bool("debug", false, "sets log level to debug")
	flag.Int("port", 3333, "sets the port to listen on")
	flag.String("host", "0.0.0.0", "sets the host to listen on")
	flag.String("token", "", "sets the static API token")
	flag.String("mongo", "mongodb://localhost:27017", "sets the mongo URI")
	flag.Parse()

	// Optional .env file for local development
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("loaded .env file")
	}

	// Initialize Viper
	viper.SetEnvPrefix("LOCATIONSYNC")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	token := viper.GetString("token")
	debug := viper.GetBool("debug")
	mongoURI := viper.GetString("mongo")

	// if no token is provided, generate a random one
	if token == "" {
		sb := make([]byte, 20)
		if _, err := rand.Read(sb); err != nil {
			log.Fatal().Err(err).Msg("failed to generate random token")
		}
		token = fmt.Sprintf("%x", sb)
		log.Warn().Msgf("no token provided, using %s", token)
	}

	s, err := service.New(mongoURI, token, debug)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create the location-sync service")
	}
	defer s.Close()
	s.Metrics = true

	if err := s.Start(host, port); err != nil {
		log.Fatal().Err(err).Msg("could not start the api service")
	}
	log.Info().Msg("startup complete")

	// close if interrupt received
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Warn().Msgf("received SIGTERM, exiting at %s", time.Now().Format(time.RFC850))
}
