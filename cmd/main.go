package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/farellandr/gatherly/internal/server"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Info().Msg("No .env file found, using process environment")
	}

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
