// Package config loads settings from the environment, with optional .env
// file support for development.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Server holds the server binary's settings.
type Server struct {
	Addr           string
	DBPath         string
	LogPath        string
	RedisAddr      string
	OpenWeatherKey string
	TomTomKey      string
}

// Agent holds the field agent's settings.
type Agent struct {
	ServerURL string
	DBPath    string
	Interval  string
}

// LoadServer reads server settings from the environment. A .env file in
// the working directory is merged in first when present.
func LoadServer() (*Server, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	return &Server{
		Addr:           getenv("SAFESTEP_ADDR", ":8080"),
		DBPath:         getenv("SAFESTEP_DB", "safestep.db"),
		LogPath:        os.Getenv("SAFESTEP_LOG"),
		RedisAddr:      os.Getenv("SAFESTEP_REDIS_ADDR"),
		OpenWeatherKey: os.Getenv("OPENWEATHER_API_KEY"),
		TomTomKey:      os.Getenv("TOMTOM_API_KEY"),
	}, nil
}

// LoadAgent reads agent settings from the environment.
func LoadAgent() (*Agent, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	return &Agent{
		ServerURL: getenv("SAFESTEP_SERVER_URL", "http://localhost:8080"),
		DBPath:    getenv("SAFESTEP_AGENT_DB", "safestep-agent.db"),
		Interval:  getenv("SAFESTEP_PROBE_INTERVAL", "30s"),
	}, nil
}

func loadDotenv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
