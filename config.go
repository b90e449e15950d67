package main

import (
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/kpango/glg"
)

// EnvConfig holds the configuration of a specific installation of the tracker. Values come
// from the environment, optionally seeded from a .env style file.
type EnvConfig struct {
	BungieAPIKey       string        `envconfig:"BUNGIE_API_KEY" required:"true"`
	BungieClientID     string        `envconfig:"BUNGIE_CLIENT_ID" required:"true"`
	BungieClientSecret string        `envconfig:"BUNGIE_CLIENT_SECRET"`
	BungieBaseURL      string        `envconfig:"BUNGIE_BASE_URL" default:"https://www.bungie.net"`
	CallbackAddr       string        `envconfig:"OAUTH_CALLBACK_ADDR" default:"127.0.0.1:7777"`
	StoreDriver        string        `envconfig:"STORE_DRIVER" default:"sqlite"`
	StoreDSN           string        `envconfig:"STORE_DSN"`
	DataDir            string        `envconfig:"DATA_DIR" default:"./data"`
	RefreshInterval    time.Duration `envconfig:"REFRESH_INTERVAL" default:"30s"`
	RetryDelay         time.Duration `envconfig:"RETRY_DELAY" default:"30s"`
	RequestsPerSecond  float64       `envconfig:"REQUESTS_PER_SECOND" default:"10"`
	LogLevel           string        `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFilePath        string        `envconfig:"LOG_FILE"`
	SentryDSN          string        `envconfig:"SENTRY_DSN"`
	Language           string        `envconfig:"LANGUAGE" default:"en"`
}

// StorePath is the data source handed to the store driver. The sqlite store lives in the
// data directory unless a DSN is configured.
func (c *EnvConfig) StorePath() string {
	if c.StoreDSN == "" && (c.StoreDriver == "" || c.StoreDriver == "sqlite") {
		return filepath.Join(c.DataDir, "tracker.db")
	}

	return c.StoreDSN
}

func loadConfig(path *string) (*EnvConfig, error) {
	if path != nil && *path != "" {
		// Values already in the environment win over the file
		if err := godotenv.Load(*path); err != nil {
			glg.Warnf("Failed to read config file %s: %s", *path, err.Error())
		}
	}

	config := &EnvConfig{}
	if err := envconfig.Process("", config); err != nil {
		return nil, err
	}

	return config, nil
}
