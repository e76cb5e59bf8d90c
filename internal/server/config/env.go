package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// envFile is loaded from the working directory when present. Variables
// already set in the environment win over the file.
var envFile = ".env"

// parseEnv overlays PARSEC_* environment variables. Unset variables leave
// the current value untouched. Invalid values panic, like invalid JSON.
func parseEnv(config *Config) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
