package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Mohsinsiddi/txscan/internal/logger"
)

// LoadEnv loads envFile (if present) into the process environment without
// overriding variables already set, then parses Env.
func LoadEnv(envFile string) (Env, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Env{}, fmt.Errorf("loading %s: %w", envFile, err)
			}
			logger.Debug("no env file, relying on environment variables", "path", envFile)
		}
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parsing environment: %w", err)
	}
	return e, nil
}

// Endpoints returns the endpoint URL per chain id. Entries in TXSCAN_RPC_URLS
// override the named variables for the same chain.
func (e Env) Endpoints() (map[int64]string, error) {
	out := make(map[int64]string)
	for id, url := range map[int64]string{
		1:     e.EthereumRPCURL,
		137:   e.PolygonRPCURL,
		42161: e.ArbitrumRPCURL,
	} {
		if url = strings.TrimSpace(url); url != "" {
			out[id] = url
		}
	}
	for k, url := range e.RPCURLs {
		id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("TXSCAN_RPC_URLS: invalid chain id %q", k)
		}
		if url = strings.TrimSpace(url); url != "" {
			out[id] = url
		}
	}
	return out, nil
}
