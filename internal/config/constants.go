package config

import "time"

// Timeouts used across cmd and the HTTP API.
const (
	PingTimeout  = 10 * time.Second // rpc check per endpoint
	FetchTimeout = 2 * time.Minute  // one multi-chain discovery request
	PriceTimeout = 10 * time.Second // live price lookup
)

// Environment variables consulted outside of Env.
const (
	EnvConfigDir = "TXSCAN_CONFIG_DIR"
	EnvFile      = ".env"
)
