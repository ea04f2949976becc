package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultChain        = 1
	DefaultLimit        = 10 // transactions per request
	defaultRPCRateLimit = 20

	configFile = "config.json"
	chainsFile = "chains.yaml"
)

// Keys settable with Set, in display order.
var Keys = []string{"selected_chain", "default_limit", "rpc_rate_limit", "chains_file"}

// DefaultDir returns $TXSCAN_CONFIG_DIR, or ~/.txscan.
func DefaultDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvConfigDir)); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home dir: %w", err)
	}
	return filepath.Join(home, ".txscan"), nil
}

// Load reads config from dir (or creates defaults). dir defaults to DefaultDir().
func Load(dir string) (*Config, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.configDir = dir
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.RPCRateLimit < 0 {
		cfg.RPCRateLimit = 0
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.configDir, configFile), data, 0o600)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// ChainsPath returns the registry file to merge: chains_file if set,
// otherwise chains.yaml in the config dir. Relative paths resolve against the
// config dir.
func (c *Config) ChainsPath() string {
	p := c.ChainsFile
	if p == "" {
		p = chainsFile
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// Get returns the string form of key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "selected_chain":
		return strconv.FormatInt(c.SelectedChain, 10), nil
	case "default_limit":
		return strconv.Itoa(c.DefaultLimit), nil
	case "rpc_rate_limit":
		return strconv.Itoa(c.RPCRateLimit), nil
	case "chains_file":
		return c.ChainsFile, nil
	}
	return "", unknownKey(key)
}

// Set parses value and assigns it to key. Chain names are resolved by the
// caller; selected_chain here takes a numeric id.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "selected_chain":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("selected_chain must be a positive chain id, got %q", value)
		}
		c.SelectedChain = id
	case "default_limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("default_limit must be at least 1, got %q", value)
		}
		c.DefaultLimit = n
	case "rpc_rate_limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("rpc_rate_limit must be 0 or more, got %q", value)
		}
		c.RPCRateLimit = n
	case "chains_file":
		c.ChainsFile = value
	default:
		return unknownKey(key)
	}
	return nil
}

func unknownKey(key string) error {
	keys := append([]string(nil), Keys...)
	sort.Strings(keys)
	return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(keys, ", "))
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		SelectedChain: defaultChain,
		DefaultLimit:  DefaultLimit,
		RPCRateLimit:  defaultRPCRateLimit,
		configDir:     dir,
	}
}
