// Package secrets keeps RPC endpoint URLs, which usually embed provider API
// keys, in the OS keychain instead of config.json.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/99designs/keyring"
)

const (
	keychainService = "txscan"
	endpointPrefix  = keychainService + ".rpc."

	// EnvPassword unlocks the encrypted file backend on headless hosts.
	EnvPassword = "TXSCAN_KEYRING_PASSWORD"
)

// ErrNoEndpoint is returned when no endpoint is stored for a chain.
var ErrNoEndpoint = errors.New("no endpoint stored")

// Store wraps keychain access for endpoint URLs.
type Store struct {
	ring keyring.Keyring
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// DefaultStore returns a store backed by the OS keychain. fileDir hosts the
// encrypted file fallback used on Linux without a desktop session.
func DefaultStore(fileDir string) *Store {
	cfg := keyring.Config{
		ServiceName:              keychainService,
		KeychainTrustApplication: true,
		FileDir:                  filepath.Join(fileDir, "keyring"),
		FilePasswordFunc:         filePassword,
	}

	// On Linux without a GUI, fall back to file-based storage.
	if runtime.GOOS == "linux" {
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.FileBackend,
		}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		// Use file backend as ultimate fallback.
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
		ring, _ = keyring.Open(cfg)
	}

	return &Store{ring: ring}
}

func filePassword(prompt string) (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}
	return keyring.TerminalPrompt(prompt)
}

func endpointKey(chainID int64) string {
	return endpointPrefix + strconv.FormatInt(chainID, 10)
}

// SetEndpoint stores the endpoint URL for chainID.
func (s *Store) SetEndpoint(chainID int64, url string) error {
	if s.ring == nil {
		return fmt.Errorf("keystore not available")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("endpoint url is empty")
	}
	err := s.ring.Set(keyring.Item{
		Key:   endpointKey(chainID),
		Data:  []byte(url),
		Label: fmt.Sprintf("txscan RPC endpoint (chain %d)", chainID),
	})
	if err != nil {
		return fmt.Errorf("keychain store: %w", err)
	}
	return nil
}

// Endpoint returns the stored URL for chainID, or ErrNoEndpoint.
func (s *Store) Endpoint(chainID int64) (string, error) {
	if s.ring == nil {
		return "", ErrNoEndpoint
	}
	item, err := s.ring.Get(endpointKey(chainID))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w for chain %d", ErrNoEndpoint, chainID)
	}
	if err != nil {
		return "", fmt.Errorf("keychain retrieve: %w", err)
	}
	return string(item.Data), nil
}

// DeleteEndpoint removes the stored URL for chainID. Removing a missing entry
// is not an error.
func (s *Store) DeleteEndpoint(chainID int64) error {
	if s.ring == nil {
		return nil
	}
	err := s.ring.Remove(endpointKey(chainID))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("keychain remove: %w", err)
	}
	return nil
}

// Endpoints returns every stored endpoint keyed by chain id. An unavailable
// keychain yields an empty map.
func (s *Store) Endpoints() (map[int64]string, error) {
	out := make(map[int64]string)
	if s.ring == nil {
		return out, nil
	}
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("keychain list: %w", err)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, ok := strings.CutPrefix(k, endpointPrefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		url, err := s.Endpoint(id)
		if err != nil {
			return nil, err
		}
		out[id] = url
	}
	return out, nil
}

// Merge overlays override on top of base. Neither map is modified.
func Merge(base, override map[int64]string) map[int64]string {
	out := make(map[int64]string, len(base)+len(override))
	for id, url := range base {
		out[id] = url
	}
	for id, url := range override {
		if strings.TrimSpace(url) != "" {
			out[id] = url
		}
	}
	return out
}
