// Package ens resolves ENS names to account addresses.
package ens

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// ENS registry address on Ethereum mainnet.
const registryAddr = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

// Selectors of resolver(bytes32) and addr(bytes32).
const (
	selectorResolver = "0x0178b8bf"
	selectorAddr     = "0x3b3b57de"
)

// ErrNotFound is returned when a name has no resolver or no address record.
var ErrNotFound = errors.New("ens name not found")

// Caller runs a read-only contract call. *chain.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, to, data string) (string, error)
}

// IsName reports whether s looks like an ENS name rather than a hex address.
func IsName(s string) bool {
	s = strings.TrimSpace(s)
	return strings.Contains(s, ".") && !strings.HasPrefix(strings.ToLower(s), "0x")
}

// Resolve looks up the resolver of name in the registry, then asks the
// resolver for the address record.
func Resolve(ctx context.Context, c Caller, name string) (string, error) {
	name = Normalize(name)
	node := Namehash(name)

	out, err := c.Call(ctx, registryAddr, selectorResolver+node)
	if err != nil {
		return "", fmt.Errorf("querying ENS registry: %w", err)
	}
	resolver, ok := parseAddress(out)
	if !ok {
		return "", fmt.Errorf("%w: no resolver set for %q", ErrNotFound, name)
	}

	out, err = c.Call(ctx, resolver.Hex(), selectorAddr+node)
	if err != nil {
		return "", fmt.Errorf("querying ENS resolver: %w", err)
	}
	addr, ok := parseAddress(out)
	if !ok {
		return "", fmt.Errorf("%w: no address record for %q", ErrNotFound, name)
	}
	return addr.Hex(), nil
}

// Normalize lower-cases and trims name. Full UTS-46 normalisation is not
// applied, so names outside ASCII may not resolve.
func Normalize(name string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(name), "."))
}

// Namehash implements the EIP-137 namehash algorithm and returns 64 hex
// characters without a 0x prefix.
func Namehash(name string) string {
	node := make([]byte, 32)
	if name != "" {
		labels := strings.Split(name, ".")
		for i := len(labels) - 1; i >= 0; i-- {
			node = keccak256(append(node, keccak256([]byte(labels[i]))...))
		}
	}
	return fmt.Sprintf("%064x", node)
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// parseAddress reads an address from the first ABI word of a call result.
// ok is false for short, malformed or zero results.
func parseAddress(result string) (common.Address, bool) {
	b, err := hexutil.Decode(result)
	if err != nil || len(b) < 32 {
		return common.Address{}, false
	}
	addr := common.BytesToAddress(b[12:32])
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}
