package chain

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrChainNotFound is returned when a chain is not in the registry.
var ErrChainNotFound = errors.New("chain not found")

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string `json:"name"     yaml:"name"`
	Symbol   string `json:"symbol"   yaml:"symbol"`
	Decimals int    `json:"decimals" yaml:"decimals"`
}

// Descriptor holds the connection parameters and metadata for a single chain.
// Descriptors are values; the registry never hands out pointers into its
// own storage.
type Descriptor struct {
	ID             int64          `json:"id"           yaml:"id"`
	Name           string         `json:"name"         yaml:"name"` // slug used on the command line
	DisplayName    string         `json:"display_name" yaml:"display_name"`
	EndpointURL    string         `json:"-"            yaml:"-"` // may hold an API key, never serialised
	Explorer       string         `json:"explorer"     yaml:"explorer"`
	NativeCurrency NativeCurrency `json:"native_currency" yaml:"native_currency"`
}

// Configured reports whether an RPC endpoint is attached to the chain.
func (d Descriptor) Configured() bool {
	return strings.TrimSpace(d.EndpointURL) != ""
}

// TxURL returns the explorer link for a transaction hash.
func (d Descriptor) TxURL(hash string) string {
	if d.Explorer == "" {
		return ""
	}
	return strings.TrimRight(d.Explorer, "/") + "/tx/" + hash
}

// AddressURL returns the explorer link for an account.
func (d Descriptor) AddressURL(address string) string {
	if d.Explorer == "" {
		return ""
	}
	return strings.TrimRight(d.Explorer, "/") + "/address/" + address
}

// Registry is the read-only chain registry. Build it once at startup.
type Registry struct {
	chains []Descriptor
	byName map[string]int
	byID   map[int64]int
}

// NewRegistry returns the registry of built-in chains.
func NewRegistry() *Registry {
	r, _ := newRegistry(builtinChains())
	return r
}

func newRegistry(chains []Descriptor) (*Registry, error) {
	r := &Registry{
		chains: chains,
		byName: make(map[string]int, len(chains)),
		byID:   make(map[int64]int, len(chains)),
	}
	for i, c := range r.chains {
		if c.ID <= 0 {
			return nil, fmt.Errorf("chain %q: id must be positive", c.Name)
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chain id %d", c.ID)
		}
		r.byID[c.ID] = i
		if c.Name != "" {
			r.byName[strings.ToLower(c.Name)] = i
		}
	}
	return r, nil
}

// Describe returns the descriptor for id. The boolean is false for chains
// that are not registered; callers treat that as "unsupported", not as a
// transient failure.
func (r *Registry) Describe(id int64) (Descriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.chains[i], true
}

// List returns chain IDs in registration order.
func (r *Registry) List() []int64 {
	ids := make([]int64, len(r.chains))
	for i, c := range r.chains {
		ids[i] = c.ID
	}
	return ids
}

// All returns a copy of every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.chains))
	copy(out, r.chains)
	return out
}

// GetByName finds a chain by slug (e.g. "polygon") or by decimal chain ID.
func (r *Registry) GetByName(name string) (Descriptor, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if i, ok := r.byName[key]; ok {
		return r.chains[i], nil
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		if d, ok := r.Describe(id); ok {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrChainNotFound, name)
}

// WithEndpoints returns a new registry with endpoint URLs attached. Entries
// for unknown chain IDs are ignored; empty URLs leave the chain unconfigured.
func (r *Registry) WithEndpoints(endpoints map[int64]string) *Registry {
	chains := r.All()
	for i := range chains {
		if url, ok := endpoints[chains[i].ID]; ok && strings.TrimSpace(url) != "" {
			chains[i].EndpointURL = strings.TrimSpace(url)
		}
	}
	out, _ := newRegistry(chains)
	return out
}

// registryFile is the layout of chains.yaml.
type registryFile struct {
	Chains []Descriptor `yaml:"chains"`
}

// LoadRegistryFile merges the chains declared in a YAML file into base.
// Entries whose id matches a registered chain override its non-empty fields;
// new ids are appended in file order. A missing file returns base unchanged.
func LoadRegistryFile(base *Registry, path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chains file: %w", err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing chains file: %w", err)
	}

	chains := base.All()
	index := make(map[int64]int, len(chains))
	for i, c := range chains {
		index[c.ID] = i
	}
	seen := make(map[int64]bool, len(f.Chains))

	for _, c := range f.Chains {
		if c.ID <= 0 {
			return nil, fmt.Errorf("chains file: chain %q: id must be positive", c.Name)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("chains file: duplicate chain id %d", c.ID)
		}
		seen[c.ID] = true

		if i, ok := index[c.ID]; ok {
			chains[i] = mergeDescriptor(chains[i], c)
			continue
		}
		if c.Name == "" {
			c.Name = strconv.FormatInt(c.ID, 10)
		}
		if c.DisplayName == "" {
			c.DisplayName = fmt.Sprintf("Chain %d", c.ID)
		}
		if c.NativeCurrency.Decimals == 0 {
			c.NativeCurrency.Decimals = 18
		}
		chains = append(chains, c)
	}
	return newRegistry(chains)
}

func mergeDescriptor(dst, src Descriptor) Descriptor {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.DisplayName != "" {
		dst.DisplayName = src.DisplayName
	}
	if src.Explorer != "" {
		dst.Explorer = src.Explorer
	}
	if src.NativeCurrency.Name != "" {
		dst.NativeCurrency.Name = src.NativeCurrency.Name
	}
	if src.NativeCurrency.Symbol != "" {
		dst.NativeCurrency.Symbol = src.NativeCurrency.Symbol
	}
	if src.NativeCurrency.Decimals != 0 {
		dst.NativeCurrency.Decimals = src.NativeCurrency.Decimals
	}
	return dst
}

// --- chain data ---

func builtinChains() []Descriptor {
	return []Descriptor{
		{
			ID: 1, Name: "ethereum", DisplayName: "Ethereum",
			Explorer:       "https://etherscan.io",
			NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		},
		{
			ID: 137, Name: "polygon", DisplayName: "Polygon",
			Explorer:       "https://polygonscan.com",
			NativeCurrency: NativeCurrency{Name: "MATIC", Symbol: "MATIC", Decimals: 18},
		},
		{
			ID: 42161, Name: "arbitrum", DisplayName: "Arbitrum",
			Explorer:       "https://arbiscan.io",
			NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		},
	}
}
