package config

// Config holds the persisted txscan preferences.
type Config struct {
	SelectedChain int64  `json:"selected_chain"`
	DefaultLimit  int    `json:"default_limit"`
	RPCRateLimit  int    `json:"rpc_rate_limit"` // requests per second per endpoint, 0 = unlimited
	ChainsFile    string `json:"chains_file,omitempty"`

	// internal: config dir path used for Save()
	configDir string
}

// Env is the endpoint configuration read from the process environment.
type Env struct {
	EthereumRPCURL string            `env:"TXSCAN_ETHEREUM_RPC_URL"`
	PolygonRPCURL  string            `env:"TXSCAN_POLYGON_RPC_URL"`
	ArbitrumRPCURL string            `env:"TXSCAN_ARBITRUM_RPC_URL"`
	RPCURLs        map[string]string `env:"TXSCAN_RPC_URLS" envKeyValSeparator:"="` // chain id => url
	PriceAPIURL    string            `env:"TXSCAN_PRICE_API_URL" envDefault:"https://api.coingecko.com/api/v3"`
}
