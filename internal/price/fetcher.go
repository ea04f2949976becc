// Package price looks up native token prices from CoinGecko.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mohsinsiddi/txscan/internal/chain"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// Fetcher retrieves token prices from CoinGecko.
type Fetcher struct {
	client   *http.Client
	baseURL  string
	currency string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.client = hc }
}

// WithBaseURL points the fetcher at another CoinGecko-compatible API.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) { f.baseURL = strings.TrimRight(u, "/") }
}

// NewFetcher creates a price fetcher quoting in currency (default "usd").
func NewFetcher(currency string, opts ...Option) *Fetcher {
	if currency == "" {
		currency = "usd"
	}
	f := &Fetcher{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  defaultBaseURL,
		currency: strings.ToLower(currency),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// coinGeckoIDs maps native currency symbols to CoinGecko coin IDs.
var coinGeckoIDs = map[string]string{
	"ETH":   "ethereum",
	"MATIC": "matic-network",
	"POL":   "matic-network",
	"BNB":   "binancecoin",
	"AVAX":  "avalanche-2",
	"FTM":   "fantom",
	"MNT":   "mantle",
	"CELO":  "celo",
	"XDAI":  "xdai",
	"GLMR":  "moonbeam",
	"CRO":   "crypto-com-chain",
}

// CoinID returns the CoinGecko ID for a native currency symbol.
func CoinID(symbol string) (string, bool) {
	id, ok := coinGeckoIDs[strings.ToUpper(strings.TrimSpace(symbol))]
	return id, ok
}

// Price returns the price of one unit of symbol.
func (f *Fetcher) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := f.Prices(ctx, []string{symbol})
	if err != nil {
		return decimal.Zero, err
	}
	p, ok := prices[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return decimal.Zero, fmt.Errorf("price not available for %s", symbol)
	}
	return p, nil
}

// Prices fetches prices for several symbols in one request, keyed by upper
// case symbol. Unknown symbols are left out.
func (f *Fetcher) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	bySymbol := make(map[string]string)
	for _, s := range symbols {
		if id, ok := CoinID(s); ok {
			bySymbol[strings.ToUpper(strings.TrimSpace(s))] = id
		}
	}
	if len(bySymbol) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	unique := make(map[string]struct{})
	for _, id := range bySymbol {
		unique[id] = struct{}{}
	}
	ids := make([]string, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	prices, err := f.fetchBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(bySymbol))
	for sym, id := range bySymbol {
		if p, ok := prices[id]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

func (f *Fetcher) fetchBatch(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", f.currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building price request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching prices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading price response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("price api: %w", &chain.HTTPError{StatusCode: resp.StatusCode})
	}

	// {"ethereum":{"usd":1234.56}, ...}
	var raw map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing price response: %w", err)
	}

	prices := make(map[string]decimal.Decimal)
	for id, currencies := range raw {
		if p, ok := currencies[f.currency]; ok {
			prices[id] = p
		}
	}
	return prices, nil
}
