package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/config"
	"github.com/Mohsinsiddi/txscan/internal/discover"
	"github.com/Mohsinsiddi/txscan/internal/scan"
	"github.com/Mohsinsiddi/txscan/internal/secrets"
)

const (
	wallet = "0x1111111111111111111111111111111111111111"
	peer   = "0x2222222222222222222222222222222222222222"
)

// setupCLI points the commands at a fresh config dir with pacing disabled,
// an in-memory keychain and no endpoint variables. It returns the config dir.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"selected_chain": 1, "default_limit": 10, "rpc_rate_limit": 0}`), 0o600))

	for _, k := range []string{
		"TXSCAN_ETHEREUM_RPC_URL", "TXSCAN_POLYGON_RPC_URL",
		"TXSCAN_ARBITRUM_RPC_URL", "TXSCAN_RPC_URLS", "TXSCAN_PRICE_API_URL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	store := secrets.NewStore(keyring.NewArrayKeyring(nil))
	prev := openStore
	openStore = func(string) *secrets.Store { return store }
	t.Cleanup(func() { openStore = prev })

	cfgDir = dir
	return dir
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	txsChains, txsLimit, txsInteractive, txsJSON, txsLivePrices = nil, config.DefaultLimit, false, false, false
	serveChains = nil
	verbose, logLevel = false, ""
	txsCmd.Flags().Lookup("limit").Changed = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgDir}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// nodeServer is a JSON-RPC node with head at block 20 and one transaction
// from wallet in each listed block.
func nodeServer(t *testing.T, txBlocks map[uint64]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result any
		switch req.Method {
		case "eth_blockNumber":
			result = "0x14"
		case "eth_getBlockByNumber":
			var hexNum string
			require.NoError(t, json.Unmarshal(req.Params[0], &hexNum))
			n, err := strconv.ParseUint(strings.TrimPrefix(hexNum, "0x"), 16, 64)
			require.NoError(t, err)
			txs := []any{}
			if hash, ok := txBlocks[n]; ok {
				txs = append(txs, map[string]string{
					"hash": hash, "from": wallet, "to": peer,
					"value": "0xde0b6b3a7640000", "gasPrice": "0x3b9aca00",
				})
			}
			result = map[string]any{
				"number":       hexNum,
				"timestamp":    fmt.Sprintf("0x%x", 1_700_000_000+n),
				"transactions": txs,
			}
		case "eth_getTransactionReceipt":
			result = map[string]string{"status": "0x1", "blockNumber": "0x10", "gasUsed": "0x5208"}
		case "eth_call":
			var call struct {
				Data string `json:"data"`
			}
			require.NoError(t, json.Unmarshal(req.Params[0], &call))
			// resolver(bytes32) answers with a resolver, addr(bytes32) with wallet.
			word := "0x000000000000000000000000" + strings.Repeat("ab", 20)
			if strings.HasPrefix(call.Data, "0x3b3b57de") {
				word = "0x000000000000000000000000" + strings.TrimPrefix(wallet, "0x")
			}
			result = word
		default:
			t.Errorf("unexpected method %s", req.Method)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTxsJSON(t *testing.T) {
	setupCLI(t)
	srv := nodeServer(t, map[uint64]string{4: "0xaaa", 9: "0xbbb", 15: "0xccc"})
	t.Setenv("TXSCAN_ETHEREUM_RPC_URL", srv.URL)

	out, err := runCLI(t, "txs", wallet, "--json", "--limit", "2")
	require.NoError(t, err)

	var got reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	// The window is walked oldest first, so the limit keeps the two earliest
	// matches, listed newest first.
	require.Len(t, got.Transactions, 2)
	assert.Equal(t, "0xbbb", got.Transactions[0].Hash)
	assert.Equal(t, "0xaaa", got.Transactions[1].Hash)
	assert.Equal(t, scan.Sent, got.Transactions[0].Direction)
	assert.Equal(t, scan.Confirmed, got.Transactions[0].Status)
	assert.Empty(t, got.Errors)
}

func TestTxsTable(t *testing.T) {
	setupCLI(t)
	srv := nodeServer(t, map[uint64]string{12: "0xabcdef0123456789abcdef"})
	t.Setenv("TXSCAN_RPC_URLS", "1="+srv.URL)

	out, err := runCLI(t, "txs", wallet)
	require.NoError(t, err)
	assert.Contains(t, out, "Recent Transactions")
	assert.Contains(t, out, "Ethereum")
	assert.Contains(t, out, "etherscan.io/address/"+wallet)
}

func TestTxsLivePrices(t *testing.T) {
	setupCLI(t)
	node := nodeServer(t, map[uint64]string{12: "0xabc"})
	prices := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3210.5}}`))
	}))
	t.Cleanup(prices.Close)
	t.Setenv("TXSCAN_ETHEREUM_RPC_URL", node.URL)
	t.Setenv("TXSCAN_PRICE_API_URL", prices.URL)

	out, err := runCLI(t, "txs", wallet, "--live-prices")
	require.NoError(t, err)
	assert.Contains(t, out, "$3210.50")
}

func TestTxsLivePricesFallBack(t *testing.T) {
	setupCLI(t)
	node := nodeServer(t, map[uint64]string{12: "0xabc"})
	prices := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(prices.Close)
	t.Setenv("TXSCAN_ETHEREUM_RPC_URL", node.URL)
	t.Setenv("TXSCAN_PRICE_API_URL", prices.URL)

	out, err := runCLI(t, "txs", wallet, "--live-prices")
	require.NoError(t, err)
	assert.Contains(t, out, "$2000.00")
}

func TestTxsResolvesENSName(t *testing.T) {
	setupCLI(t)
	srv := nodeServer(t, map[uint64]string{7: "0xens"})
	t.Setenv("TXSCAN_ETHEREUM_RPC_URL", srv.URL)

	out, err := runCLI(t, "txs", "wallet.eth", "--json")
	require.NoError(t, err)

	var got reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Transactions, 1)
	assert.Equal(t, "0xens", got.Transactions[0].Hash)
}

func TestTxsENSNeedsEthereumEndpoint(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "txs", "wallet.eth")
	assert.ErrorIs(t, err, chain.ErrNotConfigured)
}

func TestTxsMultiChainWarnsAndRenders(t *testing.T) {
	setupCLI(t)
	srv := nodeServer(t, map[uint64]string{5: "0xaaa"})
	t.Setenv("TXSCAN_ETHEREUM_RPC_URL", srv.URL)

	out, err := runCLI(t, "txs", wallet, "--chain", "ethereum,polygon", "--json")
	require.NoError(t, err)

	var got reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Transactions, 1)
	assert.Contains(t, got.Errors, "137")
	assert.Contains(t, got.Errors["137"], "not configured")
}

func TestTxsSingleChainSurfacesError(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "txs", wallet, "--chain", "polygon")
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrNotConfigured)
	assert.Equal(t, chain.KindConfiguration, discover.Kind(err))
}

func TestTxsRejectsBadInput(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "txs", "0xnope")
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)

	_, err = runCLI(t, "txs", wallet, "--limit", "0")
	assert.ErrorIs(t, err, discover.ErrInvalidLimit)

	_, err = runCLI(t, "txs", wallet, "--chain", "dogechain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown chain")
}

func TestChainsUsePersists(t *testing.T) {
	dir := setupCLI(t)

	out, err := runCLI(t, "chains", "use", "polygon")
	require.NoError(t, err)
	assert.Contains(t, out, "Polygon")

	reloaded, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(137), reloaded.SelectedChain)

	out, err = runCLI(t, "chains", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "3 chains, 0 configured")
}

func TestConfigSetRPCAndUnset(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "config", "set-rpc", "arbitrum", "https://arb.example.com/v2/secret")
	require.NoError(t, err)

	stored, err := openStore(cfgDir).Endpoints()
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{42161: "https://arb.example.com/v2/secret"}, stored)

	out, err := runCLI(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "https://arb.example.com/***")
	assert.NotContains(t, out, "secret")

	_, err = runCLI(t, "config", "unset-rpc", "42161")
	require.NoError(t, err)
	stored, err = openStore(cfgDir).Endpoints()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestConfigSetSelectedChainByName(t *testing.T) {
	dir := setupCLI(t)

	_, err := runCLI(t, "config", "set", "selected_chain", "arbitrum")
	require.NoError(t, err)

	reloaded, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(42161), reloaded.SelectedChain)

	_, err = runCLI(t, "config", "set", "default_limit", "zero")
	assert.Error(t, err)
}

func TestEnvironmentBeatsKeychain(t *testing.T) {
	setupCLI(t)
	srv := nodeServer(t, nil)
	require.NoError(t, openStore(cfgDir).SetEndpoint(1, "http://127.0.0.1:1"))
	t.Setenv("TXSCAN_ETHEREUM_RPC_URL", srv.URL)

	cfg, _ = config.Load(cfgDir)
	reg, err := loadRegistry()
	require.NoError(t, err)
	d, _ := reg.Describe(1)
	assert.Equal(t, srv.URL, d.EndpointURL)
}

func TestResolveChains(t *testing.T) {
	setupCLI(t)
	var err error
	cfg, err = config.Load(cfgDir)
	require.NoError(t, err)
	reg := chain.NewRegistry()

	tests := []struct {
		name     string
		selected int64
		args     []string
		want     []int64
	}{
		{"default is selected", 137, nil, []int64{137}},
		{"unknown selection falls back to ethereum", 5, nil, []int64{1}},
		{"slugs and ids", 1, []string{"Polygon", "42161"}, []int64{137, 42161}},
		{"comma list", 1, []string{"ethereum, arbitrum"}, []int64{1, 42161}},
		{"all", 1, []string{"all"}, []int64{1, 137, 42161}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.SelectedChain = tt.selected
			got, err := resolveChains(reg, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = resolveChains(reg, []string{"solana"})
	assert.Error(t, err)
}

func TestRenderReport(t *testing.T) {
	reg := chain.NewRegistry()
	report := &discover.Report{
		Transactions: []scan.Record{{
			Hash: "0xabc", From: wallet, To: peer, Value: "1000000000000000000",
			Direction: scan.Sent, Status: scan.Pending, ChainID: 1, ChainName: "Ethereum",
			Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).Unix(),
		}},
		Chains: []discover.ChainResult{
			{ChainID: 1, ChainName: "Ethereum"},
			{ChainID: 137, ChainName: "Polygon", Err: fmt.Errorf("eth_blockNumber: %w", &chain.HTTPError{StatusCode: http.StatusTooManyRequests})},
		},
	}

	var buf bytes.Buffer
	renderReport(&buf, reg, wallet, []int64{1, 137}, report, time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC))
	out := buf.String()
	assert.Contains(t, out, "Ethereum, Polygon")
	assert.Contains(t, out, "Polygon: Rate limit exceeded")
	assert.NotContains(t, out, "Explorer:")

	buf.Reset()
	renderReport(&buf, reg, wallet, []int64{1}, &discover.Report{}, time.Now())
	assert.Contains(t, buf.String(), "No transactions found")
	assert.Contains(t, buf.String(), "Explorer:")
}

func TestWriteReportJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReportJSON(&buf, &discover.Report{
		Chains: []discover.ChainResult{{ChainID: 10, Err: errors.New("boom")}},
	}))
	assert.JSONEq(t, `{"transactions": [], "errors": {"10": "boom"}}`, buf.String())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"ethereum", "137", "arbitrum"}, splitList([]string{"Ethereum,137", " arbitrum ", ""}))
	assert.Nil(t, splitList(nil))
}
