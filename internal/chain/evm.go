package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/ratelimit"

	"github.com/Mohsinsiddi/txscan/internal/metrics"
)

const defaultHTTPTimeout = 15 * time.Second

// Transaction is a transaction as embedded in a block.
type Transaction struct {
	Hash     string
	From     string
	To       string // empty for contract creation
	Value    *big.Int
	GasPrice *big.Int
}

// Block is a block fetched with its full transaction objects.
type Block struct {
	Number       uint64
	Timestamp    uint64
	Transactions []Transaction
}

// Receipt holds the on-chain outcome of a mined transaction.
type Receipt struct {
	Hash        string
	Status      uint64 // 1 = success, 0 = reverted
	BlockNumber uint64
	GasUsed     uint64
}

// Succeeded reports whether the transaction executed successfully.
func (r *Receipt) Succeeded() bool { return r.Status == 1 }

// Client is a read-only JSON-RPC client bound to one chain's endpoint.
type Client struct {
	chainID int64
	url     string
	http    *http.Client
	limiter ratelimit.Limiter
	metrics *metrics.RPCClient
	nextID  atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit paces outgoing requests to rps per second. rps <= 0 disables pacing.
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = ratelimit.NewUnlimited()
			return
		}
		c.limiter = ratelimit.New(rps)
	}
}

// NewClient creates a client for the chain described by d. It fails with
// ErrNotConfigured when the descriptor carries no endpoint URL.
func NewClient(d Descriptor, opts ...Option) (*Client, error) {
	if !d.Configured() {
		return nil, fmt.Errorf("%w for %s", ErrNotConfigured, d.DisplayName)
	}
	c := &Client{
		chainID: d.ID,
		url:     strings.TrimSpace(d.EndpointURL),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		limiter: ratelimit.NewUnlimited(),
		metrics: metrics.NewRPCClient(d.Name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ChainID returns the chain the client is bound to.
func (c *Client) ChainID() int64 { return c.chainID }

// BlockNumber returns the current head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var hexStr string
	if _, err := c.call(ctx, "eth_blockNumber", &hexStr); err != nil {
		return 0, err
	}
	n, ok := parseBigHex(hexStr)
	if !ok {
		return 0, fmt.Errorf("could not parse block number: %q", hexStr)
	}
	return n.Uint64(), nil
}

// BlockWithTransactions fetches block num with full transaction objects.
// Returns nil, nil when the node reports the block does not exist.
func (c *Client) BlockWithTransactions(ctx context.Context, num uint64) (*Block, error) {
	var rb rawBlock
	found, err := c.call(ctx, "eth_getBlockByNumber", &rb, hexutil.EncodeUint64(num), true)
	if err != nil || !found {
		return nil, err
	}
	return rb.toBlock(num), nil
}

// TransactionReceipt fetches the receipt for hash.
// Returns nil, nil if the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var rr rawReceipt
	found, err := c.call(ctx, "eth_getTransactionReceipt", &rr, hash)
	if err != nil || !found {
		return nil, err
	}

	receipt := &Receipt{Hash: hash}
	if s, ok := parseBigHex(rr.Status); ok {
		receipt.Status = s.Uint64()
	}
	if bn, ok := parseBigHex(rr.BlockNumber); ok {
		receipt.BlockNumber = bn.Uint64()
	}
	if gu, ok := parseBigHex(rr.GasUsed); ok {
		receipt.GasUsed = gu.Uint64()
	}
	return receipt, nil
}

// Call executes a read-only eth_call against the latest block and returns the
// hex-encoded return data ("0x" when the node returns nothing).
func (c *Client) Call(ctx context.Context, to, data string) (string, error) {
	out := "0x"
	if _, err := c.call(ctx, "eth_call", &out, map[string]string{"to": to, "data": data}, "latest"); err != nil {
		return "", err
	}
	return out, nil
}

// Ping tests the endpoint and returns latency + head height.
func (c *Client) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.BlockNumber(ctx)
	return time.Since(start), blockNum, err
}

// --- internal JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call issues method and decodes the result into out. found is false when
// the node answered with a null result.
func (c *Client) call(ctx context.Context, method string, out any, params ...any) (found bool, err error) {
	started := time.Now()
	defer func() { c.metrics.Observe(method, err, started) }()

	if params == nil {
		params = []any{}
	}
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return false, err
	}

	c.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return false, fmt.Errorf("%w: building %s request: %w", ErrTransport, method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%w: reading %s response: %w", ErrTransport, method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("%s: %w", method, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), 200),
		})
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return false, fmt.Errorf("%w: parsing %s response: %w", ErrTransport, method, err)
	}
	if rpcResp.Error != nil {
		return false, fmt.Errorf("%s: %w", method, &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message})
	}

	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return false, fmt.Errorf("%w: parsing %s result: %w", ErrTransport, method, err)
	}
	return true, nil
}

type rawTx struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	GasPrice string `json:"gasPrice"`
}

func (rt *rawTx) toTx() Transaction {
	tx := Transaction{
		Hash: rt.Hash,
		From: rt.From,
		To:   rt.To,
	}
	if v, ok := parseBigHex(rt.Value); ok {
		tx.Value = v
	} else {
		tx.Value = new(big.Int)
	}
	if gp, ok := parseBigHex(rt.GasPrice); ok {
		tx.GasPrice = gp
	}
	return tx
}

type rawBlock struct {
	Number       string            `json:"number"`
	Timestamp    string            `json:"timestamp"`
	Transactions []json.RawMessage `json:"transactions"`
}

func (rb *rawBlock) toBlock(requested uint64) *Block {
	b := &Block{Number: requested}
	if n, ok := parseBigHex(rb.Number); ok {
		b.Number = n.Uint64()
	}
	if ts, ok := parseBigHex(rb.Timestamp); ok {
		b.Timestamp = ts.Uint64()
	}
	for _, txRaw := range rb.Transactions {
		var rt rawTx
		// Hash-only entries (a string, not an object) carry nothing to match on.
		if err := json.Unmarshal(txRaw, &rt); err != nil {
			continue
		}
		b.Transactions = append(b.Transactions, rt.toTx())
	}
	return b
}

type rawReceipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
	GasUsed     string `json:"gasUsed"`
}

// --- helpers ---

func parseBigHex(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 16)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// Clients builds one Client per chain on first use and reuses it afterwards.
type Clients struct {
	registry *Registry
	opts     []Option

	mu      sync.Mutex
	clients map[int64]*Client
}

// NewClients creates a lazy client set over registry.
func NewClients(registry *Registry, opts ...Option) *Clients {
	return &Clients{
		registry: registry,
		opts:     opts,
		clients:  make(map[int64]*Client),
	}
}

// For returns the client for chain id, constructing it on first use.
// Unknown ids fail with ErrChainNotFound, unconfigured ones with ErrNotConfigured.
func (cs *Clients) For(id int64) (*Client, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if c, ok := cs.clients[id]; ok {
		return c, nil
	}
	d, ok := cs.registry.Describe(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChainNotFound, id)
	}
	c, err := NewClient(d, cs.opts...)
	if err != nil {
		return nil, err
	}
	cs.clients[id] = c
	return c, nil
}
