package scan

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/retry"
)

const (
	addr  = "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	other = "0x1111111111111111111111111111111111111111"
)

// ---------------------------------------------------------------------------
// fakeSource
// ---------------------------------------------------------------------------

type fakeSource struct {
	mu sync.Mutex

	height    uint64
	heightErr error
	blocks    map[uint64]*chain.Block
	blockErr  map[uint64]error
	receipts  map[string]*chain.Receipt
	rcptErr   map[string]error

	fetched []uint64
}

func newFakeSource(height uint64) *fakeSource {
	return &fakeSource{
		height:   height,
		blocks:   map[uint64]*chain.Block{},
		blockErr: map[uint64]error{},
		receipts: map[string]*chain.Receipt{},
		rcptErr:  map[string]error{},
	}
}

func (f *fakeSource) BlockNumber(context.Context) (uint64, error) {
	return f.height, f.heightErr
}

func (f *fakeSource) BlockWithTransactions(_ context.Context, n uint64) (*chain.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, n)
	if err := f.blockErr[n]; err != nil {
		return nil, err
	}
	if b, ok := f.blocks[n]; ok {
		return b, nil
	}
	return &chain.Block{Number: n, Timestamp: 1_700_000_000 + n}, nil
}

func (f *fakeSource) TransactionReceipt(_ context.Context, hash string) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.rcptErr[hash]; err != nil {
		return nil, err
	}
	return f.receipts[hash], nil
}

func (f *fakeSource) addTx(block uint64, tx chain.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[block]
	if !ok {
		b = &chain.Block{Number: block, Timestamp: 1_700_000_000 + block}
		f.blocks[block] = b
	}
	if tx.Value == nil {
		tx.Value = big.NewInt(1)
	}
	b.Transactions = append(b.Transactions, tx)
}

func (f *fakeSource) fetchedSet() map[uint64]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[uint64]bool, len(f.fetched))
	for _, n := range f.fetched {
		set[n] = true
	}
	return set
}

func testScanner() *Scanner {
	return New(Descriptor{ID: 1, Slug: "ethereum", Name: "Ethereum"}, retry.New(retry.WithBaseDelay(time.Millisecond)))
}

func confirmed(hash string, block uint64) *chain.Receipt {
	return &chain.Receipt{Hash: hash, Status: 1, BlockNumber: block, GasUsed: 21000}
}

// ---------------------------------------------------------------------------
// Window
// ---------------------------------------------------------------------------

func TestScanWindowCoversLastThousandBlocks(t *testing.T) {
	src := newFakeSource(5000)

	recs, err := testScanner().Scan(context.Background(), src, addr, 5)
	require.NoError(t, err)
	assert.Empty(t, recs)

	fetched := src.fetchedSet()
	assert.Len(t, fetched, 1001, "blocks 4000..5000 inclusive")
	assert.True(t, fetched[4000])
	assert.True(t, fetched[5000])
	assert.False(t, fetched[3999])
}

func TestScanWindowShortChain(t *testing.T) {
	src := newFakeSource(25)

	_, err := testScanner().Scan(context.Background(), src, addr, 5)
	require.NoError(t, err)

	fetched := src.fetchedSet()
	assert.Len(t, fetched, 26)
	assert.True(t, fetched[0])
	assert.True(t, fetched[25])
}

func TestScanShortCircuitsOnceLimitReached(t *testing.T) {
	src := newFakeSource(5000)
	src.addTx(4003, chain.Transaction{Hash: "0xa", From: addr, To: other})
	src.addTx(4005, chain.Transaction{Hash: "0xb", From: other, To: addr})

	recs, err := testScanner().Scan(context.Background(), src, addr, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	fetched := src.fetchedSet()
	assert.Len(t, fetched, BatchSize, "only the first batch is fetched")
	assert.False(t, fetched[4010])
}

func TestScanStopsInsideBlockAtLimit(t *testing.T) {
	src := newFakeSource(100)
	for i := range 5 {
		src.addTx(95, chain.Transaction{Hash: fmt.Sprintf("0x%d", i), From: addr, To: other})
	}

	recs, err := testScanner().Scan(context.Background(), src, addr, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "0x0", recs[0].Hash)
}

// ---------------------------------------------------------------------------
// Matching and classification
// ---------------------------------------------------------------------------

func TestScanMatchesCaseInsensitively(t *testing.T) {
	src := newFakeSource(50)
	src.addTx(45, chain.Transaction{Hash: "0xsent", From: "0xD8DA6BF26964AF9D7EED9E03E53415D37AA96045", To: other})
	src.addTx(46, chain.Transaction{Hash: "0xrecv", From: other, To: "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"})
	src.addTx(47, chain.Transaction{Hash: "0xnope", From: other, To: other})

	recs, err := testScanner().Scan(context.Background(), src, "0xD8dA6BF26964aF9D7eEd9e03E53415D37aA96045", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	byHash := map[string]Record{}
	for _, r := range recs {
		byHash[r.Hash] = r
	}
	assert.Equal(t, Sent, byHash["0xsent"].Direction)
	assert.Equal(t, Received, byHash["0xrecv"].Direction)
}

func TestScanSelfTransferIsSent(t *testing.T) {
	src := newFakeSource(10)
	src.addTx(5, chain.Transaction{Hash: "0xself", From: addr, To: addr})

	recs, err := testScanner().Scan(context.Background(), src, addr, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, Sent, recs[0].Direction)
}

func TestScanContractCreationHasEmptyTo(t *testing.T) {
	src := newFakeSource(10)
	src.addTx(5, chain.Transaction{Hash: "0xdeploy", From: addr})

	recs, err := testScanner().Scan(context.Background(), src, addr, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].To)
}

func TestScanStatusDerivation(t *testing.T) {
	src := newFakeSource(20)
	src.addTx(11, chain.Transaction{Hash: "0xok", From: addr, To: other, Value: big.NewInt(1e18), GasPrice: big.NewInt(30e9)})
	src.addTx(12, chain.Transaction{Hash: "0xrev", From: addr, To: other, GasPrice: big.NewInt(30e9)})
	src.addTx(13, chain.Transaction{Hash: "0xpend", From: addr, To: other, GasPrice: big.NewInt(30e9)})
	src.addTx(14, chain.Transaction{Hash: "0xerr", From: addr, To: other, GasPrice: big.NewInt(30e9)})
	src.receipts["0xok"] = confirmed("0xok", 11)
	src.receipts["0xrev"] = &chain.Receipt{Hash: "0xrev", Status: 0, BlockNumber: 12, GasUsed: 50000}
	src.rcptErr["0xerr"] = fmt.Errorf("%w: connection reset", chain.ErrTransport)

	recs, err := testScanner().Scan(context.Background(), src, addr, 10)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	byHash := map[string]Record{}
	for _, r := range recs {
		byHash[r.Hash] = r
	}

	ok := byHash["0xok"]
	assert.Equal(t, Confirmed, ok.Status)
	assert.Equal(t, "1000000000000000000", ok.Value)
	require.NotNil(t, ok.BlockNumber)
	assert.Equal(t, uint64(11), *ok.BlockNumber)
	require.NotNil(t, ok.GasUsed)
	assert.Equal(t, uint64(21000), *ok.GasUsed)
	require.NotNil(t, ok.GasPrice)
	assert.Equal(t, "30000000000", *ok.GasPrice)
	assert.Equal(t, int64(1_700_000_011), ok.Timestamp)
	assert.Equal(t, int64(1), ok.ChainID)
	assert.Equal(t, "Ethereum", ok.ChainName)

	assert.Equal(t, Failed, byHash["0xrev"].Status)

	for _, h := range []string{"0xpend", "0xerr"} {
		r := byHash[h]
		assert.Equal(t, Pending, r.Status, h)
		assert.Nil(t, r.BlockNumber, h)
		assert.Nil(t, r.GasUsed, h)
		assert.Nil(t, r.GasPrice, h)
	}
}

func TestScanSortsNewestFirstAndTruncates(t *testing.T) {
	src := newFakeSource(30)
	src.addTx(21, chain.Transaction{Hash: "0x21", From: addr, To: other})
	src.addTx(25, chain.Transaction{Hash: "0x25", From: addr, To: other})
	src.addTx(23, chain.Transaction{Hash: "0x23", From: addr, To: other})

	recs, err := testScanner().Scan(context.Background(), src, addr, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"0x25", "0x23", "0x21"}, []string{recs[0].Hash, recs[1].Hash, recs[2].Hash})
}

func TestScanSkipsMissingBlocks(t *testing.T) {
	src := newFakeSource(10)
	src.blocks[3] = nil // node answered null
	src.addTx(4, chain.Transaction{Hash: "0x4", From: addr, To: other})

	recs, err := testScanner().Scan(context.Background(), src, addr, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

// ---------------------------------------------------------------------------
// Failure policy
// ---------------------------------------------------------------------------

func TestScanHeightErrorPropagates(t *testing.T) {
	src := newFakeSource(0)
	src.heightErr = fmt.Errorf("%w: dial tcp: connection refused", chain.ErrTransport)

	recs, err := testScanner().Scan(context.Background(), src, addr, 10)
	require.Error(t, err)
	assert.Nil(t, recs)
	assert.ErrorIs(t, err, chain.ErrTransport)
	assert.NotErrorIs(t, err, ErrScanFailed)
}

func TestScanBlockFailureDegradesToEmpty(t *testing.T) {
	src := newFakeSource(100)
	src.addTx(95, chain.Transaction{Hash: "0x95", From: addr, To: other})
	src.blockErr[50] = fmt.Errorf("%w: EOF", chain.ErrTransport)

	recs, err := testScanner().Scan(context.Background(), src, addr, 10)
	require.Error(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
	assert.ErrorIs(t, err, ErrScanFailed)
	assert.ErrorIs(t, err, chain.ErrTransport)
}

func TestScanBlockRateLimitRetried(t *testing.T) {
	src := newFakeSource(5)
	src.addTx(3, chain.Transaction{Hash: "0x3", From: addr, To: other})

	calls := 0
	flaky := &flakySource{fakeSource: src, failBlock: 3, failures: 2, calls: &calls}

	recs, err := testScanner().Scan(context.Background(), flaky, addr, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 3, calls)
}

func TestScanRateLimitExhaustedKeepsKind(t *testing.T) {
	src := newFakeSource(5)
	calls := 0
	flaky := &flakySource{fakeSource: src, failBlock: 2, failures: 100, calls: &calls}

	_, err := testScanner().Scan(context.Background(), flaky, addr, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScanFailed)
	assert.True(t, chain.IsRateLimited(err))
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, retry.DefaultMaxAttempts, calls)
}

// scanLabels returns the chain label values recorded on the scans counter.
func scanLabels(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	labels := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "txscan_scanner_scans_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "chain" {
					labels[lp.GetValue()] = true
				}
			}
		}
	}
	return labels
}

func TestScanMetricsUseChainSlug(t *testing.T) {
	src := newFakeSource(5)
	sc := New(Descriptor{ID: 10, Slug: "optimism", Name: "OP Mainnet"}, retry.New(retry.WithBaseDelay(time.Millisecond)))

	recs, err := sc.Scan(context.Background(), src, addr, 1)
	require.NoError(t, err)
	assert.Empty(t, recs)

	labels := scanLabels(t)
	assert.True(t, labels["optimism"], "scan metrics carry the slug")
	assert.False(t, labels["OP Mainnet"], "display name is not a metrics label")
}

func TestScanZeroLimit(t *testing.T) {
	src := newFakeSource(100)
	recs, err := testScanner().Scan(context.Background(), src, addr, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, src.fetchedSet())
}

func TestScanCanceled(t *testing.T) {
	src := newFakeSource(100)
	src.heightErr = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testScanner().Scan(ctx, src, addr, 10)
	assert.True(t, errors.Is(err, context.Canceled))
}

// flakySource answers one block with HTTP 429 a fixed number of times.
type flakySource struct {
	*fakeSource
	failBlock uint64
	failures  int
	calls     *int
}

func (f *flakySource) BlockWithTransactions(ctx context.Context, n uint64) (*chain.Block, error) {
	if n == f.failBlock {
		f.mu.Lock()
		*f.calls++
		c := *f.calls
		f.mu.Unlock()
		if c <= f.failures {
			return nil, &chain.HTTPError{StatusCode: 429}
		}
	}
	return f.fakeSource.BlockWithTransactions(ctx, n)
}
