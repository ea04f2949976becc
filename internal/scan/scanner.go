// Package scan finds an address's recent transactions on one chain by walking
// a bounded window of the newest blocks.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/logger"
	"github.com/Mohsinsiddi/txscan/internal/metrics"
	"github.com/Mohsinsiddi/txscan/internal/retry"
)

const (
	// WindowSize is how many of the newest blocks a scan covers.
	WindowSize = 1000
	// BatchSize is how many blocks are fetched concurrently.
	BatchSize = 10
)

// ErrScanFailed marks a scan that started but could not finish. The cause is
// wrapped alongside it.
var ErrScanFailed = errors.New("scan failed")

// Source is the read side of a chain client that a scan needs.
type Source interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockWithTransactions(ctx context.Context, num uint64) (*chain.Block, error)
	TransactionReceipt(ctx context.Context, hash string) (*chain.Receipt, error)
}

// Scanner scans blocks of a single chain.
type Scanner struct {
	chain Descriptor
	retry *retry.Executor
}

// Descriptor is the subset of chain identity a scan needs. Name is stamped
// onto every record; Slug labels the scan metrics like the RPC client's.
type Descriptor struct {
	ID   int64
	Slug string
	Name string
}

// New creates a scanner for the chain d. A nil executor uses retry defaults.
func New(d Descriptor, exec *retry.Executor) *Scanner {
	if exec == nil {
		exec = retry.New()
	}
	return &Scanner{chain: d, retry: exec}
}

// Scan returns up to limit transactions sent from or to address, newest first.
//
// A failure to read the head height is returned as-is. Any later failure
// yields an empty slice and an error wrapping ErrScanFailed and the cause.
func (s *Scanner) Scan(ctx context.Context, src Source, address string, limit int) (records []Record, err error) {
	started := time.Now()
	defer func() { metrics.ObserveScan(s.chain.Slug, err, started) }()

	if limit < 1 {
		return []Record{}, nil
	}

	height, err := retry.Do(ctx, s.retry, src.BlockNumber)
	if err != nil {
		return nil, err
	}

	window := min(uint64(WindowSize), height)
	start := height - window
	target := strings.ToLower(address)

	logger.Debug("scanning blocks", "chain_id", s.chain.ID, "from", start, "to", height, "limit", limit)

	// Batches run oldest to newest and stop at limit.
	found := make([]Record, 0, limit)
	for batchStart := start; batchStart <= height && len(found) < limit; batchStart += BatchSize {
		batchEnd := min(batchStart+BatchSize-1, height)

		blocks, err := s.fetchBatch(ctx, src, batchStart, batchEnd)
		if err != nil {
			logger.Debug("batch failed", "chain_id", s.chain.ID, "from", batchStart, "to", batchEnd, "err", err)
			return []Record{}, fmt.Errorf("%w on %s at blocks %d-%d: %w", ErrScanFailed, s.chain.Name, batchStart, batchEnd, err)
		}

	blockLoop:
		for _, b := range blocks {
			if b == nil {
				continue
			}
			for _, tx := range b.Transactions {
				if len(found) >= limit {
					break blockLoop
				}
				from := strings.ToLower(tx.From)
				to := strings.ToLower(tx.To)
				if from != target && to != target {
					continue
				}
				found = append(found, s.record(ctx, src, b, tx, from == target))
			}
		}
	}

	Sort(found)
	if len(found) > limit {
		found = found[:limit]
	}
	logger.Debug("scan complete", "chain_id", s.chain.ID, "matches", len(found))
	return found, nil
}

// fetchBatch fetches blocks [from, to] concurrently, preserving block order.
func (s *Scanner) fetchBatch(ctx context.Context, src Source, from, to uint64) ([]*chain.Block, error) {
	blocks := make([]*chain.Block, to-from+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(BatchSize)
	for n := from; n <= to; n++ {
		g.Go(func() error {
			b, err := retry.Do(gctx, s.retry, func(ctx context.Context) (*chain.Block, error) {
				return src.BlockWithTransactions(ctx, n)
			})
			if err != nil {
				return fmt.Errorf("block %d: %w", n, err)
			}
			blocks[n-from] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func (s *Scanner) record(ctx context.Context, src Source, b *chain.Block, tx chain.Transaction, sent bool) Record {
	r := Record{
		Hash:      tx.Hash,
		From:      tx.From,
		To:        tx.To,
		Value:     "0",
		Direction: Received,
		Status:    Pending,
		ChainID:   s.chain.ID,
		ChainName: s.chain.Name,
		Timestamp: int64(b.Timestamp),
	}
	if sent {
		r.Direction = Sent
	}
	if tx.Value != nil {
		r.Value = tx.Value.String()
	}

	receipt, err := src.TransactionReceipt(ctx, tx.Hash)
	if err != nil {
		logger.Debug("receipt unavailable, treating as pending", "chain_id", s.chain.ID, "hash", tx.Hash, "err", err)
		return r
	}
	if receipt == nil {
		return r
	}

	r.Status = Failed
	if receipt.Succeeded() {
		r.Status = Confirmed
	}
	blockNum := b.Number
	if receipt.BlockNumber != 0 {
		blockNum = receipt.BlockNumber
	}
	gasUsed := receipt.GasUsed
	r.BlockNumber = &blockNum
	r.GasUsed = &gasUsed
	if tx.GasPrice != nil {
		gp := tx.GasPrice.String()
		r.GasPrice = &gp
	}
	return r
}

// Sort orders records newest first. Equal timestamps keep their input order.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp > records[j].Timestamp })
}
