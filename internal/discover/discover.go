// Package discover answers "what are the latest transactions of this address"
// across several chains, caching per-chain scans and merging them newest first.
package discover

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Mohsinsiddi/txscan/internal/cache"
	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/logger"
	"github.com/Mohsinsiddi/txscan/internal/retry"
	"github.com/Mohsinsiddi/txscan/internal/scan"
)

type (
	Record    = scan.Record
	Direction = scan.Direction
	Status    = scan.Status
)

// ErrInvalidLimit is returned for a limit below 1.
var ErrInvalidLimit = errors.New("limit must be at least 1")

// KindScanFailed is the kind of a chain whose scan started but did not finish.
const KindScanFailed = "scan_failed"

// SourceFunc resolves the RPC source for a chain id.
type SourceFunc func(chainID int64) (scan.Source, error)

// ChainResult is the outcome for one requested chain.
type ChainResult struct {
	ChainID   int64
	ChainName string
	Records   []Record
	FromCache bool
	Err       error
}

// Report is a merged result plus the per-chain breakdown in request order.
type Report struct {
	Transactions []Record
	Chains       []ChainResult
}

// Failed returns the chains that contributed an error.
func (r *Report) Failed() []ChainResult {
	var out []ChainResult
	for _, c := range r.Chains {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// Service owns the result cache and fronts the per-chain scanners.
type Service struct {
	registry *chain.Registry
	sources  SourceFunc
	cache    *cache.Cache
	retry    *retry.Executor
}

// Option configures a Service.
type Option func(*Service)

// WithSources replaces the RPC client factory.
func WithSources(fn SourceFunc) Option {
	return func(s *Service) { s.sources = fn }
}

// WithCache replaces the default cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRetry replaces the default retry executor.
func WithRetry(e *retry.Executor) Option {
	return func(s *Service) { s.retry = e }
}

// NewService creates a discovery service over registry. Unless WithSources is
// given, RPC clients are built lazily per chain with clientOpts.
func NewService(registry *chain.Registry, clientOpts []chain.Option, opts ...Option) *Service {
	s := &Service{registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	if s.sources == nil {
		clients := chain.NewClients(registry, clientOpts...)
		s.sources = func(id int64) (scan.Source, error) {
			c, err := clients.For(id)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	if s.cache == nil {
		s.cache = cache.New()
	}
	if s.retry == nil {
		s.retry = retry.New()
	}
	return s
}

// Registry returns the chain registry the service scans.
func (s *Service) Registry() *chain.Registry { return s.registry }

// Fetch returns up to limit transactions of address across chainIDs, newest
// first. A chain that fails contributes nothing; only an invalid address or
// limit fails the whole call.
func (s *Service) Fetch(ctx context.Context, address string, chainIDs []int64, limit int) ([]Record, error) {
	rep, err := s.FetchReport(ctx, address, chainIDs, limit)
	if err != nil {
		return nil, err
	}
	return rep.Transactions, nil
}

// FetchReport is Fetch with per-chain outcomes.
func (s *Service) FetchReport(ctx context.Context, address string, chainIDs []int64, limit int) (*Report, error) {
	if err := chain.ValidateAddress(address); err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidLimit, limit)
	}
	address = chain.NormalizeAddress(address)

	ids := dedupe(chainIDs)
	results := make([]ChainResult, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			results[i] = s.fetchChain(ctx, address, id, limit)
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]Record, 0, limit)
	for _, r := range results {
		merged = append(merged, r.Records...)
	}
	scan.Sort(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return &Report{Transactions: merged, Chains: results}, nil
}

func (s *Service) fetchChain(ctx context.Context, address string, id int64, limit int) ChainResult {
	res := ChainResult{ChainID: id, Records: []Record{}}

	d, ok := s.registry.Describe(id)
	if !ok {
		return s.fail(res, fmt.Errorf("%w: %d", chain.ErrChainNotFound, id))
	}
	res.ChainName = d.DisplayName

	if cached, ok := s.cache.Get(address, id); ok {
		res.Records = truncate(cached, limit)
		res.FromCache = true
		return res
	}

	src, err := s.sources(id)
	if err != nil {
		return s.fail(res, err)
	}

	scanner := scan.New(scan.Descriptor{ID: d.ID, Slug: d.Name, Name: d.DisplayName}, s.retry)
	records, err := retry.Do(ctx, s.retry, func(ctx context.Context) ([]Record, error) {
		return scanner.Scan(ctx, src, address, limit)
	})
	if err != nil {
		return s.fail(res, err)
	}

	s.cache.Put(address, id, records)
	res.Records = truncate(records, limit)
	return res
}

func (s *Service) fail(res ChainResult, err error) ChainResult {
	res.Err = err
	logger.Warn("chain fetch failed",
		"chain_id", res.ChainID,
		"chain", res.ChainName,
		"kind", Kind(err),
		"err", err,
	)
	return res
}

// EvictAddress drops cached scans of address, on one chain or on all of them
// when chainID is nil.
func (s *Service) EvictAddress(address string, chainID *int64) {
	address = chain.NormalizeAddress(address)
	if chainID != nil {
		s.cache.Evict(address, *chainID)
		return
	}
	s.cache.EvictAddress(address)
}

// ClearCache drops every cached scan.
func (s *Service) ClearCache() { s.cache.Clear() }

// Kind classifies a per-chain error. Rate limiting wins over a scan failure so
// callers can word the message accordingly.
func Kind(err error) string {
	if errors.Is(err, ErrInvalidLimit) {
		return chain.KindValidation
	}
	k := chain.Kind(err)
	if k != chain.KindRateLimited && k != chain.KindCanceled && errors.Is(err, scan.ErrScanFailed) {
		return KindScanFailed
	}
	return k
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func truncate(records []Record, limit int) []Record {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}
