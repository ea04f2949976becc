package rpc

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mohsinsiddi/txscan/internal/chain"
)

// CheckChains pings every descriptor in parallel and returns the results in
// input order.
func CheckChains(ctx context.Context, descs []chain.Descriptor, timeout time.Duration, opts ...chain.Option) []Endpoint {
	results := make([]Endpoint, len(descs))
	var wg sync.WaitGroup

	for i, d := range descs {
		wg.Add(1)
		go func(idx int, d chain.Descriptor) {
			defer wg.Done()
			results[idx], _ = HealthCheck(ctx, d, timeout, opts...)
		}(i, d)
	}

	wg.Wait()
	return results
}

// ByLatency orders healthy endpoints fastest first, followed by unhealthy
// and unconfigured ones in their original order.
func ByLatency(endpoints []Endpoint) []Endpoint {
	out := append([]Endpoint(nil), endpoints...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Healthy != b.Healthy {
			return a.Healthy
		}
		if a.Healthy {
			return a.Latency < b.Latency
		}
		return false
	})
	return out
}
