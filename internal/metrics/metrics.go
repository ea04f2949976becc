// Package metrics holds the Prometheus collectors for RPC traffic, the
// result cache and block scans.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "txscan"

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc_client",
		Name:      "operations_total",
		Help:      "Count of node RPC operations.",
	}, []string{"operation", "chain", "status"})
	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc_client",
		Name:      "operation_duration_seconds",
		Help:      "Duration of node RPC operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "chain", "status"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Result cache lookups by outcome.",
	}, []string{"result"})

	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scans_total",
		Help:      "Block window scans by chain and outcome.",
	}, []string{"chain", "status"})
	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scan_duration_seconds",
		Help:      "Duration of block window scans.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"chain", "status"})
)

// RPCClient tracks metrics for RPC calls to one chain's endpoint.
type RPCClient struct {
	chain string
}

// NewRPCClient constructs a metrics collector for RPC calls.
func NewRPCClient(chain string) *RPCClient {
	if chain == "" {
		chain = "unknown"
	}
	return &RPCClient{chain: chain}
}

// Observe records a single RPC call outcome and duration.
func (m *RPCClient) Observe(operation string, err error, started time.Time) {
	if m == nil {
		return
	}
	status := statusOf(err)
	rpcRequestsTotal.WithLabelValues(operation, m.chain, status).Inc()
	rpcRequestDuration.WithLabelValues(operation, m.chain, status).Observe(time.Since(started).Seconds())
}

// CacheHit counts a result cache hit.
func CacheHit() { cacheLookupsTotal.WithLabelValues("hit").Inc() }

// CacheMiss counts a result cache miss (absent or expired).
func CacheMiss() { cacheLookupsTotal.WithLabelValues("miss").Inc() }

// ObserveScan records one block window scan.
func ObserveScan(chain string, err error, started time.Time) {
	if chain == "" {
		chain = "unknown"
	}
	status := statusOf(err)
	scansTotal.WithLabelValues(chain, status).Inc()
	scanDuration.WithLabelValues(chain, status).Observe(time.Since(started).Seconds())
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
