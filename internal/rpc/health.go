// Package rpc checks the health of the configured chain endpoints.
package rpc

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/Mohsinsiddi/txscan/internal/chain"
)

// DefaultTimeout bounds a single endpoint ping.
const DefaultTimeout = 5 * time.Second

// Endpoint is the measured state of one chain's endpoint.
type Endpoint struct {
	ChainID     int64
	ChainName   string
	URL         string // masked, safe to print
	Configured  bool
	Healthy     bool
	Latency     time.Duration
	BlockNumber uint64
	Err         error
}

// HealthCheck pings the endpoint of d once. An unconfigured chain is reported
// unhealthy with an ErrNotConfigured error and no network traffic.
func HealthCheck(ctx context.Context, d chain.Descriptor, timeout time.Duration, opts ...chain.Option) (Endpoint, error) {
	ep := Endpoint{
		ChainID:    d.ID,
		ChainName:  d.DisplayName,
		URL:        MaskURL(d.EndpointURL),
		Configured: d.Configured(),
	}

	c, err := chain.NewClient(d, opts...)
	if err != nil {
		ep.Err = err
		return ep, err
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	latency, blockNum, err := c.Ping(timeoutCtx)
	ep.Latency = latency
	ep.BlockNumber = blockNum
	ep.Healthy = err == nil
	ep.Err = err
	return ep, err
}

// MaskURL hides everything after the host, where providers put API keys.
func MaskURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	masked := u.Scheme + "://" + u.Host
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.User != nil {
		masked += "/***"
	}
	return masked
}
