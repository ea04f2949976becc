package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Error kinds surfaced by the discovery engine. Wrap them with %w and test
// with errors.Is.
var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrNotConfigured  = errors.New("rpc endpoint not configured")
	ErrTransport      = errors.New("rpc transport failure")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// Kind names, stable for logs and API responses.
const (
	KindValidation    = "validation"
	KindUnsupported   = "unsupported"
	KindConfiguration = "configuration"
	KindTransport     = "transport"
	KindRateLimited   = "rate_limited"
	KindCanceled      = "canceled"
	KindUnknown       = "unknown"
)

// HTTPError is returned when an endpoint answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return ErrTransport
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Unwrap() error {
	if e.rateLimited() {
		return ErrRateLimited
	}
	return ErrTransport
}

// -32005 is the "limit exceeded" code used by Infura, Alchemy and geth.
func (e *RPCError) rateLimited() bool {
	return e.Code == -32005 || e.Code == http.StatusTooManyRequests || hasRateLimitMarker(e.Message)
}

// IsRateLimited reports whether err is a throttling signal: a 429 status, a
// rate-limit error code, or a textual "rate limit" marker in the message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return hasRateLimitMarker(err.Error())
}

// status429 needs word boundaries so hashes containing "429" do not match.
var status429 = regexp.MustCompile(`\b429\b`)

func hasRateLimitMarker(msg string) bool {
	msg = strings.ToLower(msg)
	return status429.MatchString(msg) ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// Kind classifies err into one of the Kind* names.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAddress):
		return KindValidation
	case errors.Is(err, ErrChainNotFound):
		return KindUnsupported
	case errors.Is(err, ErrNotConfigured):
		return KindConfiguration
	case IsRateLimited(err):
		return KindRateLimited
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindUnknown
	}
}

// UserMessage renders the most specific human-readable message for err.
func UserMessage(err error) string {
	switch Kind(err) {
	case KindRateLimited:
		return "Rate limit exceeded. Please try again in a moment."
	case KindTransport:
		return "Network connection failed: " + err.Error()
	case KindCanceled:
		return "Request canceled: " + err.Error()
	default:
		if err == nil {
			return ""
		}
		return err.Error()
	}
}
