// Package api exposes the discovery service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/discover"
	"github.com/Mohsinsiddi/txscan/internal/logger"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

var errBadRequest = errors.New("bad request")

// Options tune the handler.
type Options struct {
	DefaultLimit  int           // used when the request has no limit
	FetchTimeout  time.Duration // upper bound for one discovery request
	DefaultChains []int64       // used when the request has no chains; all registered chains if empty
}

type handler struct {
	svc  *discover.Service
	opts Options
}

// NewHandler returns the HTTP API wrapped in CORS.
func NewHandler(svc *discover.Service, opts Options) http.Handler {
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = defaultLimit
	}
	if len(opts.DefaultChains) == 0 {
		opts.DefaultChains = svc.Registry().List()
	}
	h := &handler{svc: svc, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/transactions", h.transactions)
	mux.HandleFunc("DELETE /v1/cache", h.evict)
	mux.HandleFunc("GET /v1/chains", h.chains)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
	}).Handler(mux)
}

// NewServer wraps handler in an http.Server with sane timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}
}

// Serve runs s until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, s *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", s.Addr)
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type transactionsResponse struct {
	Transactions []discover.Record `json:"transactions"`
	Errors       map[string]string `json:"errors,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *handler) transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := h.opts.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			writeError(w, fmt.Errorf("%w: limit must be between 1 and %d", errBadRequest, maxLimit))
			return
		}
		limit = n
	}

	ids := h.opts.DefaultChains
	if raw := q.Get("chains"); raw != "" {
		parsed, err := h.parseChains(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		ids = parsed
	}

	ctx := r.Context()
	if h.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.FetchTimeout)
		defer cancel()
	}

	rep, err := h.svc.FetchReport(ctx, q.Get("address"), ids, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := transactionsResponse{Transactions: rep.Transactions}
	for _, c := range rep.Failed() {
		if resp.Errors == nil {
			resp.Errors = make(map[string]string)
		}
		resp.Errors[strconv.FormatInt(c.ChainID, 10)] = chain.UserMessage(c.Err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) evict(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := q.Get("address")
	if address == "" {
		h.svc.ClearCache()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := chain.ValidateAddress(address); err != nil {
		writeError(w, err)
		return
	}

	var chainID *int64
	if raw := q.Get("chain"); raw != "" {
		d, err := h.svc.Registry().GetByName(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
		chainID = &d.ID
	}
	h.svc.EvictAddress(address, chainID)
	w.WriteHeader(http.StatusNoContent)
}

type chainResponse struct {
	chain.Descriptor
	Configured bool `json:"configured"`
}

func (h *handler) chains(w http.ResponseWriter, _ *http.Request) {
	all := h.svc.Registry().All()
	out := make([]chainResponse, len(all))
	for i, d := range all {
		out[i] = chainResponse{Descriptor: d, Configured: d.Configured()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chains": out})
}

// parseChains accepts a comma-separated list of chain ids or names. Unknown
// numeric ids pass through and fail per chain; unknown names are rejected.
func (h *handler) parseChains(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
			continue
		}
		d, err := h.svc.Registry().GetByName(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := discover.Kind(err)
	switch {
	case errors.Is(err, errBadRequest) || kind == chain.KindValidation:
		status = http.StatusBadRequest
		kind = chain.KindValidation
	case kind == chain.KindCanceled:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("writing response failed", "err", err)
	}
}
