package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/txscan/internal/api"
	"github.com/Mohsinsiddi/txscan/internal/config"
	"github.com/Mohsinsiddi/txscan/internal/logger"
)

var (
	serveAddr   string
	serveChains []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the discovery engine over HTTP",
	Long: `Run an HTTP API over the same discovery engine and cache as txs.

Endpoints:
  GET    /v1/transactions?address=0x..&chains=1,137&limit=10
  DELETE /v1/cache?address=0x..&chain=1
  GET    /v1/chains
  GET    /healthz
  GET    /metrics

Examples:
  txscan serve
  txscan serve --addr 127.0.0.1:9090 --chain ethereum,polygon`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}

		opts := api.Options{
			DefaultLimit: cfg.DefaultLimit,
			FetchTimeout: config.FetchTimeout,
		}
		if len(serveChains) > 0 {
			if opts.DefaultChains, err = resolveChains(reg, serveChains); err != nil {
				return err
			}
		}

		configured := 0
		for _, d := range reg.All() {
			if d.Configured() {
				configured++
			}
		}
		if configured == 0 {
			logger.Warn("no chain has an RPC endpoint configured, every request will fail")
		}

		h := api.NewHandler(newService(reg), opts)
		return api.Serve(cmd.Context(), api.NewServer(serveAddr, h))
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringSliceVar(&serveChains, "chain", nil, "chains used when a request names none (default: all)")
}
