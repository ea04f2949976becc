package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/config"
	"github.com/Mohsinsiddi/txscan/internal/discover"
	"github.com/Mohsinsiddi/txscan/internal/ens"
	"github.com/Mohsinsiddi/txscan/internal/logger"
	"github.com/Mohsinsiddi/txscan/internal/price"
	"github.com/Mohsinsiddi/txscan/internal/scan"
	"github.com/Mohsinsiddi/txscan/internal/ui"
)

var (
	txsChains      []string
	txsLimit       int
	txsInteractive bool
	txsJSON        bool
	txsLivePrices  bool
)

var txsCmd = &cobra.Command{
	Use:   "txs <address>",
	Short: "List recent transactions of an address",
	Long: `Scan the latest blocks of each requested chain for transactions sent or
received by <address> and list them newest first.

Only the most recent 1000 blocks per chain are examined. Results are cached
for two minutes per address and chain.

<address> may also be an ENS name, resolved through the Ethereum endpoint.

Examples:
  txscan txs 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045
  txscan txs vitalik.eth --chain all
  txscan txs 0xd8da... --chain polygon --limit 20
  txscan txs 0xd8da... --chain ethereum,137,arbitrum
  txscan txs 0xd8da... --chain all --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := strings.TrimSpace(args[0])
		if !ens.IsName(address) {
			if err := chain.ValidateAddress(address); err != nil {
				return err
			}
		}

		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if ens.IsName(address) {
			if address, err = resolveName(cmd.Context(), reg, address); err != nil {
				return err
			}
		}
		ids, err := resolveChains(reg, txsChains)
		if err != nil {
			return err
		}

		limit := cfg.DefaultLimit
		if cmd.Flags().Changed("limit") {
			limit = txsLimit
		}
		if limit < 1 {
			return discover.ErrInvalidLimit
		}

		svc := newService(reg)
		fetch := func() (*discover.Report, error) {
			ctx, cancel := context.WithTimeout(cmd.Context(), config.FetchTimeout)
			defer cancel()
			return svc.FetchReport(ctx, address, ids, limit)
		}

		var report *discover.Report
		if txsJSON {
			report, err = fetch()
		} else {
			spin := ui.NewSpinner(fmt.Sprintf("Scanning %s for the last %d transactions...", chainLabel(reg, ids), limit))
			spin.Start()
			report, err = fetch()
			spin.Stop()
		}
		if err != nil {
			return err
		}

		// A single requested chain has nothing to fall back on.
		if len(ids) == 1 {
			if failed := report.Failed(); len(failed) == 1 {
				return fmt.Errorf("%s: %w", chainLabel(reg, ids), failed[0].Err)
			}
		}

		out := cmd.OutOrStdout()
		if txsJSON {
			return writeReportJSON(out, report)
		}

		var opts []ui.TxOption
		if txsLivePrices {
			opts = append(opts, ui.WithPrices(livePrices(cmd.Context(), reg, report.Transactions)))
		}

		if txsInteractive {
			refresh := func() ([]scan.Record, error) {
				svc.EvictAddress(address, nil)
				r, err := fetch()
				if err != nil {
					return nil, err
				}
				return r.Transactions, nil
			}
			title := fmt.Sprintf("Recent transactions of %s", ui.TruncateAddr(address))
			return ui.RunTxList(title, report.Transactions, reg, refresh, opts...)
		}

		renderReport(out, reg, address, ids, report, time.Now(), opts...)
		return nil
	},
}

func init() {
	txsCmd.Flags().StringSliceVar(&txsChains, "chain", nil, "chains to scan: slug, id or \"all\" (repeatable, default: selected chain)")
	txsCmd.Flags().IntVar(&txsLimit, "limit", config.DefaultLimit, "maximum number of transactions")
	txsCmd.Flags().BoolVarP(&txsInteractive, "interactive", "i", false, "browse results in an interactive list")
	txsCmd.Flags().BoolVar(&txsJSON, "json", false, "print JSON instead of a table")
	txsCmd.Flags().BoolVar(&txsLivePrices, "live-prices", false, "value amounts at CoinGecko prices instead of a fixed estimate")
	txsCmd.MarkFlagsMutuallyExclusive("interactive", "json")
}

// renderReport prints the transaction table and a warning line per failed chain.
func renderReport(w io.Writer, reg *chain.Registry, address string, ids []int64, report *discover.Report, now time.Time, opts ...ui.TxOption) {
	if len(report.Transactions) == 0 {
		fmt.Fprintln(w, ui.Meta("No transactions found in the most recent blocks."))
	} else {
		t, _ := ui.TxTable(report.Transactions, reg, opts...)
		newest := report.Transactions[0].Timestamp
		fmt.Fprintf(w, "%s  %s\n\n", ui.StyleTitle.Render("Recent Transactions"),
			ui.Meta(fmt.Sprintf("(%s, newest %s)", chainLabel(reg, ids), ui.FormatAge(newest, now))))
		fmt.Fprintln(w, t.Render())
	}

	for _, c := range report.Failed() {
		fmt.Fprintln(w, ui.ChainErrorLine(c.ChainName, c.ChainID, chain.UserMessage(c.Err)))
	}

	if len(ids) == 1 {
		if d, ok := reg.Describe(ids[0]); ok && d.Explorer != "" {
			fmt.Fprintln(w, ui.Hint("Explorer: "+d.AddressURL(chain.NormalizeAddress(address))))
		}
	}
}

type reportJSON struct {
	Transactions []scan.Record    `json:"transactions"`
	Errors       map[string]string `json:"errors,omitempty"`
}

func writeReportJSON(w io.Writer, report *discover.Report) error {
	out := reportJSON{Transactions: report.Transactions}
	if out.Transactions == nil {
		out.Transactions = []scan.Record{}
	}
	for _, c := range report.Failed() {
		if out.Errors == nil {
			out.Errors = make(map[string]string)
		}
		out.Errors[strconv.FormatInt(c.ChainID, 10)] = chain.UserMessage(c.Err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// resolveName turns an ENS name into an address using the Ethereum endpoint.
func resolveName(ctx context.Context, reg *chain.Registry, name string) (string, error) {
	d, _ := reg.Describe(1)
	client, err := chain.NewClient(d, chain.WithRateLimit(cfg.RPCRateLimit))
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, config.PingTimeout)
	defer cancel()
	addr, err := ens.Resolve(ctx, client, name)
	if errors.Is(err, ens.ErrNotFound) {
		return "", fmt.Errorf("%w: %w", chain.ErrInvalidAddress, err)
	}
	if err != nil {
		return "", err
	}
	logger.Debug("ens name resolved", "name", name, "address", addr)
	return addr, nil
}

// livePrices quotes the native currencies of records. On failure the table
// falls back to the fixed estimate.
func livePrices(ctx context.Context, reg *chain.Registry, records []scan.Record) ui.Prices {
	seen := make(map[string]bool)
	var symbols []string
	for _, r := range records {
		d, _ := reg.Describe(r.ChainID)
		sym := d.NativeCurrency.Symbol
		if sym == "" {
			sym = "ETH"
		}
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, config.PriceTimeout)
	defer cancel()
	prices, err := price.NewFetcher("usd", price.WithBaseURL(envCfg.PriceAPIURL)).Prices(ctx, symbols)
	if err != nil {
		logger.Warn("live prices unavailable, using fixed estimate", "err", err)
		return nil
	}
	logger.Debug("live prices", "symbols", symbols, "quoted", len(prices))
	return ui.Prices(prices)
}

// chainLabel is a short human list of chain names.
func chainLabel(reg *chain.Registry, ids []int64) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if d, ok := reg.Describe(id); ok {
			names = append(names, d.DisplayName)
			continue
		}
		names = append(names, "chain "+strconv.FormatInt(id, 10))
	}
	if len(names) > 3 {
		return fmt.Sprintf("%s +%d more", strings.Join(names[:3], ", "), len(names)-3)
	}
	return strings.Join(names, ", ")
}
