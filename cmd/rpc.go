package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/config"
	"github.com/Mohsinsiddi/txscan/internal/rpc"
	"github.com/Mohsinsiddi/txscan/internal/ui"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Inspect RPC endpoints",
}

var rpcCheckCmd = &cobra.Command{
	Use:   "check [chain...]",
	Short: "Ping the endpoint of each chain and report latency",
	Long: `Ping every chain's endpoint once (or only the chains named) and report
latency and head block, fastest first.

Examples:
  txscan rpc check
  txscan rpc check ethereum polygon`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}

		descs := reg.All()
		if len(args) > 0 {
			ids, err := resolveChains(reg, args)
			if err != nil {
				return err
			}
			descs = descs[:0]
			for _, id := range ids {
				d, _ := reg.Describe(id)
				descs = append(descs, d)
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n\n", ui.StyleTitle.Render(fmt.Sprintf("Checking %d endpoints...", len(descs))))

		ctx, cancel := context.WithTimeout(cmd.Context(), config.PingTimeout+5*time.Second)
		defer cancel()

		results := rpc.ByLatency(rpc.CheckChains(ctx, descs, config.PingTimeout, chain.WithRateLimit(cfg.RPCRateLimit)))
		fmt.Fprintln(out, healthTable(results).Render())

		healthy := 0
		for _, r := range results {
			if r.Healthy {
				healthy++
			}
		}
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d of %d healthy", healthy, len(results))))
		return nil
	},
}

func init() {
	rpcCmd.AddCommand(rpcCheckCmd)
}

func healthTable(results []rpc.Endpoint) *ui.Table {
	t := ui.NewTable([]ui.Column{
		{Title: "CHAIN", Width: 14},
		{Title: "ENDPOINT", Width: 36},
		{Title: "LATENCY", Width: 10},
		{Title: "BLOCK #", Width: 12},
		{Title: "STATUS", Width: 40},
	})

	for _, r := range results {
		latency, block := "-", "-"
		var status string
		switch {
		case !r.Configured:
			status = ui.Meta("not configured")
		case r.Err != nil:
			status = ui.Err(chain.UserMessage(r.Err))
		default:
			status = ui.Success("healthy")
			latency = fmt.Sprintf("%dms", r.Latency.Milliseconds())
			block = strconv.FormatUint(r.BlockNumber, 10)
		}
		t.AddRow(ui.Row{r.ChainName, r.URL, latency, block, status})
	}
	return t
}
