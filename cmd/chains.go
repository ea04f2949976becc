package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/rpc"
	"github.com/Mohsinsiddi/txscan/internal/ui"
)

var chainsCmd = &cobra.Command{
	Use:     "chains",
	Aliases: []string{"network"},
	Short:   "Manage supported chains",
}

var chainsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered chains and their endpoint status",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		selected := selectedChain(reg)

		rows := make([]ui.ChainRow, 0, len(reg.List()))
		configured := 0
		for _, d := range reg.All() {
			if d.Configured() {
				configured++
			}
			rows = append(rows, ui.ChainRow{
				Descriptor: d,
				Endpoint:   rpc.MaskURL(d.EndpointURL),
				Selected:   d.ID == selected.ID,
			})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.ChainTable(rows).Render())
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d chains, %d configured, * = selected", len(rows), configured)))
		if configured == 0 {
			fmt.Fprintln(out, ui.Hint("Set TXSCAN_ETHEREUM_RPC_URL or run `txscan config set-rpc <chain> <url>`"))
		}
		return nil
	},
}

var chainsUseCmd = &cobra.Command{
	Use:   "use <chain>",
	Short: "Set the chain txs scans by default",
	Long: `Persist the selected chain to config.json. txs uses it when no --chain is given.

Examples:
  txscan chains use polygon
  txscan chains use 42161`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		d, err := reg.GetByName(args[0])
		if err != nil {
			if errors.Is(err, chain.ErrChainNotFound) {
				return fmt.Errorf("unknown chain %q, run `txscan chains list` to see all chains", args[0])
			}
			return err
		}

		cfg.SelectedChain = d.ID
		if err := cfg.Save(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Selected chain set to %s (%d)", ui.ChainName(d.DisplayName), d.ID)))
		if !d.Configured() {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Warn("no RPC endpoint configured for this chain yet"))
		}
		return nil
	},
}

func init() {
	chainsCmd.AddCommand(chainsListCmd, chainsUseCmd)
}

// splitList flattens repeated and comma separated flag values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
