package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/config"
	"github.com/Mohsinsiddi/txscan/internal/rpc"
	"github.com/Mohsinsiddi/txscan/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"list"},
	Short:   "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs := make([][2]string, 0, len(config.Keys)+1)
		for _, key := range config.Keys {
			v, err := cfg.Get(key)
			if err != nil {
				return err
			}
			if v == "" {
				v = "-"
			}
			pairs = append(pairs, [2]string{key, v})
		}
		pairs = append(pairs, [2]string{"chains file", cfg.ChainsPath()})

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.KeyValueBlock("Current Configuration", pairs))

		stored, err := openStore(cfg.Dir()).Endpoints()
		if err != nil {
			fmt.Fprintln(out, ui.Warn(err.Error()))
		} else if len(stored) > 0 {
			reg, err := chain.LoadRegistryFile(chain.NewRegistry(), cfg.ChainsPath())
			if err != nil {
				return err
			}
			keyPairs := make([][2]string, 0, len(stored))
			for _, id := range reg.List() {
				if url, ok := stored[id]; ok {
					d, _ := reg.Describe(id)
					keyPairs = append(keyPairs, [2]string{d.Name, rpc.MaskURL(url)})
				}
			}
			fmt.Fprintln(out, ui.KeyValueBlock("Keychain Endpoints", keyPairs))
		}

		fmt.Fprintln(out, ui.Meta("Config directory: "+cfg.Dir()))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set one of: selected_chain, default_limit, rpc_rate_limit, chains_file.

selected_chain accepts a chain slug or id.

Examples:
  txscan config set default_limit 25
  txscan config set rpc_rate_limit 5
  txscan config set selected_chain polygon`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if key == "selected_chain" {
			d, err := configChain(value)
			if err != nil {
				return err
			}
			value = strconv.FormatInt(d.ID, 10)
		}
		if err := cfg.Set(key, value); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("%s set to %q", key, value)))
		return nil
	},
}

var configSetRPCCmd = &cobra.Command{
	Use:   "set-rpc <chain> <url>",
	Short: "Store the RPC endpoint of a chain in the OS keychain",
	Long: `Store the RPC endpoint URL of a chain in the OS keychain. Provider URLs
usually embed an API key, so they are never written to config.json.
Environment variables still take precedence.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := configChain(args[0])
		if err != nil {
			return err
		}
		if err := openStore(cfg.Dir()).SetEndpoint(d.ID, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("RPC for %s set to %s", ui.ChainName(d.DisplayName), rpc.MaskURL(args[1]))))
		return nil
	},
}

var configUnsetRPCCmd = &cobra.Command{
	Use:   "unset-rpc <chain>",
	Short: "Remove the stored RPC endpoint of a chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := configChain(args[0])
		if err != nil {
			return err
		}
		if err := openStore(cfg.Dir()).DeleteEndpoint(d.ID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("RPC for %s removed", ui.ChainName(d.DisplayName))))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetRPCCmd, configUnsetRPCCmd)
}

// configChain resolves a chain without attaching endpoints, so editing the
// keychain never requires reading it first.
func configChain(name string) (chain.Descriptor, error) {
	reg, err := chain.LoadRegistryFile(chain.NewRegistry(), cfg.ChainsPath())
	if err != nil {
		return chain.Descriptor{}, err
	}
	d, err := reg.GetByName(name)
	if errors.Is(err, chain.ErrChainNotFound) {
		return chain.Descriptor{}, fmt.Errorf("unknown chain %q, run `txscan chains list` to see all chains", name)
	}
	return d, err
}
