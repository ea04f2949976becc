package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/ui"
)

var checksumCmd = &cobra.Command{
	Use:   "checksum <address>",
	Short: "Validate an address and print its EIP-55 checksum form",
	Long: `Check that an address is accepted by txs and print its EIP-55
checksummed form.

Examples:
  txscan checksum 0xd8da6bf26964af9d7eed9e03e53415d37aa96045
  txscan checksum 0xD8DA6BF26964AF9D7EED9E03E53415D37AA96045`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := strings.TrimSpace(args[0])
		pairs, err := checksumReport(input)
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("EIP-55 Checksum", pairs))
		return err
	},
}

// checksumReport describes input and returns the validation error, if any.
func checksumReport(input string) ([][2]string, error) {
	pairs := [][2]string{{"Input", input}}

	if err := chain.ValidateAddress(input); err != nil {
		if strings.Contains(err.Error(), "bad checksum") {
			pairs = append(pairs,
				[2]string{"Checksummed", ui.Addr(chain.ToChecksumAddress(input))},
				[2]string{"Valid", ui.Err("checksum mismatch")},
			)
		} else {
			pairs = append(pairs, [2]string{"Valid", ui.Err("not an address")})
		}
		return pairs, err
	}

	checksummed := chain.ToChecksumAddress(input)
	pairs = append(pairs, [2]string{"Checksummed", ui.Addr(checksummed)})
	if input == checksummed {
		pairs = append(pairs, [2]string{"Valid", ui.Success("address is correctly checksummed")})
	} else {
		pairs = append(pairs, [2]string{"Valid", ui.Warn("valid address but not checksummed")})
	}
	return pairs, nil
}
