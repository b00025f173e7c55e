package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTradeCommand creates the trade command.
func NewTradeCommand(rootOpts *RootOptions) *cobra.Command {
	return valueCommand(&cobra.Command{
		Use:   "trade <seller> <buyer> <amount>",
		Short: "Move credits from one company to another",
		Long: `Transfer credits from seller to buyer in one atomic step.

The trade is rejected when the seller holds fewer credits than the
amount; neither balance changes in that case.

Examples:
  carbonledger trade Acme Globex 30`,
		Args:          usageArgs(cobra.ExactArgs(3)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("amount", args[2])
			if err != nil {
				return err
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := s.Transfer(cmd.Context(), args[0], args[1], amount)
			if err != nil {
				return s.out.LedgerError(err)
			}
			return s.out.Success(t, fmt.Sprintf("✓ %s sold %d credits to %s.", t.Seller.Name, t.Amount, t.Buyer.Name))
		},
	})
}
