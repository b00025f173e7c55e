package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewEmissionsCommand creates the emissions command.
func NewEmissionsCommand(rootOpts *RootOptions) *cobra.Command {
	return valueCommand(&cobra.Command{
		Use:   "emissions <name> <actual>",
		Short: "Record a company's actual emissions",
		Long: `Record the actual emissions (in tons) of a registered company.

Credits are recomputed as allowed minus actual and may go negative.
Credits bought or sold earlier are not carried over.

Examples:
  carbonledger emissions Acme 40`,
		Args:          usageArgs(cobra.ExactArgs(2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			actual, err := parseAmount("actual", args[1])
			if err != nil {
				return err
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.RecordEmissions(cmd.Context(), args[0], actual)
			if err != nil {
				return s.out.LedgerError(err)
			}
			return s.out.Success(e, fmt.Sprintf("✓ Emissions updated for '%s'. Remaining credits: %d", e.Name, e.Credits))
		},
	})
}
