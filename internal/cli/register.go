package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	return valueCommand(&cobra.Command{
		Use:   "register <name> <allowed>",
		Short: "Register a company with its allowed emissions",
		Long: `Register a new company. Its credits start equal to the allowed
emissions (in tons).

Examples:
  carbonledger register Acme 100
  carbonledger register --format json "Initech Ltd" 0
  carbonledger register Initech -5      # rejected: allowed must be >= 0`,
		Args:          usageArgs(cobra.ExactArgs(2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			allowed, err := parseAmount("allowed", args[1])
			if err != nil {
				return err
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.Register(cmd.Context(), args[0], allowed)
			if err != nil {
				return s.out.LedgerError(err)
			}
			return s.out.Success(e, fmt.Sprintf("✓ Company '%s' registered successfully!", e.Name))
		},
	})
}

// parseAmount parses an integer argument. Sign checks are left to the
// ledger so the CLI reports the same errors as every other caller.
func parseAmount(field, arg string) (int64, error) {
	v, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, NewExitError(ExitCommandError,
			fmt.Sprintf("%s must be an integer, got %q", field, arg))
	}
	return v, nil
}
