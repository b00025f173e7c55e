package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <name>",
		Short:         "Show one company",
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.Get(cmd.Context(), args[0])
			if err != nil {
				return s.out.LedgerError(err)
			}
			return s.out.Success(e, fmt.Sprintf(
				"Company:           %s\nAllowed Emissions: %d\nActual Emissions:  %d\nCredits:           %d",
				e.Name, e.AllowedEmissions, e.ActualEmissions, e.Credits))
		},
	}
}
