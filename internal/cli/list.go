package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/carbonledger/internal/ledger"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered company",
		Long: `List every registered company in registration order.

Examples:
  carbonledger list
  carbonledger list --format json`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			entities, err := s.Entities(cmd.Context())
			if err != nil {
				return s.out.LedgerError(err)
			}
			return s.out.Success(entities, renderTable(entities))
		},
	}
}

// renderTable formats entities with the columns of the interactive menu.
func renderTable(entities []ledger.Entity) string {
	if len(entities) == 0 {
		return "No companies registered."
	}

	var buf bytes.Buffer
	writeTable(&buf, entities)
	return strings.TrimRight(buf.String(), "\n")
}

func writeTable(w io.Writer, entities []ledger.Entity) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Company\tAllowed Emissions\tActual Emissions\tCredits")
	for _, e := range entities {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", e.Name, e.AllowedEmissions, e.ActualEmissions, e.Credits)
	}
	tw.Flush()
}
