package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/carbonledger/internal/allocation"
	"github.com/roach88/carbonledger/internal/ledger"
)

// SeedResult is the JSON payload of the seed command.
type SeedResult struct {
	Registered []ledger.Entity `json:"registered"`
	Skipped    []string        `json:"skipped"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <allocations.cue>",
		Short: "Register companies from a CUE allocation file",
		Long: `Register every company declared in a CUE allocation file:

  allocations: {
    Acme:   {allowed: 100}
    Globex: {allowed: 50}
  }

Companies that are already registered are skipped, so seeding is safe
to repeat. Any other failure stops the run.

Examples:
  carbonledger seed allocations.cue`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			allocs, err := allocation.Load(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid allocation file", err)
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			rep, err := allocation.Seed(cmd.Context(), s, allocs)
			if err != nil {
				return seedFailure(s.out, rep, err)
			}
			return s.out.Success(newSeedResult(rep), seedText(rep))
		},
	}
}

// SeedFailure is the JSON error detail of a seed run that stopped
// partway. Companies registered before the failure stay registered.
type SeedFailure struct {
	ErrorDetails
	SeedResult
}

func newSeedResult(rep allocation.Report) SeedResult {
	result := SeedResult{Registered: rep.Registered, Skipped: rep.Skipped}
	if result.Registered == nil {
		result.Registered = []ledger.Entity{}
	}
	if result.Skipped == nil {
		result.Skipped = []string{}
	}
	return result
}

// seedFailure reports err together with the progress made before it.
func seedFailure(out *OutputFormatter, rep allocation.Report, err error) error {
	if out.Format != "json" {
		fmt.Fprint(out.Writer, seedLines(rep))
		fmt.Fprintf(out.Writer, "Seeded %d companies, skipped %d before failing\n", len(rep.Registered), len(rep.Skipped))
	}
	return out.ledgerError(err, SeedFailure{
		ErrorDetails: ledgerDetails(err),
		SeedResult:   newSeedResult(rep),
	})
}

func seedText(rep allocation.Report) string {
	return seedLines(rep) + fmt.Sprintf("Seeded %d companies, skipped %d", len(rep.Registered), len(rep.Skipped))
}

func seedLines(rep allocation.Report) string {
	var b strings.Builder
	for _, e := range rep.Registered {
		fmt.Fprintf(&b, "✓ %s (allowed %d)\n", e.Name, e.AllowedEmissions)
	}
	for _, name := range rep.Skipped {
		fmt.Fprintf(&b, "- %s (already registered)\n", name)
	}
	return b.String()
}
