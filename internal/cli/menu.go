package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewMenuCommand creates the interactive menu command.
func NewMenuCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive carbon credit trading menu",
		Long: `Run the interactive menu on stdin/stdout.

Each choice runs one ledger operation against the configured store.
Rejected operations are reported and the menu continues. End of input
exits like choice 5.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			m := &menu{
				session: s,
				in:      bufio.NewScanner(cmd.InOrStdin()),
				out:     cmd.OutOrStdout(),
			}
			return m.run(cmd.Context())
		},
	}
}

type menu struct {
	session *session
	in      *bufio.Scanner
	out     io.Writer
}

func (m *menu) run(ctx context.Context) error {
	for {
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, "Carbon Credit Trading System")
		fmt.Fprintln(m.out, "1. Register Company")
		fmt.Fprintln(m.out, "2. Update Emissions")
		fmt.Fprintln(m.out, "3. Trade Credits")
		fmt.Fprintln(m.out, "4. Display Companies")
		fmt.Fprintln(m.out, "5. Exit")

		choice, ok := m.prompt("Enter choice: ")
		if !ok {
			break
		}

		var err error
		switch choice {
		case "1":
			err = m.register(ctx)
		case "2":
			err = m.emissions(ctx)
		case "3":
			err = m.trade(ctx)
		case "4":
			err = m.display(ctx)
		case "5":
			fmt.Fprintln(m.out, "Exiting...")
			return nil
		default:
			fmt.Fprintln(m.out, "✗ Invalid Choice! Try again.")
			continue
		}
		if errors.Is(err, errEndOfInput) {
			break
		}
		if err != nil {
			fmt.Fprintf(m.out, "✗ %v\n", err)
		}
	}
	fmt.Fprintln(m.out, "Exiting...")
	return m.in.Err()
}

var errEndOfInput = errors.New("end of input")

func (m *menu) register(ctx context.Context) error {
	name, ok := m.prompt("Enter Company Name: ")
	if !ok {
		return errEndOfInput
	}
	allowed, ok := m.promptInt("Enter Allowed Emissions (in tons): ")
	if !ok {
		return errEndOfInput
	}
	e, err := m.session.Register(ctx, name, allowed)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "✓ Company '%s' registered successfully!\n", e.Name)
	return nil
}

func (m *menu) emissions(ctx context.Context) error {
	name, ok := m.prompt("Enter Company Name: ")
	if !ok {
		return errEndOfInput
	}
	actual, ok := m.promptInt("Enter Actual Emissions (in tons): ")
	if !ok {
		return errEndOfInput
	}
	e, err := m.session.RecordEmissions(ctx, name, actual)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "✓ Emissions updated for '%s'. Remaining credits: %d\n", e.Name, e.Credits)
	return nil
}

func (m *menu) trade(ctx context.Context) error {
	seller, ok := m.prompt("Enter Seller Company Name: ")
	if !ok {
		return errEndOfInput
	}
	buyer, ok := m.prompt("Enter Buyer Company Name: ")
	if !ok {
		return errEndOfInput
	}
	amount, ok := m.promptInt("Enter Credits to Trade: ")
	if !ok {
		return errEndOfInput
	}
	t, err := m.session.Transfer(ctx, seller, buyer, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "✓ %s sold %d credits to %s.\n", t.Seller.Name, t.Amount, t.Buyer.Name)
	return nil
}

func (m *menu) display(ctx context.Context) error {
	entities, err := m.session.Entities(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, renderTable(entities))
	return nil
}

// prompt writes label and returns the next trimmed input line. It
// reports false at end of input.
func (m *menu) prompt(label string) (string, bool) {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		fmt.Fprintln(m.out)
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

// promptInt re-prompts until the line parses as an integer.
func (m *menu) promptInt(label string) (int64, bool) {
	for {
		line, ok := m.prompt(label)
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseInt(line, 10, 64)
		if err == nil {
			return v, true
		}
		fmt.Fprintf(m.out, "✗ %q is not a whole number! Try again.\n", line)
	}
}
