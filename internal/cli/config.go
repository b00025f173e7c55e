package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/carbonledger/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigSchemaCommand())
	cmd.AddCommand(newConfigShowCommand(rootOpts))
	return cmd
}

func newConfigSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "schema",
		Short:         "Print the JSON schema of the config file",
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Schema()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to generate schema", err)
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	}
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and
command-line flags have been applied.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(rootOpts)
			if err != nil {
				return err
			}

			out := &OutputFormatter{Format: cfg.Output, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to render config", err)
			}
			return out.Success(cfg, string(data))
		},
	}
}
