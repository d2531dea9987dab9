package cli

import (
	"errors"
	"fmt"

	"github.com/harun/daisy/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up Daisy.
The wizard walks through the model, gateway, email and logging settings and
writes the config file. API keys and passwords are read from the environment
and are never written to disk.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	base, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	wizard := config.NewWizardWithIO(cmd.InOrStdin(), cmd.OutOrStdout())
	cfg, err := wizard.Run(base)
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "\nList the available tools with: daisy tools")

	return nil
}
