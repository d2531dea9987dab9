package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var toolsFormat string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the aggregated tool declarations",
	Long: `Print the function declarations of every registered tool, in
registration order, exactly as they are sent in the session setup frame.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsFormat, "format", "json", "output format (json, yaml)")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	if toolsFormat != "json" && toolsFormat != "yaml" {
		return fmt.Errorf("unsupported format: %s (must be json or yaml)", toolsFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	return writeDeclarations(cmd.OutOrStdout(), rt.manager.Declarations(), toolsFormat)
}

// writeDeclarations renders decls as {"functionDeclarations": [...]}.
func writeDeclarations(w io.Writer, decls []toolmanager.Declaration, format string) error {
	doc := struct {
		FunctionDeclarations []toolmanager.Declaration `json:"functionDeclarations"`
	}{FunctionDeclarations: decls}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode declarations: %w", err)
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	// Round-trip through JSON so YAML keys match the wire names
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to encode declarations: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("failed to encode declarations: %w", err)
	}
	return enc.Close()
}
