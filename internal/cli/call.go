package cli

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/spf13/cobra"
)

var (
	callArgs string
	callID   string
)

var callCmd = &cobra.Command{
	Use:   "call <name>",
	Short: "Dispatch one tool call and print the response envelope",
	Long: `Dispatch a single function call through the tool manager, the same
way a model session would, and print the functionResponses envelope.
Tool failures are reported inside the envelope, not as a command error.`,
	Example: `  daisy call scribeGenerator --args '{"patientName":"Ana","age":"34","chiefComplaint":"cough"}'
  daisy call getWeather --args '{"location":"Jakarta"}' --id call-1`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callArgs, "args", "{}", "call arguments as a JSON object")
	callCmd.Flags().StringVar(&callID, "id", "", "call id (random when empty)")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	var callArgsMap map[string]any
	if err := json.Unmarshal([]byte(callArgs), &callArgsMap); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}
	id := callID
	if id == "" {
		id = uuid.NewString()
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

	ctx, cancel := withTimeout(cmd.Context(), cfg.Tools.CallTimeout())
	defer cancel()

	resp := rt.manager.Dispatch(ctx, toolmanager.Call{Name: args[0], Args: callArgsMap, ID: id})

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
