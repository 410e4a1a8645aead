package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
)

var machineJSON bool

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Print the pipeline state machine",
	Long: `Print the release pipeline's state machine definition.

With --json the definition is emitted as XState-compatible JSON, which
can be pasted into the XState visualizer to inspect states, events and
transitions.`,
	RunE: runMachine,
}

func init() {
	rootCmd.AddCommand(machineCmd)
	machineCmd.Flags().BoolVar(&machineJSON, "json", false, "emit XState-compatible JSON")
}

func runMachine(cmd *cobra.Command, args []string) error {
	m, err := pipeline.NewMachine()
	if err != nil {
		return err
	}
	raw, err := m.ExportXStateJSON()
	if err != nil {
		return err
	}
	if machineJSON {
		fmt.Println(string(raw))
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return err
	}
	printTitle("Release pipeline state machine")
	fmt.Println(pretty.String())
	return nil
}
