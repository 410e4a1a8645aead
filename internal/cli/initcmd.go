package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/railhead-io/railhead/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default railhead.yaml configuration",
	Long: `Write a railhead.yaml with commented defaults to the current
directory. Edit the database, provider and scheduler sections, then
load fixtures with 'railhead seed'.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = "railhead.yaml"
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printSuccess("Wrote " + path)
	printSubtle("Next: configure database.dsn and providers, then 'railhead seed'")
	return nil
}
