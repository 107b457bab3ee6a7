package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/lightfield-labs/prism/internal/services"
	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Show the effective configuration after merging defaults, the config
file, and PRISM_* environment variables. The compute token is redacted.

Example:
  prism config`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	config, err := services.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	if config.Compute.Token != "" {
		config.Compute.Token = "[redacted]"
	}

	if path := services.GetConfigFilePath(); path != "" {
		fmt.Printf("Config file: %s\n\n", path)
	} else {
		fmt.Printf("Config file: (none, defaults and environment only)\n\n")
	}

	out, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
