/*
Copyright © 2026 Prism Contributors

Prism drives GPU scene-reconstruction pipelines on a remote compute platform.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "Prism - GPU scene reconstruction pipeline CLI",
	Long: `Prism orchestrates multi-stage scene reconstruction on a remote,
ephemeral GPU compute platform.

The pipeline runs three stages, each a named remote function:
  - reconstruction: camera-pose recovery from the uploaded images
  - training:       scene model training
  - rendering:      batched frame rendering

Stage job ids chain off the upload's root id, so any stage can be
started, polled, or retried knowing only the upstream job id.

Example:
  prism pipeline reconstruct <upload-id>
  prism pipeline train reconstruction_<root>
  prism pipeline render train_<root> --frames 1440
  prism pipeline watch render_<root>
  prism job list`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./prism.yaml, ~/.config/prism/prism.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.SetVersionTemplate("Prism version {{.Version}}\n")
}
