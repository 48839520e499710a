// Package cmd implements the heatmap command line.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/exec-heatmap/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string
	logger     utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "A runtime execution heatmap profiler",
	Long: `heatmap records how many times each source line executes while a target
program runs and serves the aggregated counts over HTTP.

Events arrive as explicit file:line calls, as stack traces, or as generated
code positions that are mapped back to original sources through source maps.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	binName := BinName()
	rootCmd.Example = `  # Start the agent with defaults (port 9999, source maps under ./dist)
  ` + binName + ` serve

  # Start with a config file and watch source maps for changes
  ` + binName + ` serve -c ./heatmap.yaml --watch

  # Show the hottest lines of a running agent
  ` + binName + ` top --addr http://localhost:9999 -n 20

  # Inspect a source map
  ` + binName + ` decode ./dist/app.js.map`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	if logger == nil {
		return &utils.NullLogger{}
	}
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
