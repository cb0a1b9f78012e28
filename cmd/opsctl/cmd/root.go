// Package cmd contains the CLI commands for opsctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/opswatch/internal/storage"
)

var (
	// Used for flags
	verbose bool
	output  string
	dbPath  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "opsctl",
	Short: "opsctl - opswatch operations toolbox",
	Long: `opsctl operates directly on the opswatch control-plane database.
It is intended for operators and administrators to inspect alert
states and manage incident cases outside the HTTP API.

Examples:
  # Show current alert states and recent transition events
  opsctl status --db data/opswatch.db

  # List open cases
  opsctl case list --db data/opswatch.db --status open

  # Claim a case
  opsctl case claim alert-rag_red --db data/opswatch.db --user jdoe --ops`,
	Run: func(cmd *cobra.Command, args []string) {
		// Show help by default
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "data/opswatch.db", "control-plane database path")
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintError prints an error message and exits if fatal is true.
func PrintError(msg string, fatal bool) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	if fatal {
		os.Exit(1)
	}
}

// openDatabase opens the control-plane store for direct access.
func openDatabase(path string) (*storage.SQLiteStorage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found at %s", path)
	}
	store := storage.NewSQLiteStorage(path)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}
