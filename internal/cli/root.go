// Package cli implements the ideaforge command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ideaforge/ideaforge/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ideaforge",
	Short: "Credit-metered business idea analysis",
	Long: `IdeaForge turns a business idea into structured analysis documents:
market analysis, SWOT, pitch deck, financial projections, and more.
Each generation costs credits, debited before the generator is called.

Run 'ideaforge serve' to start the API server, then use the credits,
features, and ideas commands against it or directly against the local store.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configured or default config file.
func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}
