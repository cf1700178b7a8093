package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "careledger",
	Short: "Time-aware medical record memory",
	Long:  "CareLedger stores per-patient records with embeddings and retrieves them with time-aware, reinforcement-weighted ranking. Single Go binary.",
}

var configPath string

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(timelineCmd)
}
