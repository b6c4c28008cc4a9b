package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sable-search",
		Short: "Sable Search - embedded hybrid document retrieval",
		Long: `Sable Search is an embedded document retrieval engine combining
full-text and semantic search over SQLite, with query analysis,
strategy planning and result optimization.

Run 'sable-search collection create' to set up a collection,
'sable-search ingest' to add documents, and 'sable-search search'
to query them.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "JSON output")

	rootCmd.AddCommand(
		searchCmd(),
		ingestCmd(),
		collectionCmd(),
		queueCmd(),
		workerCmd(),
		evaluateCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sable-search %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
