// Indexd is a multi-tenant document indexing and retrieval daemon.
//
// It extracts text from stored documents, chunks and embeds it, keeps the
// ground truth in Postgres, mirrors embeddings into Qdrant, and serves
// semantic search over HTTP with background work running on JetStream.
//
// Usage:
//
//	# Start the daemon with defaults
//	indexd serve
//
//	# Use a config file
//	indexd serve --config /etc/indexd/config.yaml
//
//	# Queue every unindexed document
//	indexd backfill
//
//	# Rebuild one tenant's vector partition from the ground truth
//	indexd rebuild --tenant 42
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "indexd",
	Short: "Multi-tenant document indexing and semantic search daemon",
	Long: `indexd indexes stored documents into a per-tenant vector index and
serves semantic search over HTTP. Postgres holds the ground truth;
the vector index can always be rebuilt from it.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("indexd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
