package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "solrmcp",
	Short:   "SQL and vector search over Solr collections, exposed over MCP",
	Version: version,
	Long: `solrmcp mediates SQL-like SELECT statements against a Solr cluster,
optionally filtered by vector similarity via a local embedding model,
and exposes the query operations as MCP tools.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(collectionsCmd)
	rootCmd.AddCommand(fieldsCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(semanticCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
