package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/solrmcp/internal/config"
	"github.com/kalambet/solrmcp/internal/indexer"
	"github.com/kalambet/solrmcp/internal/ollama"
	"github.com/kalambet/solrmcp/internal/solr"
)

// newQueryClient builds the query pipeline client from loaded config.
func newQueryClient(cfg config.Config) *solr.Client {
	embedder := ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel, cfg.Solr.ConnectionTimeout)
	return solr.NewClient(solr.Options{
		BaseURL: cfg.Solr.BaseURL,
		Timeout: cfg.Solr.ConnectionTimeout,
		ZKHosts: cfg.Solr.ZKHosts,
	}, embedder)
}

// printResultSet writes rows as indented JSON to stdout and a summary line
// to stderr. The terminal marker row is not printed.
func printResultSet(rs *solr.ResultSet) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs.Rows()); err != nil {
		return err
	}
	printStatus("Found", "%d", rs.NumFound)
	return nil
}

// --- collections ---

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections in the cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := newQueryClient(cfg)

		names, err := client.ListCollections(cmd.Context())
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No collections found.")
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

// --- fields ---

var fieldsCmd = &cobra.Command{
	Use:   "fields <collection>",
	Short: "List fields of a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := newQueryClient(cfg)

		fields, err := client.ListFields(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, f := range fields {
			var flags []string
			if f.Indexed {
				flags = append(flags, "indexed")
			}
			if f.Stored {
				flags = append(flags, "stored")
			}
			if f.DocValues {
				flags = append(flags, "docValues")
			}
			if f.MultiValued {
				flags = append(flags, "multiValued")
			}
			if f.Vector {
				flags = append(flags, "vector")
			}
			fmt.Printf("%s  %s  [%s]\n",
				colorize(colorBold, f.Name), f.Type, strings.Join(flags, " "))
		}
		return nil
	},
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Execute a SQL SELECT against a collection",
	Long: `Execute a SQL SELECT against a collection.

Examples:
  solrmcp query "SELECT id, title FROM docs WHERE title = 'intro' LIMIT 5"
  solrmcp query "SELECT * FROM docs ORDER BY views desc LIMIT 20 OFFSET 20"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := newQueryClient(cfg)

		rs, err := client.Select(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printResultSet(rs)
	},
}

// --- semantic ---

var semanticCmd = &cobra.Command{
	Use:   "semantic <sql>",
	Short: "Execute a SQL SELECT filtered by semantic similarity to text",
	Long: `Execute a SQL SELECT filtered by semantic similarity to free text.
The text is embedded with the configured model and the nearest documents
constrain the SQL result.

Example:
  solrmcp semantic "SELECT id, title FROM docs LIMIT 5" --text "distributed consensus"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		field, _ := cmd.Flags().GetString("field")
		if text == "" {
			return fmt.Errorf("--text is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := newQueryClient(cfg)

		rs, err := client.SemanticSelect(cmd.Context(), strings.Join(args, " "), text, field)
		if err != nil {
			return err
		}
		return printResultSet(rs)
	},
}

func init() {
	semanticCmd.Flags().String("text", "", "free text to embed and search by")
	semanticCmd.Flags().String("field", "", "dense-vector field (auto-detected when omitted)")
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <collection>",
	Short: "Return the documents nearest to free text",
	Long: `Return the documents of a collection nearest to free text, ranked by
vector similarity. Unlike "semantic", no SQL statement is involved: the
KNN hits themselves are the result, and the found count is the backend's
total for the search.

Example:
  solrmcp search docs --text "distributed consensus" --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		field, _ := cmd.Flags().GetString("field")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		if text == "" {
			return fmt.Errorf("--text is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := newQueryClient(cfg)

		rs, err := client.SemanticSearch(cmd.Context(), args[0], text, field, limit, offset)
		if err != nil {
			return err
		}
		return printResultSet(rs)
	},
}

func init() {
	searchCmd.Flags().String("text", "", "free text to embed and search by")
	searchCmd.Flags().String("field", "", "dense-vector field (auto-detected when omitted)")
	searchCmd.Flags().Int("limit", 0, "number of hits to return (default 10)")
	searchCmd.Flags().Int("offset", 0, "ranked hits to skip")
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index <collection>",
	Short: "Embed and index documents into a collection",
	Long: `Embed and index documents into a collection.

Accepts a JSON array of documents or a PDF file. Each document's content is
embedded with the configured model; untyped metadata maps onto dynamic
fields by value type.

Examples:
  solrmcp index docs --file ./documents.json
  solrmcp index docs --file ./paper.pdf --vector-field embedding`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		vectorField, _ := cmd.Flags().GetString("vector-field")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		var docs []indexer.Document
		switch strings.ToLower(filepath.Ext(file)) {
		case ".pdf":
			docs, err = indexer.LoadPDF(file)
		default:
			docs, err = indexer.LoadJSON(file)
		}
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		embedder := ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel, cfg.Solr.ConnectionTimeout)
		if err := ollama.EnsureReady(ctx, embedder, os.Stderr); err != nil {
			return err
		}

		printStep("Indexing %d documents into %s...", len(docs), args[0])
		ix := indexer.New(cfg.Solr.BaseURL, embedder, cfg.Solr.ConnectionTimeout)
		n, err := ix.Index(ctx, args[0], vectorField, docs)
		if err != nil {
			return err
		}
		printSuccess("Indexed %d documents", n)
		return nil
	},
}

func init() {
	indexCmd.Flags().String("file", "", "JSON document array or PDF file to index")
	indexCmd.Flags().String("vector-field", "embedding", "dense-vector field receiving embeddings")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
