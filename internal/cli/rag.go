package eda

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwiater/eda/internal/rag"
)

// ragCmd groups retrieval index commands.
var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Query and manage per-directory retrieval indexes",
}

var ragQueryCmd = &cobra.Command{
	Use:   "query <data-dir> <question...>",
	Short: "Return the snippets of a directory most relevant to a question",
	Long: `Query embeds the question and ranks the directory's chunks by cosine similarity.
The first query against a directory builds its index under <data-dir>/.cache/storage;
later queries load it.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		topK, _ := cmd.Flags().GetInt("top-k")
		if !cmd.Flags().Changed("top-k") {
			topK = cfg.TopK()
		}
		cache, err := newIndexCache(cfg)
		if err != nil {
			return err
		}
		results, err := cache.Query(cmd.Context(), args[0], strings.Join(args[1:], " "), topK)
		if err != nil {
			return err
		}
		debugDump(cmd.ErrOrStderr(), "results", results)
		fmt.Fprintln(cmd.OutOrStdout(), rag.FormatResults(results))
		return nil
	},
}

var ragIndexCmd = &cobra.Command{
	Use:   "index <data-dir>",
	Short: "Build a directory's retrieval index if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		cache, err := newIndexCache(cfg)
		if err != nil {
			return err
		}
		if force, _ := cmd.Flags().GetBool("force"); force {
			if err := cache.Invalidate(args[0]); err != nil {
				return err
			}
		}
		index, built, err := cache.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		verb := "Loaded existing"
		if built {
			verb = "Built"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s index: %d chunks in %s\n", success("✓"), verb, len(index.Entries), rag.StoragePath(index.DataDir))
		if built && cfg.WriteLauncher() {
			fmt.Fprintf(cmd.OutOrStdout(), "  MCP launcher: %s\n", rag.LauncherPath(index.DataDir))
		}
		return nil
	},
}

var ragInvalidateCmd = &cobra.Command{
	Use:   "invalidate <data-dir>",
	Short: "Delete a directory's index so the next query rebuilds it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		// Invalidation only touches the filesystem; no embedder is needed.
		cache := rag.NewIndexCache(nil, rag.Options{})
		if err := cache.Invalidate(abs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s removed %s\n", success("✓"), rag.StoragePath(abs))
		return nil
	},
}

func init() {
	ragQueryCmd.Flags().Int("top-k", 3, "number of snippets to return (default: ragTopK)")
	ragIndexCmd.Flags().Bool("force", false, "rebuild even if an index exists")

	ragCmd.AddCommand(ragQueryCmd, ragIndexCmd, ragInvalidateCmd)
	rootCmd.AddCommand(ragCmd)
}
