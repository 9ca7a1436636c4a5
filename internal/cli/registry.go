package eda

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwiater/eda/internal/registry"
)

// registryCmd groups data registry commands.
var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the registry of data directories",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered data directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newRegistry(getConfig()).List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "Registry is empty.")
			return nil
		}
		for _, entry := range entries {
			fmt.Fprintf(out, "%s %s\n", heading("•"), entry.DataDirectory)
			if entry.DataFormat != "" {
				fmt.Fprintf(out, "    format:       %s\n", entry.DataFormat)
			}
			if entry.Status != "" {
				fmt.Fprintf(out, "    status:       %s\n", entry.Status)
			}
			if !entry.Timestamp.IsZero() {
				fmt.Fprintf(out, "    registered:   %s\n", entry.Timestamp.Local().Format(time.RFC3339))
			}
			if !entry.LastDataUpdate.IsZero() {
				fmt.Fprintf(out, "    data updated: %s\n", entry.LastDataUpdate.Local().Format(time.RFC3339))
			}
		}
		return nil
	},
}

var registryUpdateCmd = &cobra.Command{
	Use:   "update <data-dir>",
	Short: "Register a data directory or refresh its entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		status, _ := cmd.Flags().GetString("status")
		entry, err := newRegistry(getConfig()).Update(registry.Entry{
			DataDirectory: args[0],
			DataFormat:    format,
			Status:        status,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Updated registry entry for: %s\n", success("✓"), entry.DataDirectory)
		return nil
	},
}

var registryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the registry file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		purge, _ := cmd.Flags().GetBool("purge")
		removed, err := newRegistry(getConfig()).Clear(purge)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("Registry cleared (%d entries)", removed)
		if purge {
			msg += ", index caches removed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s.\n", success("✓"), msg)
		return nil
	},
}

var registryQueryCmd = &cobra.Command{
	Use:   "query <question...>",
	Short: "Query every registered data directory",
	Args:  cobra.MinimumNArgs(1),
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
		aggregator := registry.NewAggregator(newRegistry(cfg), cache)
		sources, err := aggregator.Run(cmd.Context(), strings.Join(args, " "), topK)
		if err != nil {
			return err
		}
		failed := 0
		for _, source := range sources {
			if source.Err != nil {
				failed++
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), registry.FormatSources(sources))
		if failed > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d of %d directories failed\n", warning("!"), failed, len(sources))
		}
		return nil
	},
}

func init() {
	registryUpdateCmd.Flags().String("format", "", "data format, e.g. pdf or csv")
	registryUpdateCmd.Flags().String("status", "", "processing status note")
	registryClearCmd.Flags().Bool("purge", false, "also delete each directory's index cache")
	registryQueryCmd.Flags().Int("top-k", 3, "snippets per directory (default: ragTopK)")

	registryCmd.AddCommand(registryListCmd, registryUpdateCmd, registryClearCmd, registryQueryCmd)
	rootCmd.AddCommand(registryCmd)
}
