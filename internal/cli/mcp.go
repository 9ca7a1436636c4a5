package eda

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwiater/eda/internal/mcpserver"
	"github.com/mwiater/eda/internal/process"
	"github.com/mwiater/eda/internal/rag"
)

// Version is reported to MCP clients.
var Version = "dev"

// mcpCmd groups Model Context Protocol commands.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose eda tools over the Model Context Protocol",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve eda tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		dataDir, _ := cmd.Flags().GetString("data-dir")
		if dataDir != "" {
			if dataDir, err = filepath.Abs(dataDir); err != nil {
				return err
			}
		}
		set, err := buildTools(cfg, dataDir)
		if err != nil {
			return err
		}
		srv, err := mcpserver.New("eda", Version, set...)
		if err != nil {
			return err
		}
		return srv.Serve(cmd.Context(), os.Stdin, os.Stdout)
	},
}

var mcpDevCmd = &cobra.Command{
	Use:   "dev <data-dir>",
	Short: "Open a directory's MCP launcher in an MCP inspector",
	Long: `Dev makes sure the directory is indexed, then starts the inspector command with the
directory's .cache/rag_mcp.sh launcher and streams its output until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		cache, err := newIndexCache(cfg)
		if err != nil {
			return err
		}
		index, _, err := cache.Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		launcher := rag.LauncherPath(index.DataDir)
		if _, err := os.Stat(launcher); err != nil {
			if launcher, err = rag.WriteLauncher(index.DataDir, ""); err != nil {
				return err
			}
		}

		inspector, _ := cmd.Flags().GetString("inspector")
		argv := append(strings.Fields(inspector), launcher)
		p, err := process.Start(cmd.Context(), argv[0], argv[1:]...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (pid %d)\n", heading("▶"), strings.Join(argv, " "), p.Pid())

		out := cmd.OutOrStdout()
		for {
			select {
			case line, ok := <-p.Lines():
				if !ok {
					return p.Wait()
				}
				fmt.Fprintln(out, line)
			case <-cmd.Context().Done():
				return p.Stop()
			}
		}
	},
}

func init() {
	mcpServeCmd.Flags().String("data-dir", "", "bind rag_query to this data directory")
	mcpDevCmd.Flags().String("inspector", "npx -y @modelcontextprotocol/inspector", "inspector command; the launcher path is appended")

	mcpCmd.AddCommand(mcpServeCmd, mcpDevCmd)
	rootCmd.AddCommand(mcpCmd)
}
