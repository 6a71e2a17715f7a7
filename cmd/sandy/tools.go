package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/sandy/pkg/app"
)

func recallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Message archive",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the archive API from a local database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, dataDir := flags(cmd)
			env, err := app.Load(cfgPath, dataDir)
			if err != nil {
				return err
			}
			db, _ := cmd.Flags().GetString("db")
			bind, _ := cmd.Flags().GetString("bind")

			ctx, cancel := signalContext()
			defer cancel()
			return app.ServeRecall(ctx, env, app.RecallParams{DB: db, Bind: bind})
		},
	}
	serve.Flags().String("db", "", "Archive database path (default: recall.sqlite path or <data-dir>/recall.db)")
	serve.Flags().String("bind", "", "Listen address (default: recall.api bind or 127.0.0.1:8000)")
	cmd.AddCommand(serve)
	return cmd
}

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the archive tools over MCP on stdio",
		Long: "Serve get_chat_history and search_messages to an MCP client over stdio.\n" +
			"Reads the archive API unless --db points at a local database.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, dataDir := flags(cmd)
			env, err := app.Load(cfgPath, dataDir)
			if err != nil {
				return err
			}
			db, _ := cmd.Flags().GetString("db")

			ctx, cancel := signalContext()
			defer cancel()
			return app.ServeMCP(ctx, env, app.MCPParams{DB: db, Version: version}, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().String("db", "", "Read this archive database instead of the archive API")
	return cmd
}

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed archived messages missing from the vector store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, dataDir := flags(cmd)
			env, err := app.Load(cfgPath, dataDir)
			if err != nil {
				return err
			}
			var p app.BackfillParams
			p.DB, _ = cmd.Flags().GetString("db")
			p.DryRun, _ = cmd.Flags().GetBool("dry-run")
			p.Limit, _ = cmd.Flags().GetInt("limit")
			p.Batch, _ = cmd.Flags().GetInt("batch")

			ctx, cancel := signalContext()
			defer cancel()
			stats, err := app.Backfill(ctx, env, p)
			if err != nil {
				return err
			}

			if p.DryRun {
				fmt.Printf("%d messages missing, %d would be skipped\n", stats.Pending, stats.Skipped)
				return nil
			}
			fmt.Printf("added %d, skipped %d, errors %d (of %d)\n", stats.Added, stats.Skipped, stats.Errors, stats.Pending)
			if stats.Errors > 0 {
				return fmt.Errorf("backfill: %d messages failed", stats.Errors)
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "Archive database path")
	cmd.Flags().Bool("dry-run", false, "Count missing messages without embedding")
	cmd.Flags().Int("limit", 0, "Stop after this many messages (0 = all)")
	cmd.Flags().Int("batch", 50, "Log progress every N messages")
	return cmd
}
