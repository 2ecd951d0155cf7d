package cmd

import (
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/atelier/internal/persist"
	"github.com/agentic-research/atelier/internal/vfs"
)

var exportCmd = &cobra.Command{
	Use:   "export [workspace.db] [dir]",
	Short: "Write the persisted workspace to a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, dir := args[0], args[1]

		db, err := persist.Open(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		store, seq, err := db.Restore(cmd.Context())
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if err := vfs.Export(store, osfs.New(dir)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries at seq %d to %s\n", store.Len()-1, seq, dir)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [dir] [workspace.db]",
	Short: "Seed a workspace database from a directory",
	Long: `Reads every non-hidden file under dir and stores it as a new snapshot at the
current end of the op log. Later sessions resume from it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, dbPath := args[0], args[1]

		store, err := vfs.Import(osfs.New(dir), "/")
		if err != nil {
			return fmt.Errorf("import %s: %w", dir, err)
		}

		db, err := persist.Open(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		ctx := cmd.Context()
		seq, err := db.LastSeq(ctx)
		if err != nil {
			return err
		}
		sn := store.Snapshot(seq)
		if _, err := db.SaveSnapshot(ctx, seq, sn); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries from %s (digest %s)\n", store.Len()-1, dir, sn.Digest())
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay [workspace.db]",
	Short: "Rebuild the workspace from its snapshot and op log and print its digest",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var flag string
		if len(args) == 1 {
			flag = args[0]
		}
		db, err := persist.Open(cfg.DBPath(flag))
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		store, seq, err := db.Restore(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s seq=%d entries=%d\n", store.Digest(), seq, store.Len()-1)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(replayCmd)
}
