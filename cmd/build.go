package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/atelier/internal/persist"
	"github.com/agentic-research/atelier/internal/preview"
)

var buildOut string

var buildCmd = &cobra.Command{
	Use:   "build [workspace.db]",
	Short: "Transform and assemble the persisted workspace into a preview artifact",
	Long: `Restores the workspace from its latest snapshot and op log, transforms every
file and assembles the preview artifact. The artifact is written as JSON.
When any file has a diagnostic the problems are printed instead and the
command exits with status 2.`,
	Args: cobra.MaximumNArgs(1),
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

		ctx := cmd.Context()
		store, seq, err := db.Restore(ctx)
		if err != nil {
			return err
		}

		res, err := newBuilder().Build(ctx, store.Snapshot(seq))
		if err != nil {
			return err
		}
		if !res.Executable {
			fmt.Fprint(cmd.ErrOrStderr(), preview.FormatDiagnostics(res.Artifact.Diagnostics))
			return errBlocked
		}

		out := cmd.OutOrStdout()
		if buildOut != "" {
			f, err := os.Create(buildOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", buildOut, err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Artifact); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		logger.Info("artifact built",
			"generation", res.Artifact.Generation,
			"entry", res.Artifact.EntryPath,
			"modules", len(res.Artifact.Modules))
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "Write the artifact JSON to a file instead of stdout")
	rootCmd.AddCommand(buildCmd)
}
