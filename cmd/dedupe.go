package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/dedupe"
)

func newDedupeCmd() *cobra.Command {
	var backupDir string

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Remove duplicate records, keeping the earliest copy of each document",
		Long: `Groups stored records by logical key and keeps the copy from the earliest
publication day. Later copies are moved to --backup-dir when given, otherwise
deleted. Directories left empty are removed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if backupDir == "" {
				backupDir = a.Config().Storage.BackupDir
			}
			d, err := a.Deduplicator()
			if err != nil {
				return fmt.Errorf("build deduplicator: %w", err)
			}
			report, err := d.Run(cmd.Context(), dedupe.Options{BackupDir: backupDir})
			if err != nil {
				return fmt.Errorf("dedupe: %w", err)
			}
			a.Logger().Info("dedupe finished",
				zap.Int("scanned", report.Scanned),
				zap.Int("groups", report.Groups),
				zap.Int("moved", report.Moved),
				zap.Int("removed", report.Removed),
				zap.Int("excluded", report.Excluded),
				zap.Int("removed_dirs", report.RemovedDirs),
				zap.Int("errors", len(report.Errors)),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&backupDir, "backup-dir", "", "move duplicates here instead of deleting them")
	return cmd
}
