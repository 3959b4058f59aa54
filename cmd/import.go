package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/comps/internal/config"
	"github.com/sells-group/comps/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import company snapshots from CSV or XLSX",
	Long:  "Loads company snapshots from a local file or an http(s):// or ftp:// URL and upserts them in batches. Cached snapshots of imported companies are invalidated.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		if cmd.Flags().Changed("strict") {
			cfg.Import.Strict, _ = cmd.Flags().GetBool("strict")
		}
		if cmd.Flags().Changed("batch-size") {
			cfg.Import.BatchSize, _ = cmd.Flags().GetInt("batch-size")
		}
		if cmd.Flags().Changed("encoding") {
			cfg.Import.Encoding, _ = cmd.Flags().GetString("encoding")
		}

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		e, err := initEnv(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := runImport(ctx, cfg, e, file)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", file),
			zap.Int("rows", stats.Rows),
			zap.Int64("imported", stats.Imported),
			zap.Int("skipped", stats.Skipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().String("file", "", "path or URL of the CSV/XLSX file (required)")
	importCmd.Flags().Bool("strict", false, "abort on the first invalid row")
	importCmd.Flags().Int("batch-size", 500, "rows per upsert batch")
	importCmd.Flags().String("encoding", "", "source text encoding, e.g. windows-1252 (CSV only)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

func runImport(ctx context.Context, c *config.Config, e *env, location string) (ingest.Stats, error) {
	rc, err := ingest.Open(ctx, location, ingest.OpenOptions{
		Timeout: c.Import.Timeout,
		Retry:   c.Retry.Policy(),
	})
	if err != nil {
		return ingest.Stats{}, err
	}
	defer rc.Close() //nolint:errcheck

	im := ingest.NewImporter(e.Store, c.Import.BatchSize, c.Import.Strict)
	if e.Cache != nil {
		im.AfterBatch = func(ctx context.Context, ids []int64) error {
			if err := e.Cache.Invalidate(ctx, ids...); err != nil {
				zap.L().Warn("import: cache invalidation failed", zap.Int("ids", len(ids)), zap.Error(err))
			}
			return nil
		}
	}

	stats, err := im.ImportReader(ctx, rc, ingest.DetectFormat(location), c.Import.Encoding)
	if err != nil {
		return stats, eris.Wrap(err, "import")
	}
	return stats, nil
}
