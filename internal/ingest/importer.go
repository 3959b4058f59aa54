package ingest

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/comps/internal/model"
)

// CompanyWriter persists company batches.
type CompanyWriter interface {
	UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error)
}

// Stats summarizes an import.
type Stats struct {
	Rows     int   `json:"rows"`
	Imported int64 `json:"imported"`
	Skipped  int   `json:"skipped"`
}

// Importer parses rows and writes them in batches.
type Importer struct {
	writer    CompanyWriter
	batchSize int
	strict    bool
	// AfterBatch runs after each committed batch with its company ids.
	AfterBatch func(ctx context.Context, ids []int64) error
}

// NewImporter creates an Importer. In strict mode the first invalid row
// aborts the import; otherwise invalid rows are logged and skipped.
func NewImporter(w CompanyWriter, batchSize int, strict bool) *Importer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Importer{writer: w, batchSize: batchSize, strict: strict}
}

// ImportReader streams r in the given format and imports every row.
func (im *Importer) ImportReader(ctx context.Context, r io.Reader, format Format, encoding string) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	var (
		rows <-chan []string
		errs <-chan error
	)
	switch format {
	case FormatXLSX:
		rows, errs = StreamXLSX(ctx, r, XLSXOptions{HasHeader: true, HeaderCh: headerCh})
	default:
		rows, errs = StreamCSV(ctx, r, CSVOptions{HasHeader: true, HeaderCh: headerCh, TrimSpace: true, LazyQuotes: true, Encoding: encoding})
	}
	return im.Import(ctx, headerCh, rows, errs)
}

// Import consumes a header channel and a row stream. Parsing and writing
// run concurrently; the first error cancels both.
func (im *Importer) Import(ctx context.Context, headerCh <-chan []string, rows <-chan []string, errs <-chan error) (Stats, error) {
	var stats Stats
	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan []model.Company, 2)

	g.Go(func() error {
		defer close(batches)

		cols, err := readHeader(ctx, headerCh, errs)
		if err != nil {
			return err
		}

		batch := make([]model.Company, 0, im.batchSize)
		for row := range rows {
			stats.Rows++
			c, err := cols.Parse(row)
			if err != nil {
				if im.strict {
					return eris.Wrapf(err, "ingest: row %d", stats.Rows)
				}
				stats.Skipped++
				zap.L().Warn("ingest: skipping row", zap.Int("row", stats.Rows), zap.Error(err))
				continue
			}
			batch = append(batch, c)
			if len(batch) == im.batchSize {
				select {
				case batches <- batch:
				case <-ctx.Done():
					return ctx.Err()
				}
				batch = make([]model.Company, 0, im.batchSize)
			}
		}
		if err := <-errs; err != nil {
			return err
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for batch := range batches {
			n, err := im.writer.UpsertCompanies(ctx, batch)
			if err != nil {
				return eris.Wrap(err, "ingest: write batch")
			}
			stats.Imported += n
			if im.AfterBatch != nil {
				ids := make([]int64, len(batch))
				for i := range batch {
					ids[i] = batch[i].ID
				}
				if err := im.AfterBatch(ctx, ids); err != nil {
					zap.L().Warn("ingest: after-batch hook failed", zap.Error(err))
				}
			}
			zap.L().Debug("ingest: batch written", zap.Int("size", len(batch)), zap.Int64("total", stats.Imported))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	zap.L().Info("ingest: import complete",
		zap.Int("rows", stats.Rows),
		zap.Int64("imported", stats.Imported),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// readHeader waits for the header row. The streams never close the header
// channel, so an ended error channel with no header means empty input.
func readHeader(ctx context.Context, headerCh <-chan []string, errs <-chan error) (Columns, error) {
	select {
	case header := <-headerCh:
		return ParseHeader(header)
	case err, ok := <-errs:
		if ok && err != nil {
			return nil, err
		}
		select {
		case header := <-headerCh:
			return ParseHeader(header)
		default:
			return nil, eris.New("ingest: empty input")
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
