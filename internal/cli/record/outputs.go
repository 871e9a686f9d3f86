package record

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/resmon/internal/config"
	"github.com/coral-mesh/resmon/internal/export"
	"github.com/coral-mesh/resmon/internal/report"
	"github.com/coral-mesh/resmon/internal/timeline"
)

// writeOutputs runs every enabled exporter. A failing exporter does not stop
// the others; all failures are returned together.
func writeOutputs(ctx context.Context, cfg config.OutputConfig, paths export.Paths, ds *timeline.Dataset, meta export.Meta, out io.Writer, logger zerolog.Logger) error {
	if len(ds.Samples) == 0 {
		fmt.Fprintln(out, report.Warning("No samples recorded, no files written."))
		return nil
	}

	var errs []error
	written := func(path string) {
		fmt.Fprintf(out, "Data saved to: %s\n", path)
	}

	if cfg.CSV {
		if err := export.SaveCSV(paths.CSV(), ds, meta, logger); err != nil {
			errs = append(errs, err)
		} else {
			written(paths.CSV())
		}
	}

	if cfg.DuckDB {
		if err := saveDuckDB(ctx, paths.DuckDB(), ds, meta, logger); err != nil {
			errs = append(errs, err)
		} else {
			written(paths.DuckDB())
		}
	}

	if cfg.OTLP {
		if err := export.SaveOTLP(paths.OTLP(), ds, meta, logger); err != nil {
			errs = append(errs, err)
		} else {
			written(paths.OTLP())
		}
	}

	for _, err := range errs {
		logger.Error().Err(err).Msg("Export failed")
	}
	return errors.Join(errs...)
}

func saveDuckDB(ctx context.Context, path string, ds *timeline.Dataset, meta export.Meta, logger zerolog.Logger) (err error) {
	store, err := export.OpenDuckDB(ctx, path, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); err == nil {
			err = cerr
		}
	}()
	return store.Save(ctx, ds, meta)
}
