// Package export writes rasters and tables to a gocloud.dev blob bucket.
// Any bucket URL with a registered driver works: file://, mem://, s3:// and
// gs:// are linked in.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/forest-guardian/geoprep/internal/timeseries"
	"github.com/gocarina/gocsv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Encoder serialises one image.
type Encoder interface {
	Encode(w io.Writer, img *raster.Image) error
	Extension() string
	ContentType() string
}

func Open(ctx context.Context, url string) (*blob.Bucket, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", url, err)
	}
	return b, nil
}

type Exporter struct {
	Bucket  *blob.Bucket
	Prefix  string
	Encoder Encoder
	Quiet   bool
}

func New(bucket *blob.Bucket, prefix string, enc Encoder) *Exporter {
	return &Exporter{Bucket: bucket, Prefix: prefix, Encoder: enc}
}

// Key returns the object key of the image dated date.
func (e *Exporter) Key(date time.Time) string {
	return path.Join(e.Prefix, date.Format(time.DateOnly)+e.Encoder.Extension())
}

// ExportImage writes img and returns its key. Nothing is left behind when
// encoding fails.
func (e *Exporter) ExportImage(ctx context.Context, img *raster.Image) (string, error) {
	key := e.Key(img.Date)
	err := e.write(ctx, key, e.Encoder.ContentType(), func(w io.Writer) error {
		return e.Encoder.Encode(w, img)
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Report lists what an export run wrote and what it skipped.
type Report struct {
	Exported []string
	Failures []timeseries.Failure
}

func (r Report) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = fmt.Errorf("%s: %w", f.Date.Format(time.DateOnly), f.Err)
	}
	return errors.Join(errs...)
}

// ExportSeries writes one object per stack date. A failed date is logged and
// recorded, and the remaining dates are still exported.
func (e *Exporter) ExportSeries(ctx context.Context, s *timeseries.Stack) Report {
	var bar *progressbar.ProgressBar
	if e.Quiet {
		bar = progressbar.DefaultSilent(int64(s.Len()), "Exporting images")
	} else {
		bar = progressbar.Default(int64(s.Len()), "Exporting images")
	}
	defer bar.Finish()

	var report Report
	for _, img := range s.Images() {
		bar.Add(1)
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, timeseries.Failure{Date: img.Date, Err: err})
			continue
		}
		key, err := e.ExportImage(ctx, img)
		if err != nil {
			zap.L().Warn("failed to export image",
				zap.Time("date", img.Date),
				zap.Error(err))
			report.Failures = append(report.Failures, timeseries.Failure{Date: img.Date, Err: err})
			continue
		}
		zap.L().Debug("image exported", zap.String("key", key))
		report.Exported = append(report.Exported, key)
	}
	return report
}

// WriteTable writes records, a slice of csv-tagged structs, as CSV.
func (e *Exporter) WriteTable(ctx context.Context, key string, records any) error {
	return e.write(ctx, path.Join(e.Prefix, key), "text/csv", func(w io.Writer) error {
		return gocsv.Marshal(records, w)
	})
}

func (e *Exporter) write(ctx context.Context, key, contentType string, fill func(io.Writer) error) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := e.Bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", key, err)
	}
	if err := fill(w); err != nil {
		// cancelling before Close discards the partial object
		cancel()
		w.Close()
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
