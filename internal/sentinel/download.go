package sentinel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

type DownloadOptions struct {
	Dir string
	// Prefix starts every file name, e.g. "<farm>_<plot>".
	Prefix   string
	From, To time.Time
	// IntervalDays is the step between requested days. Zero means 1.
	IntervalDays int
	Geometry     orb.Geometry
	Bands        []string
	Resolution   float64
}

type Scene struct {
	Date time.Time
	Path string
}

// FileName returns the scene file name for date.
func FileName(prefix string, date time.Time) string {
	if prefix == "" {
		return date.Format(time.DateOnly) + ".tif"
	}
	return fmt.Sprintf("%s_%s.tif", prefix, date.Format(time.DateOnly))
}

// Download fetches one scene per requested day into Dir. Days already on
// disk are not requested again. A failed day is logged and skipped; the
// joined failures are returned with the scenes that are available.
func Download(ctx context.Context, c *Client, opts DownloadOptions) ([]Scene, error) {
	if opts.IntervalDays <= 0 {
		opts.IntervalDays = 1
	}
	if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", opts.Dir, err)
	}

	var (
		scenes []Scene
		errs   []error
	)
	from := time.Date(opts.From.Year(), opts.From.Month(), opts.From.Day(), 0, 0, 0, 0, time.UTC)
	for day := from; !day.After(opts.To); day = day.AddDate(0, 0, opts.IntervalDays) {
		if err := ctx.Err(); err != nil {
			return scenes, errors.Join(append(errs, err)...)
		}
		path := filepath.Join(opts.Dir, FileName(opts.Prefix, day))
		if _, err := os.Stat(path); err == nil {
			scenes = append(scenes, Scene{Date: day, Path: path})
			continue
		}

		data, err := c.Fetch(ctx, Request{
			From:       day,
			To:         day.Add(24*time.Hour - time.Second),
			Geometry:   opts.Geometry,
			Bands:      opts.Bands,
			Resolution: opts.Resolution,
		})
		if err == nil {
			err = writeFile(path, data)
		}
		if err != nil {
			zap.L().Warn("failed to download scene",
				zap.String("date", day.Format(time.DateOnly)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", day.Format(time.DateOnly), err))
			continue
		}
		scenes = append(scenes, Scene{Date: day, Path: path})
	}
	return scenes, errors.Join(errs...)
}

func writeFile(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return os.Rename(tmp, path)
}
