package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/forest-guardian/geoprep/internal/gdalio"
	"github.com/forest-guardian/geoprep/internal/pipeline"
	"github.com/forest-guardian/geoprep/internal/timeseries"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dateFlags selects how acquisition dates are read from file names.
type dateFlags struct {
	pattern string
	layout  string
}

func (d *dateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.pattern, "date-pattern", pipeline.DefaultDatePattern, "regular expression whose first group is the date")
	cmd.Flags().StringVar(&d.layout, "date-layout", time.DateOnly, "Go time layout of the date")
}

func (d *dateFlags) resolve(paths []string) ([]pipeline.DatedFile, error) {
	re, err := regexp.Compile(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid date pattern: %w", err)
	}
	files := make([]pipeline.DatedFile, 0, len(paths))
	for _, p := range paths {
		date, err := pipeline.DateFromName(p, re, d.layout)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		files = append(files, pipeline.DatedFile{Path: p, Date: date})
	}
	return files, nil
}

// readStack reads every file into one stack. Unreadable or misaligned files
// are logged and skipped.
func readStack(files []pipeline.DatedFile, bands []string) (*timeseries.Stack, error) {
	s := timeseries.NewStack()
	for _, f := range files {
		img, err := gdalio.Read(f.Path, gdalio.ReadOptions{Bands: bands, Date: f.Date})
		if err == nil {
			err = s.Add(img)
		}
		if err != nil {
			zap.L().Warn("skipping input", zap.String("path", f.Path), zap.Error(err))
			continue
		}
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("none of %d inputs could be read", len(files))
	}
	return s, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// outputPath returns dir/<base of input without extension><suffix>.tif.
func outputPath(dir, input, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, base+suffix+".tif")
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
