package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/forest-guardian/geoprep/internal/raster"
	"github.com/forest-guardian/geoprep/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

var errBroken = errors.New("broken image")

// textEncoder writes band names and the first value of each band.
type textEncoder struct {
	fail time.Time
}

func (e textEncoder) Extension() string   { return ".txt" }
func (e textEncoder) ContentType() string { return "text/plain" }

func (e textEncoder) Encode(w io.Writer, img *raster.Image) error {
	for _, name := range img.BandNames() {
		g, _ := img.Band(name)
		if _, err := fmt.Fprintf(w, "%s=%g\n", name, g.Data[0]); err != nil {
			return err
		}
	}
	if img.Date.Equal(e.fail) {
		return errBroken
	}
	return nil
}

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func stack(t *testing.T, days ...int) *timeseries.Stack {
	t.Helper()
	s := timeseries.NewStack()
	ref := raster.Georef{Width: 1, Height: 1, Transform: raster.GeoTransform{0, 10, 0, 0, 0, -10}}
	for _, d := range days {
		img := raster.NewImage(ref, day(d))
		require.NoError(t, img.AddBand("NDVI", []float64{float64(d) / 10}))
		require.NoError(t, s.Add(img))
	}
	return s
}

func TestExportSeries(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	e := New(bucket, "farm/plot-1", textEncoder{fail: day(2)})
	e.Quiet = true

	report := e.ExportSeries(ctx, stack(t, 1, 2, 3))
	assert.Equal(t, []string{"farm/plot-1/2024-06-01.txt", "farm/plot-1/2024-06-03.txt"}, report.Exported)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, day(2), report.Failures[0].Date)
	assert.ErrorIs(t, report.Err(), errBroken)

	data, err := bucket.ReadAll(ctx, "farm/plot-1/2024-06-03.txt")
	require.NoError(t, err)
	assert.Equal(t, "NDVI=0.3\n", string(data))

	exists, err := bucket.Exists(ctx, "farm/plot-1/2024-06-02.txt")
	require.NoError(t, err)
	assert.False(t, exists, "failed image leaves no object")
}

func TestExportSeriesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	e := New(bucket, "", textEncoder{})
	e.Quiet = true
	report := e.ExportSeries(ctx, stack(t, 1, 2))
	assert.Empty(t, report.Exported)
	assert.Len(t, report.Failures, 2)
	assert.ErrorIs(t, report.Err(), context.Canceled)
}

func TestWriteTable(t *testing.T) {
	ctx := context.Background()
	bucket, err := Open(ctx, "mem://")
	require.NoError(t, err)
	defer bucket.Close()

	e := New(bucket, "tables", textEncoder{})
	records := []timeseries.PointRecord{
		{ID: "a", Date: "2024-06-01", Band: "NDVI", X: 1, Y: 2, Value: 0.5},
	}
	require.NoError(t, e.WriteTable(ctx, "points.csv", records))

	data, err := bucket.ReadAll(ctx, "tables/points.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{"id,date,band,x,y,value,lon,lat", "a,2024-06-01,NDVI,1,2,0.5,0,0"}, lines)
}

func TestOpenUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "nope://bucket")
	assert.Error(t, err)
}
