package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fs-delta-tracker/internal/database"
	"fs-delta-tracker/internal/scan"
)

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, p ...*write.Point) error {
	f.points = append(f.points, p...)
	return f.err
}

func summary() *scan.Summary {
	return &scan.Summary{
		ScanID:     2,
		Root:       "/data",
		Hostname:   "nas01",
		FinishedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		TotalPaths: 1,
		Totals: map[database.ChangeType]database.ChangeTotal{
			database.ChangeModified: {Count: 1, Bytes: 50},
			database.ChangeDeleted:  {Count: 1, Bytes: 100},
		},
		CrawlDuration: 1500 * time.Millisecond,
	}
}

func fields(p *write.Point) map[string]interface{} {
	out := map[string]interface{}{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestPoint(t *testing.T) {
	p := Point(summary())

	assert.Equal(t, Measurement, p.Name())
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"scan_root": "/data", "hostname": "nas01"}, tags)

	f := fields(p)
	assert.Equal(t, int64(1), f["modified_files"])
	assert.Equal(t, int64(0), f["added_files"])
	assert.InDelta(t, 50.0/1048576, f["modified_data_mb"], 1e-12)
	assert.InDelta(t, 1.5, f["crawl_duration_s"], 1e-9)
	assert.Equal(t, summary().FinishedAt, p.Time())
}

func TestReport(t *testing.T) {
	w := &fakeWriter{}
	e := NewInfluxWithWriter(w, nil)
	require.NoError(t, e.Report(context.Background(), summary()))
	require.Len(t, w.points, 1)
	e.Close()
}

func TestReportError(t *testing.T) {
	w := &fakeWriter{err: errors.New("unauthorized")}
	err := NewInfluxWithWriter(w, nil).Report(context.Background(), summary())
	assert.ErrorContains(t, err, "unauthorized")
}

func TestNewInfluxRequiresConfig(t *testing.T) {
	_, err := NewInflux(InfluxConfig{URL: "http://localhost:8086"}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	e, err := NewInflux(InfluxConfig{URL: "http://localhost:8086", Token: "t", Org: "o", Bucket: "b"}, nil)
	require.NoError(t, err)
	e.Close()
}
