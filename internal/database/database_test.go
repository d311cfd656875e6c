package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fs-delta-tracker/internal/record"
)

var drivers = []string{DriverSQLite3, DriverSQLite}

func setupTestDB(t *testing.T, driver string) *Database {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state", "tracker.db")
	db, err := New(context.Background(), Options{
		Path:   path,
		Driver: driver,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err, "New(%s)", driver)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// forEachDriver runs fn once per supported SQLite driver.
func forEachDriver(t *testing.T, fn func(t *testing.T, db *Database)) {
	t.Helper()
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			fn(t, setupTestDB(t, driver))
		})
	}
}

var (
	t1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

func stagingLines(scanID int64, recs ...record.Record) string {
	var b strings.Builder
	for _, r := range recs {
		r.ScanID = scanID
		b.WriteString(r.Line())
	}
	return b.String()
}

func rec(path string, size int64, mtime time.Time) record.Record {
	name := filepath.Base(path)
	return record.Record{
		Name:      name,
		Extension: record.ExtensionOf(name),
		Path:      path,
		Size:      size,
		ModTime:   mtime,
	}
}

func stagingRows(t *testing.T, db *Database, scanID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.db.QueryRow(
		`SELECT COUNT(*) FROM staging_files WHERE scan_id = ?`, scanID).Scan(&n))
	return n
}

// openScan starts a scan of root, loads recs and computes its delta
// without finalizing.
func openScan(t *testing.T, db *Database, root string, recs ...record.Record) (int64, map[ChangeType]ChangeTotal) {
	t.Helper()
	ctx := context.Background()

	id, err := db.StartScan(ctx, root, time.Now())
	require.NoError(t, err)
	_, err = db.LoadStaging(ctx, id, strings.NewReader(stagingLines(id, recs...)))
	require.NoError(t, err)
	require.NoError(t, db.ComputeDelta(ctx, id))
	totals, err := db.ChangeTotals(ctx, id)
	require.NoError(t, err)
	return id, totals
}

// runScan drives one full start/load/delta/finalize cycle and returns the
// scan id with its change totals.
func runScan(t *testing.T, db *Database, root string, recs ...record.Record) (int64, map[ChangeType]ChangeTotal) {
	t.Helper()
	ctx := context.Background()

	id, totals := openScan(t, db, root, recs...)
	err := db.FinalizeScan(ctx, id, FinalizeParams{
		FinishedAt:     time.Now(),
		TotalPaths:     int64(len(recs)),
		Added:          totals[ChangeAdded].Count,
		Modified:       totals[ChangeModified].Count,
		Removed:        totals[ChangeDeleted].Count,
		NewDataMB:      BytesToMB(totals[ChangeAdded].Bytes),
		ModifiedDataMB: BytesToMB(totals[ChangeModified].Bytes),
		DeletedDataMB:  BytesToMB(totals[ChangeDeleted].Bytes),
		Metadata:       map[string]string{"scan_id": "x"},
	})
	require.NoError(t, err)
	_, err = db.ClearStaging(ctx, id)
	require.NoError(t, err)
	return id, totals
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Options{
		Path:   filepath.Join(t.TempDir(), "x.db"),
		Driver: "postgres",
	})
	assert.Error(t, err)
}

func TestSchemaVersion(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		v, err := db.SchemaVersion(context.Background())
		require.NoError(t, err)
		assert.Equal(t, CurrentSchemaVersion, v)
	})
}

func TestMetadata(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		ctx := context.Background()

		_, err := db.GetMetadata(ctx, "missing")
		assert.Error(t, err, "missing key")

		require.NoError(t, db.SetMetadata(ctx, "k", "v1"))
		require.NoError(t, db.SetMetadata(ctx, "k", "v2"))
		got, err := db.GetMetadata(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v2", got)
	})
}

func TestFirstScanIsAllAdded(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		id, totals := runScan(t, db, "/data",
			rec("/data/a.txt", 100, t1),
			rec("/data/b.txt", 200, t1),
		)

		assert.Equal(t, ChangeTotal{Count: 2, Bytes: 300}, totals[ChangeAdded])
		assert.Zero(t, totals[ChangeModified].Count)
		assert.Zero(t, totals[ChangeDeleted].Count)

		run, err := db.GetScanRun(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, run.Open(), "scan run should be finalized")
		assert.Equal(t, int64(2), *run.TotalPathsCount)
		assert.Equal(t, int64(2), *run.AddedFilesCount)
		assert.Equal(t, "x", run.Metadata["scan_id"])
	})
}

func TestSecondScanClassifiesChanges(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		runScan(t, db, "/data",
			rec("/data/a.txt", 100, t1),
			rec("/data/b.txt", 200, t1),
		)
		id, totals := runScan(t, db, "/data",
			rec("/data/a.txt", 150, t2),
			rec("/data/c.txt", 10, t2),
		)

		assert.Equal(t, map[ChangeType]ChangeTotal{
			ChangeAdded:    {Count: 1, Bytes: 10},
			ChangeModified: {Count: 1, Bytes: 50},
			ChangeDeleted:  {Count: 1, Bytes: 200},
		}, totals)

		run, err := db.GetScanRun(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, 50.0/1048576, *run.ModifiedDataMB, 1e-12)

		changes, err := db.ListChanges(ctx, id, "", 0)
		require.NoError(t, err)
		require.Len(t, changes, 3)

		assert.Equal(t, "/data/a.txt", changes[0].Path)
		assert.Equal(t, ChangeModified, changes[0].ChangeType)
		assert.Equal(t, int64(100), *changes[0].OldSizeBytes)
		assert.Equal(t, int64(150), *changes[0].NewSizeBytes)

		assert.Equal(t, ChangeDeleted, changes[1].ChangeType)
		assert.Nil(t, changes[1].NewSizeBytes, "deleted change has no new size")

		assert.Equal(t, ChangeAdded, changes[2].ChangeType)
		assert.Nil(t, changes[2].OldSizeBytes, "added change has no old size")

		deleted, err := db.ListChanges(ctx, id, ChangeDeleted, 10)
		require.NoError(t, err)
		require.Len(t, deleted, 1)
		assert.Equal(t, "/data/b.txt", deleted[0].Path)
	})
}

func TestUnchangedScanHasNoChanges(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		files := []record.Record{rec("/data/a.txt", 100, t1)}
		runScan(t, db, "/data", files...)
		_, totals := runScan(t, db, "/data", files...)
		for _, ct := range ChangeTypes {
			assert.Equal(t, ChangeTotal{}, totals[ct], ct)
		}
	})
}

func TestUnfinalizedScanKeepsBaseline(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		a := rec("/data/a.txt", 100, t1)
		b := rec("/data/b.txt", 200, t1)

		runScan(t, db, "/data", a)
		pending, totals := openScan(t, db, "/data", a, b)
		assert.Equal(t, int64(1), totals[ChangeAdded].Count)
		assert.Equal(t, int64(1), db.GetStats().TrackedFiles, "open scan must not touch tracked state")

		_, totals = runScan(t, db, "/data", a, b)
		assert.Equal(t, ChangeTotal{Count: 1, Bytes: 200}, totals[ChangeAdded])
		assert.Zero(t, totals[ChangeDeleted].Count)
		assert.Equal(t, int64(2), db.GetStats().TrackedFiles)

		// The abandoned scan still holds its staging rows.
		assert.Equal(t, int64(2), stagingRows(t, db, pending))
	})
}

func TestComputeDeltaIsRepeatable(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		runScan(t, db, "/data",
			rec("/data/a.txt", 100, t1),
			rec("/data/b.txt", 200, t1),
		)
		id, first := openScan(t, db, "/data",
			rec("/data/a.txt", 120, t2),
			rec("/data/c.txt", 5, t2),
		)

		for i := 0; i < 2; i++ {
			require.NoError(t, db.ComputeDelta(ctx, id))
			again, err := db.ChangeTotals(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, first, again, "attempt %d", i)
		}

		changes, err := db.ListChanges(ctx, id, "", 0)
		require.NoError(t, err)
		assert.Len(t, changes, 3)
	})
}

func TestFinalizeAppliesState(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		runScan(t, db, "/data",
			rec("/data/a.txt", 100, t1),
			rec("/data/b.txt", 200, t1),
		)
		require.Equal(t, int64(2), db.GetStats().TrackedFiles)

		runScan(t, db, "/data", rec("/data/b.txt", 250, t2))
		assert.Equal(t, int64(1), db.GetStats().TrackedFiles, "deleted path pruned on finalize")

		_, totals := runScan(t, db, "/data", rec("/data/b.txt", 250, t2))
		for _, ct := range ChangeTypes {
			assert.Equal(t, ChangeTotal{}, totals[ct], "finalized sizes are the new baseline: %s", ct)
		}
	})
}

func TestEmptyScanProducesZeroTotals(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		id, totals := runScan(t, db, "/empty")
		require.Len(t, totals, len(ChangeTypes))

		run, err := db.GetScanRun(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(0), *run.TotalPathsCount)
		assert.Equal(t, 0.0, *run.NewDataMB)
	})
}

func TestRootsAreIndependent(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		runScan(t, db, "/a", rec("/a/x", 1, t1))
		_, totals := runScan(t, db, "/b", rec("/b/y", 2, t1))
		assert.Zero(t, totals[ChangeDeleted].Count, "scanning /b must not delete files of /a")
		assert.Equal(t, int64(2), db.GetStats().TrackedFiles)
	})
}

func TestScanLifecycleErrors(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		done, _ := runScan(t, db, "/data")

		tests := []struct {
			name string
			call func() error
			want error
		}{
			{
				name: "finalize twice",
				call: func() error { return db.FinalizeScan(ctx, done, FinalizeParams{FinishedAt: time.Now()}) },
				want: ErrScanNotOpen,
			},
			{
				name: "finalize unknown",
				call: func() error { return db.FinalizeScan(ctx, 9999, FinalizeParams{FinishedAt: time.Now()}) },
				want: ErrScanNotFound,
			},
			{
				name: "delta on finalized",
				call: func() error { return db.ComputeDelta(ctx, done) },
				want: ErrScanNotOpen,
			},
			{
				name: "delta on unknown",
				call: func() error { return db.ComputeDelta(ctx, 4242) },
				want: ErrScanNotFound,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.ErrorIs(t, tt.call(), tt.want)
			})
		}
	})
}

func TestLoadStagingRejectsBadInput(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		ctx := context.Background()

		tests := []struct {
			name  string
			input func(id int64) string
		}{
			{
				name: "malformed trailing line",
				input: func(id int64) string {
					return stagingLines(id, rec("/data/a", 1, t1)) + "garbage\n"
				},
			},
			{
				name: "foreign scan id",
				input: func(id int64) string {
					return stagingLines(id+1, rec("/data/a", 1, t1))
				},
			},
			{
				name: "missing trailing newline",
				input: func(id int64) string {
					return strings.TrimSuffix(stagingLines(id, rec("/data/a", 1, t1)), "\n")
				},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				id, err := db.StartScan(ctx, "/data", time.Now())
				require.NoError(t, err)

				n, err := db.LoadStaging(ctx, id, strings.NewReader(tt.input(id)))
				assert.ErrorIs(t, err, ErrMalformedLine)
				assert.Zero(t, n)
				assert.Zero(t, stagingRows(t, db, id), "load must roll back")
			})
		}
	})
}

func TestLoadStagingReplacesPreviousAttempt(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		id, err := db.StartScan(ctx, "/data", time.Now())
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			n, err := db.LoadStaging(ctx, id, strings.NewReader(stagingLines(id,
				rec("/data/a", 1, t1), rec("/data/b", 2, t1))))
			require.NoError(t, err, "attempt %d", i)
			assert.Equal(t, int64(2), n, "attempt %d", i)
		}
		assert.Equal(t, int64(2), stagingRows(t, db, id))
	})
}

func TestClearStagingIsScoped(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		a, _ := db.StartScan(ctx, "/a", time.Now())
		b, _ := db.StartScan(ctx, "/b", time.Now())
		_, err := db.LoadStaging(ctx, a, strings.NewReader(stagingLines(a, rec("/a/1", 1, t1))))
		require.NoError(t, err)
		_, err = db.LoadStaging(ctx, b, strings.NewReader(stagingLines(b, rec("/b/1", 1, t1))))
		require.NoError(t, err)

		n, err := db.ClearStaging(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, int64(1), stagingRows(t, db, b))
	})
}

func TestEscapedPathsSurviveLoad(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		odd := "/data/tab\there\nnewline.txt"
		id, _ := runScan(t, db, "/data", rec(odd, 7, t1))

		changes, err := db.ListChanges(context.Background(), id, ChangeAdded, 0)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, odd, changes[0].Path)
	})
}

func TestListAndOpenScanRuns(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		done, _ := runScan(t, db, "/data")
		open, err := db.StartScan(ctx, "/data", time.Now())
		require.NoError(t, err)
		assert.Greater(t, open, done, "scan ids increase")

		runs, err := db.ListScanRuns(ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, open, runs[0].ScanID, "newest first")

		pending, err := db.OpenScanRuns(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, open, pending[0].ScanID)
		assert.True(t, pending[0].Open())

		stats := db.GetStats()
		assert.Equal(t, int64(1), stats.OpenScanRuns)
		assert.Equal(t, int64(1), stats.FinalizedScanRuns)

		_, err = db.GetScanRun(ctx, 12345)
		assert.ErrorIs(t, err, ErrScanNotFound)
	})
}

func TestReset(t *testing.T) {
	forEachDriver(t, func(t *testing.T, db *Database) {
		ctx := context.Background()
		runScan(t, db, "/data", rec("/data/a", 1, t1))

		require.NoError(t, db.Reset(ctx))
		runs, err := db.ListScanRuns(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, runs)
		assert.Zero(t, db.GetStats().TrackedFiles, "files survived reset")

		// A reset store starts a fresh baseline.
		_, totals := runScan(t, db, "/data", rec("/data/a", 1, t1))
		assert.Equal(t, int64(1), totals[ChangeAdded].Count)
	})
}

func TestRecordQuery(t *testing.T) {
	assert.NotPanics(t, func() {
		recordQuery("stats", time.Now(), nil)
		recordQuery("stats", time.Now(), errors.New("boom"))
	})
}
