package crawler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fs-delta-tracker/internal/metrics"
	"fs-delta-tracker/internal/record"
)

// buildTree creates files relative to root and returns their absolute paths.
func buildTree(t *testing.T, root string, files map[string]int) []string {
	t.Helper()
	paths := make([]string, 0, len(files))
	for rel, size := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func readArtifact(t *testing.T, path string) []record.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var recs []record.Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		rec, err := record.ParseLine(sc.Text())
		require.NoError(t, err, "line %q", sc.Text())
		recs = append(recs, rec)
	}
	require.NoError(t, sc.Err())
	return recs
}

func pathsOf(recs []record.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Path)
	}
	sort.Strings(out)
	return out
}

func TestCrawlEmitsOneRecordPerRegularFile(t *testing.T) {
	root := t.TempDir()
	want := buildTree(t, root, map[string]int{
		"a.txt":              100,
		"b.txt":              200,
		"docs/readme":        5,
		"docs/deep/x/y/z.go": 42,
		".hidden/.env":       3,
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "nested"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link-to-a")))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling")))
	require.NoError(t, os.Symlink(filepath.Join(root, "docs"), filepath.Join(root, "link-to-docs")))

	out := filepath.Join(t.TempDir(), "staging", "scan_1.tsv")
	res, err := Crawl(context.Background(), Options{
		Root:    root,
		ScanID:  1,
		Output:  out,
		Workers: 4,
	})
	require.NoError(t, err)

	recs := readArtifact(t, out)
	assert.Equal(t, int64(len(want)), res.Total)
	assert.Len(t, recs, len(want))
	assert.Equal(t, want, pathsOf(recs))
	assert.Equal(t, int64(3), res.Skipped, "three symlinks skipped")

	for _, r := range recs {
		assert.Equal(t, int64(1), r.ScanID)
		if r.Path == filepath.Join(root, "a.txt") {
			assert.Equal(t, int64(100), r.Size)
			assert.Equal(t, "txt", r.Extension)
		}
		if r.Path == filepath.Join(root, ".hidden", ".env") {
			assert.Equal(t, record.UnknownExtension, r.Extension)
		}
	}

	assert.Equal(t, root, res.Metadata[MetaDataRoot])
	assert.Equal(t, fmt.Sprint(len(want)), res.Metadata[MetaTotalFiles])
	assert.Contains(t, res.Metadata, MetaCrawlDuration)
	assert.Contains(t, res.Metadata, MetaFilesPerSec)
}

func TestCrawlHardLinksYieldOneRecordPerPath(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]int{"orig.bin": 10})
	if err := os.Link(filepath.Join(root, "orig.bin"), filepath.Join(root, "alias.bin")); err != nil {
		t.Skipf("hard links unsupported: %v", err)
	}

	out := filepath.Join(t.TempDir(), "scan.tsv")
	res, err := Crawl(context.Background(), Options{Root: root, ScanID: 3, Output: out, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	assert.Len(t, readArtifact(t, out), 2)
}

func TestCrawlRootNotFound(t *testing.T) {
	out := filepath.Join(t.TempDir(), "scan.tsv")
	_, err := Crawl(context.Background(), Options{
		Root:   filepath.Join(t.TempDir(), "does-not-exist"),
		ScanID: 1,
		Output: out,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRootNotFound))

	_, statErr := os.Stat(out)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "artifact must not be created")
}

func TestCrawlRootIsAFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Crawl(context.Background(), Options{Root: file, ScanID: 1, Output: filepath.Join(dir, "o.tsv")})
	assert.True(t, errors.Is(err, ErrRootNotFound))
}

func TestCrawlEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "scan.tsv")

	res, err := Crawl(context.Background(), Options{Root: root, ScanID: 9, Output: out})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Total)
	assert.Equal(t, "0", res.Metadata[MetaTotalFiles])

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestCrawlTwiceYieldsSameRecordSet(t *testing.T) {
	root := t.TempDir()
	files := map[string]int{}
	for i := 0; i < 150; i++ {
		files[fmt.Sprintf("d%02d/f%03d.dat", i%7, i)] = i
	}
	buildTree(t, root, files)

	crawl := func(scanID int64) map[record.Record]bool {
		out := filepath.Join(t.TempDir(), "scan.tsv")
		_, err := Crawl(context.Background(), Options{Root: root, ScanID: scanID, Output: out, Workers: 8})
		require.NoError(t, err)
		set := map[record.Record]bool{}
		for _, r := range readArtifact(t, out) {
			r.ScanID = 0
			set[r] = true
		}
		return set
	}

	first := crawl(1)
	second := crawl(2)
	assert.Len(t, first, 150)
	assert.Equal(t, first, second)
}

func TestCrawlProgressNeverExceedsFinalTotal(t *testing.T) {
	root := t.TempDir()
	files := map[string]int{}
	for i := 0; i < 300; i++ {
		files[fmt.Sprintf("p%d/f%d", i%10, i)] = 1
	}
	buildTree(t, root, files)

	core, logs := observer.New(zapcore.InfoLevel)

	var (
		mu      sync.Mutex
		samples []Progress
	)
	res, err := Crawl(context.Background(), Options{
		Root:             root,
		ScanID:           5,
		Output:           filepath.Join(t.TempDir(), "scan.tsv"),
		Workers:          3,
		RateLimit:        3000,
		ProgressInterval: time.Millisecond,
		OnProgress: func(p Progress) {
			mu.Lock()
			samples = append(samples, p)
			mu.Unlock()
		},
		Logger: zap.New(core),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), res.Total)

	mu.Lock()
	defer mu.Unlock()
	for _, s := range samples {
		assert.LessOrEqual(t, s.Files, res.Total)
	}

	finals := logs.FilterMessageSnippet("Final stats:").All()
	require.Len(t, finals, 1)
	assert.Contains(t, finals[0].Message, "Final stats: 300 files in")
	assert.Equal(t, int64(300), finals[0].ContextMap()["files"])

	// no progress line may follow the summary
	all := logs.All()
	assert.Contains(t, all[len(all)-1].Message, "Final stats:")
}

func TestCrawlWriterFailureStopsWalk(t *testing.T) {
	root := t.TempDir()
	files := map[string]int{}
	for i := 0; i < 500; i++ {
		files[fmt.Sprintf("f%d", i)] = 1
	}
	buildTree(t, root, files)

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	done := make(chan error, 1)
	go func() {
		_, err := Crawl(context.Background(), Options{
			Root:          root,
			ScanID:        1,
			Output:        filepath.Join(blocker, "scan.tsv"),
			Workers:       4,
			ChannelBuffer: 1,
		})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrWriterIO))
	case <-time.After(10 * time.Second):
		t.Fatal("crawl did not terminate after writer failure")
	}
}

func TestCrawlCancelledContext(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]int{"a": 1, "b": 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Crawl(ctx, Options{Root: root, ScanID: 1, Output: filepath.Join(t.TempDir(), "o.tsv")})
	assert.True(t, errors.Is(err, context.Canceled))
}

// lockDir removes all permissions from dir until the test ends.
func lockDir(t *testing.T, dir string) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	require.NoError(t, os.Chmod(dir, 0))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
}

func TestCrawlSkipsUnreadableSubdirectory(t *testing.T) {
	root := t.TempDir()
	want := buildTree(t, root, map[string]int{
		"a.txt":      10,
		"open/b.txt": 20,
	})
	buildTree(t, root, map[string]int{
		"locked/secret.txt":   30,
		"locked/deeper/c.txt": 40,
	})
	locked := filepath.Join(root, "locked")
	lockDir(t, locked)

	walkErrors := metrics.CrawlEntriesSkipped.WithLabelValues("walk_error")
	before := testutil.ToFloat64(walkErrors)
	core, logs := observer.New(zapcore.WarnLevel)
	out := filepath.Join(t.TempDir(), "scan_1.tsv")

	res, err := Crawl(context.Background(), Options{
		Root:    root,
		ScanID:  1,
		Output:  out,
		Workers: 4,
		Logger:  zap.New(core),
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, int64(1), res.Skipped)
	assert.Equal(t, "1", res.Metadata[MetaSkipped])
	assert.Equal(t, want, pathsOf(readArtifact(t, out)))
	assert.Equal(t, 1.0, testutil.ToFloat64(walkErrors)-before)

	warnings := logs.FilterMessage("Error accessing path").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, locked, warnings[0].ContextMap()["path"])
}

func TestCrawlUnreadableRootIsTraversalError(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, map[string]int{"a.txt": 1, "sub/b.txt": 2})
	lockDir(t, root)

	res, err := Crawl(context.Background(), Options{
		Root:    root,
		ScanID:  1,
		Output:  filepath.Join(t.TempDir(), "scan_1.tsv"),
		Workers: 2,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTraversal)
	assert.NotErrorIs(t, err, ErrRootNotFound, "the root exists, only its listing fails")
	assert.Nil(t, res)
}
