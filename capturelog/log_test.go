package capturelog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"

	"github.com/circleci/trafficharness/capture"
	"github.com/circleci/trafficharness/testing/testcontext"
)

func record(i int) capture.Record {
	return capture.Record{
		ID:              fmt.Sprintf("id-%d", i),
		Timestamp:       time.Date(2024, 3, 1, 12, 0, 0, i*1000, time.UTC),
		Port:            3000 + i%5,
		Method:          "POST",
		Path:            fmt.Sprintf("/r%d", i),
		RequestHeaders:  capture.Headers{{Name: "Content-Type", Value: "application/json"}},
		RequestBody:     capture.Body{Kind: capture.BodyJSON, Raw: []byte(fmt.Sprintf(`{"i":%d}`, i))},
		StatusCode:      200,
		ResponseHeaders: capture.Headers{{Name: "Content-Type", Value: "text/plain"}},
		ResponseBody:    strings.Repeat("x", i%7),
		Duration:        time.Duration(i) * time.Millisecond,
	}
}

func TestOpen_CreatesParents(t *testing.T) {
	dir := fs.NewDir(t, "capturelog")
	path := filepath.Join(dir.Path(), "a", "b", "requests.log")

	l, err := Open(path)
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(l.Path(), path))
	assert.Assert(t, l.Close())

	_, err = os.Stat(path)
	assert.Check(t, err)
}

func TestLog_AppendAndRead(t *testing.T) {
	ctx := testcontext.Background()
	path := filepath.Join(fs.NewDir(t, "capturelog").Path(), "requests.log")

	l, err := Open(path)
	assert.Assert(t, err)
	for i := 0; i < 3; i++ {
		assert.Assert(t, l.Append(ctx, record(i)))
	}
	assert.Assert(t, l.Sync(ctx))

	b, err := os.ReadFile(path)
	assert.Assert(t, err)
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	assert.Check(t, cmp.Len(lines, 3))
	assert.Check(t, cmp.Equal(l.Stats(), Stats{Lines: 3, Bytes: int64(len(b))}))

	got, err := ReadFile(path)
	assert.Assert(t, err)
	assert.Check(t, cmp.DeepEqual(got, []capture.Record{record(0), record(1), record(2)}))

	// reading is idempotent
	again, err := ReadFile(path)
	assert.Assert(t, err)
	assert.Check(t, cmp.DeepEqual(again, got))

	assert.Assert(t, l.Close())

	// reopening appends rather than truncates
	l, err = Open(path)
	assert.Assert(t, err)
	assert.Assert(t, l.Append(ctx, record(3)))
	assert.Assert(t, l.Close())
	got, err = ReadFile(path)
	assert.Assert(t, err)
	assert.Check(t, cmp.Len(got, 4))
}

func TestLog_ConcurrentAppends(t *testing.T) {
	ctx := testcontext.Background()
	path := filepath.Join(fs.NewDir(t, "capturelog").Path(), "requests.log")
	l, err := Open(path)
	assert.Assert(t, err)
	defer l.Close()

	const k = 200
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.Check(t, l.Append(ctx, record(i)))
		}(i)
	}
	wg.Wait()

	got, err := ReadFile(path)
	assert.Assert(t, err)
	assert.Assert(t, cmp.Len(got, k))
	seen := map[string]bool{}
	for _, r := range got {
		seen[r.ID] = true
	}
	assert.Check(t, cmp.Len(seen, k))
	assert.Check(t, cmp.Equal(l.Stats().Lines, int64(k)))
}

func TestLog_Closed(t *testing.T) {
	ctx := testcontext.Background()
	l, err := Open(filepath.Join(fs.NewDir(t, "capturelog").Path(), "requests.log"))
	assert.Assert(t, err)

	_, ready, live := l.HealthChecks()
	assert.Check(t, live == nil)
	assert.Check(t, ready(ctx))

	assert.Assert(t, l.Close())
	assert.Check(t, l.Close())
	assert.Check(t, cmp.ErrorIs(l.Append(ctx, record(1)), ErrClosed))
	assert.Check(t, cmp.ErrorIs(l.Sync(ctx), ErrClosed))
	assert.Check(t, cmp.ErrorIs(ready(ctx), ErrClosed))
}

func TestLog_CancelledAppendWritesNothing(t *testing.T) {
	l, err := Open(filepath.Join(fs.NewDir(t, "capturelog").Path(), "requests.log"))
	assert.Assert(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(testcontext.Background())
	cancel()
	assert.Check(t, cmp.ErrorIs(l.Append(ctx, record(1)), context.Canceled))
	assert.Check(t, cmp.Equal(l.Stats(), Stats{}))
}

func TestLog_Gauges(t *testing.T) {
	ctx := testcontext.Background()
	l, err := Open(filepath.Join(fs.NewDir(t, "capturelog").Path(), "requests.log"))
	assert.Assert(t, err)
	defer l.Close()
	assert.Assert(t, l.Append(ctx, record(1)))

	assert.Check(t, cmp.Equal(l.GaugeName(), "capture_log"))
	g := l.Gauges(ctx)
	assert.Check(t, cmp.Equal(g["lines"][0].Val, 1.0))
	assert.Check(t, cmp.Equal(g["bytes"][0].Val, float64(l.Stats().Bytes)))
	assert.Check(t, cmp.Equal(g["failures"][0].Val, 0.0))
}

func TestLog_SyncLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())
	l, err := Open(filepath.Join(fs.NewDir(t, "capturelog").Path(), "requests.log"))
	assert.Assert(t, err)
	defer l.Close()

	done := make(chan error)
	go func() {
		done <- l.SyncLoop(10 * time.Millisecond)(ctx)
	}()
	assert.Assert(t, l.Append(ctx, record(1)))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Check(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sync loop did not stop")
	}
}

func TestScan_Tolerance(t *testing.T) {
	line := func(i int) string {
		b, err := record(i).MarshalJSON()
		assert.Assert(t, err)
		return string(b)
	}

	t.Run("blank lines and partial tail", func(t *testing.T) {
		in := line(1) + "\n\n" + line(2) + "\n   \n" + `{"id":"half-writ`
		got, err := ReadAll(strings.NewReader(in))
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual(got, []capture.Record{record(1), record(2)}))
	})

	t.Run("malformed complete line", func(t *testing.T) {
		in := line(1) + "\n\nnot json\n" + line(2) + "\n"
		_, err := ReadAll(strings.NewReader(in))
		var perr *ParseError
		assert.Assert(t, errors.As(err, &perr))
		assert.Check(t, cmp.Equal(perr.Line, 3))
		assert.Check(t, cmp.ErrorContains(err, "capture log line 3"))
	})

	t.Run("callback error stops", func(t *testing.T) {
		stop := errors.New("stop")
		calls := 0
		err := Scan(strings.NewReader(line(1)+"\n"+line(2)+"\n"), func(capture.Record) error {
			calls++
			return stop
		})
		assert.Check(t, cmp.ErrorIs(err, stop))
		assert.Check(t, cmp.Equal(calls, 1))
	})

	t.Run("empty", func(t *testing.T) {
		got, err := ReadAll(strings.NewReader(""))
		assert.Check(t, err)
		assert.Check(t, cmp.Len(got, 0))
	})
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(fs.NewDir(t, "capturelog").Path(), "nope.log"))
	assert.Check(t, errors.Is(err, os.ErrNotExist))
}
