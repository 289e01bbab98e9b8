package fileproc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = fmt.Sprintf("src/file%03d.kt", i)
	}
	return out
}

func TestMapPreservesOrder(t *testing.T) {
	files := names(100)
	results, errs := Map(context.Background(), files, Options{Workers: 8}, func(_ context.Context, path string) (string, error) {
		return path, nil
	})

	assert.Nil(t, errs)
	assert.Equal(t, files, results)
}

func TestMapEmpty(t *testing.T) {
	results, errs := Map(context.Background(), nil, Options{}, func(_ context.Context, path string) (int, error) {
		return 1, nil
	})
	assert.Nil(t, results)
	assert.Nil(t, errs)
}

func TestMapCollectsErrors(t *testing.T) {
	boom := errors.New("boom")
	files := names(10)

	results, errs := Map(context.Background(), files, Options{}, func(_ context.Context, path string) (string, error) {
		if path == files[3] || path == files[7] {
			return "", boom
		}
		return path, nil
	})

	require.NotNil(t, errs)
	assert.Len(t, results, 8)
	assert.NotContains(t, results, files[3])
	require.Len(t, errs.Errors, 2)
	assert.Equal(t, files[3], errs.Errors[0].Path)
	assert.Equal(t, files[7], errs.Errors[1].Path)
	assert.ErrorIs(t, errs, boom)
	assert.Contains(t, errs.Error(), "2 files failed")
}

func TestMapBoundsConcurrency(t *testing.T) {
	var cur, peak atomic.Int32
	_, errs := Map(context.Background(), names(40), Options{Workers: 3}, func(_ context.Context, _ string) (int, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		cur.Add(-1)
		return 0, nil
	})

	assert.Nil(t, errs)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestMapProgress(t *testing.T) {
	var calls atomic.Int32
	_, _ = Map(context.Background(), names(12), Options{OnProgress: func() { calls.Add(1) }}, func(_ context.Context, path string) (int, error) {
		if path == "src/file005.kt" {
			return 0, errors.New("skip")
		}
		return 1, nil
	})
	assert.Equal(t, int32(12), calls.Load())
}

func TestMapCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, errs := Map(ctx, names(5), Options{Workers: 1}, func(_ context.Context, path string) (string, error) {
		return path, nil
	})

	assert.Empty(t, results)
	require.NotNil(t, errs)
	assert.ErrorIs(t, errs, context.Canceled)
}

func TestProcessingErrors(t *testing.T) {
	var errs ProcessingErrors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no errors", errs.Error())

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs.Add(fmt.Sprintf("f%d", i), errors.New("x"))
		}()
	}
	wg.Wait()

	assert.True(t, errs.HasErrors())
	assert.Len(t, errs.Errors, 20)

	var nilErrs *ProcessingErrors
	assert.False(t, nilErrs.HasErrors())
	assert.Equal(t, "a.kt: bad", ProcessingError{Path: "a.kt", Err: errors.New("bad")}.Error())
}
