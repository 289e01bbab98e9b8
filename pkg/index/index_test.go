package index

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/klone/pkg/models"
)

func unit(file string, symbols ...string) models.SourceUnit {
	toks := make([]models.Token, len(symbols))
	for i, s := range symbols {
		toks[i] = models.Token{Symbol: s, Text: s, Span: models.Span{File: file, FromLine: i + 1, ToLine: i + 1}}
	}
	return models.SourceUnit{File: file, FunctionName: "f", Tokens: toks}
}

func TestAddUnits(t *testing.T) {
	ix := New(nil)
	defer ix.Close()
	ctx := context.Background()

	n, err := ix.AddUnits(ctx, []models.SourceUnit{
		unit("a.kt", "B", "x", "E"),
		unit("short.kt", "x"),
		unit("b.kt", "B", "y", "E"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Units)
	assert.Equal(t, 6, stats.Tokens)

	err = ix.View(ctx, func(st *State) {
		u, ok := st.Unit(1)
		assert.True(t, ok)
		assert.Equal(t, "b.kt", u.File)
		assert.Equal(t, 2, st.Tree().Len())

		_, ok = st.Unit(2)
		assert.False(t, ok)
	})
	require.NoError(t, err)
}

func TestProcessedKeys(t *testing.T) {
	ix := New(nil)
	defer ix.Close()
	ctx := context.Background()

	ok, err := ix.IsProcessed(ctx, models.SubmissionRef(7))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ix.MarkProcessed(ctx, models.SubmissionRef(7)))
	require.NoError(t, ix.MarkProcessed(ctx, models.SubmissionRef(7)))
	require.NoError(t, ix.MarkProcessed(ctx, models.CourseRef(7)))
	assert.Error(t, ix.MarkProcessed(ctx, models.SubmissionRef(-1)))

	ok, err = ix.IsProcessed(ctx, models.SubmissionRef(7))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ix.IsProcessed(ctx, models.CourseRef(8))
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ProcessedCourses)
	assert.Equal(t, 1, stats.ProcessedSubmissions)

	_ = ix.View(ctx, func(st *State) {
		assert.Equal(t, []int{7}, st.Processed(models.ModeSubmission))
	})
}

func TestConcurrentWriters(t *testing.T) {
	ix := New(nil)
	defer ix.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = ix.AddUnits(ctx, []models.SourceUnit{unit("f.kt", "B", "x", "y", "E")})
			_ = ix.MarkProcessed(ctx, models.SubmissionRef(i))
		}(i)
	}
	wg.Wait()

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Units)
	assert.Equal(t, 20, stats.ProcessedSubmissions)
}

func TestClosed(t *testing.T) {
	ix := New(nil)
	ix.Close()
	ix.Close()

	_, err := ix.IsProcessed(context.Background(), models.CourseRef(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestContextCanceled(t *testing.T) {
	ix := New(nil)
	defer ix.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = ix.View(context.Background(), func(*State) {
			close(started)
			<-block
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ix.IsProcessed(ctx, models.CourseRef(1))
	assert.ErrorIs(t, err, context.Canceled)
	close(block)
}

func TestIngest(t *testing.T) {
	ix := New(nil)
	defer ix.Close()
	ctx := context.Background()
	key := models.SubmissionRef(3)

	added, skipped, err := ix.Ingest(ctx, key, []models.SourceUnit{
		unit("a.kt", "B", "x", "E"),
		unit("short.kt", "x"),
	})
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, 1, added)

	ok, err := ix.IsProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	added, skipped, err = ix.Ingest(ctx, key, []models.SourceUnit{unit("a.kt", "B", "x", "E")})
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Zero(t, added)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Units)

	_, _, err = ix.Ingest(ctx, models.SubmissionRef(-1), nil)
	assert.Error(t, err)
}
