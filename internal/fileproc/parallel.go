// Package fileproc provides bounded concurrent file processing.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e ProcessingError) Unwrap() error { return e.Err }

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap returns the collected errors so errors.Is and errors.As see each of them.
func (e *ProcessingErrors) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe
	}
	return out
}

// sort orders errors by path so reports are stable.
func (e *ProcessingErrors) sort() {
	e.mu.Lock()
	sort.SliceStable(e.Errors, func(i, j int) bool { return e.Errors[i].Path < e.Errors[j].Path })
	e.mu.Unlock()
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
const DefaultWorkerMultiplier = 2

// ProgressFunc is called after each file is processed.
type ProgressFunc func()

// Options tunes a Map call.
type Options struct {
	// Workers bounds concurrent calls; <= 0 means 2x NumCPU.
	Workers int
	// OnProgress, when set, is called once per file whether it failed or not.
	OnProgress ProgressFunc
}

// Map calls fn for every file with bounded concurrency and waits for all of
// them. Results keep the order of files; files whose fn failed are left out
// and reported in the returned ProcessingErrors, which is nil when every file
// succeeded. Files not yet started when ctx is canceled fail with ctx.Err().
func Map[T any](ctx context.Context, files []string, opts Options, fn func(context.Context, string) (T, error)) ([]T, *ProcessingErrors) {
	if len(files) == 0 {
		return nil, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * DefaultWorkerMultiplier
	}

	// Indexed slots avoid a results mutex and preserve input order.
	slots := make([]T, len(files))
	ok := make([]bool, len(files))
	errs := &ProcessingErrors{}

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for i, path := range files {
		p.Go(func(ctx context.Context) error {
			if opts.OnProgress != nil {
				defer opts.OnProgress()
			}
			if err := ctx.Err(); err != nil {
				errs.Add(path, err)
				return nil
			}

			result, err := fn(ctx, path)
			if err != nil {
				errs.Add(path, err)
				return nil // one file never stops the others
			}
			slots[i] = result
			ok[i] = true
			return nil
		})
	}
	_ = p.Wait()

	results := make([]T, 0, len(files))
	for i := range slots {
		if ok[i] {
			results = append(results, slots[i])
		}
	}

	if !errs.HasErrors() {
		return results, nil
	}
	errs.sort()
	return results, errs
}
