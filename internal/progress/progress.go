// Package progress shows how far a one-shot clone check has drained.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/panbanda/klone/pkg/scheduler"
)

// Tracker wraps a progress bar counting settled klone requests.
type Tracker struct {
	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	w       io.Writer
	label   string
	retries int
}

// NewTracker creates a progress bar on stderr for total requests.
func NewTracker(label string, total int) *Tracker {
	return NewTrackerTo(os.Stderr, label, total)
}

// NewTrackerTo creates a progress bar writing to w.
func NewTrackerTo(w io.Writer, label string, total int) *Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar, w: w, label: label}
}

// Observer returns a scheduler observer that advances the bar for every
// request that left the queue for good and shows the request being retried.
func (t *Tracker) Observer() scheduler.Observer {
	return func(req scheduler.Request, outcome scheduler.Outcome, queued int) {
		t.mu.Lock()
		defer t.mu.Unlock()
		switch outcome {
		case scheduler.Succeeded, scheduler.Failed:
			_ = t.bar.Add(1)
			t.bar.Describe(t.label)
		case scheduler.Retried, scheduler.Errored:
			t.retries++
			t.bar.Describe(fmt.Sprintf("%s (waiting on %s)", t.label, req))
		}
	}
}

// SetTotal changes the number of requests the bar counts to.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bar.ChangeMax(total)
}

// Retries returns how many retries were observed.
func (t *Tracker) Retries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retries
}

// Done returns the number of settled requests.
func (t *Tracker) Done() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.bar.State().CurrentNum)
}

// FinishSuccess clears the bar completely (no output).
func (t *Tracker) FinishSuccess() {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
}

// FinishError clears the bar and prints an error message.
func (t *Tracker) FinishError(err error) {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
	fmt.Fprintf(t.w, "  %s error: %v\n", t.label, err)
}
