// Package checker runs course clone checks: it turns check requests into
// scheduler requests, indexes course baselines and submissions from the code
// store, and builds the clone reports.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/panbanda/klone/internal/fileproc"
	"github.com/panbanda/klone/pkg/catalog"
	"github.com/panbanda/klone/pkg/codestore"
	"github.com/panbanda/klone/pkg/extract"
	"github.com/panbanda/klone/pkg/index"
	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/reportstore"
	"github.com/panbanda/klone/pkg/scheduler"
	"github.com/panbanda/klone/pkg/tokenizer"
)

// Tokenizers picks and runs the tokenizer of a file.
type Tokenizers interface {
	Supports(path string) bool
	Tokenize(ctx context.Context, src tokenizer.Source) ([]models.SourceUnit, error)
}

// Checker is the clone-check engine. It implements scheduler.Handler.
type Checker struct {
	catalog catalog.Catalog
	store   codestore.Store
	tokens  Tokenizers
	reports reportstore.Store

	index *index.Index
	sched *scheduler.Scheduler

	schedCfg    scheduler.Config
	schedOpts   []scheduler.Option
	policy      extract.BaselinePolicy
	resultType  string
	concurrency int
	logger      *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSchedulerConfig sets the drain loop timings and retry policy.
func WithSchedulerConfig(cfg scheduler.Config) Option {
	return func(c *Checker) {
		c.schedCfg = cfg
	}
}

// WithSchedulerOptions passes extra options to the scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(c *Checker) {
		c.schedOpts = append(c.schedOpts, opts...)
	}
}

// WithBaselinePolicy sets how baseline code is treated in reports.
func WithBaselinePolicy(p extract.BaselinePolicy) Option {
	return func(c *Checker) {
		if p.Valid() {
			c.policy = p
		}
	}
}

// WithResultType sets the type tag written on report rows.
func WithResultType(t string) Option {
	return func(c *Checker) {
		if t != "" {
			c.resultType = t
		}
	}
}

// WithConcurrency bounds concurrent file reads within one request.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		c.concurrency = n
	}
}

// New creates a checker with its own index and scheduler.
func New(cat catalog.Catalog, store codestore.Store, tokens Tokenizers, reports reportstore.Store, opts ...Option) *Checker {
	c := &Checker{
		catalog:    cat,
		store:      store,
		tokens:     tokens,
		reports:    reports,
		schedCfg:   scheduler.DefaultConfig(),
		policy:     extract.BaselineStrip,
		resultType: models.KloneCheckResultType,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.index = index.New(c.logger)
	schedOpts := append([]scheduler.Option{scheduler.WithLogger(c.logger)}, c.schedOpts...)
	c.sched = scheduler.New(c, c.schedCfg, schedOpts...)
	return c
}

// Scheduler returns the request queue.
func (c *Checker) Scheduler() *scheduler.Scheduler { return c.sched }

// Index returns the clone index.
func (c *Checker) Index() *index.Index { return c.index }

// Close stops the index worker.
func (c *Checker) Close() { c.index.Close() }

// Run drives the scheduler until ctx is canceled.
func (c *Checker) Run(ctx context.Context) error { return c.sched.Run(ctx) }

// Drain runs queued requests until the queue is empty.
func (c *Checker) Drain(ctx context.Context) error { return c.sched.RunUntilIdle(ctx) }

// RequestCheck enqueues a full check of a course: its baseline repository,
// every eligible submission, then the course report. It returns the
// enqueued requests.
func (c *Checker) RequestCheck(ctx context.Context, courseID int) ([]scheduler.Request, error) {
	if _, err := c.catalog.Course(ctx, courseID); err != nil {
		return nil, fmt.Errorf("course %d: %w", courseID, err)
	}
	subs, err := c.catalog.Submissions(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("submissions of course %d: %w", courseID, err)
	}

	reqs := make([]scheduler.Request, 0, len(subs)+2)
	reqs = append(reqs, scheduler.ProcessCourseBaseRepo{CourseID: courseID})
	for _, s := range subs {
		reqs = append(reqs, scheduler.ProcessSubmission{SubmissionID: s.ID, DenizenID: s.Project.Denizen.ID})
	}
	reqs = append(reqs, scheduler.BuildCourseReport{CourseID: courseID})

	c.sched.Enqueue(reqs...)
	c.logger.Info("clone check requested", "course", courseID, "submissions", len(subs))
	return reqs, nil
}

// RequestSubmissionCheck enqueues indexing of one submission followed by a
// rebuild of its report.
func (c *Checker) RequestSubmissionCheck(ctx context.Context, submissionID int) ([]scheduler.Request, error) {
	sub, err := c.catalog.Submission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("submission %d: %w", submissionID, err)
	}
	reqs := []scheduler.Request{
		scheduler.ProcessCourseBaseRepo{CourseID: sub.Project.CourseID},
		scheduler.ProcessSubmission{SubmissionID: sub.ID, DenizenID: sub.Project.Denizen.ID},
		scheduler.BuildSubmissionReport{SubmissionID: sub.ID},
	}
	c.sched.Enqueue(reqs...)
	return reqs, nil
}

// Handle implements scheduler.Handler.
func (c *Checker) Handle(ctx context.Context, req scheduler.Request) error {
	switch r := req.(type) {
	case scheduler.ProcessCourseBaseRepo:
		return c.processEntity(ctx, models.CourseRef(r.CourseID), models.NoDenizen)
	case scheduler.ProcessSubmission:
		return c.processEntity(ctx, models.SubmissionRef(r.SubmissionID), r.DenizenID)
	case scheduler.BuildSubmissionReport:
		return c.buildSubmissionReport(ctx, r.SubmissionID)
	case scheduler.BuildCourseReport:
		return c.buildCourseReport(ctx, r.CourseID)
	default:
		return fmt.Errorf("unknown request %T", req)
	}
}

// Report returns the stored report row of a submission.
func (c *Checker) Report(ctx context.Context, submissionID int) (models.ReportRow, error) {
	return c.reports.Get(ctx, submissionID, c.resultType)
}

// Summary returns the stored summary of a course.
func (c *Checker) Summary(ctx context.Context, courseID int) (models.CourseSummary, error) {
	return c.reports.Summary(ctx, courseID)
}

// processEntity indexes the files of ref once. Unavailable listings are
// reported as scheduler.ErrNotReady.
func (c *Checker) processEntity(ctx context.Context, ref models.EntityRef, denizenID int) error {
	log := c.logger.With("entity", ref.String())

	done, err := c.index.IsProcessed(ctx, ref)
	if err != nil {
		return err
	}
	if done {
		log.Debug("already indexed")
		return nil
	}

	listing, err := c.store.List(ctx, ref)
	if err != nil {
		return fmt.Errorf("list %s: %w", ref, err)
	}
	switch listing.Status {
	case codestore.StatusDone:
	case codestore.StatusFailed:
		log.Error("code store failed to provide files", "error", listing.Error)
		return fmt.Errorf("%s listing failed: %w", ref, scheduler.ErrNotReady)
	default:
		log.Debug("files pending")
		return fmt.Errorf("%s listing pending: %w", ref, scheduler.ErrNotReady)
	}

	var paths []string
	for _, p := range listing.Root.Paths() {
		if c.tokens.Supports(p) {
			paths = append(paths, p)
		}
	}

	perFile, errs := fileproc.Map(ctx, paths, fileproc.Options{Workers: c.concurrency}, func(ctx context.Context, path string) ([]models.SourceUnit, error) {
		text, err := c.store.Read(ctx, ref, path)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		log.Debug("tokenizing", "file", path)
		return c.tokens.Tokenize(ctx, tokenizer.Source{
			Text:      text,
			Filename:  path,
			Mode:      ref.Mode,
			OwnerID:   ref.ID,
			DenizenID: denizenID,
		})
	})
	if errs.HasErrors() {
		for _, pe := range errs.Errors {
			if !errors.Is(pe.Err, tokenizer.ErrParse) {
				return fmt.Errorf("index %s: %w", ref, errs)
			}
			log.Error("skipping file", "file", pe.Path, "error", pe.Err)
		}
	}

	var units []models.SourceUnit
	for _, us := range perFile {
		units = append(units, us...)
	}

	added, skipped, err := c.index.Ingest(ctx, ref, units)
	if err != nil {
		return err
	}
	if skipped {
		log.Debug("already indexed")
		return nil
	}
	log.Info("indexed", "files", len(paths), "units", added)
	return nil
}

// extract runs the extractor over the index restricted to subs.
func (c *Checker) extract(ctx context.Context, subs []models.Submission) (extract.Result, error) {
	ids := make([]int, len(subs))
	for i, s := range subs {
		ids[i] = s.ID
	}
	ex := extract.New(
		extract.WithBaselinePolicy(c.policy),
		extract.WithScope(ids),
		extract.WithLogger(c.logger),
	)

	var res extract.Result
	err := c.index.View(ctx, func(st *index.State) {
		res = ex.Extract(st)
	})
	return res, err
}

// buildCourseReport re-reads the course's eligible submissions, extracts
// their clones and persists one row per submission plus the course summary.
// Submissions without clones get an empty row, replacing earlier results.
func (c *Checker) buildCourseReport(ctx context.Context, courseID int) error {
	subs, err := c.catalog.Submissions(ctx, courseID)
	if err != nil {
		return fmt.Errorf("submissions of course %d: %w", courseID, err)
	}

	res, err := c.extract(ctx, subs)
	if err != nil {
		return err
	}

	rows := extract.Rows(res, catalog.ByID(subs), c.resultType)
	written := make(map[int]bool, len(rows))
	for _, row := range rows {
		if err := c.reports.Put(ctx, row); err != nil {
			return fmt.Errorf("store report of submission %d: %w", row.SubmissionID, err)
		}
		written[row.SubmissionID] = true
	}
	for _, s := range subs {
		if written[s.ID] {
			continue
		}
		empty := models.ReportRow{SubmissionID: s.ID, Type: c.resultType, Body: [][]models.CloneInfo{}}
		if err := c.reports.Put(ctx, empty); err != nil {
			return fmt.Errorf("store report of submission %d: %w", s.ID, err)
		}
	}

	summary := extract.Summarize(courseID, res)
	if err := c.reports.PutSummary(ctx, summary); err != nil {
		return fmt.Errorf("store summary of course %d: %w", courseID, err)
	}
	c.logger.Info("course report built",
		"course", courseID,
		"classes", summary.CloneClasses,
		"flagged", len(summary.FlaggedSubmissions),
	)
	return nil
}

// buildSubmissionReport rebuilds the row of one submission against the
// other eligible submissions of its course.
func (c *Checker) buildSubmissionReport(ctx context.Context, submissionID int) error {
	sub, err := c.catalog.Submission(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("submission %d: %w", submissionID, err)
	}
	done, err := c.index.IsProcessed(ctx, sub.Ref())
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("%s not indexed: %w", sub.Ref(), scheduler.ErrNotReady)
	}

	subs, err := c.catalog.Submissions(ctx, sub.Project.CourseID)
	if err != nil {
		return fmt.Errorf("submissions of course %d: %w", sub.Project.CourseID, err)
	}
	meta := catalog.ByID(subs)
	if _, ok := meta[sub.ID]; !ok {
		subs = append(subs, sub)
		meta[sub.ID] = sub
	}

	res, err := c.extract(ctx, subs)
	if err != nil {
		return err
	}

	row := models.ReportRow{SubmissionID: sub.ID, Type: c.resultType, Body: [][]models.CloneInfo{}}
	for _, r := range extract.Rows(res, meta, c.resultType) {
		if r.SubmissionID == sub.ID {
			row = r
			break
		}
	}
	if err := c.reports.Put(ctx, row); err != nil {
		return fmt.Errorf("store report of submission %d: %w", sub.ID, err)
	}
	c.logger.Info("submission report built", "submission", sub.ID, "classes", len(row.Body))
	return nil
}

// Queue returns the scheduler counters and the queued requests in run order.
func (c *Checker) Queue() (scheduler.Stats, []scheduler.TaskInfo) {
	return c.sched.Stats(), c.sched.Pending()
}

// IndexStats returns the clone index counters.
func (c *Checker) IndexStats(ctx context.Context) (index.Stats, error) {
	return c.index.Stats(ctx)
}
