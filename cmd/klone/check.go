package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/klone/internal/output"
	"github.com/panbanda/klone/internal/progress"
	"github.com/panbanda/klone/pkg/config"
	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/reportstore"
	"github.com/panbanda/klone/pkg/scheduler"
)

func checkCmd() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Run a clone check over every eligible submission of a course",
		Description: `Indexes the course baseline repository and every open or closed
submission, then extracts clone classes and stores one report per submission.
The queue is drained in the foreground; submissions whose files are not
available yet are retried with backoff.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "course",
				Usage:    "Course id",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Give up on a request after this many failed runs (0 retries forever)",
			},
		},
		Action: runCheckCmd,
	}
}

func runCheckCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("max-attempts") {
		cfg.Scheduler.MaxAttempts = c.Int("max-attempts")
	}
	courseID := c.Int("course")

	tracker := progress.NewTracker(fmt.Sprintf("Checking course %d...", courseID), 1)
	e, err := newEngine(cfg, newLogger(cfg.Output.Verbose), scheduler.WithObserver(tracker.Observer()))
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	reqs, err := e.checker.RequestCheck(ctx, courseID)
	if err != nil {
		tracker.FinishError(err)
		return err
	}
	tracker.SetTotal(len(reqs))

	if err := e.checker.Drain(ctx); err != nil {
		tracker.FinishError(err)
		return fmt.Errorf("check interrupted: %w", err)
	}
	tracker.FinishSuccess()

	summary, err := e.checker.Summary(ctx, courseID)
	if err != nil {
		return fmt.Errorf("no summary for course %d: %w", courseID, err)
	}
	subs, err := e.catalog.Submissions(ctx, courseID)
	if err != nil {
		return err
	}
	rows := make([]models.ReportRow, 0, len(subs))
	for _, s := range subs {
		row, err := e.checker.Report(ctx, s.ID)
		if errors.Is(err, reportstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	if err := render(c, cfg, output.CourseCheck(summary, rows)); err != nil {
		return err
	}

	if stats := e.checker.Scheduler().Stats(); stats.Failed > 0 {
		color.Yellow("%d requests failed after %d attempts; reports may be incomplete", stats.Failed, cfg.Scheduler.MaxAttempts)
	}
	return nil
}

func reportCmd() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Print the stored clone report of a submission",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "submission",
				Usage:    "Submission id",
				Required: true,
			},
		},
		Action: runReportCmd,
	}
}

func runReportCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	reports, err := openReportStore(cfg.ReportStore)
	if err != nil {
		return err
	}
	defer reports.Close()

	id := c.Int("submission")
	row, err := reports.Get(c.Context, id, cfg.Report.ResultType)
	if errors.Is(err, reportstore.ErrNotFound) {
		color.Yellow("No report stored for submission %d", id)
		return nil
	}
	if err != nil {
		return err
	}
	return render(c, cfg, output.CloneReport(row))
}

func summaryCmd() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Print the stored clone summary of a course",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "course",
				Usage:    "Course id",
				Required: true,
			},
		},
		Action: runSummaryCmd,
	}
}

func runSummaryCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	reports, err := openReportStore(cfg.ReportStore)
	if err != nil {
		return err
	}
	defer reports.Close()

	id := c.Int("course")
	sum, err := reports.Summary(c.Context, id)
	if errors.Is(err, reportstore.ErrNotFound) {
		color.Yellow("No summary stored for course %d", id)
		return nil
	}
	if err != nil {
		return err
	}
	return render(c, cfg, output.CourseSummary(sum))
}

// render writes r to --output or stdout in the configured format.
func render(c *cli.Context, cfg *config.Config, r output.Renderable) error {
	formatter, err := output.NewFormatter(output.ParseFormat(cfg.Output.Format), c.String("output"), cfg.Output.Color)
	if err != nil {
		return err
	}
	defer formatter.Close()
	return formatter.Output(r)
}
