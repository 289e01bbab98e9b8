package reportstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/panbanda/klone/pkg/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS submission_results (
    submission_id INTEGER NOT NULL,
    type          TEXT    NOT NULL,
    body          TEXT    NOT NULL,
    updated_at    TEXT    NOT NULL,
    PRIMARY KEY (submission_id, type)
);
CREATE TABLE IF NOT EXISTS course_summaries (
    course_id  INTEGER PRIMARY KEY,
    body       TEXT    NOT NULL,
    updated_at TEXT    NOT NULL
);`

// SQL stores reports in SQLite or PostgreSQL.
type SQL struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

// OpenSQL opens a database and applies the schema. driver is "sqlite" or
// "postgres".
func OpenSQL(driver, dsn string) (*SQL, error) {
	name := driver
	if driver == "postgres" {
		name = "pgx"
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &SQL{db: db, dialect: driver, now: time.Now}, nil
}

// rebind rewrites ? placeholders for PostgreSQL.
func (s *SQL) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Put implements Store.
func (s *SQL) Put(ctx context.Context, row models.ReportRow) error {
	body, err := json.Marshal(row.Body)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
INSERT INTO submission_results (submission_id, type, body, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (submission_id, type) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`),
		row.SubmissionID, row.Type, string(body), s.stamp())
	if err != nil {
		return fmt.Errorf("store report %d: %w", row.SubmissionID, err)
	}
	return nil
}

// Get implements Store.
func (s *SQL) Get(ctx context.Context, submissionID int, resultType string) (models.ReportRow, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT body FROM submission_results WHERE submission_id = ? AND type = ?`),
		submissionID, resultType).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReportRow{}, fmt.Errorf("submission %d: %w", submissionID, ErrNotFound)
	}
	if err != nil {
		return models.ReportRow{}, err
	}
	row := models.ReportRow{SubmissionID: submissionID, Type: resultType}
	if err := json.Unmarshal([]byte(body), &row.Body); err != nil {
		return models.ReportRow{}, fmt.Errorf("decode report %d: %w", submissionID, err)
	}
	return row, nil
}

// List implements Store.
func (s *SQL) List(ctx context.Context, resultType string) ([]models.ReportRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT submission_id, body FROM submission_results WHERE type = ? ORDER BY submission_id`),
		resultType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ReportRow
	for rows.Next() {
		var (
			row  = models.ReportRow{Type: resultType}
			body string
		)
		if err := rows.Scan(&row.SubmissionID, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(body), &row.Body); err != nil {
			return nil, fmt.Errorf("decode report %d: %w", row.SubmissionID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PutSummary implements Store.
func (s *SQL) PutSummary(ctx context.Context, sum models.CourseSummary) error {
	body, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
INSERT INTO course_summaries (course_id, body, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (course_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`),
		sum.CourseID, string(body), s.stamp())
	if err != nil {
		return fmt.Errorf("store summary %d: %w", sum.CourseID, err)
	}
	return nil
}

// Summary implements Store.
func (s *SQL) Summary(ctx context.Context, courseID int) (models.CourseSummary, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT body FROM course_summaries WHERE course_id = ?`), courseID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CourseSummary{}, fmt.Errorf("course %d: %w", courseID, ErrNotFound)
	}
	if err != nil {
		return models.CourseSummary{}, err
	}
	var sum models.CourseSummary
	if err := json.Unmarshal([]byte(body), &sum); err != nil {
		return models.CourseSummary{}, fmt.Errorf("decode summary %d: %w", courseID, err)
	}
	return sum, nil
}

// Close implements Store.
func (s *SQL) Close() error { return s.db.Close() }
