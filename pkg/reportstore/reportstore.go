// Package reportstore persists clone report rows and course summaries.
package reportstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/panbanda/klone/pkg/models"
)

// ErrNotFound is returned when no row exists.
var ErrNotFound = errors.New("report not found")

// Store persists report rows keyed by submission id and result type.
// Put overwrites an existing row.
type Store interface {
	Put(ctx context.Context, row models.ReportRow) error
	Get(ctx context.Context, submissionID int, resultType string) (models.ReportRow, error)
	List(ctx context.Context, resultType string) ([]models.ReportRow, error)
	PutSummary(ctx context.Context, s models.CourseSummary) error
	Summary(ctx context.Context, courseID int) (models.CourseSummary, error)
	Close() error
}

// Open returns the store selected by driver: "memory", "sqlite" or "postgres".
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "postgres":
		return OpenSQL(driver, dsn)
	default:
		return nil, fmt.Errorf("unknown report store driver: %s", driver)
	}
}

type rowKey struct {
	submission int
	typ        string
}

// Memory is an in-memory Store.
type Memory struct {
	mu        sync.RWMutex
	rows      map[rowKey]models.ReportRow
	summaries map[int]models.CourseSummary
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		rows:      make(map[rowKey]models.ReportRow),
		summaries: make(map[int]models.CourseSummary),
	}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, row models.ReportRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rowKey{row.SubmissionID, row.Type}] = row
	return nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, submissionID int, resultType string) (models.ReportRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[rowKey{submissionID, resultType}]
	if !ok {
		return models.ReportRow{}, fmt.Errorf("submission %d: %w", submissionID, ErrNotFound)
	}
	return row, nil
}

// List implements Store. Rows are ordered by submission id.
func (m *Memory) List(_ context.Context, resultType string) ([]models.ReportRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ReportRow
	for k, row := range m.rows {
		if k.typ == resultType {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionID < out[j].SubmissionID })
	return out, nil
}

// PutSummary implements Store.
func (m *Memory) PutSummary(_ context.Context, s models.CourseSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.CourseID] = s
	return nil
}

// Summary implements Store.
func (m *Memory) Summary(_ context.Context, courseID int) (models.CourseSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[courseID]
	if !ok {
		return models.CourseSummary{}, fmt.Errorf("course %d: %w", courseID, ErrNotFound)
	}
	return s, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
