// Package catalog provides course and submission metadata: which
// submissions belong to a course, their review state, and who owns them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/panbanda/klone/pkg/models"
)

// ErrNotFound is returned for unknown courses and submissions.
var ErrNotFound = errors.New("not found")

// Catalog answers metadata queries.
type Catalog interface {
	Course(ctx context.Context, id int) (models.Course, error)
	Submission(ctx context.Context, id int) (models.Submission, error)
	// Submissions returns the eligible submissions of a course.
	Submissions(ctx context.Context, courseID int) ([]models.Submission, error)
}

// Memory is an in-memory Catalog. It also resolves repository locations
// for the git code store.
type Memory struct {
	mu          sync.RWMutex
	courses     map[int]models.Course
	submissions map[int]models.Submission
}

// NewMemory creates a catalog holding courses and submissions.
func NewMemory(courses []models.Course, submissions []models.Submission) *Memory {
	m := &Memory{
		courses:     make(map[int]models.Course, len(courses)),
		submissions: make(map[int]models.Submission, len(submissions)),
	}
	for _, c := range courses {
		m.courses[c.ID] = c
	}
	for _, s := range submissions {
		m.submissions[s.ID] = s
	}
	return m
}

// PutSubmission adds or replaces a submission.
func (m *Memory) PutSubmission(s models.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[s.ID] = s
}

// Course implements Catalog.
func (m *Memory) Course(_ context.Context, id int) (models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return models.Course{}, fmt.Errorf("course %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// Submission implements Catalog.
func (m *Memory) Submission(_ context.Context, id int) (models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.submissions[id]
	if !ok {
		return models.Submission{}, fmt.Errorf("submission %d: %w", id, ErrNotFound)
	}
	return s, nil
}

// Submissions implements Catalog. Results are ordered by id.
func (m *Memory) Submissions(_ context.Context, courseID int) ([]models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.courses[courseID]; !ok {
		return nil, fmt.Errorf("course %d: %w", courseID, ErrNotFound)
	}
	var out []models.Submission
	for _, s := range m.submissions {
		if s.Project.CourseID == courseID && s.Eligible() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Locate returns the repository URL and revision of a course baseline or a
// submission.
func (m *Memory) Locate(ctx context.Context, ref models.EntityRef) (string, string, error) {
	switch ref.Mode {
	case models.ModeCourse:
		c, err := m.Course(ctx, ref.ID)
		if err != nil {
			return "", "", err
		}
		if c.RepoURL == "" {
			return "", "", fmt.Errorf("course %d has no repository", ref.ID)
		}
		return c.RepoURL, c.Revision, nil
	default:
		s, err := m.Submission(ctx, ref.ID)
		if err != nil {
			return "", "", err
		}
		if s.Project.RepoURL == "" {
			return "", "", fmt.Errorf("project %d has no repository", s.Project.ID)
		}
		return s.Project.RepoURL, s.Revision, nil
	}
}

// ByID indexes submissions by id.
func ByID(subs []models.Submission) map[int]models.Submission {
	out := make(map[int]models.Submission, len(subs))
	for _, s := range subs {
		out[s.ID] = s
	}
	return out
}
