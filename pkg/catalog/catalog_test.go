package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/klone/pkg/models"
)

const yamlManifest = `
courses:
  - id: 1
    name: Functional Programming
    repo_url: https://example.com/fp-base.git
submissions:
  - id: 10
    state: open
    revision: abc123
    project:
      id: 100
      name: fp-alice
      course_id: 1
      repo_url: https://example.com/alice.git
      denizen: {id: 1000, name: alice}
  - id: 11
    state: closed
    project:
      id: 101
      name: fp-bob
      course_id: 1
      denizen: {id: 1001, name: bob}
  - id: 12
    state: pending
    project:
      id: 102
      name: fp-carol
      course_id: 1
      denizen: {id: 1002, name: carol}
  - id: 13
    state: open
    project:
      id: 103
      name: fp-dave
      course_id: 1
      deleted: true
      denizen: {id: 1003, name: dave}
`

func TestParseManifestYAML(t *testing.T) {
	m, err := ParseManifest([]byte(yamlManifest), "yaml")
	require.NoError(t, err)
	require.Len(t, m.Courses, 1)
	require.Len(t, m.Submissions, 4)
	assert.Equal(t, "alice", m.Submissions[0].Project.Denizen.Name)
	assert.Equal(t, models.StateOpen, m.Submissions[0].State)
	assert.True(t, m.Submissions[3].Project.Deleted)
}

func TestParseManifestJSON(t *testing.T) {
	m, err := ParseManifest([]byte(`{"courses":[{"id":2,"name":"OOP"}]}`), "json")
	require.NoError(t, err)
	assert.Equal(t, "OOP", m.Courses[0].Name)
}

func TestParseManifestInvalid(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
	}{
		{"missing courses", `{"submissions": []}`, "json"},
		{"bad state", "courses: []\nsubmissions:\n  - id: 1\n    state: lost\n    project: {id: 1, course_id: 1, denizen: {id: 1}}\n", "yaml"},
		{"string id", "courses:\n  - id: one\n    name: x\n", "yaml"},
		{"unknown format", `courses = []`, "toml"},
		{"broken json", `{`, "json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlManifest), 0o644))

	cat, err := LoadManifest(path)
	require.NoError(t, err)
	ctx := context.Background()

	subs, err := cat.Submissions(ctx, 1)
	require.NoError(t, err)
	ids := []int{}
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int{10, 11}, ids, "only open or closed submissions of live projects")

	_, err = cat.Submissions(ctx, 9)
	assert.ErrorIs(t, err, ErrNotFound)

	s, err := cat.Submission(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, "fp-carol", s.Project.Name)

	_, err = cat.Course(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocate(t *testing.T) {
	m, err := ParseManifest([]byte(yamlManifest), "yaml")
	require.NoError(t, err)
	cat := NewMemory(m.Courses, m.Submissions)
	ctx := context.Background()

	url, rev, err := cat.Locate(ctx, models.SubmissionRef(10))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/alice.git", url)
	assert.Equal(t, "abc123", rev)

	url, _, err = cat.Locate(ctx, models.CourseRef(1))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/fp-base.git", url)

	_, _, err = cat.Locate(ctx, models.SubmissionRef(11))
	assert.Error(t, err)
	_, _, err = cat.Locate(ctx, models.CourseRef(5))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestByID(t *testing.T) {
	m := ByID([]models.Submission{{ID: 3}, {ID: 5}})
	assert.Len(t, m, 2)
	assert.Equal(t, 5, m[5].ID)
}
