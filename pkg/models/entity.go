package models

import "fmt"

// EntityRef names a course baseline or a submission in the code store.
type EntityRef struct {
	Mode Mode `json:"mode"`
	ID   int  `json:"id"`
}

// CourseRef returns the reference of a course baseline repository.
func CourseRef(id int) EntityRef { return EntityRef{Mode: ModeCourse, ID: id} }

// SubmissionRef returns the reference of a submission.
func SubmissionRef(id int) EntityRef { return EntityRef{Mode: ModeSubmission, ID: id} }

// String implements fmt.Stringer.
func (r EntityRef) String() string { return fmt.Sprintf("%s/%d", r.Mode, r.ID) }

// ProcessedKey marks an entity whose files have been fully indexed.
type ProcessedKey = EntityRef

// SubmissionState is the review state of a submission.
type SubmissionState string

const (
	StatePending  SubmissionState = "pending"
	StateInvalid  SubmissionState = "invalid"
	StateOpen     SubmissionState = "open"
	StateClosed   SubmissionState = "closed"
	StateObsolete SubmissionState = "obsolete"
	StateDeleted  SubmissionState = "deleted"
)

// String implements fmt.Stringer.
func (s SubmissionState) String() string { return string(s) }

// Course is a course with a baseline repository.
type Course struct {
	ID      int    `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	RepoURL string `json:"repo_url,omitempty" yaml:"repo_url,omitempty"`
	// Revision pins the baseline to a commit; empty means the default branch head.
	Revision string `json:"revision,omitempty" yaml:"revision,omitempty"`
}

// Denizen is a student identity.
type Denizen struct {
	ID int `json:"id" yaml:"id"`
	// Name is the student's display id.
	Name string `json:"name" yaml:"name"`
}

// Project is a student's project within a course.
type Project struct {
	ID       int     `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	CourseID int     `json:"course_id" yaml:"course_id"`
	Deleted  bool    `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Denizen  Denizen `json:"denizen" yaml:"denizen"`
	RepoURL  string  `json:"repo_url,omitempty" yaml:"repo_url,omitempty"`
}

// Submission is one submitted revision of a project.
type Submission struct {
	ID       int             `json:"id" yaml:"id"`
	State    SubmissionState `json:"state" yaml:"state"`
	Revision string          `json:"revision,omitempty" yaml:"revision,omitempty"`
	Project  Project         `json:"project" yaml:"project"`
}

// Ref returns the submission's code store reference.
func (s Submission) Ref() EntityRef { return SubmissionRef(s.ID) }

// Eligible reports whether the submission takes part in a course clone check:
// open or closed, and not belonging to a deleted project.
func (s Submission) Eligible() bool {
	if s.Project.Deleted {
		return false
	}
	return s.State == StateOpen || s.State == StateClosed
}
