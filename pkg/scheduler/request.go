package scheduler

import "fmt"

// Priorities of the request kinds. Lower runs first.
const (
	PriorityCourseBase       = 1
	PrioritySubmission       = 2
	PrioritySubmissionReport = 3
	PriorityCourseReport     = 4
)

// Request is a unit of clone-check work. The concrete types are
// ProcessCourseBaseRepo, ProcessSubmission, BuildSubmissionReport and
// BuildCourseReport.
type Request interface {
	Priority() int
	fmt.Stringer
	isRequest()
}

// ProcessCourseBaseRepo indexes the baseline repository of a course.
type ProcessCourseBaseRepo struct {
	CourseID int `json:"course_id"`
}

func (ProcessCourseBaseRepo) Priority() int { return PriorityCourseBase }
func (r ProcessCourseBaseRepo) String() string {
	return fmt.Sprintf("ProcessCourseBaseRepo(course=%d)", r.CourseID)
}
func (ProcessCourseBaseRepo) isRequest() {}

// ProcessSubmission indexes one submission.
type ProcessSubmission struct {
	SubmissionID int `json:"submission_id"`
	DenizenID    int `json:"denizen_id"`
}

func (ProcessSubmission) Priority() int { return PrioritySubmission }
func (r ProcessSubmission) String() string {
	return fmt.Sprintf("ProcessSubmission(submission=%d)", r.SubmissionID)
}
func (ProcessSubmission) isRequest() {}

// BuildSubmissionReport rebuilds the report row of one submission.
type BuildSubmissionReport struct {
	SubmissionID int `json:"submission_id"`
}

func (BuildSubmissionReport) Priority() int { return PrioritySubmissionReport }
func (r BuildSubmissionReport) String() string {
	return fmt.Sprintf("BuildSubmissionReport(submission=%d)", r.SubmissionID)
}
func (BuildSubmissionReport) isRequest() {}

// BuildCourseReport extracts clones and persists the reports of a course.
type BuildCourseReport struct {
	CourseID int `json:"course_id"`
}

func (BuildCourseReport) Priority() int { return PriorityCourseReport }
func (r BuildCourseReport) String() string {
	return fmt.Sprintf("BuildCourseReport(course=%d)", r.CourseID)
}
func (BuildCourseReport) isRequest() {}
