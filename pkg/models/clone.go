package models

import "sort"

// KloneCheckResultType is the result type tag stored on clone report rows.
const KloneCheckResultType = "klonecheck"

// Clone is one occurrence of a repeated code fragment.
type Clone struct {
	SubmissionID int    `json:"submission_id"`
	DenizenID    int    `json:"denizen_id"`
	Mode         Mode   `json:"mode"`
	File         string `json:"file"`
	FromLine     int    `json:"from_line"`
	ToLine       int    `json:"to_line"`
	FunctionName string `json:"function_name"`
}

// CloneClass is the set of clones sharing one repeated token sequence.
type CloneClass struct {
	ID     uint64  `json:"id"`
	Length int     `json:"length"`
	Clones []Clone `json:"clones"`
}

// Submissions returns the distinct submission ids of the class in ascending order.
func (c CloneClass) Submissions() []int {
	seen := make(map[int]struct{}, len(c.Clones))
	var ids []int
	for _, cl := range c.Clones {
		if _, ok := seen[cl.SubmissionID]; ok {
			continue
		}
		seen[cl.SubmissionID] = struct{}{}
		ids = append(ids, cl.SubmissionID)
	}
	sort.Ints(ids)
	return ids
}

// FunctionNames returns the distinct function names of the class, in occurrence order.
func (c CloneClass) FunctionNames() []string {
	seen := make(map[string]struct{}, len(c.Clones))
	var names []string
	for _, cl := range c.Clones {
		if _, ok := seen[cl.FunctionName]; ok {
			continue
		}
		seen[cl.FunctionName] = struct{}{}
		names = append(names, cl.FunctionName)
	}
	return names
}

// CloneInfo is a clone occurrence as persisted in a report row.
// Denizen and Project are empty when submission metadata is unavailable.
type CloneInfo struct {
	SubmissionID int    `json:"submissionId"`
	Denizen      string `json:"denizen,omitempty"`
	Project      string `json:"project,omitempty"`
	File         string `json:"file"`
	FromLine     int    `json:"fromLine"`
	ToLine       int    `json:"toLine"`
	FunctionName string `json:"functionName"`
}

// ReportRow is the persisted clone report of one submission.
type ReportRow struct {
	SubmissionID int           `json:"submission_id"`
	Type         string        `json:"type"`
	Body         [][]CloneInfo `json:"body"`
}

// CourseSummary aggregates one course report build.
type CourseSummary struct {
	CourseID             int     `json:"course_id"`
	CloneClasses         int     `json:"clone_classes"`
	FlaggedSubmissions   []int   `json:"flagged_submissions"`
	Clusters             [][]int `json:"clusters"`
	IndexedSubmissions   int     `json:"indexed_submissions"`
	IgnoredBaselineCount int     `json:"ignored_baseline_count"`
}
