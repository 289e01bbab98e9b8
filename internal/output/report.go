package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/scheduler"
)

var cloneHeaders = []string{"Submission", "Student", "Project", "File", "Lines", "Function"}

func lines(from, to int) string {
	if from == to {
		return strconv.Itoa(from)
	}
	return fmt.Sprintf("%d-%d", from, to)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// CloneReport renders the stored report of one submission, one table per
// clone class. Occurrences in the submission itself are highlighted.
func CloneReport(row models.ReportRow) Renderable {
	r := &Report{
		Title: fmt.Sprintf("Clone report: submission %d", row.SubmissionID),
		Data:  row,
	}
	if len(row.Body) == 0 {
		r.Sections = append(r.Sections, &Section{Content: "No clones found."})
		return r
	}
	for i, class := range row.Body {
		rows := make([][]string, 0, len(class))
		for _, ci := range class {
			rows = append(rows, []string{
				strconv.Itoa(ci.SubmissionID),
				orDash(ci.Denizen),
				orDash(ci.Project),
				ci.File,
				lines(ci.FromLine, ci.ToLine),
				ci.FunctionName,
			})
		}
		table := NewTable(fmt.Sprintf("Clone class %d", i+1), cloneHeaders, rows, nil, class)
		table.Highlight = func(j int) bool { return class[j].SubmissionID == row.SubmissionID }
		r.Sections = append(r.Sections, table)
	}
	return r
}

// CourseSummary renders the outcome of a course report build.
func CourseSummary(s models.CourseSummary) Renderable {
	clusters := make([][]string, 0, len(s.Clusters))
	for i, c := range s.Clusters {
		clusters = append(clusters, []string{strconv.Itoa(i + 1), strconv.Itoa(len(c)), joinIDs(c)})
	}

	facts := []Fact{
		{Label: "Indexed submissions", Value: strconv.Itoa(s.IndexedSubmissions)},
		{Label: "Clone classes", Value: strconv.Itoa(s.CloneClasses)},
		{Label: "Flagged submissions", Value: orDash(joinIDs(s.FlaggedSubmissions))},
		{Label: "Baseline classes ignored", Value: strconv.Itoa(s.IgnoredBaselineCount)},
	}

	return &Report{
		Title: fmt.Sprintf("Course %d clone summary", s.CourseID),
		Sections: []Renderable{
			&Section{Facts: facts},
			NewTable("Clusters", []string{"#", "Size", "Submissions"}, clusters, nil, s.Clusters),
		},
		Data: s,
	}
}

// courseCheckData is the serialized form of CourseCheck.
type courseCheckData struct {
	Summary models.CourseSummary `json:"summary" toon:"summary"`
	Reports []models.ReportRow   `json:"reports" toon:"reports"`
}

// CourseCheck renders the summary of a course followed by the report of
// every flagged submission.
func CourseCheck(s models.CourseSummary, rows []models.ReportRow) Renderable {
	r := &Report{
		Sections: []Renderable{CourseSummary(s)},
		Data:     courseCheckData{Summary: s, Reports: rows},
	}
	for _, row := range rows {
		if len(row.Body) > 0 {
			r.Sections = append(r.Sections, CloneReport(row))
		}
	}
	return r
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

// queueData is the serialized form of Queue.
type queueData struct {
	Stats   scheduler.Stats      `json:"stats" toon:"stats"`
	Pending []scheduler.TaskInfo `json:"pending" toon:"pending"`
}

// Queue renders the scheduler state.
func Queue(stats scheduler.Stats, pending []scheduler.TaskInfo) Renderable {
	rows := make([][]string, 0, len(pending))
	for _, t := range pending {
		due := "now"
		if !t.NotBefore.IsZero() {
			due = t.NotBefore.Format("15:04:05.000")
		}
		rows = append(rows, []string{t.Request, strconv.Itoa(t.Priority), strconv.Itoa(t.Attempts), due, orDash(t.LastError)})
	}
	footer := []string{
		fmt.Sprintf("%d queued", stats.Queued),
		fmt.Sprintf("%d done", stats.Succeeded),
		fmt.Sprintf("%d retried", stats.Retried),
		fmt.Sprintf("%d errored", stats.Errored),
		fmt.Sprintf("%d failed", stats.Failed),
	}
	return NewTable("Klone requests", []string{"Request", "Priority", "Attempts", "Due", "Last error"}, rows, footer,
		queueData{Stats: stats, Pending: pending})
}

// unitData is the serialized form of one unit in Units.
type unitData struct {
	File     string `json:"file" toon:"file"`
	Function string `json:"function" toon:"function"`
	FromLine int    `json:"from_line" toon:"from_line"`
	ToLine   int    `json:"to_line" toon:"to_line"`
	Tokens   int    `json:"tokens" toon:"tokens"`
	Symbols  string `json:"symbols" toon:"symbols"`
}

// Units renders tokenized source units. At most preview symbols of each
// unit are shown.
func Units(units []models.SourceUnit, preview int) Renderable {
	rows := make([][]string, 0, len(units))
	data := make([]unitData, 0, len(units))
	for _, u := range units {
		d := unitData{
			File:     u.File,
			Function: u.FunctionName,
			FromLine: u.FromLine(),
			ToLine:   u.ToLine(),
			Tokens:   len(u.Content()),
			Symbols:  u.Describe(preview),
		}
		data = append(data, d)
		rows = append(rows, []string{d.File, orDash(d.Function), lines(d.FromLine, d.ToLine), strconv.Itoa(d.Tokens), d.Symbols})
	}
	return NewTable("Source units", []string{"File", "Function", "Lines", "Tokens", "Symbols"}, rows, nil, data)
}
