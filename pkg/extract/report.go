package extract

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/panbanda/klone/pkg/models"
)

// Rows converts the grouped clones into report rows, one per submission,
// ordered by submission id. meta supplies the student and project names of
// each clone; clones whose submission is missing from meta are reported
// without them.
func Rows(res Result, meta map[int]models.Submission, resultType string) []models.ReportRow {
	if resultType == "" {
		resultType = models.KloneCheckResultType
	}

	ids := make([]int, 0, len(res.Groups))
	for id := range res.Groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	rows := make([]models.ReportRow, 0, len(ids))
	for _, id := range ids {
		lists := res.Groups[id]
		body := make([][]models.CloneInfo, 0, len(lists))
		for _, clones := range lists {
			infos := make([]models.CloneInfo, 0, len(clones))
			for _, c := range clones {
				infos = append(infos, info(c, meta))
			}
			body = append(body, infos)
		}
		rows = append(rows, models.ReportRow{SubmissionID: id, Type: resultType, Body: body})
	}
	return rows
}

func info(c models.Clone, meta map[int]models.Submission) models.CloneInfo {
	ci := models.CloneInfo{
		SubmissionID: c.SubmissionID,
		File:         c.File,
		FromLine:     c.FromLine,
		ToLine:       c.ToLine,
		FunctionName: c.FunctionName,
	}
	if sub, ok := meta[c.SubmissionID]; ok {
		ci.Denizen = sub.Project.Denizen.Name
		ci.Project = sub.Project.Name
	}
	return ci
}

// Summarize aggregates res for a course.
func Summarize(courseID int, res Result) models.CourseSummary {
	flagged := make([]int, 0, len(res.Groups))
	for id := range res.Groups {
		flagged = append(flagged, id)
	}
	sort.Ints(flagged)

	return models.CourseSummary{
		CourseID:             courseID,
		CloneClasses:         len(res.Classes),
		FlaggedSubmissions:   flagged,
		Clusters:             Clusters(res.Classes),
		IndexedSubmissions:   res.IndexedSubmissions,
		IgnoredBaselineCount: res.IgnoredBaseline,
	}
}

// Clusters returns groups of submissions connected by shared clone classes:
// two submissions are linked when they appear in the same class. Each
// cluster is sorted, and clusters are ordered by their smallest id.
func Clusters(classes []models.CloneClass) [][]int {
	g := simple.NewUndirectedGraph()
	for _, class := range classes {
		subs := class.Submissions()
		for _, id := range subs {
			if g.Node(int64(id)) == nil {
				g.AddNode(simple.Node(int64(id)))
			}
		}
		for i := 1; i < len(subs); i++ {
			from, to := int64(subs[0]), int64(subs[i])
			if !g.HasEdgeBetween(from, to) {
				g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
			}
		}
	}

	var clusters [][]int
	for _, comp := range topo.ConnectedComponents(g) {
		if len(comp) < 2 {
			continue
		}
		ids := make([]int, len(comp))
		for i, n := range comp {
			ids[i] = int(n.ID())
		}
		sort.Ints(ids)
		clusters = append(clusters, ids)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters
}
