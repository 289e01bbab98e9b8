package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/klone/pkg/index"
	"github.com/panbanda/klone/pkg/models"
)

type owner struct {
	mode    models.Mode
	id      int
	denizen int
}

func sub(id, denizen int) owner { return owner{models.ModeSubmission, id, denizen} }
func course(id int) owner       { return owner{models.ModeCourse, id, models.NoDenizen} }

// unit builds a sentinel-wrapped unit with one token per line starting at line.
func unit(o owner, file, fn string, line int, symbols ...string) models.SourceUnit {
	toks := make([]models.Token, 0, len(symbols)+2)
	for i, s := range symbols {
		toks = append(toks, models.Token{
			Mode:      o.mode,
			OwnerID:   o.id,
			DenizenID: o.denizen,
			Symbol:    s,
			Text:      s,
			Span:      models.Span{File: file, FromLine: line + i, ToLine: line + i},
		})
	}
	begin := toks[0].WithSentinel(models.BeginText)
	end := toks[len(toks)-1].WithSentinel(models.EndText)
	toks = append([]models.Token{begin}, append(toks, end)...)
	return models.SourceUnit{File: file, FunctionName: fn, Tokens: toks}
}

func extract(t *testing.T, ex *Extractor, units ...models.SourceUnit) Result {
	t.Helper()
	ix := index.New(nil)
	defer ix.Close()
	ctx := context.Background()

	_, err := ix.AddUnits(ctx, units)
	require.NoError(t, err)

	var res Result
	require.NoError(t, ix.View(ctx, func(st *index.State) { res = ex.Extract(st) }))
	return res
}

var (
	sumShape   = []string{"fun", "id", "(", "id", ")", "{", "return", "id", "+", "id", "}"}
	otherShape = []string{"fun", "id", "(", ")", "{", "while", "id", "{", "}", "}"}
)

func TestExtractCrossSubmissionClone(t *testing.T) {
	res := extract(t, New(),
		unit(sub(1, 10), "A.kt", "sum", 3, sumShape...),
		unit(sub(2, 20), "B.kt", "plus", 7, sumShape...),
		unit(sub(3, 30), "C.kt", "loop", 1, otherShape...),
		unit(course(100), "Base.kt", "loop", 1, otherShape...),
	)

	require.Len(t, res.Classes, 1)
	class := res.Classes[0]
	assert.Equal(t, []int{1, 2}, class.Submissions())
	assert.Equal(t, len(sumShape), class.Length)
	assert.NotZero(t, class.ID)
	assert.Equal(t, 3, res.IndexedSubmissions)

	require.Contains(t, res.Groups, 1)
	require.Contains(t, res.Groups, 2)
	assert.NotContains(t, res.Groups, 3)

	clones := res.Groups[1][0]
	require.Len(t, clones, 2)
	assert.Equal(t, "A.kt", clones[0].File)
	assert.Equal(t, 3, clones[0].FromLine)
	assert.Equal(t, "B.kt", clones[1].File)
	assert.Equal(t, "plus", clones[1].FunctionName)
}

func TestExtractPrefixOnlyMatchIgnored(t *testing.T) {
	res := extract(t, New(),
		unit(sub(1, 10), "A.kt", "f", 1, "a", "b", "c"),
		unit(sub(2, 20), "B.kt", "g", 1, "a", "b", "d"),
	)
	assert.Empty(t, res.Classes)
	assert.Empty(t, res.Groups)
}

func TestExtractBaselinePolicies(t *testing.T) {
	units := []models.SourceUnit{
		unit(course(100), "Base.kt", "sum", 1, sumShape...),
		unit(sub(1, 10), "A.kt", "sum", 1, sumShape...),
		unit(sub(2, 20), "B.kt", "sum", 1, sumShape...),
	}

	t.Run("strip", func(t *testing.T) {
		res := extract(t, New(WithBaselinePolicy(BaselineStrip)), units...)
		require.Len(t, res.Classes, 1)
		for _, c := range res.Classes[0].Clones {
			assert.Equal(t, models.ModeSubmission, c.Mode)
		}
		assert.Equal(t, 1, res.IgnoredBaseline)
	})

	t.Run("drop_class", func(t *testing.T) {
		res := extract(t, New(WithBaselinePolicy(BaselineDropClass)), units...)
		assert.Empty(t, res.Classes)
		assert.Equal(t, 1, res.IgnoredBaseline)
	})

	t.Run("baseline and one submission", func(t *testing.T) {
		res := extract(t, New(), units[0], units[1])
		assert.Empty(t, res.Classes)
	})
}

func TestExtractSelfMatchExcluded(t *testing.T) {
	res := extract(t, New(),
		unit(sub(1, 10), "A.kt", "sum", 1, sumShape...),
		unit(sub(1, 10), "A2.kt", "sum2", 1, sumShape...),
	)
	assert.Empty(t, res.Classes)
}

func TestExtractSameStudentOtherSubmission(t *testing.T) {
	res := extract(t, New(),
		unit(sub(1, 10), "A.kt", "sum", 1, sumShape...),
		unit(sub(2, 10), "A.kt", "sum", 1, sumShape...),
		unit(sub(3, 30), "C.kt", "sum", 1, sumShape...),
	)
	require.Len(t, res.Classes, 1)

	require.Len(t, res.Groups[1], 1)
	ids := []int{}
	for _, c := range res.Groups[1][0] {
		ids = append(ids, c.SubmissionID)
	}
	assert.ElementsMatch(t, []int{1, 3}, ids)

	assert.Len(t, res.Groups[3][0], 3)
}

func TestExtractSameStudentOnly(t *testing.T) {
	res := extract(t, New(),
		unit(sub(1, 10), "A.kt", "sum", 1, sumShape...),
		unit(sub(2, 10), "A.kt", "sum", 1, sumShape...),
	)
	assert.Len(t, res.Classes, 1)
	assert.Empty(t, res.Groups)
}

func TestExtractScope(t *testing.T) {
	res := extract(t, New(WithScope([]int{1, 2})),
		unit(sub(1, 10), "A.kt", "sum", 1, sumShape...),
		unit(sub(2, 20), "B.kt", "sum", 1, otherShape...),
		unit(sub(9, 90), "Z.kt", "sum", 1, sumShape...),
	)
	assert.Empty(t, res.Classes)
}

func TestGroupOrdering(t *testing.T) {
	res := extract(t, New(),
		unit(sub(1, 10), "b.kt", "sum", 9, sumShape...),
		unit(sub(1, 10), "a.kt", "loop", 4, otherShape...),
		unit(sub(2, 20), "a.kt", "sum", 1, sumShape...),
		unit(sub(2, 20), "c.kt", "loop", 1, otherShape...),
	)
	lists := res.Groups[1]
	require.Len(t, lists, 2)
	assert.Equal(t, "a.kt", lists[0][0].File)
	assert.Equal(t, 1, lists[0][0].FromLine)
	assert.Equal(t, "a.kt", lists[1][0].File)
	assert.Equal(t, "loop", lists[1][0].FunctionName)
}

func TestRows(t *testing.T) {
	res := extract(t, New(),
		unit(sub(2, 20), "B.kt", "plus", 1, sumShape...),
		unit(sub(1, 10), "A.kt", "sum", 1, sumShape...),
	)
	meta := map[int]models.Submission{
		1: {ID: 1, Project: models.Project{Name: "calc", Denizen: models.Denizen{ID: 10, Name: "alice"}}},
	}

	rows := Rows(res, meta, "")
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].SubmissionID)
	assert.Equal(t, 2, rows[1].SubmissionID)
	assert.Equal(t, models.KloneCheckResultType, rows[0].Type)

	require.Len(t, rows[0].Body, 1)
	infos := rows[0].Body[0]
	require.Len(t, infos, 2)
	assert.Equal(t, models.CloneInfo{
		SubmissionID: 1, Denizen: "alice", Project: "calc",
		File: "A.kt", FromLine: 1, ToLine: len(sumShape), FunctionName: "sum",
	}, infos[0])
	assert.Empty(t, infos[1].Denizen, "missing metadata leaves fields empty")
	assert.Empty(t, infos[1].Project)
}

func TestClusters(t *testing.T) {
	classes := []models.CloneClass{
		{Clones: []models.Clone{{SubmissionID: 2}, {SubmissionID: 1}}},
		{Clones: []models.Clone{{SubmissionID: 3}, {SubmissionID: 2}}},
		{Clones: []models.Clone{{SubmissionID: 5}, {SubmissionID: 4}}},
	}
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5}}, Clusters(classes))
	assert.Empty(t, Clusters(nil))
}

func TestSummarize(t *testing.T) {
	res := extract(t, New(),
		unit(sub(1, 10), "A.kt", "sum", 1, sumShape...),
		unit(sub(2, 20), "B.kt", "sum", 1, sumShape...),
		unit(course(5), "Base.kt", "loop", 1, otherShape...),
	)
	s := Summarize(5, res)
	assert.Equal(t, 5, s.CourseID)
	assert.Equal(t, 1, s.CloneClasses)
	assert.Equal(t, []int{1, 2}, s.FlaggedSubmissions)
	assert.Equal(t, [][]int{{1, 2}}, s.Clusters)
	assert.Equal(t, 2, s.IndexedSubmissions)
}

func TestSummarizeIgnoresOtherCourses(t *testing.T) {
	res := extract(t, New(WithScope([]int{10, 11})),
		unit(sub(10, 1), "A.kt", "sum", 1, sumShape...),
		unit(sub(11, 2), "B.kt", "sum", 1, sumShape...),
		unit(sub(20, 3), "C.kt", "sum", 1, sumShape...),
		unit(sub(21, 4), "D.kt", "loop", 1, otherShape...),
	)
	s := Summarize(1, res)
	assert.Equal(t, 2, s.IndexedSubmissions)
	assert.Equal(t, []int{10, 11}, s.FlaggedSubmissions)
	assert.Equal(t, [][]int{{10, 11}}, s.Clusters)
	require.Len(t, res.Classes, 1)
	assert.Len(t, res.Classes[0].Clones, 2)
}
