package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneClassSubmissions(t *testing.T) {
	class := CloneClass{
		Clones: []Clone{
			{SubmissionID: 7, FunctionName: "sum"},
			{SubmissionID: 3, FunctionName: "total"},
			{SubmissionID: 7, FunctionName: "sum"},
		},
	}

	assert.Equal(t, []int{3, 7}, class.Submissions())
	assert.Equal(t, []string{"sum", "total"}, class.FunctionNames())
}

func TestCloneClassEmpty(t *testing.T) {
	var class CloneClass
	assert.Empty(t, class.Submissions())
	assert.Empty(t, class.FunctionNames())
}

func TestSubmissionEligible(t *testing.T) {
	tests := []struct {
		name    string
		state   SubmissionState
		deleted bool
		want    bool
	}{
		{"open", StateOpen, false, true},
		{"closed", StateClosed, false, true},
		{"pending", StatePending, false, false},
		{"obsolete", StateObsolete, false, false},
		{"open in deleted project", StateOpen, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Submission{ID: 1, State: tt.state, Project: Project{Deleted: tt.deleted}}
			assert.Equal(t, tt.want, s.Eligible())
		})
	}
}

func TestEntityRefString(t *testing.T) {
	assert.Equal(t, "course/4", CourseRef(4).String())
	assert.Equal(t, "submission/9", SubmissionRef(9).String())
}

func TestTokenKey(t *testing.T) {
	a := Token{Symbol: "simple_identifier", Text: "vaaaa", Opaque: true}
	b := Token{Symbol: "simple_identifier", Text: "vbbbb", Opaque: true}
	assert.Equal(t, a.Key(), b.Key(), "opaque tokens compare by symbol only")

	plus := Token{Symbol: "+", Text: "+"}
	minus := Token{Symbol: "-", Text: "-"}
	assert.NotEqual(t, plus.Key(), minus.Key())

	begin := plus.WithSentinel(BeginText)
	assert.True(t, begin.IsSentinel())
	assert.False(t, plus.IsSentinel())
}

func TestSourceUnitContent(t *testing.T) {
	body := Token{Symbol: "return", Text: "return", Span: Span{FromLine: 2, ToLine: 2}}
	last := Token{Symbol: "}", Text: "}", Span: Span{FromLine: 3, ToLine: 3}}
	unit := SourceUnit{
		File: "Main.kt",
		Tokens: []Token{
			body.WithSentinel(BeginText),
			body,
			last,
			last.WithSentinel(EndText),
		},
	}

	assert.Equal(t, []Token{body, last}, unit.Content())
	assert.Equal(t, 2, unit.FromLine())
	assert.Equal(t, 3, unit.ToLine())
	assert.Equal(t, "return return ...", unit.Describe(2))
}
