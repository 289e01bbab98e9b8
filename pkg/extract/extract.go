// Package extract mines the clone index for code fragments shared between
// submissions and turns them into per-submission clone reports.
package extract

import (
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/panbanda/klone/pkg/index"
	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/suffixtree"
)

// BaselinePolicy decides what happens to clone classes that touch code from
// the course baseline repository.
type BaselinePolicy string

const (
	// BaselineStrip removes baseline occurrences from every class.
	BaselineStrip BaselinePolicy = "strip"
	// BaselineDropClass discards any class with a baseline occurrence.
	BaselineDropClass BaselinePolicy = "drop_class"
)

// Valid reports whether p is a known policy.
func (p BaselinePolicy) Valid() bool {
	return p == BaselineStrip || p == BaselineDropClass
}

// Extractor finds clone classes in an index.
type Extractor struct {
	policy BaselinePolicy
	scope  map[int]bool
	logger *slog.Logger
}

// Option is a functional option for configuring Extractor.
type Option func(*Extractor)

// WithBaselinePolicy sets the baseline policy.
func WithBaselinePolicy(p BaselinePolicy) Option {
	return func(e *Extractor) {
		if p.Valid() {
			e.policy = p
		}
	}
}

// WithScope restricts submission occurrences to the given ids. Baseline
// occurrences are not affected.
func WithScope(submissionIDs []int) Option {
	return func(e *Extractor) {
		e.scope = make(map[int]bool, len(submissionIDs))
		for _, id := range submissionIDs {
			e.scope[id] = true
		}
	}
}

// WithLogger sets the logger used for the clone class dump.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// New creates an extractor. The baseline policy defaults to BaselineStrip.
func New(opts ...Option) *Extractor {
	e := &Extractor{policy: BaselineStrip, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one extraction pass.
type Result struct {
	// Classes are the reportable clone classes.
	Classes []models.CloneClass
	// Groups maps a submission id to the clone lists it is shown.
	Groups map[int][][]models.Clone
	// IgnoredBaseline counts classes dropped or trimmed because of baseline code.
	IgnoredBaseline int
	// IndexedSubmissions counts submissions with at least one indexed unit.
	IndexedSubmissions int
}

// Extract reads st and computes the clone report. It must run on the index
// worker, inside index.View.
func (e *Extractor) Extract(st *index.State) Result {
	var (
		raw       []models.CloneClass
		submitted = roaring.New()
	)
	for i := range st.Units() {
		u, ok := st.Unit(i)
		if !ok || len(u.Tokens) == 0 {
			continue
		}
		if owner := u.Tokens[0]; owner.Mode == models.ModeSubmission && e.inScope(owner) {
			submitted.Add(uint32(owner.OwnerID))
		}
	}

	for node := range Candidates(st.Tree()) {
		raw = append(raw, e.materialize(st, node))
	}

	classes, ignored := e.filter(raw)
	e.dump(classes)

	return Result{
		Classes:            classes,
		Groups:             Group(classes),
		IgnoredBaseline:    ignored,
		IndexedSubmissions: int(submitted.GetCardinality()),
	}
}

// Candidates yields nodes whose path spells at least two whole units: every
// outgoing edge holds only a terminator, so no occurrence can be extended,
// and at least two occurrences start at the first token of their unit.
func Candidates(tree *suffixtree.Tree[models.Token]) iter.Seq[*suffixtree.Node] {
	return func(yield func(*suffixtree.Node) bool) {
		for node := range tree.RepeatedNodes() {
			if !unextendable(node) {
				continue
			}
			if len(unitAligned(node)) < 2 {
				continue
			}
			if !yield(node) {
				return
			}
		}
	}
}

func unextendable(node *suffixtree.Node) bool {
	for _, c := range node.Children() {
		if !c.TerminalEdge() {
			return false
		}
	}
	return true
}

func unitAligned(node *suffixtree.Node) []suffixtree.Occurrence {
	var out []suffixtree.Occurrence
	for _, occ := range node.Occurrences() {
		if occ.Offset == 0 {
			out = append(out, occ)
		}
	}
	return out
}

func (e *Extractor) materialize(st *index.State, node *suffixtree.Node) models.CloneClass {
	var class models.CloneClass
	for _, occ := range unitAligned(node) {
		u, ok := st.Unit(occ.Sequence)
		if !ok || len(u.Tokens) == 0 {
			continue
		}
		owner := u.Tokens[0]
		if !e.inScope(owner) {
			continue
		}
		if class.Clones == nil {
			class.ID = fingerprint(u.Tokens)
			class.Length = len(u.Content())
		}
		class.Clones = append(class.Clones, models.Clone{
			SubmissionID: owner.OwnerID,
			DenizenID:    owner.DenizenID,
			Mode:         owner.Mode,
			File:         u.File,
			FromLine:     u.FromLine(),
			ToLine:       u.ToLine(),
			FunctionName: u.FunctionName,
		})
	}
	return class
}

// inScope reports whether the unit owned by tok belongs to the scoped
// submissions. Baseline units are always in scope.
func (e *Extractor) inScope(tok models.Token) bool {
	return tok.Mode != models.ModeSubmission || e.scope == nil || e.scope[tok.OwnerID]
}

// fingerprint hashes the comparison keys of a token run.
func fingerprint(tokens []models.Token) uint64 {
	h := xxhash.New()
	for _, t := range tokens {
		_, _ = h.WriteString(t.Key())
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// filter drops classes that are empty, that do not involve at least two
// distinct submissions, and applies the baseline policy.
func (e *Extractor) filter(classes []models.CloneClass) ([]models.CloneClass, int) {
	var (
		out     []models.CloneClass
		ignored int
	)
	for _, class := range classes {
		if len(class.Clones) == 0 {
			continue
		}

		if hasBaseline(class) {
			ignored++
			if e.policy == BaselineDropClass {
				continue
			}
			class = stripBaseline(class)
		}

		subs := roaring.New()
		for _, c := range class.Clones {
			subs.Add(uint32(c.SubmissionID))
		}
		if subs.GetCardinality() < 2 {
			continue
		}
		out = append(out, class)
	}
	return out, ignored
}

func hasBaseline(class models.CloneClass) bool {
	for _, c := range class.Clones {
		if c.Mode == models.ModeCourse {
			return true
		}
	}
	return false
}

func stripBaseline(class models.CloneClass) models.CloneClass {
	kept := make([]models.Clone, 0, len(class.Clones))
	for _, c := range class.Clones {
		if c.Mode != models.ModeCourse {
			kept = append(kept, c)
		}
	}
	class.Clones = kept
	return class
}

// Group builds the clone lists shown to each submission. A submission sees
// its own occurrences together with those of other students; occurrences
// from other submissions of the same student are left out. Lists with no
// occurrence from another student are dropped. Lists are ordered by the
// file and start line of their first clone.
func Group(classes []models.CloneClass) map[int][][]models.Clone {
	groups := make(map[int][][]models.Clone)
	for _, class := range classes {
		owners := make(map[int]int)
		for _, c := range class.Clones {
			owners[c.SubmissionID] = c.DenizenID
		}
		for sub, denizen := range owners {
			var (
				kept    []models.Clone
				foreign bool
			)
			for _, c := range class.Clones {
				switch {
				case c.SubmissionID == sub && c.DenizenID == denizen:
					kept = append(kept, c)
				case c.DenizenID != denizen:
					kept = append(kept, c)
					foreign = true
				}
			}
			if len(kept) <= 1 || !foreign {
				continue
			}
			sortClones(kept)
			groups[sub] = append(groups[sub], kept)
		}
	}

	for sub := range groups {
		lists := groups[sub]
		sort.SliceStable(lists, func(i, j int) bool {
			return cloneLess(lists[i][0], lists[j][0])
		})
	}
	return groups
}

func sortClones(clones []models.Clone) {
	sort.SliceStable(clones, func(i, j int) bool {
		return cloneLess(clones[i], clones[j])
	})
}

func cloneLess(a, b models.Clone) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	if a.FromLine != b.FromLine {
		return a.FromLine < b.FromLine
	}
	return a.SubmissionID < b.SubmissionID
}

// dump logs every class at debug level.
func (e *Extractor) dump(classes []models.CloneClass) {
	if e.logger == nil {
		return
	}
	for i, class := range classes {
		var b strings.Builder
		fmt.Fprintf(&b, "(%s) Clone class %d:\n", strings.Join(class.FunctionNames(), ", "), i)
		for _, c := range class.Clones {
			fmt.Fprintf(&b, "%d/%s/%s:%d:%d\n", c.SubmissionID, c.FunctionName, c.File, c.FromLine, c.ToLine)
		}
		e.logger.Debug(b.String())
	}
}
