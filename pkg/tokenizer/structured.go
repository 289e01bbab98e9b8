package tokenizer

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/parser"
)

// TestMarkers identifies test functions, which are never indexed.
type TestMarkers struct {
	Annotations  []string `koanf:"annotations"`
	NamePrefixes []string `koanf:"name_prefixes"`
}

// Match reports whether fn is a test function.
func (m TestMarkers) Match(fn parser.FunctionNode) bool {
	for _, a := range m.Annotations {
		if fn.HasAnnotation(a) {
			return true
		}
	}
	for _, p := range m.NamePrefixes {
		if strings.HasPrefix(fn.Name, p) {
			return true
		}
	}
	return false
}

// DefaultTestMarkers returns the usual test markers of a language.
func DefaultTestMarkers(lang parser.Language) TestMarkers {
	switch lang {
	case parser.LangKotlin, parser.LangJava:
		return TestMarkers{Annotations: []string{"@Test"}}
	case parser.LangCSharp:
		return TestMarkers{Annotations: []string{"[Test]", "[Fact]", "[TestMethod]"}}
	case parser.LangRust:
		return TestMarkers{Annotations: []string{"#[test]"}}
	case parser.LangGo:
		return TestMarkers{NamePrefixes: []string{"Test", "Benchmark", "Fuzz"}}
	case parser.LangPython:
		return TestMarkers{NamePrefixes: []string{"test_"}}
	default:
		return TestMarkers{}
	}
}

// Structured tokenizes languages with a tree-sitter grammar: one SourceUnit
// per named, non-test function.
type Structured struct {
	lang    parser.Language
	namer   Namer
	markers TestMarkers
}

// NewStructured creates a structured tokenizer for lang.
func NewStructured(lang parser.Language, namer Namer, markers TestMarkers) *Structured {
	return &Structured{lang: lang, namer: namer, markers: markers}
}

// Tokenize implements Tokenizer.
func (s *Structured) Tokenize(ctx context.Context, src Source) ([]models.SourceUnit, error) {
	psr := parser.New()
	defer psr.Close()

	res, err := psr.Parse(ctx, []byte(src.Text), s.lang, src.Filename)
	if err != nil {
		return nil, &ParseError{Path: src.Filename, Reason: err.Error()}
	}
	if res.Tree == nil {
		return nil, &ParseError{Path: src.Filename, Reason: "no syntax tree"}
	}
	defer res.Tree.Close()

	var units []models.SourceUnit
	for _, fn := range parser.GetFunctions(res) {
		if s.markers.Match(fn) {
			continue
		}
		content := s.functionTokens(src, fn.Node, res.Source)
		if len(content) == 0 {
			continue
		}
		units = append(units, wrap(src.Filename, fn.Name, content))
	}
	return units, nil
}

// functionTokens walks the descendants of fn depth-first through the token filter.
func (s *Structured) functionTokens(src Source, fn *sitter.Node, source []byte) []models.Token {
	var out []models.Token
	for i := range int(fn.ChildCount()) {
		parser.Walk(fn.Child(i), source, func(node *sitter.Node, source []byte) bool {
			nodeType := node.Type()
			if nodeType == "ERROR" || isComment(nodeType) {
				return false
			}
			if node.ChildCount() > 0 {
				return true
			}
			if node.IsMissing() {
				return false
			}
			text := parser.GetNodeText(node, source)
			if strings.TrimSpace(text) == "" {
				return false
			}
			out = append(out, s.makeToken(src, node, nodeType, text))
			return false
		})
	}
	return out
}

// makeToken anonymizes named leaves (identifiers, literals) and keeps the
// literal text of anonymous grammar symbols (keywords, operators).
func (s *Structured) makeToken(src Source, node *sitter.Node, nodeType, text string) models.Token {
	start, end := node.StartPoint(), node.EndPoint()
	span := models.Span{
		File:     src.Filename,
		FromLine: int(start.Row) + 1,
		FromCol:  int(start.Column) + 1,
		ToLine:   int(end.Row) + 1,
		ToCol:    int(end.Column) + 1,
	}
	if node.IsNamed() {
		return src.token(nodeType, s.namer.Next(), true, span)
	}
	return src.token(nodeType, text, false, span)
}

func isComment(nodeType string) bool {
	return strings.Contains(nodeType, "comment")
}
