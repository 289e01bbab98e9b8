// Package parser wraps tree-sitter grammars and finds the functions klone
// indexes.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language represents a supported programming language.
type Language string

const (
	LangKotlin     Language = "kotlin"
	LangJava       Language = "java"
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangCSharp     Language = "csharp"
	LangHaskell    Language = "haskell"
	LangUnknown    Language = "unknown"
)

// nameStyle says where a function node keeps its name.
type nameStyle int

const (
	nameField      nameStyle = iota // "name" field
	nameFirstIdent                  // first simple_identifier child
	nameDeclarator                  // declarator.declarator
)

// grammar describes one language: its file extensions and, for languages
// with a tree-sitter grammar, how functions look in the syntax tree.
type grammar struct {
	extensions []string
	language   func() *sitter.Language
	functions  []string
	names      nameStyle
}

var grammars = map[Language]grammar{
	LangKotlin: {
		extensions: []string{".kt", ".kts"},
		language:   kotlin.GetLanguage,
		functions:  []string{"function_declaration"},
		names:      nameFirstIdent,
	},
	LangJava: {
		extensions: []string{".java"},
		language:   java.GetLanguage,
		functions:  []string{"method_declaration", "constructor_declaration"},
	},
	LangGo: {
		extensions: []string{".go"},
		language:   golang.GetLanguage,
		functions:  []string{"function_declaration", "method_declaration"},
	},
	LangPython: {
		extensions: []string{".py"},
		language:   python.GetLanguage,
		functions:  []string{"function_definition"},
	},
	LangRust: {
		extensions: []string{".rs"},
		language:   rust.GetLanguage,
		functions:  []string{"function_item"},
	},
	LangTypeScript: {
		extensions: []string{".ts"},
		language:   typescript.GetLanguage,
		functions:  []string{"function_declaration", "method_definition"},
	},
	LangJavaScript: {
		extensions: []string{".js", ".mjs", ".cjs"},
		language:   javascript.GetLanguage,
		functions:  []string{"function_declaration", "method_definition"},
	},
	LangC: {
		extensions: []string{".c", ".h"},
		language:   c.GetLanguage,
		functions:  []string{"function_definition"},
		names:      nameDeclarator,
	},
	LangCPP: {
		extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".hxx"},
		language:   cpp.GetLanguage,
		functions:  []string{"function_definition"},
		names:      nameDeclarator,
	},
	LangCSharp: {
		extensions: []string{".cs"},
		language:   csharp.GetLanguage,
		functions:  []string{"method_declaration", "constructor_declaration"},
	},
	// Lexer only.
	LangHaskell: {
		extensions: []string{".hs", ".lhs"},
	},
}

var byExtension = func() map[string]Language {
	m := make(map[string]Language)
	for lang, g := range grammars {
		for _, ext := range g.extensions {
			m[ext] = lang
		}
	}
	return m
}()

// String implements fmt.Stringer.
func (l Language) String() string { return string(l) }

// Structured reports whether a tree-sitter grammar is available for the
// language. Languages without one are handled by a lexer only.
func (l Language) Structured() bool {
	return grammars[l].language != nil
}

// DetectLanguage determines the language from a file path.
func DetectLanguage(path string) Language {
	if lang, ok := byExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LangUnknown
}

// GetTreeSitterLanguage returns the tree-sitter grammar of lang.
func GetTreeSitterLanguage(lang Language) (*sitter.Language, error) {
	g := grammars[lang]
	if g.language == nil {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	return g.language(), nil
}

// Parser wraps a tree-sitter parser. A Parser is not safe for concurrent use.
type Parser struct {
	parser *sitter.Parser
}

// ParseResult is a syntax tree with the source it was built from.
type ParseResult struct {
	Tree     *sitter.Tree
	Language Language
	Source   []byte
	Path     string
}

// New creates a new parser instance.
func New() *Parser {
	return &Parser{parser: sitter.NewParser()}
}

// Parse parses source as lang.
func (p *Parser) Parse(ctx context.Context, source []byte, lang Language, path string) (*ParseResult, error) {
	tsLang, err := GetTreeSitterLanguage(lang)
	if err != nil {
		return nil, err
	}
	p.parser.SetLanguage(tsLang)
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	return &ParseResult{Tree: tree, Language: lang, Source: source, Path: path}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}

// NodeVisitor is called for every node of a walk. Returning false skips the
// node's children.
type NodeVisitor func(node *sitter.Node, source []byte) bool

// Walk traverses the tree below node depth-first.
func Walk(node *sitter.Node, source []byte, visitor NodeVisitor) {
	if node == nil || !visitor(node, source) {
		return
	}
	for i := range int(node.ChildCount()) {
		Walk(node.Child(i), source, visitor)
	}
}

// GetNodeText returns the source text of node, or "" when node is nil or
// its byte range lies outside source.
func GetNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}

// FunctionNode is a named function found in a syntax tree.
type FunctionNode struct {
	Name      string
	StartLine uint32
	EndLine   uint32
	// Annotations holds the source text of annotations, attributes and
	// decorators attached to the function.
	Annotations []string
	Node        *sitter.Node
}

// HasAnnotation reports whether one of the function's annotations equals marker.
func (f FunctionNode) HasAnnotation(marker string) bool {
	return slices.Contains(f.Annotations, marker)
}

// GetFunctions returns every named function in the tree, nested ones
// included, in source order.
func GetFunctions(result *ParseResult) []FunctionNode {
	g := grammars[result.Language]
	var out []FunctionNode
	Walk(result.Tree.RootNode(), result.Source, func(node *sitter.Node, source []byte) bool {
		if !slices.Contains(g.functions, node.Type()) {
			return true
		}
		fn := FunctionNode{
			Name:        functionName(node, source, g.names),
			StartLine:   node.StartPoint().Row + 1,
			EndLine:     node.EndPoint().Row + 1,
			Annotations: collectAnnotations(node, source),
			Node:        node,
		}
		if fn.Name != "" {
			out = append(out, fn)
		}
		return true
	})
	return out
}

func functionName(node *sitter.Node, source []byte, style nameStyle) string {
	switch style {
	case nameFirstIdent:
		for i := range int(node.NamedChildCount()) {
			if child := node.NamedChild(i); child.Type() == "simple_identifier" {
				return GetNodeText(child, source)
			}
		}
		return ""
	case nameDeclarator:
		if decl := node.ChildByFieldName("declarator"); decl != nil {
			return GetNodeText(decl.ChildByFieldName("declarator"), source)
		}
		return ""
	default:
		return GetNodeText(node.ChildByFieldName("name"), source)
	}
}

// annotationNodeTypes are node types holding annotations, attributes or decorators.
var annotationNodeTypes = map[string]bool{
	"annotation":        true,
	"marker_annotation": true,
	"attribute_list":    true,
	"attribute_item":    true,
	"decorator":         true,
}

// collectAnnotations gathers annotation texts from the function's own
// modifiers and from attribute or decorator siblings directly preceding it.
func collectAnnotations(node *sitter.Node, source []byte) []string {
	var out []string
	add := func(n *sitter.Node) {
		out = append(out, strings.TrimSpace(GetNodeText(n, source)))
	}
	for i := range int(node.NamedChildCount()) {
		child := node.NamedChild(i)
		switch {
		case child.Type() == "modifiers":
			for j := range int(child.NamedChildCount()) {
				if m := child.NamedChild(j); annotationNodeTypes[m.Type()] {
					add(m)
				}
			}
		case annotationNodeTypes[child.Type()]:
			add(child)
		}
	}
	for sib := node.PrevNamedSibling(); sib != nil && annotationNodeTypes[sib.Type()]; sib = sib.PrevNamedSibling() {
		add(sib)
	}
	if parent := node.Parent(); parent != nil && parent.Type() == "decorated_definition" {
		for i := range int(parent.NamedChildCount()) {
			if d := parent.NamedChild(i); d.Type() == "decorator" {
				add(d)
			}
		}
	}
	return out
}
