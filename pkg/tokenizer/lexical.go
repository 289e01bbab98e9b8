package tokenizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/parser"
)

// formatting holds punctuation dropped from lexical units.
var formatting = map[string]bool{
	"{": true, "}": true, "(": true, ")": true, ";": true,
}

// Lexical tokenizes languages that are only lexed: the token stream is cut
// into blocks at blank lines and each block becomes one SourceUnit.
type Lexical struct {
	lang  parser.Language
	lexer chroma.Lexer
	namer Namer
}

// NewLexical creates a lexical tokenizer backed by the chroma lexer for lang.
func NewLexical(lang parser.Language, namer Namer) (*Lexical, error) {
	lexer := lexers.Get(string(lang))
	if lexer == nil {
		return nil, fmt.Errorf("no lexer for language %s", lang)
	}
	return &Lexical{lang: lang, lexer: lexer, namer: namer}, nil
}

// lexeme is a chroma token with its position.
type lexeme struct {
	chroma.Token
	span models.Span
}

func (l lexeme) isSpace() bool {
	return strings.TrimSpace(l.Value) == ""
}

// Tokenize implements Tokenizer.
func (l *Lexical) Tokenize(_ context.Context, src Source) ([]models.SourceUnit, error) {
	it, err := l.lexer.Tokenise(nil, src.Text)
	if err != nil {
		return nil, &ParseError{Path: src.Filename, Reason: err.Error()}
	}

	lexemes := locate(src.Filename, it.Tokens())
	if blank(lexemes) {
		return nil, &ParseError{Path: src.Filename, Reason: "empty token stream"}
	}
	for _, lx := range lexemes {
		if lx.Type == chroma.Error {
			return nil, &ParseError{
				Path:   src.Filename,
				Reason: fmt.Sprintf("unexpected token %q at %d:%d", lx.Value, lx.span.FromLine, lx.span.FromCol),
			}
		}
	}

	var units []models.SourceUnit
	for _, chunk := range splitBlocks(lexemes) {
		var content []models.Token
		name := ""
		for _, lx := range chunk {
			if lx.isSpace() || lx.Type == chroma.EOFType || lx.Type.InCategory(chroma.Comment) || formatting[lx.Value] {
				continue
			}
			if name == "" && lx.Type.InCategory(chroma.Name) {
				name = lx.Value
			}
			content = append(content, l.makeToken(src, lx))
		}
		if len(content) == 0 {
			continue
		}
		units = append(units, wrap(src.Filename, name, content))
	}
	return units, nil
}

// makeToken anonymizes names and literals; keywords, operators and the
// remaining punctuation keep their text.
func (l *Lexical) makeToken(src Source, lx lexeme) models.Token {
	if lx.Type.InCategory(chroma.Name) || lx.Type.InCategory(chroma.Literal) {
		return src.token(lx.Type.String(), l.namer.Next(), true, lx.span)
	}
	return src.token(lx.Type.String(), lx.Value, false, lx.span)
}

func blank(lexemes []lexeme) bool {
	for _, lx := range lexemes {
		if !lx.isSpace() && lx.Type != chroma.EOFType {
			return false
		}
	}
	return true
}

// locate assigns 1-based line/column spans to consecutive chroma tokens.
func locate(file string, toks []chroma.Token) []lexeme {
	out := make([]lexeme, 0, len(toks))
	line, col := 1, 1
	for _, t := range toks {
		if t.Value == "" {
			continue
		}
		span := models.Span{File: file, FromLine: line, FromCol: col}
		for _, r := range t.Value {
			if r == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
		span.ToLine, span.ToCol = line, col
		out = append(out, lexeme{Token: t, span: span})
	}
	return out
}

// splitBlocks cuts the stream at whitespace runs spanning two or more newlines.
func splitBlocks(lexemes []lexeme) [][]lexeme {
	var (
		blocks   [][]lexeme
		current  []lexeme
		spaceRun []lexeme
		newlines int
	)
	flushSpace := func() {
		if newlines >= 2 {
			if len(current) > 0 {
				blocks = append(blocks, current)
			}
			current = nil
		} else {
			current = append(current, spaceRun...)
		}
		spaceRun, newlines = nil, 0
	}

	for _, lx := range lexemes {
		if lx.isSpace() {
			spaceRun = append(spaceRun, lx)
			newlines += strings.Count(lx.Value, "\n")
			continue
		}
		flushSpace()
		current = append(current, lx)
	}
	flushSpace()
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}
