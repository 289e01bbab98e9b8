// Package tokenizer turns source files into anonymized token units for the
// clone index. Each supported language plugs in its own extraction policy
// behind the Tokenizer interface.
package tokenizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/parser"
)

// ErrParse is matched by every ParseError.
var ErrParse = errors.New("cannot parse source")

// ParseError reports a file that could not be lexed or parsed. The file is
// skipped; the rest of the entity is still indexed.
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse source: %s: %s", e.Path, e.Reason)
}

// Is makes errors.Is(err, ErrParse) match.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Source is one file to tokenize together with its owner.
type Source struct {
	Text      string
	Filename  string
	Mode      models.Mode
	OwnerID   int
	DenizenID int
}

// token builds a token stamped with the source's owner.
func (s Source) token(symbol, text string, opaque bool, span models.Span) models.Token {
	return models.Token{
		Mode:      s.Mode,
		OwnerID:   s.OwnerID,
		DenizenID: s.DenizenID,
		Symbol:    symbol,
		Span:      span,
		Text:      text,
		Opaque:    opaque,
	}
}

// Tokenizer converts one source file into SourceUnits.
type Tokenizer interface {
	Tokenize(ctx context.Context, src Source) ([]models.SourceUnit, error)
}

// Registry selects a Tokenizer by file extension.
type Registry struct {
	byLang map[parser.Language]Tokenizer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byLang: make(map[parser.Language]Tokenizer)}
}

// Register installs t for lang, replacing any previous policy.
func (r *Registry) Register(lang parser.Language, t Tokenizer) {
	r.byLang[lang] = t
}

// Wrap replaces every registered tokenizer t with w(t).
func (r *Registry) Wrap(w func(Tokenizer) Tokenizer) {
	for lang, t := range r.byLang {
		r.byLang[lang] = w(t)
	}
}

// For returns the tokenizer handling path.
func (r *Registry) For(path string) (Tokenizer, bool) {
	t, ok := r.byLang[parser.DetectLanguage(path)]
	return t, ok
}

// Supports reports whether path has a registered tokenizer.
func (r *Registry) Supports(path string) bool {
	_, ok := r.For(path)
	return ok
}

// Languages returns the registered languages.
func (r *Registry) Languages() []parser.Language {
	langs := make([]parser.Language, 0, len(r.byLang))
	for l := range r.byLang {
		langs = append(langs, l)
	}
	return langs
}

// Tokenize dispatches src to the tokenizer registered for its file name.
func (r *Registry) Tokenize(ctx context.Context, src Source) ([]models.SourceUnit, error) {
	t, ok := r.For(src.Filename)
	if !ok {
		return nil, &ParseError{Path: src.Filename, Reason: "unsupported language"}
	}
	return t.Tokenize(ctx, src)
}

// Default returns a registry with every language enabled in langs, or all
// known languages when langs is empty.
func Default(namer Namer, langs ...parser.Language) (*Registry, error) {
	if namer == nil {
		namer = NewRandomNamer()
	}
	if len(langs) == 0 {
		langs = []parser.Language{
			parser.LangKotlin, parser.LangJava, parser.LangGo, parser.LangPython,
			parser.LangRust, parser.LangTypeScript, parser.LangJavaScript,
			parser.LangC, parser.LangCPP, parser.LangCSharp, parser.LangHaskell,
		}
	}

	r := NewRegistry()
	for _, lang := range langs {
		if lang.Structured() {
			r.Register(lang, NewStructured(lang, namer, DefaultTestMarkers(lang)))
			continue
		}
		lex, err := NewLexical(lang, namer)
		if err != nil {
			return nil, err
		}
		r.Register(lang, lex)
	}
	return r, nil
}

// wrap brackets content with BEGIN/END sentinels. Content must be non-empty.
func wrap(file, name string, content []models.Token) models.SourceUnit {
	toks := make([]models.Token, 0, len(content)+2)
	toks = append(toks, content[0].WithSentinel(models.BeginText))
	toks = append(toks, content...)
	toks = append(toks, content[len(content)-1].WithSentinel(models.EndText))
	return models.SourceUnit{File: file, FunctionName: name, Tokens: toks}
}
