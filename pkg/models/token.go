package models

import (
	"fmt"
	"strings"
)

// Mode says whether an indexed entity is the course baseline repository or a
// student submission.
type Mode string

const (
	ModeCourse     Mode = "course"
	ModeSubmission Mode = "submission"
)

// String implements fmt.Stringer.
func (m Mode) String() string { return string(m) }

// NoDenizen is the denizen id carried by baseline tokens, which have no owning student.
const NoDenizen = -1

// Sentinel display texts bracketing every SourceUnit.
const (
	BeginText = "$BEGIN$"
	EndText   = "$END$"
)

// Span is the source location covered by a token.
type Span struct {
	File     string `json:"file"`
	FromLine int    `json:"from_line"`
	FromCol  int    `json:"from_col"`
	ToLine   int    `json:"to_line"`
	ToCol    int    `json:"to_col"`
}

// String renders the span as file:line:col-line:col.
func (s Span) String() string {
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.File, s.FromLine, s.FromCol, s.ToLine, s.ToCol)
}

// Token is one anonymized element of a SourceUnit.
//
// Tokens compare by Key: the grammar symbol, plus the display text when the
// token is structural. Opaque tokens (identifiers, literals) carry a random
// display name that never takes part in comparison, so renaming cannot
// defeat a match.
type Token struct {
	Mode      Mode   `json:"mode"`
	OwnerID   int    `json:"owner_id"`
	DenizenID int    `json:"denizen_id"`
	Symbol    string `json:"symbol"`
	Span      Span   `json:"span"`
	Text      string `json:"text"`
	Opaque    bool   `json:"opaque,omitempty"`
}

// Key returns the comparison key of the token.
func (t Token) Key() string {
	if t.Opaque {
		return t.Symbol
	}
	return t.Symbol + "\x1f" + t.Text
}

// IsSentinel reports whether the token is a synthetic BEGIN or END marker.
func (t Token) IsSentinel() bool {
	return !t.Opaque && (t.Text == BeginText || t.Text == EndText)
}

// String implements fmt.Stringer.
func (t Token) String() string {
	return fmt.Sprintf("%s(%s)@%d:%d", t.Symbol, t.Text, t.Span.FromLine, t.Span.FromCol)
}

// WithSentinel returns a structural copy of t carrying a sentinel text.
func (t Token) WithSentinel(text string) Token {
	t.Text = text
	t.Opaque = false
	return t
}

// SourceUnit is one indexable chunk of tokens: a function body for a
// structured language, a blank-line delimited block for a lexical one.
// Tokens start with a BEGIN sentinel and end with an END sentinel.
type SourceUnit struct {
	File         string  `json:"file"`
	FunctionName string  `json:"function_name"`
	Tokens       []Token `json:"tokens"`
}

// FromLine is the first line covered by the unit, or 0 for an empty unit.
func (u SourceUnit) FromLine() int {
	if len(u.Tokens) == 0 {
		return 0
	}
	return u.Tokens[0].Span.FromLine
}

// ToLine is the last line covered by the unit, or 0 for an empty unit.
func (u SourceUnit) ToLine() int {
	if len(u.Tokens) == 0 {
		return 0
	}
	return u.Tokens[len(u.Tokens)-1].Span.ToLine
}

// Content returns the unit's tokens without the BEGIN/END sentinels.
func (u SourceUnit) Content() []Token {
	toks := u.Tokens
	if len(toks) > 0 && toks[0].IsSentinel() {
		toks = toks[1:]
	}
	if len(toks) > 0 && toks[len(toks)-1].IsSentinel() {
		toks = toks[:len(toks)-1]
	}
	return toks
}

// Describe renders the unit keys on one line, for debug logs.
func (u SourceUnit) Describe(limit int) string {
	var b strings.Builder
	for i, t := range u.Tokens {
		if limit > 0 && i >= limit {
			b.WriteString(" ...")
			break
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Symbol)
	}
	return b.String()
}
