package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// heading prints an underlined title.
func heading(w io.Writer, title, underline string, colored bool, attrs ...color.Attribute) {
	if colored {
		color.New(append([]color.Attribute{color.Bold}, attrs...)...).Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, strings.Repeat(underline, len(title)))
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ")

func markdownRow(w io.Writer, cells []string) {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = cellEscaper.Replace(c)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(escaped, " | "))
}

// Table is a titled table. Data, when set, is what JSON and TOON encode.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Footer  []string
	Data    any
	// Highlight marks rows drawn in color in text output.
	Highlight func(row int) bool
}

// NewTable creates a table that wraps structured data for serialization.
func NewTable(title string, headers []string, rows [][]string, footer []string, data any) *Table {
	return &Table{Title: title, Headers: headers, Rows: rows, Footer: footer, Data: data}
}

// RenderData returns Data, or the rows keyed by header.
func (t *Table) RenderData() any {
	if t.Data != nil {
		return t.Data
	}
	out := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]string, len(t.Headers))
		for j, h := range t.Headers {
			if j < len(row) {
				m[h] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// RenderText draws the table without borders.
func (t *Table) RenderText(w io.Writer, colored bool) error {
	if t.Title != "" {
		heading(w, t.Title, "=", colored)
		fmt.Fprintln(w)
	}

	left := tw.CellAlignment{Global: tw.AlignLeft}
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{Alignment: left, Formatting: tw.CellFormatting{AutoFormat: tw.On}},
			Row:    tw.CellConfig{Alignment: left},
			Footer: tw.CellConfig{Alignment: left},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders:  tw.Border{Left: tw.Off, Right: tw.Off, Top: tw.Off, Bottom: tw.Off},
			Settings: tw.Settings{Separators: tw.Separators{BetweenColumns: tw.Off}},
		}),
	)

	table.Header(t.Headers)
	for i, row := range t.Rows {
		if colored && t.Highlight != nil && t.Highlight(i) {
			marked := make([]string, len(row))
			for j, c := range row {
				marked[j] = color.CyanString(c)
			}
			row = marked
		}
		table.Append(row)
	}
	if len(t.Footer) > 0 {
		footer := make([]any, len(t.Footer))
		for i, f := range t.Footer {
			footer[i] = f
		}
		table.Footer(footer...)
	}
	table.Render()
	fmt.Fprintln(w)
	return nil
}

// RenderMarkdown writes a GitHub-flavored table; the footer becomes a
// trailing row.
func (t *Table) RenderMarkdown(w io.Writer) error {
	if t.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", t.Title)
	}
	markdownRow(w, t.Headers)
	seps := make([]string, len(t.Headers))
	for i := range seps {
		seps[i] = "---"
	}
	markdownRow(w, seps)
	for _, row := range t.Rows {
		markdownRow(w, row)
	}
	if len(t.Footer) > 0 {
		markdownRow(w, t.Footer)
	}
	fmt.Fprintln(w)
	return nil
}

// Fact is one labeled value in a Section.
type Fact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Section is a block of prose and labeled facts.
type Section struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Facts   []Fact `json:"facts,omitempty"`
	Data    any    `json:"-"`
}

// RenderData returns Data, or the section itself.
func (s *Section) RenderData() any {
	if s.Data != nil {
		return s.Data
	}
	return s
}

// RenderText writes the facts as "Label: value" lines after the content.
func (s *Section) RenderText(w io.Writer, colored bool) error {
	if s.Title != "" {
		heading(w, s.Title, "-", colored)
	}
	if s.Content != "" {
		fmt.Fprintln(w, s.Content)
	}
	for _, f := range s.Facts {
		label := f.Label + ":"
		if colored {
			label = color.New(color.Bold).Sprint(label)
		}
		fmt.Fprintf(w, "%s %s\n", label, f.Value)
	}
	return nil
}

// RenderMarkdown writes the facts as a bullet list.
func (s *Section) RenderMarkdown(w io.Writer) error {
	if s.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", s.Title)
	}
	if s.Content != "" {
		fmt.Fprintf(w, "%s\n\n", s.Content)
	}
	if len(s.Facts) > 0 {
		for _, f := range s.Facts {
			fmt.Fprintf(w, "- **%s:** %s\n", f.Label, f.Value)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// Report is a titled sequence of renderables.
type Report struct {
	Title    string
	Sections []Renderable
	Data     any
}

// RenderData returns Data, or the title with every section's data.
func (r *Report) RenderData() any {
	if r.Data != nil {
		return r.Data
	}
	parts := make([]any, len(r.Sections))
	for i, s := range r.Sections {
		parts[i] = s.RenderData()
	}
	return map[string]any{"title": r.Title, "sections": parts}
}

// RenderText writes the sections separated by blank lines.
func (r *Report) RenderText(w io.Writer, colored bool) error {
	if r.Title != "" {
		heading(w, r.Title, "=", colored, color.FgCyan)
		fmt.Fprintln(w)
	}
	for i, s := range r.Sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := s.RenderText(w, colored); err != nil {
			return err
		}
	}
	return nil
}

// RenderMarkdown writes the title as a top-level heading.
func (r *Report) RenderMarkdown(w io.Writer) error {
	if r.Title != "" {
		fmt.Fprintf(w, "# %s\n\n", r.Title)
	}
	for _, s := range r.Sections {
		if err := s.RenderMarkdown(w); err != nil {
			return err
		}
	}
	return nil
}
