// Package output renders klone reports as text, markdown, JSON or TOON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	toon "github.com/toon-format/toon-go"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "toon":
		return FormatTOON
	default:
		return FormatText
	}
}

// Renderable is data that renders itself for people and serializes for
// machines.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	// RenderData returns the value encoded for JSON and TOON.
	RenderData() any
}

// Formatter writes values in one format to stdout or a file.
type Formatter struct {
	format  Format
	writer  io.Writer
	file    *os.File
	colored bool
}

// NewFormatter writes to the file at output, or stdout when output is
// empty. Files never get color codes.
func NewFormatter(format Format, output string, colored bool) (*Formatter, error) {
	if output == "" {
		return NewWriterFormatter(format, os.Stdout, colored), nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, err
	}
	return &Formatter{format: format, writer: f, file: f}, nil
}

// NewWriterFormatter creates a formatter writing to w.
func NewWriterFormatter(format Format, w io.Writer, colored bool) *Formatter {
	return &Formatter{format: format, writer: w, colored: colored}
}

// Close closes the output file, if any.
func (f *Formatter) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// Format returns the configured format.
func (f *Formatter) Format() Format { return f.format }

// Colored reports whether text output carries color codes.
func (f *Formatter) Colored() bool { return f.colored }

// Output writes v. Values that are not Renderable are encoded as they are;
// text and markdown fall back to JSON for them.
func (f *Formatter) Output(v any) error {
	r, ok := v.(Renderable)
	switch f.format {
	case FormatText:
		if ok {
			return r.RenderText(f.writer, f.colored)
		}
		return writeJSON(f.writer, v)
	case FormatMarkdown:
		if ok {
			return r.RenderMarkdown(f.writer)
		}
		fmt.Fprintln(f.writer, "```json")
		if err := writeJSON(f.writer, v); err != nil {
			return err
		}
		_, err := fmt.Fprintln(f.writer, "```")
		return err
	}

	if ok {
		v = r.RenderData()
	}
	if f.format == FormatTOON {
		out, err := MarshalTOON(v)
		if err != nil {
			return fmt.Errorf("toon: %w", err)
		}
		_, err = fmt.Fprintln(f.writer, out)
		return err
	}
	return writeJSON(f.writer, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// MarshalTOON encodes v as TOON with two-space indentation.
func MarshalTOON(v any) (string, error) {
	out, err := toon.Marshal(v, toon.WithIndent(2))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Success prints a green message.
func (f *Formatter) Success(format string, args ...any) {
	f.notice(color.FgGreen, "", format, args...)
}

// Warning prints a yellow message, prefixed when uncolored.
func (f *Formatter) Warning(format string, args ...any) {
	f.notice(color.FgYellow, "WARNING: ", format, args...)
}

// Error prints a red message, prefixed when uncolored.
func (f *Formatter) Error(format string, args ...any) {
	f.notice(color.FgRed, "ERROR: ", format, args...)
}

// Info prints a cyan message.
func (f *Formatter) Info(format string, args ...any) {
	f.notice(color.FgCyan, "", format, args...)
}

func (f *Formatter) notice(attr color.Attribute, prefix, format string, args ...any) {
	if f.colored {
		color.New(attr).Fprintf(f.writer, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.writer, prefix+format+"\n", args...)
}

// CountColor colors text red when n is positive and green otherwise.
func CountColor(n int, text string) string {
	if n > 0 {
		return color.RedString(text)
	}
	return color.GreenString(text)
}
