package command

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// ParseError reports a grammar violation on a single line. Start and End are
// byte offsets into Line; they are clamped on construction so they always
// describe a valid, possibly empty, range of Line.
type ParseError struct {
	Line  string
	Start int
	End   int
	Msg   string
}

func newParseError(line string, tok Token, msg string) *ParseError {
	start, end := tok.Start, tok.End
	start = min(max(start, 0), len(line))
	end = min(max(end, start), len(line))
	return &ParseError{Line: line, Start: start, End: end, Msg: msg}
}

// Error returns a single-line description. Use Render for the caret form.
func (e *ParseError) Error() string {
	return fmt.Sprintf("column %d: %s", e.Column()+1, e.Msg)
}

// Column returns the zero-based character column where the offending span
// starts. An empty span at the end of the line sits directly after the last
// visible character.
func (e *ParseError) Column() int {
	return utf8.RuneCountInString(e.Line[:e.Start])
}

// Width returns the display width of the offending span, never less than one.
func (e *ParseError) Width() int {
	return max(runewidth.StringWidth(e.Line[e.Start:e.End]), 1)
}

// Render draws the line with carets under the offending span:
//
//	| message lorem
//	|         ^^^^^ channel ID must be a number
func (e *ParseError) Render() string {
	var b strings.Builder
	b.WriteString("| ")
	b.WriteString(e.Line)
	b.WriteString("\n| ")
	b.WriteString(padding(e.Line[:e.Start]))
	b.WriteString(strings.Repeat("^", e.Width()))
	b.WriteString(" ")
	b.WriteString(e.Msg)
	return b.String()
}

// padding returns blank space as wide as prefix on a terminal. Tabs are kept
// so the caret line expands them the same way the echoed line does.
func padding(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		if r == '\t' {
			b.WriteRune('\t')
			continue
		}
		b.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}
	return b.String()
}
