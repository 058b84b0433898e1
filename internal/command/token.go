package command

// Token is a whitespace-free piece of a line together with the byte range it
// occupies in that line. A zero-length Token marks a position, typically the
// end of input.
type Token struct {
	Text  string
	Start int
	End   int
}

// Empty reports whether the token covers no text.
func (t Token) Empty() bool { return t.Start == t.End }

// Tokenizer splits one line into whitespace-delimited tokens left to right.
// Surrounding whitespace is ignored, and runs of space, tab, CR and LF count
// as a single delimiter. Offsets always refer to the untrimmed line.
type Tokenizer struct {
	line string
	end  int // one past the last non-whitespace byte
	pos  int
}

// NewTokenizer returns a tokenizer positioned before the first token of line.
func NewTokenizer(line string) *Tokenizer {
	begin, end := 0, len(line)
	for begin < end && isSpace(line[begin]) {
		begin++
	}
	for end > begin && isSpace(line[end-1]) {
		end--
	}
	if begin == end {
		begin, end = 0, 0
	}
	return &Tokenizer{line: line, end: end, pos: begin}
}

// Line returns the line being tokenized, exactly as it was given.
func (t *Tokenizer) Line() string { return t.line }

// Next returns the next token. When nothing is left it returns false and a
// zero-length token positioned right after the last character consumed.
func (t *Tokenizer) Next() (Token, bool) {
	if t.pos >= t.end {
		return t.at(t.end), false
	}
	start := t.pos
	stop := start
	for stop < t.end && !isSpace(t.line[stop]) {
		stop++
	}
	t.pos = stop
	for t.pos < t.end && isSpace(t.line[t.pos]) {
		t.pos++
	}
	return Token{Text: t.line[start:stop], Start: start, End: stop}, true
}

// Rest consumes everything after the current position as one value, without
// splitting it further. Inner whitespace is kept verbatim. The result is
// empty when no text remains.
func (t *Tokenizer) Rest() Token {
	start := t.pos
	for start < t.end && isSpace(t.line[start]) {
		start++
	}
	t.pos = t.end
	if start >= t.end {
		return t.at(t.end)
	}
	return Token{Text: t.line[start:t.end], Start: start, End: t.end}
}

// Done reports whether no tokens remain.
func (t *Tokenizer) Done() bool { return t.pos >= t.end }

func (t *Tokenizer) at(offset int) Token {
	return Token{Start: offset, End: offset}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}
