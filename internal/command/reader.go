package command

import (
	"fmt"
	"sync"
)

// LineSource yields complete lines. NextLine appends one line, without its
// terminator, to dst and returns the extended slice.
type LineSource interface {
	NextLine(dst []byte) ([]byte, error)
}

// Reader pulls lines from a LineSource and parses each into a Command. It
// reuses one buffer across calls and must only be driven by one goroutine.
type Reader struct {
	mu  sync.Mutex
	src LineSource
	buf []byte
}

// NewReader returns a Reader over src.
func NewReader(src LineSource) *Reader {
	return &Reader{src: src, buf: make([]byte, 0, 512)}
}

// Next blocks for the next line and parses it. Source failures are returned
// wrapped; grammar violations are returned as *ParseError. Calling Next from
// two goroutines at once is a programming error and panics.
func (r *Reader) Next() (Command, error) {
	if !r.mu.TryLock() {
		panic("command: concurrent call to Reader.Next")
	}
	defer r.mu.Unlock()

	line, err := r.src.NextLine(r.buf[:0])
	if cap(line) > 0 {
		r.buf = line[:0]
	}
	if err != nil {
		return nil, fmt.Errorf("read line: %w", err)
	}
	return Parse(string(line))
}
