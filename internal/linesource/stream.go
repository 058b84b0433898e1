package linesource

import (
	"bufio"
	"io"
)

// Stream reads lines from any reader, typically standard input. Running out
// of data is treated as temporary: the same reader is polled again until a
// terminated line arrives or it returns a real error.
type Stream struct {
	r    io.Reader
	br   *bufio.Reader
	opts options
}

// NewStream returns a Stream over r.
func NewStream(r io.Reader, opts ...Option) *Stream {
	return &Stream{r: r, br: bufio.NewReader(r), opts: buildOptions(opts)}
}

// NextLine implements Source.
func (s *Stream) NextLine(dst []byte) ([]byte, error) {
	return readLine(s.br, dst, func(bool) (bool, error) {
		sleep(s.opts.backoff)
		return false, nil
	})
}

// Close closes the underlying reader when it is closable.
func (s *Stream) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
