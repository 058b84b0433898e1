// Package linesource reads complete text lines from standard input, regular
// files and named pipes, hiding how each of them reports running out of data.
//
// A zero-length read is never treated as the end of the input: streams and
// files wait for more data on the same handle, and named pipes are reopened
// so the next writer can connect.
package linesource

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ErrInvalidEncoding is returned when a line is not valid UTF-8.
var ErrInvalidEncoding = errors.New("line is not valid UTF-8")

// Source yields complete lines. NextLine appends the next line, with its
// terminator removed, to dst. It only returns once a whole line is available
// or reading failed for good.
type Source interface {
	NextLine(dst []byte) ([]byte, error)
	Close() error
}

type options struct {
	backoff time.Duration
	logger  *zap.Logger
}

// Option configures a Source.
type Option func(*options)

// WithBackoff sets how long a source idles after a zero-length read before
// trying again. Zero retries immediately.
func WithBackoff(d time.Duration) Option {
	return func(o *options) { o.backoff = max(d, 0) }
}

// WithLogger sets the logger used for reopen and watch diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open picks the source for path: standard input for "" or "-", a Pipe for a
// named pipe and a File for anything else.
func Open(path string, opts ...Option) (Source, error) {
	if path == "" || path == "-" {
		return NewStream(os.Stdin, opts...), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	switch {
	case info.Mode()&os.ModeNamedPipe != 0:
		return OpenPipe(path, opts...)
	case info.IsDir():
		return nil, fmt.Errorf("input %s is a directory", path)
	default:
		return OpenFile(path, opts...)
	}
}

// eofFunc is called when the underlying reader has no more data. pending
// reports whether part of a line has been read already. Returning flush
// completes the pending text as a line.
type eofFunc func(pending bool) (flush bool, err error)

// readLine appends one line from br to dst.
func readLine(br *bufio.Reader, dst []byte, atEOF eofFunc) ([]byte, error) {
	start := len(dst)
	for {
		chunk, err := br.ReadSlice('\n')
		dst = append(dst, chunk...)

		switch {
		case err == nil:
			return finishLine(dst, start)
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrNoProgress):
			flush, eofErr := atEOF(len(dst) > start)
			if eofErr != nil {
				return dst[:start], eofErr
			}
			if flush {
				return finishLine(dst, start)
			}
		default:
			return dst[:start], err
		}
	}
}

func finishLine(dst []byte, start int) ([]byte, error) {
	line := dst[start:]
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !utf8.Valid(line) {
		return dst[:start], ErrInvalidEncoding
	}
	return dst[:start+len(line)], nil
}

func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
