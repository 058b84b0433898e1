package linesource

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// State describes where a Pipe is in its reopen cycle.
type State int

const (
	StateOpen State = iota
	StateAwaitingReopen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateAwaitingReopen:
		return "awaiting-reopen"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Pipe reads lines from a named pipe. When the writer closes its end the
// pipe is reopened at the same path, which blocks until the next writer
// connects. A line left unterminated by a departing writer is delivered as
// it is, since nothing can complete it any more.
type Pipe struct {
	path string
	br   *bufio.Reader
	opts options

	mu    sync.Mutex
	f     *os.File
	state State
}

// OpenPipe opens the named pipe at path. Like any FIFO open for reading it
// blocks until a writer connects.
func OpenPipe(path string, opts ...Option) (*Pipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input pipe: %w", err)
	}
	return &Pipe{path: path, f: f, br: bufio.NewReader(f), opts: buildOptions(opts)}, nil
}

// State returns the current state.
func (p *Pipe) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NextLine implements Source. After a writer disconnects with a line left
// unterminated, that line is returned at once and the reopen happens on the
// following call.
func (p *Pipe) NextLine(dst []byte) ([]byte, error) {
	switch p.State() {
	case StateClosed:
		return dst, os.ErrClosed
	case StateAwaitingReopen:
		if err := p.connect(); err != nil {
			return dst, err
		}
	}
	return readLine(p.br, dst, func(pending bool) (bool, error) {
		if err := p.disconnect(); err != nil {
			return false, err
		}
		if pending {
			return true, nil
		}
		return false, p.connect()
	})
}

// disconnect drops the handle of a departed writer.
func (p *Pipe) disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return os.ErrClosed
	}
	p.f.Close()
	p.state = StateAwaitingReopen
	p.opts.logger.Debug("Pipe writer disconnected", zap.String("path", p.path))
	return nil
}

// connect reopens the pipe, blocking until the next writer connects.
func (p *Pipe) connect() error {
	p.opts.logger.Debug("Waiting for the next pipe writer", zap.String("path", p.path))
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("reopen input pipe: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		f.Close()
		return os.ErrClosed
	}
	p.f = f
	p.state = StateOpen
	p.br.Reset(f)
	p.opts.logger.Debug("Pipe reopened", zap.String("path", p.path))
	return nil
}

// Close closes the pipe. A NextLine blocked waiting for a writer only
// notices once that open returns.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return nil
	}
	prev := p.state
	p.state = StateClosed
	if prev == StateAwaitingReopen {
		return nil
	}
	return p.f.Close()
}
