package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"pipebot/internal/command"
)

// ErrRunnerBusy is returned by Run when another Run holds the reader.
var ErrRunnerBusy = errors.New("relay: runner already running")

// CommandSource yields parsed commands, one line at a time.
type CommandSource interface {
	Next() (command.Command, error)
}

// Runner reads commands and dispatches them one at a time, in input order.
type Runner struct {
	src        CommandSource
	dispatcher Dispatcher
	logger     *zap.Logger
	diag       io.Writer

	mu sync.Mutex
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDiagnostics sets where caret-style parse diagnostics are written for
// the operator. Nil disables them.
func WithDiagnostics(w io.Writer) RunnerOption {
	return func(r *Runner) { r.diag = w }
}

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner returns a Runner reading from src and dispatching to d.
func NewRunner(src CommandSource, d Dispatcher, opts ...RunnerOption) *Runner {
	r := &Runner{src: src, dispatcher: d, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes commands until the source fails or ctx is done. A bad line
// or a failed dispatch is reported and skipped; only source failures end the
// loop. Cancellation is noticed between lines, not during a blocked read.
func (r *Runner) Run(ctx context.Context) error {
	if !r.mu.TryLock() {
		return ErrRunnerBusy
	}
	defer r.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.step(ctx)
		if err == nil {
			continue
		}

		var perr *command.ParseError
		var derr *DispatchError
		switch {
		case errors.As(err, &perr):
			r.reportParse(perr)
		case errors.As(err, &derr):
			r.logger.Error("Command failed", zap.String("command", derr.Command.String()), zap.Error(derr.Err))
		default:
			return err
		}
	}
}

// step reads and executes exactly one command, returning any error as is.
func (r *Runner) step(ctx context.Context) error {
	cmd, err := r.src.Next()
	if err != nil {
		return err
	}
	r.logger.Debug("Command received", zap.Stringer("command", cmd))
	if err := Execute(ctx, r.dispatcher, cmd); err != nil {
		return &DispatchError{Command: cmd, Err: err}
	}
	return nil
}

func (r *Runner) reportParse(perr *command.ParseError) {
	r.logger.Warn("Could not parse input",
		zap.String("line", perr.Line),
		zap.Int("column", perr.Column()+1),
		zap.String("reason", perr.Msg))
	if r.diag != nil {
		fmt.Fprintln(r.diag, perr.Render())
	}
}

// DispatchError is a command that parsed but could not be executed.
type DispatchError struct {
	Command command.Command
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
