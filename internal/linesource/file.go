package linesource

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// filePollInterval bounds how long File sleeps on a watcher before reading
// again, in case a write event was coalesced or missed.
const filePollInterval = time.Second

// File reads lines from a regular file and keeps following it once the end
// is reached, like tail -f. Writes are detected with fsnotify; without a
// watcher it falls back to polling at the configured backoff.
type File struct {
	path    string
	f       *os.File
	br      *bufio.Reader
	watcher *fsnotify.Watcher
	opts    options
}

// OpenFile opens path for reading from its beginning.
func OpenFile(path string, opts ...Option) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}

	src := &File{path: path, f: f, br: bufio.NewReader(f), opts: buildOptions(opts)}

	w, err := fsnotify.NewWatcher()
	if err == nil {
		err = w.Add(path)
		if err != nil {
			w.Close()
		}
	}
	if err != nil {
		src.opts.logger.Warn("File watch unavailable, polling instead",
			zap.String("path", path), zap.Error(err))
	} else {
		src.watcher = w
	}
	return src, nil
}

// NextLine implements Source.
func (s *File) NextLine(dst []byte) ([]byte, error) {
	return readLine(s.br, dst, func(bool) (bool, error) {
		s.wait()
		return false, nil
	})
}

func (s *File) wait() {
	if s.watcher == nil {
		sleep(s.opts.backoff)
		return
	}

	timer := time.NewTimer(max(s.opts.backoff, filePollInterval))
	defer timer.Stop()

	select {
	case ev, ok := <-s.watcher.Events:
		if ok && ev.Has(fsnotify.Remove|fsnotify.Rename) {
			s.opts.logger.Warn("Input file moved or removed, still reading the open handle",
				zap.String("path", s.path), zap.String("op", ev.Op.String()))
		}
	case err, ok := <-s.watcher.Errors:
		if ok {
			s.opts.logger.Debug("File watch error", zap.String("path", s.path), zap.Error(err))
		}
	case <-timer.C:
	}
}

// Close stops watching and closes the file.
func (s *File) Close() error {
	if s.watcher != nil {
		s.watcher.Close()
	}
	return s.f.Close()
}
