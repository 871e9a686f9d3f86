package annotate

import (
	"bufio"
	"io"
	"sync"
)

type lineResult struct {
	line string
	err  error
}

// StreamReader reads annotations from a non-interactive stream such as a
// pipe. Reads happen on a background goroutine so that Close can unblock
// Readline even when the underlying read cannot be interrupted.
type StreamReader struct {
	lines  chan lineResult
	closed chan struct{}
	once   sync.Once
}

// NewStreamReader starts reading lines from r.
func NewStreamReader(r io.Reader) *StreamReader {
	s := &StreamReader{
		lines:  make(chan lineResult),
		closed: make(chan struct{}),
	}
	go s.scan(r)
	return s
}

func (s *StreamReader) scan(r io.Reader) {
	defer close(s.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	for scanner.Scan() {
		select {
		case s.lines <- lineResult{line: scanner.Text()}:
		case <-s.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case s.lines <- lineResult{err: err}:
		case <-s.closed:
		}
	}
}

// Readline returns the next line, or io.EOF once the stream ends or the
// reader is closed.
func (s *StreamReader) Readline() (string, error) {
	select {
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	case <-s.closed:
		return "", io.EOF
	}
}

// Close unblocks Readline. The underlying reader is not closed.
func (s *StreamReader) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
