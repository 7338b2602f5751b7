package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when a read is abandoned because its context ended.
var ErrInputCancelled = errors.New("input canceled")

// LineReader reads trimmed lines from input that cannot be interrupted, such
// as a terminal. One background goroutine owns the input; a line that arrives
// after its ReadLine was canceled is handed to the next call.
type LineReader struct {
	scanner *bufio.Scanner
	lines   chan string
	err     error
	start   sync.Once
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		scanner: bufio.NewScanner(r),
		lines:   make(chan string),
	}
}

func (r *LineReader) pump() {
	for r.scanner.Scan() {
		r.lines <- r.scanner.Text()
	}
	r.err = r.scanner.Err()
	if r.err == nil {
		r.err = io.EOF
	}
	close(r.lines)
}

// ReadLine waits for the next line. A final line without a newline is
// returned before io.EOF.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}
	r.start.Do(func() { go r.pump() })

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case line, ok := <-r.lines:
		if !ok {
			return "", r.err
		}
		return strings.TrimSpace(line), nil
	}
}
