package adapters

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	errs "github.com/liverex/leela-zero-ui/internal/errors"
)

// StreamProcess binds to an engine that is already running elsewhere and is
// reachable through a reader/writer pair.
type StreamProcess struct {
	in  io.WriteCloser
	out *bufio.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	closers   []io.Closer
}

// Attach wraps the engine's input and output streams. Extra closers are closed
// on Terminate.
func Attach(out io.Reader, in io.WriteCloser, closers ...io.Closer) *StreamProcess {
	return &StreamProcess{
		in:      in,
		out:     bufio.NewReader(out),
		done:    make(chan struct{}),
		closers: closers,
	}
}

func (s *StreamProcess) WriteLine(text string) error {
	select {
	case <-s.done:
		return errs.ErrPipeClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := io.WriteString(s.in, text+"\n"); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrPipeClosed, err)
	}
	return nil
}

func (s *StreamProcess) ReadLine() (string, error) {
	line, err := readLine(s.out)
	if err != nil {
		s.finish()
		if errors.Is(err, io.ErrClosedPipe) {
			return "", io.EOF
		}
	}
	return line, err
}

func (s *StreamProcess) Terminate() error {
	var firstErr error
	if err := s.in.Close(); err != nil {
		firstErr = err
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.finish()
	return firstErr
}

func (s *StreamProcess) IsAlive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *StreamProcess) Wait() (int, error) {
	<-s.done
	return 0, nil
}

func (s *StreamProcess) finish() {
	s.closeOnce.Do(func() { close(s.done) })
}
