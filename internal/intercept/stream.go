package intercept

import (
	"bytes"
	"io"
	"sync"
)

// stream is an in-memory pipe with an unbounded buffer. Writes never block,
// so an emulated process can finish emitting output before anyone reads it;
// reads block until data arrives or the stream is closed. This is what makes
// the listener-first ordering guarantee hold: bytes emitted before a reader
// attaches are retained, never dropped.
type stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newStream() *stream {
	s := &stream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

var _ io.ReadCloser = (*stream)(nil)

func (s *stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := s.buf.Write(p)
	s.cond.Broadcast()
	return n, err
}

func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.buf.Len() == 0 {
		if s.closed {
			return 0, io.EOF
		}
		s.cond.Wait()
	}
	return s.buf.Read(p)
}

// Close marks the end of the stream. Buffered bytes remain readable; readers
// observe EOF once the buffer drains.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}
