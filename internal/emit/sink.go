// Package emit delivers the single result document on a dedicated channel,
// apart from the diagnostic output on stdout and stderr.
package emit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
)

// DefaultFD is the descriptor the result is written to by default.
const DefaultFD = 3

var (
	// ErrAlreadyWritten is returned by a Sink on its second write.
	ErrAlreadyWritten = errors.New("result already written")
	// ErrChannelWrite wraps any failure to deliver the result document.
	ErrChannelWrite = errors.New("result channel write failed")
)

// Sink accepts exactly one document.
type Sink interface {
	WriteOnce(doc []byte) error
}

type onceSink struct {
	mu      sync.Mutex
	written bool
	name    string
	open    func() (io.WriteCloser, error)
}

func (s *onceSink) WriteOnce(doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written {
		return ErrAlreadyWritten
	}
	s.written = true

	w, err := s.open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrChannelWrite, s.name, err)
	}
	if _, err := w.Write(doc); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: write %s: %v", ErrChannelWrite, s.name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrChannelWrite, s.name, err)
	}
	return nil
}

func (s *onceSink) String() string { return s.name }

// FDSink writes to an inherited file descriptor, such as 3 opened by the parent process.
func FDSink(fd int) Sink {
	name := "fd " + strconv.Itoa(fd)
	return &onceSink{
		name: name,
		open: func() (io.WriteCloser, error) {
			f := os.NewFile(uintptr(fd), name)
			if f == nil {
				return nil, fmt.Errorf("invalid descriptor %d", fd)
			}
			if _, err := f.Stat(); err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// FileSink creates or truncates path and writes the document to it.
func FileSink(path string) Sink {
	return &onceSink{
		name: path,
		open: func() (io.WriteCloser, error) {
			return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		},
	}
}

// WriterSink writes to w without closing it.
func WriterSink(w io.Writer) Sink {
	return &onceSink{
		name: "writer",
		open: func() (io.WriteCloser, error) {
			return nopCloser{w}, nil
		},
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
