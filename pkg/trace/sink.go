package trace

import (
	"log"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Sink receives traced events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Log(e Event)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) Log(Event) {}

// FileSink appends events to a CBOR trace file.
type FileSink struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSink{
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

func (s *FileSink) Log(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err := s.encoder.Encode(e); err != nil {
		log.Printf("trace: %v", err)
	}
}

// Close is safe to call more than once.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// LogSink prints one line per event.
type LogSink struct {
	l *log.Logger
}

// NewLogSink writes to l, or to the standard logger when l is nil.
func NewLogSink(l *log.Logger) *LogSink {
	if l == nil {
		l = log.Default()
	}
	return &LogSink{l: l}
}

func (s *LogSink) Log(e Event) {
	s.l.Println(e.String())
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

func (m MultiSink) Log(e Event) {
	for _, s := range m {
		s.Log(e)
	}
}

var (
	_ Sink = NoopSink{}
	_ Sink = (*FileSink)(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = MultiSink(nil)
)
