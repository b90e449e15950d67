package status

import (
	"sync"

	"github.com/kpango/glg"
)

// Sink receives notifications from the engine. Implementations must not block, the engine
// calls them from its own goroutines.
type Sink interface {
	Status(text string)
	Progress(fraction float64)
	Error(kind Kind, message string)
}

// Report sends err to the sink with its classified kind. Nil errors are ignored.
func Report(sink Sink, err error) {
	if err == nil || sink == nil {
		return
	}

	sink.Error(KindOf(err), err.Error())
}

// LogSink writes every notification through glg.
type LogSink struct {
	mu           sync.Mutex
	lastProgress int
}

// NewLogSink creates a Sink backed by the glg logger.
func NewLogSink() *LogSink {
	return &LogSink{lastProgress: -1}
}

// Status logs the status text.
func (s *LogSink) Status(text string) {
	glg.Info(text)
}

// Progress logs whole percentage changes only.
func (s *LogSink) Progress(fraction float64) {
	pct := int(fraction * 100)

	s.mu.Lock()
	if pct == s.lastProgress {
		s.mu.Unlock()
		return
	}
	s.lastProgress = pct
	s.mu.Unlock()

	glg.Printf("Download Progress: %d%%", pct)
}

// Error logs the failure. Fatal kinds are logged as failures.
func (s *LogSink) Error(kind Kind, message string) {
	if kind.Fatal() {
		glg.Failf("[%s] %s", kind, message)
		return
	}

	glg.Errorf("[%s] %s", kind, message)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Status(string)      {}
func (discard) Progress(float64)   {}
func (discard) Error(Kind, string) {}
