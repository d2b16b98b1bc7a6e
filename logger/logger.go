package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger implements Logger on top of zerolog.
type ZeroLogger struct {
	zlog   *zerolog.Logger
	filter *HeaderFilter
}

var _ Logger = (*ZeroLogger)(nil)

var callerMarshalOnce sync.Once

// New creates a logger writing to stdout at the given level. Unknown levels
// fall back to info. When pretty is set, output goes through zerolog's
// console writer.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithWriter(os.Stdout, level, pretty)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, pretty bool) *ZeroLogger {
	callerMarshalOnce.Do(func() {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			parent := filepath.Base(filepath.Dir(file))
			if parent != "." && parent != "" {
				return parent + "/" + filepath.Base(file) + ":" + strconv.Itoa(line)
			}
			return filepath.Base(file) + ":" + strconv.Itoa(line)
		}
	})

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		zLevel = zerolog.InfoLevel
	}

	l := zerolog.New(w).With().Timestamp().CallerWithSkipFrameCount(3).Logger().Level(zLevel)
	return &ZeroLogger{zlog: &l, filter: NewHeaderFilter(nil)}
}

// Nop returns a logger that discards everything.
func Nop() *ZeroLogger {
	l := zerolog.Nop()
	return &ZeroLogger{zlog: &l}
}

// WithSensitiveHeaders returns a logger that also redacts the named
// headers. The receiver is unchanged.
func (l *ZeroLogger) WithSensitiveHeaders(extra ...string) *ZeroLogger {
	if l.filter == nil {
		return l
	}
	return &ZeroLogger{zlog: l.zlog, filter: NewHeaderFilter(extra)}
}

// WithFields returns a child logger with fields attached to every event.
// Sensitive keys are redacted before they are attached.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.filter != nil {
		fields = l.filter.FilterFields(fields)
	}
	child := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &child, filter: l.filter}
}

// Debug creates a debug-level event
func (l *ZeroLogger) Debug() LogEvent { return l.event(l.zlog.Debug()) }

// Info creates an info-level event
func (l *ZeroLogger) Info() LogEvent { return l.event(l.zlog.Info()) }

// Warn creates a warn-level event
func (l *ZeroLogger) Warn() LogEvent { return l.event(l.zlog.Warn()) }

// Error creates an error-level event
func (l *ZeroLogger) Error() LogEvent { return l.event(l.zlog.Error()) }

func (l *ZeroLogger) event(e *zerolog.Event) LogEvent {
	return &eventAdapter{event: e, filter: l.filter}
}
