// Package logging provides a leveled logger for tinywebd, with an optional
// asynchronous mode that offloads file writes to a drain goroutine reading
// from a bounded queue, and day- or line-count-triggered file rotation.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ehrlich-b/tinywebd/internal/constants"
	"github.com/ehrlich-b/tinywebd/internal/queue"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logging configuration. Dir/Suffix configure file output with
// rotation, written synchronously unless Async is set, in which case a drain
// goroutine writes from a queue of QueueSize records; when Dir is empty the
// logger writes to Output (or stderr)
// synchronously with no rotation, the shape used by tests and the CLI's
// verbose console output.
type Config struct {
	Level     LogLevel
	Output    io.Writer
	Dir       string
	Suffix    string
	Async     bool
	QueueSize int
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Logger wraps stdlib log with level filtering and optional async file
// rotation.
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	logger *log.Logger
	out    io.Writer

	dir    string
	suffix string
	day    int
	lines  int

	queue   *queue.BlockQueue[string]
	drained chan struct{} // closed once drain() returns after queue.Close
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// NewLogger creates a new logger from config. A nil config uses
// DefaultConfig.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	l := &Logger{level: config.Level}

	if config.Dir != "" {
		l.dir = config.Dir
		l.suffix = config.Suffix
		if l.suffix == "" {
			l.suffix = ".log"
		}
		qsize := config.QueueSize
		if qsize <= 0 {
			qsize = constants.DefaultLogQueueCapacity
		}
		l.rotate(time.Now())
		if config.Async {
			l.queue = queue.NewBlockQueue[string](qsize)
			l.drained = make(chan struct{})
			go l.drain()
		}
		return l
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	l.out = out
	l.logger = log.New(out, "", log.LstdFlags)
	return l
}

// Default returns the process-wide default logger, creating one on stderr
// if none has been set.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault installs logger as the process-wide default.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// rotate (re)opens the log file for "today".
func (l *Logger) rotate(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rotateLocked(now, -1)
}

// rotateLocked reopens the log file, naming it dir/YYYY_MM_DD<suffix>, or
// dir/YYYY_MM_DD-k<suffix> when rolling over within the same day after
// hitting MaxLogLines (sameDayGeneration >= 0). The line count is reset
// only on a day roll, so k keeps growing through the day.
func (l *Logger) rotateLocked(now time.Time, sameDayGeneration int) {
	if f, ok := l.out.(io.Closer); ok && l.out != os.Stderr {
		f.Close()
	}

	stamp := now.Format("2006_01_02")
	var name string
	if sameDayGeneration < 0 {
		name = stamp + l.suffix
	} else {
		name = fmt.Sprintf("%s-%d%s", stamp, sameDayGeneration, l.suffix)
	}
	path := filepath.Join(l.dir, name)

	if err := os.MkdirAll(l.dir, 0o777); err != nil && !os.IsExist(err) {
		fmt.Fprintf(os.Stderr, "logging: mkdir %s: %v\n", l.dir, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: open %s: %v\n", path, err)
		f = os.Stderr
	}

	l.out = f
	l.logger = log.New(f, "", 0)
	l.day = now.Day()
	if sameDayGeneration < 0 {
		l.lines = 0
	}
}

// maybeRotate rolls the log file over on a day change or every MaxLogLines
// lines within the same day, matching the original log writer's rotation
// trigger. Caller must hold l.mu.
func (l *Logger) maybeRotate() {
	if l.dir == "" {
		return
	}
	now := time.Now()
	if now.Day() != l.day {
		l.rotateLocked(now, -1)
		return
	}
	if l.lines > 0 && l.lines%constants.MaxLogLines == 0 {
		l.rotateLocked(now, l.lines/constants.MaxLogLines)
	}
}

func (l *Logger) drain() {
	defer close(l.drained)
	for {
		line, ok := l.queue.Pop()
		if !ok {
			return
		}
		l.mu.Lock()
		l.logger.Print(line)
		l.mu.Unlock()
	}
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var result string
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			if result != "" {
				result += " "
			}
			result += fmt.Sprintf("%v=%v", args[i], args[i+1])
		}
	}
	if result != "" {
		return " " + result
	}
	return ""
}

var levelTitle = map[LogLevel]string{
	LevelDebug: "[DEBUG]",
	LevelInfo:  "[INFO]",
	LevelWarn:  "[WARN]",
	LevelError: "[ERROR]",
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}
	line := fmt.Sprintf("%s %s%s", levelTitle[level], msg, formatArgs(args))

	if l.queue != nil {
		l.mu.Lock()
		l.lines++
		l.maybeRotate()
		l.mu.Unlock()
		l.queue.PushBack(line)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines++
	l.maybeRotate()
	l.logger.Print(line)
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, fmt.Sprintf(format, args...)) }

// Printf logs at info level, for compatibility with callers expecting a
// plain *log.Logger-shaped interface.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// Close drains the async queue's backlog and waits for the drain goroutine
// to finish writing it before closing the log file, so no queued line is
// lost to a race between the last PushBack and the file going away.
func (l *Logger) Close() error {
	if l.queue != nil {
		l.queue.Close()
		<-l.drained
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.out.(io.Closer); ok && l.out != os.Stderr {
		return f.Close()
	}
	return nil
}

// Global convenience functions operating on Default().
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
