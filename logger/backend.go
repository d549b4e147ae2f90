package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const (
	defaultThresholdKB = 10 * 1000 // 10 MB per file before rolling.
	defaultMaxRolls    = 8

	logsBuffer = 64
)

type logEntry struct {
	log   []byte
	level Level
}

type logWriter interface {
	io.WriteCloser
	LogLevel() Level
}

type logWriterWrap struct {
	io.WriteCloser
	logLevel Level
}

func (lw logWriterWrap) LogLevel() Level {
	return lw.logLevel
}

// Backend is a logging backend. Subsystems created from the backend write to
// the backend's writers. Lines written while the backend is not running are
// discarded.
type Backend struct {
	mu        sync.RWMutex
	running   bool
	writers   []logWriter
	writeChan chan logEntry
	done      chan struct{}
}

// NewBackend creates a new logger backend.
func NewBackend() *Backend {
	return &Backend{}
}

// AddLogFile adds a file which the log will write into on a certain
// log level with the default log rotation settings. It'll create the file
// and its directory if they don't exist.
func (b *Backend) AddLogFile(logFile string, logLevel Level) error {
	return b.AddLogFileWithCustomRotator(logFile, logLevel, defaultThresholdKB, defaultMaxRolls)
}

// AddLogFileWithCustomRotator adds a file which the log will write into on a certain
// log level, with the specified log rotation settings.
func (b *Backend) AddLogFileWithCustomRotator(logFile string, logLevel Level, thresholdKB int64, maxRolls int) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return errors.Wrapf(err, "failed to create log directory %s", logDir)
		}
	}
	r, err := rotator.New(logFile, thresholdKB, false, maxRolls)
	if err != nil {
		return errors.Wrapf(err, "failed to create file rotator for %s", logFile)
	}
	return b.AddLogWriter(r, logLevel)
}

// AddLogWriter adds a type implementing io.WriteCloser which the log will
// write into on a certain log level.
func (b *Backend) AddLogWriter(w io.WriteCloser, logLevel Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("the logger is already running")
	}
	b.writers = append(b.writers, logWriterWrap{WriteCloser: w, logLevel: logLevel})
	return nil
}

// Run launches the logger backend in a separate goroutine.
func (b *Backend) Run() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("the logger is already running")
	}
	b.running = true
	b.writeChan = make(chan logEntry, logsBuffer)
	b.done = make(chan struct{})
	go b.runBlocking(b.writeChan, b.done)
	return nil
}

func (b *Backend) runBlocking(entries <-chan logEntry, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error in logger.Backend goroutine: %+v\n", err)
			fmt.Fprintf(os.Stderr, "Goroutine stacktrace: %s\n", debug.Stack())
		}
	}()
	for entry := range entries {
		for _, writer := range b.writers {
			if entry.level >= writer.LogLevel() {
				_, _ = writer.Write(entry.log)
			}
		}
	}
}

// IsRunning returns true if Run has been called and Close has not.
func (b *Backend) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *Backend) write(level Level, line []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return
	}
	b.writeChan <- logEntry{log: line, level: level}
}

// Close flushes pending lines and closes every writer.
func (b *Backend) Close() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.writeChan)
	done := b.done
	b.mu.Unlock()

	<-done
	for _, writer := range b.writers {
		_ = writer.Close()
	}
}

// Logger returns a new logger for a particular subsystem that writes to the
// Backend b. A tag describes the subsystem and is included in all log
// messages. The logger uses the info verbosity level by default.
func (b *Backend) Logger(subsystemTag string) *Logger {
	l := &Logger{tag: subsystemTag, backend: b}
	l.SetLevel(LevelInfo)
	return l
}
