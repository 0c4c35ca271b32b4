// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// LogType is an indicating the type of logging specified by the build flag.
type LogType byte

const (
	// LogTypeNone indicates no logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut all logging is written directly to stdout.
	LogTypeStdOut

	// LogTypeDefault logs to both stdout and, when configured, a rotating
	// log file.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

const (
	// DefaultMaxLogFileSize is the rotation threshold in kilobytes.
	DefaultMaxLogFileSize = 10 * 1024

	// DefaultMaxLogFiles is the number of rolled files kept.
	DefaultMaxLogFiles = 3
)

// Config controls process-wide logging.
type Config struct {
	// LogFile is the path of the rotating log file.  Empty means log to
	// stdout only.
	LogFile string

	// MaxLogFileSize is the rotation threshold in kilobytes.
	MaxLogFileSize int64

	// MaxLogFiles is the number of rolled files kept.
	MaxLogFiles int

	// Level overrides the build's default level when set.
	Level string

	// Stdout receives log output in addition to the log file.  Nil means
	// os.Stdout.
	Stdout io.Writer
}

// Logging is the process-wide logging state.  It is created once by
// InitOnLoad and never torn down.
type Logging struct {
	backend *btclog.Backend
	level   btclog.Level
	rotator *rotator.Rotator

	// degraded records why the log file could not be used.
	degraded error
}

// logWriter implements an io.Writer that outputs to stdout and, when
// available, the log rotator.
type logWriter struct {
	stdout  io.Writer
	rotator *rotator.Rotator
}

func (w *logWriter) Write(b []byte) (int, error) {
	if w.stdout != nil {
		w.stdout.Write(b)
	}
	if w.rotator != nil {
		w.rotator.Write(b)
	}
	return len(b), nil
}

var (
	initOnce sync.Once
	logging  *Logging
)

// InitOnLoad installs process-wide logging the first time it is called and
// returns the shared state on every call.  It never fails: if the log file
// cannot be opened, logging continues on stdout alone and Degraded reports
// the cause.
func InitOnLoad(cfg Config) *Logging {
	initOnce.Do(func() {
		logging = newLogging(cfg)
	})
	return logging
}

func newLogging(cfg Config) *Logging {
	l := &Logging{}

	levelStr := LogLevel
	if cfg.Level != "" {
		levelStr = cfg.Level
	}
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		level = btclog.LevelInfo
	}
	l.level = level

	if LoggingType == LogTypeNone {
		l.level = btclog.LevelOff
		l.backend = btclog.NewBackend(io.Discard)
		return l
	}

	w := &logWriter{stdout: cfg.Stdout}
	if w.stdout == nil {
		w.stdout = os.Stdout
	}

	if cfg.LogFile != "" && LoggingType == LogTypeDefault {
		r, err := initLogRotator(cfg)
		if err != nil {
			l.degraded = err
		} else {
			l.rotator = r
			w.rotator = r
		}
	}

	l.backend = btclog.NewBackend(w)
	return l
}

// initLogRotator creates the rotator for cfg.LogFile, creating its directory
// if needed.
func initLogRotator(cfg Config) (*rotator.Rotator, error) {
	size := cfg.MaxLogFileSize
	if size <= 0 {
		size = DefaultMaxLogFileSize
	}
	files := cfg.MaxLogFiles
	if files <= 0 {
		files = DefaultMaxLogFiles
	}

	logDir, _ := filepath.Split(cfg.LogFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: "+
				"%w", err)
		}
	}
	r, err := rotator.New(cfg.LogFile, size, false, files)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	return r, nil
}

// Logger returns a subsystem logger at the configured level.
func (l *Logging) Logger(subsystem string) btclog.Logger {
	logger := l.backend.Logger(subsystem)
	logger.SetLevel(l.level)
	return logger
}

// Degraded returns the reason file logging is unavailable, or nil.
func (l *Logging) Degraded() error {
	return l.degraded
}

// FileLogging reports whether output also goes to a rotating log file.
func (l *Logging) FileLogging() bool {
	return l.rotator != nil
}
