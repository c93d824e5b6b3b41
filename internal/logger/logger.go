package logger

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Info    = log.New(io.Discard, "", 0)
	Warn    = log.New(io.Discard, "", 0)
	Debug   = log.New(io.Discard, "", 0)
	Verbose = log.New(io.Discard, "", 0)
	Error   = log.New(io.Discard, "", 0)
	Always  = log.New(io.Discard, "", 0) // Always logs to file regardless of log level

	// Current log level for filtering
	currentLogLevel string

	rotator *lumberjack.Logger
)

// Options controls log level and file rotation
type Options struct {
	Level      string
	File       string // empty logs to stdout
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func Init() error {
	return InitWithLevel("info")
}

func InitWithLevel(logLevel string) error {
	return InitWithConfig(logLevel, "greeks.log")
}

func InitWithConfig(logLevel, logFilePath string) error {
	return InitWithOptions(Options{Level: logLevel, File: logFilePath, MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28})
}

// InitWithOptions wires every logger to a rotating file, or stdout when
// opts.File is empty.
func InitWithOptions(opts Options) error {
	currentLogLevel = opts.Level

	var out io.Writer = os.Stdout
	if opts.File != "" {
		r := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB, // MB
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays, // days
			Compress:   opts.Compress,
		}
		// fail early on an unwritable path instead of on the first line
		if _, err := r.Write(nil); err != nil {
			return err
		}
		if rotator != nil {
			rotator.Close()
		}
		rotator = r
		out = r
	}

	nullWriter := io.Discard

	Info = log.New(getWriter("info", out, nullWriter), "ℹ️  INFO: ", log.Ldate|log.Ltime)
	Warn = log.New(getWriter("warn", out, nullWriter), "⚠️  WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
	Debug = log.New(getWriter("debug", out, nullWriter), "🐛 DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
	Verbose = log.New(getWriter("verbose", out, nullWriter), "🔍 VERBOSE: ", log.Ldate|log.Ltime|log.Lshortfile)
	Always = log.New(out, "📝 ALWAYS: ", log.Ldate|log.Ltime)

	var errOut io.Writer = os.Stderr
	if opts.File != "" {
		errOut = io.MultiWriter(os.Stderr, out)
	}
	Error = log.New(errOut, "❌ ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)

	return nil
}

// Rotate starts a new log file, keeping the old one as a backup
func Rotate() error {
	if rotator == nil {
		return nil
	}
	return rotator.Rotate()
}

// Close flushes and closes the log file
func Close() error {
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

// Level returns the active level name
func Level() string {
	if _, ok := levels[currentLogLevel]; !ok {
		return "info"
	}
	return currentLogLevel
}

// getWriter returns the appropriate writer based on log level
func getWriter(level string, activeWriter, disabledWriter io.Writer) io.Writer {
	if shouldLog(level) {
		return activeWriter
	}
	return disabledWriter
}

var levels = map[string]int{
	"error":   0,
	"warn":    1,
	"info":    2,
	"debug":   3,
	"verbose": 4,
}

// shouldLog determines if a log level should be active
func shouldLog(level string) bool {
	currentLevel, exists := levels[currentLogLevel]
	if !exists {
		currentLevel = 2 // default to info
	}

	requiredLevel, exists := levels[level]
	if !exists {
		return false
	}

	return currentLevel >= requiredLevel
}
