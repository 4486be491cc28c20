// Package log provides the structured logger used across openTPT,
// wrapping logrus behind a small interface so call sites never import
// logrus directly.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface every subsystem depends on.
type Logger interface {
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger

	Trace(args ...any)
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)
}

// Config controls the logger's level, format, and file sink.
type Config struct {
	Level string // trace|debug|info|warn|error
	JSON  bool

	FileEnabled bool
	FileDir     string // logs/ directory; filename is opentpt_YYYYMMDD.log
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

type logrusLogger struct {
	entry *logrus.Entry
}

var root Logger = New(Config{Level: "info"})

// New builds a Logger from cfg.
func New(cfg Config) Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.JSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var writers []io.Writer
	writers = append(writers, os.Stdout)
	if cfg.FileEnabled && cfg.FileDir != "" {
		writers = append(writers, newDailyFileWriter(cfg.FileDir, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays))
	}
	l.SetOutput(io.MultiWriter(writers...))

	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// SetRoot installs l as the package-level default returned by Root.
func SetRoot(l Logger) { root = l }

// Root returns the package-level default logger.
func Root() Logger { return root }

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]any) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{entry: l.entry.WithError(err)}
}

func (l *logrusLogger) Trace(args ...any) { l.entry.Trace(args...) }
func (l *logrusLogger) Debug(args ...any) { l.entry.Debug(args...) }
func (l *logrusLogger) Info(args ...any)  { l.entry.Info(args...) }
func (l *logrusLogger) Warn(args ...any)  { l.entry.Warn(args...) }
func (l *logrusLogger) Error(args ...any) { l.entry.Error(args...) }
func (l *logrusLogger) Fatal(args ...any) { l.entry.Fatal(args...) }

// lumberjackFor is split out so dailyFileWriter can swap the underlying
// logger when the day rolls over.
func lumberjackFor(dir, name string, maxSizeMB, maxBackups, maxAgeDays int) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   dir + "/" + name,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}
