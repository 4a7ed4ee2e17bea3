package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Printer logs at a fixed level, so call sites read logger.Warn.Printf(...)
type Printer struct {
	level logrus.Level
}

func (p Printer) Printf(format string, args ...interface{}) {
	std.Logf(p.level, format, args...)
}

func (p Printer) Println(args ...interface{}) {
	std.Logln(p.level, args...)
}

var (
	Info    = Printer{logrus.InfoLevel}
	Warn    = Printer{logrus.WarnLevel}
	Debug   = Printer{logrus.DebugLevel}
	Verbose = Printer{logrus.TraceLevel}
	Error   = Printer{logrus.ErrorLevel}

	std    = logrus.New()
	always = logrus.New() // writes to the log file regardless of level
)

var levels = map[string]logrus.Level{
	"error":   logrus.ErrorLevel,
	"warn":    logrus.WarnLevel,
	"info":    logrus.InfoLevel,
	"debug":   logrus.DebugLevel,
	"verbose": logrus.TraceLevel,
}

func Init() error {
	return InitWithLevel("info")
}

func InitWithLevel(logLevel string) error {
	return InitWithConfig(logLevel, "wheelhouse.log", "text")
}

// InitWithConfig routes all output to logFilePath, mirroring errors to
// stderr. An empty path logs to stderr only. Unknown levels fall back to info.
func InitWithConfig(logLevel, logFilePath, format string) error {
	level, ok := levels[strings.ToLower(logLevel)]
	if !ok {
		level = logrus.InfoLevel
	}

	var formatter logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if strings.EqualFold(format, "json") {
		formatter = &logrus.JSONFormatter{}
	}

	std = logrus.New()
	std.SetLevel(level)
	std.SetFormatter(formatter)

	always = logrus.New()
	always.SetLevel(logrus.TraceLevel)
	always.SetFormatter(formatter)

	if logFilePath == "" {
		std.SetOutput(os.Stderr)
		always.SetOutput(io.Discard)
		return nil
	}

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	std.SetOutput(logFile)
	std.AddHook(&stderrHook{out: os.Stderr})
	always.SetOutput(logFile)
	return nil
}

// L exposes the configured logger for callers that want fields
func L() *logrus.Logger {
	return std
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return std.WithFields(fields)
}

// Always writes to the log file bypassing level filtering
func Always(format string, args ...interface{}) {
	always.Infof(format, args...)
}

// stderrHook copies error-and-worse entries to the terminal
type stderrHook struct {
	out io.Writer
}

func (h *stderrHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (h *stderrHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = io.WriteString(h.out, line)
	return err
}
