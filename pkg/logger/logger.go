// Package logger provides structured logging with per-port scoping
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger interface for abstracted logging
type Logger interface {
	Info(message string, fields ...Field)
	Error(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Debug(message string, fields ...Field)
	Success(message string, fields ...Field)
	WithPort(port string) Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// PortLogger implements Logger, tagging every entry with the port it concerns
type PortLogger struct {
	logger   *logrus.Logger
	portName string
	mu       sync.RWMutex
}

// CustomFormatter formats logs with colors and emojis
type CustomFormatter struct {
	TimestampFormat string
	DisableColors   bool
}

// Format implements logrus.Formatter
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	flame := "🔥"
	timestamp := entry.Time.Format(f.TimestampFormat)

	var levelColor *color.Color
	var levelText string

	switch entry.Level {
	case logrus.ErrorLevel:
		levelColor = color.New(color.FgRed, color.Bold)
		levelText = "ERROR"
	case logrus.WarnLevel:
		levelColor = color.New(color.FgYellow, color.Bold)
		levelText = "WARN"
	case logrus.InfoLevel:
		levelColor = color.New(color.FgCyan)
		levelText = "INFO"
	case logrus.DebugLevel:
		levelColor = color.New(color.FgWhite, color.Faint)
		levelText = "DEBUG"
	default:
		levelColor = color.New(color.FgGreen)
		levelText = "SUCCESS"
	}

	data := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		data[k] = v
	}

	portPrefix := ""
	if port, ok := data["port"]; ok {
		if f.DisableColors {
			portPrefix = fmt.Sprintf("[%v] ", port)
		} else {
			portPrefix = fmt.Sprintf("[%s] ", color.New(color.FgBlue).Sprint(port))
		}
		delete(data, "port")
	}

	var output string
	if f.DisableColors {
		output = fmt.Sprintf("%s [%s] %s: %s%s", flame, timestamp, levelText, portPrefix, entry.Message)
	} else {
		output = fmt.Sprintf("%s [%s] %s: %s%s",
			flame,
			timestamp,
			levelColor.Sprint(levelText),
			portPrefix,
			entry.Message,
		)
	}

	if len(data) > 0 {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fields := " {"
		for i, k := range keys {
			if i > 0 {
				fields += ", "
			}
			fields += fmt.Sprintf("%s=%v", k, data[k])
		}
		fields += "}"
		if f.DisableColors {
			output += fields
		} else {
			output += color.New(color.FgWhite, color.Faint).Sprint(fields)
		}
	}

	return []byte(output + "\n"), nil
}

func newLogrus(logLevel string, disableColors bool) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	log.SetFormatter(&CustomFormatter{
		TimestampFormat: "15:04:05",
		DisableColors:   disableColors,
	})
	return log
}

// CreateLogger creates a logger writing to stdout and, if logFile is set, to that file
func CreateLogger(logFile string, logLevel string) Logger {
	log := newLogrus(logLevel, false)

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(io.MultiWriter(os.Stdout, file))
		}
	}

	return &PortLogger{logger: log}
}

// CreateFileLogger creates a logger that never touches the terminal.
// Used while the dashboard owns the screen; with no file, entries are discarded.
func CreateFileLogger(logFile string, logLevel string) (Logger, error) {
	log := newLogrus(logLevel, true)

	if logFile == "" {
		log.SetOutput(io.Discard)
		return &PortLogger{logger: log}, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(file)

	return &PortLogger{logger: log}, nil
}

// CreateLoggerWithOutput creates a logger with custom output (for testing)
func CreateLoggerWithOutput(logLevel string, output io.Writer) Logger {
	log := newLogrus(logLevel, true)
	log.SetOutput(output)

	return &PortLogger{logger: log}
}

// WithPort creates a new logger scoped to a port
func (l *PortLogger) WithPort(port string) Logger {
	return &PortLogger{
		logger:   l.logger,
		portName: port,
	}
}

func (l *PortLogger) convertFields(fields []Field) logrus.Fields {
	result := make(logrus.Fields)
	if l.portName != "" {
		result["port"] = l.portName
	}
	for _, f := range fields {
		result[f.Key] = f.Value
	}
	return result
}

// Info logs an info message
func (l *PortLogger) Info(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Info(message)
}

// Error logs an error message
func (l *PortLogger) Error(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Error(message)
}

// Warn logs a warning message
func (l *PortLogger) Warn(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Warn(message)
}

// Debug logs a debug message
func (l *PortLogger) Debug(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Debug(message)
}

// Success logs a success message (info level with special formatting)
func (l *PortLogger) Success(message string, fields ...Field) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.logger.WithFields(l.convertFields(fields)).Info("✅ " + message)
}

// NopLogger discards everything
type NopLogger struct{}

// NewNopLogger returns a Logger that drops all entries
func NewNopLogger() Logger { return NopLogger{} }

func (NopLogger) Info(string, ...Field)    {}
func (NopLogger) Error(string, ...Field)   {}
func (NopLogger) Warn(string, ...Field)    {}
func (NopLogger) Debug(string, ...Field)   {}
func (NopLogger) Success(string, ...Field) {}

// WithPort returns the same no-op logger
func (n NopLogger) WithPort(string) Logger { return n }

// ConsoleLogger provides simple console output for CLI
type ConsoleLogger struct {
	out io.Writer
	err io.Writer
}

// NewConsoleLogger creates a console logger for CLI output
func NewConsoleLogger(out, errOut io.Writer) *ConsoleLogger {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &ConsoleLogger{out: out, err: errOut}
}

// Info prints info message
func (c *ConsoleLogger) Info(message string) {
	fmt.Fprintf(c.out, "🔥 %s %s\n", color.CyanString("[Pyromaniac]"), message)
}

// Error prints error message
func (c *ConsoleLogger) Error(message string) {
	fmt.Fprintf(c.err, "🔥 %s %s\n", color.RedString("[Pyromaniac]"), message)
}

// Warn prints warning message
func (c *ConsoleLogger) Warn(message string) {
	fmt.Fprintf(c.out, "🔥 %s %s\n", color.YellowString("[Pyromaniac]"), message)
}

// Success prints success message
func (c *ConsoleLogger) Success(message string) {
	fmt.Fprintf(c.out, "🔥 %s ✅ %s\n", color.GreenString("[Pyromaniac]"), message)
}
