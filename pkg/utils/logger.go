package utils

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger структурированный логгер поверх logrus
type Logger struct {
	entry *logrus.Entry
}

// NewLogger создает новый логгер
// level: debug|info|warn|error|fatal, format: json|text
func NewLogger(level, format string) *Logger {
	return NewLoggerWithOutput(level, format, os.Stdout)
}

// NewLoggerWithOutput создает логгер с произвольным выводом (используется в тестах)
func NewLoggerWithOutput(level, format string, out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(parseLevel(level))

	if strings.ToLower(format) == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	return &Logger{entry: logrus.NewEntry(base)}
}

// NewNopLogger логгер, который ничего не выводит
func NewNopLogger() *Logger {
	return NewLoggerWithOutput("error", "text", io.Discard)
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// WithField добавляет поле к логгеру
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields добавляет несколько полей к логгеру
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError добавляет ошибку в поле "error"
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// WithContext привязывает контекст к записи
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{entry: l.entry.WithContext(ctx)}
}

// Entry возвращает logrus запись для компонентов, работающих с logrus напрямую
func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}

// IsDebug включен ли уровень debug
func (l *Logger) IsDebug() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}

func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *Logger) Info(msg string) { l.entry.Info(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *Logger) Warn(msg string) { l.entry.Warn(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *Logger) Error(msg string) { l.entry.Error(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Fatal логирует сообщение уровня fatal и завершает программу
func (l *Logger) Fatal(msg string) { l.entry.Fatal(msg) }

// Fatalf логирует форматированное сообщение уровня fatal и завершает программу
func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

// Default logger instance
var defaultLogger = NewLogger("info", "text")

// SetDefaultLogger устанавливает логгер по умолчанию
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// DefaultLogger возвращает логгер по умолчанию
func DefaultLogger() *Logger {
	return defaultLogger
}
