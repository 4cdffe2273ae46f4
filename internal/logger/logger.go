// Package logger provides structured logrus logging with fields carried through context.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// rotating holds the rotating file writer so Sync can close it.
var (
	rotating   io.Closer
	rotatingMu sync.Mutex
)

// Logger wraps logrus.Entry to provide structured logging with context support.
type Logger struct {
	*logrus.Entry
}

// Config holds logger configuration.
type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // defaults to stdout
	ServiceName string
}

// DefaultConfig returns the configuration used before main installs a logger.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stdout,
		ServiceName: "topicmodel",
	}
}

// New creates a Logger writing to cfg.Output.
// Parameters:
//   - cfg: logger configuration; nil uses DefaultConfig.
// Returns:
//   - *Logger: initialized logger instance.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return build(cfg.Level, cfg.Format, out, cfg.ServiceName)
}

// NewFromEnv creates a Logger from environment configuration.
// Outside the local environment logs also go to a rotating file.
func NewFromEnv(envCfg *EnvConfig) *Logger {
	if envCfg == nil {
		envCfg = LoadFromEnv()
	}
	if envCfg.Output != nil {
		return build(envCfg.Level, envCfg.Format, envCfg.Output, envCfg.ServiceName)
	}

	var writers []io.Writer
	if envCfg.Environment == "local" || !envCfg.LogFileOnly {
		writers = append(writers, os.Stdout)
	}
	if envCfg.Environment != "local" && envCfg.LogFile != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   envCfg.LogFile,
			MaxSize:    envCfg.MaxSize,
			MaxBackups: envCfg.MaxBackups,
			MaxAge:     envCfg.MaxAge,
			Compress:   envCfg.Compress,
		}
		writers = append(writers, fileWriter)

		rotatingMu.Lock()
		rotating = fileWriter
		rotatingMu.Unlock()
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	return build(envCfg.Level, envCfg.Format, io.MultiWriter(writers...), envCfg.ServiceName)
}

func build(level, format string, out io.Writer, service string) *Logger {
	log := logrus.New()
	log.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetReportCaller(true)
	log.SetFormatter(newFormatter(format))

	return &Logger{Entry: log.WithField("service", service)}
}

func newFormatter(format string) logrus.Formatter {
	if strings.ToLower(format) == "text" {
		return &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  timestampFormat,
			CallerPrettyfier: callerPrettyfier,
		}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: timestampFormat,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: callerPrettyfier,
	}
}

// Sync closes the rotating log file, if any. Call it before the process exits.
func Sync() error {
	rotatingMu.Lock()
	defer rotatingMu.Unlock()

	if rotating != nil {
		return rotating.Close()
	}
	return nil
}

// WithFields returns a new Logger with additional fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// WithField returns a new Logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a new Logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

// callerPrettyfier reports callers as package.Func and file.go:line.
func callerPrettyfier(frame *runtime.Frame) (function string, file string) {
	funcName := frame.Function
	if idx := strings.LastIndex(funcName, "/"); idx != -1 {
		funcName = funcName[idx+1:]
	}
	return funcName, filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}

// Info logs a message at Info level on the default logger.
func Info(format string, args ...interface{}) {
	GetDefault().Infof(format, args...)
}

// CtxDebug logs a message at Debug level with context fields.
func CtxDebug(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Debugf(format, args...)
}
