package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// LevelCritical is the slog level used for CRITICAL and Panicf records.
const LevelCritical = slog.Level(12)

// CreateSlogLogger returns an ILogger writing text records to stderr. Every
// record carries a pkg attribute naming the package that logged it.
func CreateSlogLogger(pkgName string) ILogger {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelInfo)
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})
	return &slogLogger{
		logger: slog.New(h).With("pkg", pkgName),
		level:  lv,
	}
}

type slogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

func (s *slogLogger) SetLevel(level LogLevel) {
	switch level {
	case CRITICAL:
		s.level.Set(LevelCritical)
	case ERROR:
		s.level.Set(slog.LevelError)
	case WARNING:
		s.level.Set(slog.LevelWarn)
	case INFO:
		s.level.Set(slog.LevelInfo)
	case DEBUG:
		s.level.Set(slog.LevelDebug)
	default:
		panic("unexpected level")
	}
}

func (s *slogLogger) log(level slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !s.logger.Enabled(ctx, level) {
		return
	}
	s.logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

func (s *slogLogger) Debugf(format string, args ...interface{}) {
	s.log(slog.LevelDebug, format, args...)
}

func (s *slogLogger) Infof(format string, args ...interface{}) {
	s.log(slog.LevelInfo, format, args...)
}

func (s *slogLogger) Warningf(format string, args ...interface{}) {
	s.log(slog.LevelWarn, format, args...)
}

func (s *slogLogger) Errorf(format string, args ...interface{}) {
	s.log(slog.LevelError, format, args...)
}

func (s *slogLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Log(context.Background(), LevelCritical, msg)
	panic(msg)
}
