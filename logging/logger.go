package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Moonlight-Companies/gomodbus/common"
)

// levelToZap maps common.LogLevel to its zapcore.Level equivalent.
func levelToZap(level common.LogLevel) zapcore.Level {
	switch level {
	case common.LevelTrace, common.LevelDebug:
		return zapcore.DebugLevel
	case common.LevelInfo:
		return zapcore.InfoLevel
	case common.LevelWarn:
		return zapcore.WarnLevel
	case common.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InvalidLevel
	}
}

// Logger implements common.LoggerInterface and common.LoggerInterfaceHexdump
// on top of a zap.SugaredLogger. The level gating happens here rather than
// in zap's own AtomicLevel so SetLevel/GetLevel stay simple, race-free
// field accesses instead of needing an AtomicLevel passed around.
type Logger struct {
	mu     sync.Mutex
	level  common.LogLevel
	writer io.Writer
	fields map[string]interface{}
	sugar  *zap.SugaredLogger
}

// Option is a function that configures a Logger
type Option func(*Logger)

// WithLevel sets the log level
func WithLevel(level common.LogLevel) Option {
	return func(l *Logger) {
		l.level = level
	}
}

// WithWriter sets the writer for the logger
func WithWriter(writer io.Writer) Option {
	return func(l *Logger) {
		l.writer = writer
	}
}

// WithFields adds fields to the logger
func WithFields(fields map[string]interface{}) Option {
	return func(l *Logger) {
		if l.fields == nil {
			l.fields = make(map[string]interface{})
		}
		for k, v := range fields {
			l.fields[k] = v
		}
	}
}

// buildSugar constructs the zap.SugaredLogger backing a Logger from a
// writer and level; fields are not part of it.
func buildSugar(writer io.Writer, level common.LogLevel) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)

	core := zapcore.NewCore(encoder, zapcore.AddSync(writer), levelToZap(level))
	return zap.New(core).Sugar()
}

// NewLogger creates a new logger with the given options
func NewLogger(options ...Option) *Logger {
	logger := &Logger{
		level:  common.LevelInfo,
		writer: os.Stdout,
		fields: make(map[string]interface{}),
	}

	for _, option := range options {
		option(logger)
	}

	logger.sugar = buildSugar(logger.writer, logger.level)
	return logger
}

func (l *Logger) withFieldArgs() []interface{} {
	if len(l.fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(l.fields)*2)
	for k, v := range l.fields {
		args = append(args, k, v)
	}
	return args
}

// Trace logs a trace message. zap has no dedicated trace level, so trace
// messages are emitted at debug level with the level name preserved in the
// message prefix.
func (l *Logger) Trace(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelTrace {
		l.log(common.LevelTrace, format, args...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelDebug {
		l.log(common.LevelDebug, format, args...)
	}
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelInfo {
		l.log(common.LevelInfo, format, args...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelWarn {
		l.log(common.LevelWarn, format, args...)
	}
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelError {
		l.log(common.LevelError, format, args...)
	}
}

// WithFields returns a new logger with the given fields merged in
func (l *Logger) WithFields(fields map[string]interface{}) common.LoggerInterface {
	return NewLogger(
		WithLevel(l.level),
		WithWriter(l.writer),
		WithFields(l.fields),
		WithFields(fields),
	)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() common.LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level common.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.sugar = buildSugar(l.writer, level)
}

// log dispatches a formatted message plus accumulated fields to zap at the
// given level. Trace is folded onto zap's Debug level since zap has no
// lower level to target.
func (l *Logger) log(level common.LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	sugar := l.sugar
	fieldArgs := l.withFieldArgs()
	l.mu.Unlock()

	message := fmt.Sprintf(format, args...)
	switch level {
	case common.LevelTrace:
		sugar.Debugw("TRACE "+message, fieldArgs...)
	case common.LevelDebug:
		sugar.Debugw(message, fieldArgs...)
	case common.LevelInfo:
		sugar.Infow(message, fieldArgs...)
	case common.LevelWarn:
		sugar.Warnw(message, fieldArgs...)
	case common.LevelError:
		sugar.Errorw(message, fieldArgs...)
	}
}

// Hexdump outputs a hexdump of the given data at TRACE level
// Format: offset   00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f
func (l *Logger) Hexdump(ctx context.Context, data []byte) {
	if l.level > common.LevelTrace {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format(time.RFC3339)
	header := fmt.Sprintf("[%s] TRACE: HEXDUMP\n", timestamp)
	hexdump := "offset   00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f\n"

	for i := 0; i < len(data); i += 16 {
		hexdump += fmt.Sprintf("%08x", i)
		for j := 0; j < 16; j++ {
			if j == 8 {
				hexdump += " |"
			}
			hexdump += " "
			if i+j < len(data) {
				hexdump += fmt.Sprintf("%02x", data[i+j])
			} else {
				hexdump += "  "
			}
		}
		hexdump += "\n"
	}

	fieldsStr := ""
	if len(l.fields) > 0 {
		fieldStrings := make([]string, 0, len(l.fields))
		for k, v := range l.fields {
			fieldStrings = append(fieldStrings, fmt.Sprintf("%s=%q", k, fmt.Sprintf("%v", v)))
		}
		fieldsStr = " " + strings.Join(fieldStrings, " ")
	}

	output := header + hexdump
	if fieldsStr != "" {
		output += fieldsStr + "\n"
	}

	_, err := fmt.Fprint(l.writer, output)
	if err != nil && l.writer != os.Stderr {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to write hexdump: %v\n", err)
	}
}
