package logging

import (
	"os"
	"sync"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the timestamp layout used by the console and test appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. zapcore.Core satisfies this interface, which is how
// the observer used in tests is attached.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

type consoleAppender struct {
	mu      sync.Mutex
	out     zapcore.WriteSyncer
	encoder zapcore.Encoder
}

// NewStdoutAppender returns an appender writing console formatted lines to stdout.
func NewStdoutAppender() Appender {
	return NewWriterAppender(zapcore.Lock(os.Stdout))
}

// NewWriterAppender returns an appender writing console formatted lines to the given writer.
func NewWriterAppender(out zapcore.WriteSyncer) Appender {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(DefaultTimeFormatStr),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	return &consoleAppender{out: out, encoder: zapcore.NewConsoleEncoder(encoderConfig)}
}

// FileAppender writes console formatted lines to a file that is rotated by size.
type FileAppender struct {
	Appender
	out *lumberjack.Logger
}

// NewFileAppender returns an appender writing to filename. The file is rotated once it reaches
// maxSizeMB megabytes and two compressed backups are kept.
func NewFileAppender(filename string, maxSizeMB int) *FileAppender {
	out := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: 2,
		Compress:   true,
	}
	return &FileAppender{Appender: NewWriterAppender(zapcore.AddSync(out)), out: out}
}

// Close closes the current log file.
func (fa *FileAppender) Close() error {
	return fa.out.Close()
}

func (capp *consoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := capp.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	capp.mu.Lock()
	defer capp.mu.Unlock()
	_, err = capp.out.Write(buf.Bytes())
	return err
}

func (capp *consoleAppender) Sync() error {
	return capp.out.Sync()
}

func callerToString(caller *zapcore.EntryCaller) string {
	return caller.TrimmedPath()
}
