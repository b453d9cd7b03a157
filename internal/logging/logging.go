package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	Verbose bool
	Debug   bool

	// Out receives leveled output. Defaults to os.Stderr.
	Out io.Writer
	// File, when set, receives every message without colour.
	File io.Writer
}

// FromVerbosity maps the counted -v flag to a Logger.
func FromVerbosity(count int) Logger {
	return Logger{
		Verbose: count >= 1,
		Debug:   count >= 2,
	}
}

// Level returns the name of the lowest level this logger prints.
func (l Logger) Level() string {
	switch {
	case l.Debug:
		return "debug"
	case l.Verbose:
		return "info"
	default:
		return "warn"
	}
}

func (l Logger) Infof(msg string, args ...any) {
	l.write("info", color.GreenString("[info] "), l.Verbose || l.Debug, msg, args...)
}

func (l Logger) Debugf(msg string, args ...any) {
	l.write("debug", color.CyanString("[debug] "), l.Debug, msg, args...)
}

func (l Logger) Warnf(msg string, args ...any) {
	l.write("warn", color.YellowString("[warn] "), true, msg, args...)
}

func (l Logger) Errorf(msg string, args ...any) {
	l.write("error", color.RedString("[error] "), true, msg, args...)
}

// ErrorfAndReturn logs the message at error level and returns it as an error.
func (l Logger) ErrorfAndReturn(msg string, args ...any) error {
	l.Errorf(msg, args...)
	return fmt.Errorf(msg, args...)
}

// writeMu serializes output; workflows log from several goroutines.
var writeMu sync.Mutex

func (l Logger) write(level, prefix string, show bool, msg string, args ...any) {
	text := fmt.Sprintf(msg, args...)

	writeMu.Lock()
	defer writeMu.Unlock()

	if l.File != nil {
		ts := time.Now().UTC().Format(time.RFC3339)
		fmt.Fprintf(l.File, "%s [%s] %s\n", ts, level, text)
	}
	if show {
		fmt.Fprint(l.out(), prefix+text+"\n")
	}
}

func (l Logger) out() io.Writer {
	if l.Out != nil {
		return l.Out
	}
	return os.Stderr
}

// FileSinkOptions sizes the rotating log file.
type FileSinkOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFileSink returns a size-rotated writer for the log file.
func NewFileSink(opts FileSinkOptions) *lumberjack.Logger {
	sink := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    1,
		MaxBackups: 2,
		MaxAge:     30,
		Compress:   false,
	}
	if opts.MaxSizeMB > 0 {
		sink.MaxSize = opts.MaxSizeMB
	}
	if opts.MaxBackups > 0 {
		sink.MaxBackups = opts.MaxBackups
	}
	if opts.MaxAgeDays > 0 {
		sink.MaxAge = opts.MaxAgeDays
	}
	return sink
}
