// Package logging wraps logrus with the banner/section helpers the
// teacher's pkg/logger hand rolled over the standard log package. The
// formatting personality survives; the backend is now a real structured
// logger so fields, levels, and hooks work like they do everywhere else in
// the corpus (runZeroInc-sockstats and rustyguts-bken both reach for
// logrus/echo's logger rather than the standard library).
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a thin wrapper around *logrus.Logger adding the banner/section
// console furniture the teacher's server printed at startup.
type Logger struct {
	*logrus.Logger
}

// New builds a Logger writing to out at the given level. Passing a nil out
// defaults to os.Stdout.
func New(level logrus.Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{Logger: l}
}

// Banner prints the startup banner the teacher's logger.Banner rendered,
// now at Info level with structured fields available to downstream hooks.
func (l *Logger) Banner(title string) {
	bar := strings.Repeat("=", len(title)+4)
	l.Info(bar)
	l.Info("  " + title)
	l.Info(bar)
}

// Section marks a named phase of startup or shutdown in the log stream.
func (l *Logger) Section(name string) {
	l.Info(fmt.Sprintf("--- %s ---", name))
}
