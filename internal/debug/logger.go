// Package debug provides process-wide debug logging on top of logrus.
package debug

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger  = newLogger(false, os.Stderr)
	enabled bool
	mu      sync.RWMutex
)

func newLogger(enable bool, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if enable {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.ErrorLevel)
	}
	return l
}

// Init enables or disables debug output on stderr.
// When disabled only errors are written.
func Init(enable bool) {
	InitWithOutput(enable, os.Stderr)
}

// InitWithOutput is Init writing to out.
func InitWithOutput(enable bool, out io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	enabled = enable
	logger = newLogger(enable, out)
}

// Enabled returns whether debug logging is enabled
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Logger returns the underlying logrus.Logger instance
func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, args ...any) { Logger().Debugf(msg, args...) }
func Info(msg string, args ...any)  { Logger().Infof(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warnf(msg, args...) }
func Error(msg string, args ...any) { Logger().Errorf(msg, args...) }

// WithFields returns an entry carrying fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger().WithFields(fields)
}
