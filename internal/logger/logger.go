// Package logger wraps hclog with the process-wide logger singleton and a
// thin printf-style facade for call sites that don't want to hold a logger
// handle.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	once sync.Once
	root hclog.Logger
)

// Init builds the root logger. level is one of trace|debug|info|warn|error.
// Safe to call more than once; only the first call takes effect.
func Init(level string, jsonFormat bool) hclog.Logger {
	once.Do(func() {
		root = hclog.New(&hclog.LoggerOptions{
			Name:       "catalogd",
			Level:      hclog.LevelFromString(level),
			Output:     os.Stderr,
			JSONFormat: jsonFormat,
		})
	})
	return root
}

// L returns the root logger, initializing it with defaults if Init was
// never called (useful in tests).
func L() hclog.Logger {
	if root == nil {
		return Init("info", false)
	}
	return root
}

// Named returns a sub-logger scoped to component, e.g. logger.Named("scanner").
func Named(component string) hclog.Logger {
	return L().Named(component)
}

func Info(msg string, args ...interface{})  { L().Info(msg, args...) }
func Warn(msg string, args ...interface{})  { L().Warn(msg, args...) }
func Error(msg string, args ...interface{}) { L().Error(msg, args...) }
func Debug(msg string, args ...interface{}) { L().Debug(msg, args...) }
