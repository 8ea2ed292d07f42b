package taskflow

import (
	"sync"

	"github.com/joeycumines/logiface"
)

// The package logger is disabled (nil) by default. Loggers built on
// logiface are nil-safe, so callers hold and use the value without
// guarding.
var packageLogger struct {
	mu     sync.RWMutex
	logger *logiface.Logger[logiface.Event]
}

// SetLogger sets the package-level logger, used by schedulers that were
// not given one explicitly. Pass nil to disable.
//
//	taskflow.SetLogger(stumpy.L.New(
//	    stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
//	    stumpy.L.WithLevel(logiface.LevelDebug),
//	).Logger())
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	packageLogger.mu.Lock()
	packageLogger.logger = logger
	packageLogger.mu.Unlock()
}

// Logger returns the package-level logger, possibly nil (disabled).
func Logger() *logiface.Logger[logiface.Event] {
	packageLogger.mu.RLock()
	defer packageLogger.mu.RUnlock()
	return packageLogger.logger
}
