package hv

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var pkgLogger atomic.Pointer[slog.Logger]

// SetLogger replaces the logger used for lifecycle events and finalizer
// cleanups. A nil logger discards all records.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	pkgLogger.Store(l)
}

// debugLogger is used when HV_DEBUG is true and no logger was set.
var debugLogger = sync.OnceValue(func() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
})

func logger() *slog.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	if currentSettings().Debug {
		return debugLogger()
	}
	return slog.Default()
}
