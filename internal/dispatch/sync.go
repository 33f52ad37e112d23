package dispatch

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/joeycumines/native-module-host/internal/metrics"
)

// SyncConfig tunes RunSync diagnostics.
type SyncConfig struct {
	// WarnAfter logs a warning when a caller has been blocked longer than
	// this. Zero disables the warning.
	WarnAfter time.Duration
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

var syncConfig atomic.Pointer[SyncConfig]

// ConfigureSync replaces the RunSync diagnostics configuration.
func ConfigureSync(cfg SyncConfig) {
	syncConfig.Store(&cfg)
}

func currentSyncConfig() SyncConfig {
	if cfg := syncConfig.Load(); cfg != nil {
		return *cfg
	}
	return SyncConfig{}
}

// RunSync runs task on target and waits for it to finish. If the caller
// already has thread access the task runs inline.
//
// RunSync returns ErrStopped if target shut down before running the task, and
// a *TaskPanicError if the task panicked.
//
// Two dispatchers that RunSync onto each other deadlock. Builds with the debug
// tag detect such cycles and panic.
func RunSync(target Dispatcher, task func()) error {
	if target.HasThreadAccess() {
		task()
		return nil
	}

	caller := Current()
	debugEnterWait(caller, target)
	defer debugExitWait(caller)

	done := make(chan struct{})
	var failure *TaskPanicError
	posted := TryPost(target, func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				failure = newTaskPanicError(nameOf(target), r)
			}
		}()
		task()
	})
	if !posted {
		return ErrStopped
	}

	cfg := currentSyncConfig()
	start := time.Now()
	defer func() { cfg.Metrics.SyncWait(nameOf(target), time.Since(start)) }()

	var warn <-chan time.Time
	if cfg.WarnAfter > 0 {
		timer := time.NewTimer(cfg.WarnAfter)
		defer timer.Stop()
		warn = timer.C
	}

	for {
		select {
		case <-done:
			if failure != nil {
				return failure
			}
			return nil
		case <-target.Done():
			select {
			case <-done:
				if failure != nil {
					return failure
				}
				return nil
			default:
				return ErrStopped
			}
		case <-warn:
			warn = nil
			logger := cfg.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("synchronous dispatch is taking a long time",
				"target", nameOf(target),
				"waited", time.Since(start))
		}
	}
}
