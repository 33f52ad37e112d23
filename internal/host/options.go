package host

import (
	"log/slog"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/metrics"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/joeycumines/native-module-host/internal/notify"
)

// Option configures New.
type Option func(*Host)

// WithLogger sets the host logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// WithMetrics instruments the host's dispatchers, notifications and module
// calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// WithErrorHandler receives every error passed to ReportError.
func WithErrorHandler(fn func(error)) Option {
	return func(h *Host) { h.onError = fn }
}

// WithRegistrar sets the modules built on Start. Defaults to a registrar
// holding the process-wide registrations.
func WithRegistrar(r *module.Registrar) Option {
	return func(h *Host) { h.registrar = r }
}

// WithParentNotifications makes the host's notification service forward to
// parent.
func WithParentNotifications(parent *notify.Service) Option {
	return func(h *Host) { h.parent = parent }
}

// WithUIQueue makes q the host's UI dispatcher. The caller owns q and must
// quit it after Close.
func WithUIQueue(q *dispatch.UIQueue) Option {
	return func(h *Host) { h.uiQueue = q }
}
