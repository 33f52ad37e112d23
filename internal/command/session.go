package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/joeycumines/native-module-host/internal/builtin"
	"github.com/joeycumines/native-module-host/internal/builtin/samples"
	"github.com/joeycumines/native-module-host/internal/config"
	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/host"
	"github.com/joeycumines/native-module-host/internal/metrics"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// session is a started host plus everything a command wires around it: the
// configured logger, the UI queue, the sample dispatcher and the metrics
// endpoint.
type session struct {
	logger  *slog.Logger
	logFile io.Closer
	ui      *dispatch.UIQueue
	custom  *dispatch.Serial
	server  *http.Server
	// metricsAddr is the address the metrics endpoint listens on.
	metricsAddr string
	host        *host.Host
	events      *samples.EventLog
}

type sessionOptions struct {
	// samples adds the sample modules and their event log.
	samples bool
	// metricsAddr overrides the configured metrics listen address when
	// metrics are enabled. Used by tests to pick a free port.
	metricsAddr string
}

// openSession builds and starts a host with the built-in modules. On error
// everything created so far is torn down.
func openSession(ctx context.Context, cfg *config.Config, stderr io.Writer, opts sessionOptions) (s *session, err error) {
	s = &session{}
	defer func() {
		if err != nil {
			_ = s.Close()
			s = nil
		}
	}()

	s.logger, s.logFile, err = config.NewLogger(cfg, stderr)
	if err != nil {
		return s, err
	}

	var m *metrics.Metrics
	schema := config.DefaultSchema()
	if schema.Bool(cfg, config.KeyMetricsEnabled) {
		addr := opts.metricsAddr
		if addr == "" {
			addr = schema.Resolve(cfg, config.KeyMetricsAddr)
		}
		if m, err = s.serveMetrics(addr); err != nil {
			return s, err
		}
	}

	builtin.Register()
	reg := module.NewRegistrar()
	reg.AddRegistered()
	if opts.samples {
		samples.Register(reg)
	}

	s.ui = dispatch.NewUIQueue(dispatch.WithLogger(s.logger), dispatch.WithMetrics(m))
	s.ui.Start()

	s.host, err = host.New(cfg,
		host.WithLogger(s.logger),
		host.WithMetrics(m),
		host.WithRegistrar(reg),
		host.WithUIQueue(s.ui),
	)
	if err != nil {
		return s, err
	}

	if opts.samples {
		if s.host.Properties().Get(samples.CustomDispatcherName) == nil {
			s.custom = dispatch.NewSerial(
				dispatch.WithName(samples.CustomDispatcherName.String()),
				dispatch.WithLogger(s.logger),
				dispatch.WithMetrics(m),
			)
			s.host.Properties().Set(samples.CustomDispatcherName, dispatch.Dispatcher(s.custom))
		}
		s.events = samples.EventLogFor(s.host)
	}

	return s, s.host.Start(ctx)
}

func (s *session) serveMetrics(addr string) (*metrics.Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
	s.metricsAddr = ln.Addr().String()
	s.logger.Info("serving metrics", "addr", s.metricsAddr)
	return m, nil
}

// Close tears the session down in reverse order of construction.
func (s *session) Close() error {
	var errs []error
	if s.host != nil {
		errs = append(errs, s.host.Close())
	}
	if s.custom != nil {
		s.custom.QuitSync()
	}
	if s.ui != nil {
		s.ui.QuitSync()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, s.server.Shutdown(ctx))
		cancel()
	}
	if s.logFile != nil {
		errs = append(errs, s.logFile.Close())
	}
	return errors.Join(errs...)
}
