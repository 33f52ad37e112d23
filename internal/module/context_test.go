package module

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/hostapi"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/notify"
	"github.com/joeycumines/native-module-host/internal/property"
)

type testContext struct {
	bag *property.Bag
	svc *notify.Service
	js  *dispatch.Serial

	mu   sync.Mutex
	errs []error
}

var _ hostapi.Context = (*testContext)(nil)

// newTestContext returns a context whose JS dispatcher is a plain serial
// dispatcher. The module bridge does not depend on the script runtime.
func newTestContext(t *testing.T) *testContext {
	t.Helper()
	js := dispatch.NewSerial(
		dispatch.WithName("js"),
		dispatch.WithShutdownNotification(dispatch.JSDispatcherShutdownName),
	)
	t.Cleanup(js.QuitSync)
	ctx := &testContext{bag: property.NewBag(), svc: notify.New(nil), js: js}
	dispatch.SetJSDispatcher(ctx.bag, js)
	return ctx
}

func (c *testContext) Properties() *property.Bag         { return c.bag }
func (c *testContext) Notifications() *notify.Service    { return c.svc }
func (c *testContext) UIDispatcher() dispatch.Dispatcher { return dispatch.GetUIDispatcher(c.bag) }
func (c *testContext) JSDispatcher() dispatch.Dispatcher { return c.js }
func (c *testContext) State() hostapi.State              { return hostapi.StateLoaded }
func (c *testContext) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (c *testContext) CallJSFunction(string, string, ...jsvalue.Value) {}
func (c *testContext) EmitJSEvent(string, string, ...jsvalue.Value)    {}

func (c *testContext) ReportError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *testContext) reported() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

// shutdownJS raises the JS dispatcher shutdown notification from the JS
// dispatcher, the way the host does.
func (c *testContext) shutdownJS(t *testing.T) {
	t.Helper()
	if err := dispatch.RunSync(c.js, func() {
		c.svc.Send(dispatch.JSDispatcherShutdownName, nil, nil)
	}); err != nil {
		t.Fatal(err)
	}
}
