package notify

import (
	"weak"

	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/property"
)

// Proxy refers to a Service without keeping it alive. Once the service is
// collected, Send does nothing and Subscribe returns nil.
type Proxy struct {
	target weak.Pointer[Service]
}

// NewProxy returns a proxy for s.
func NewProxy(s *Service) *Proxy {
	return &Proxy{target: weak.Make(s)}
}

// Service returns the target, or nil if it has been collected.
func (p *Proxy) Service() *Service { return p.target.Value() }

// Subscribe subscribes on the target service.
func (p *Proxy) Subscribe(d dispatch.Dispatcher, name *property.Name, handler Handler) *Subscription {
	if s := p.target.Value(); s != nil {
		return s.Subscribe(d, name, handler)
	}
	return nil
}

// Send sends on the target service.
func (p *Proxy) Send(name *property.Name, sender, data any) {
	if s := p.target.Value(); s != nil {
		s.Send(name, sender, data)
	}
}
