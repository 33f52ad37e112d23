package abi

import (
	"github.com/joeycumines/native-module-host/internal/dispatch"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/joeycumines/native-module-host/internal/notify"
	"github.com/joeycumines/native-module-host/internal/property"
)

// ownedSerial is a serial dispatcher created through CreateSerialDispatcher.
// It quits once its last ID is released.
type ownedSerial struct {
	*dispatch.Serial
}

func (s ownedSerial) Destroy() { s.QuitSync() }

// CreateSerialDispatcher starts a serial dispatcher owned by the returned ID.
func CreateSerialDispatcher(out *ID) Status {
	if out == nil {
		return StatusError
	}
	s := dispatch.CreateSerialDispatcher()
	if st := fromObject[dispatch.Dispatcher](ownedSerial{s}, out); st != StatusOK {
		s.QuitSync()
		return st
	}
	return StatusOK
}

func DispatcherFromObject(d dispatch.Dispatcher, out *ID) Status {
	if d == nil {
		return StatusError
	}
	return fromObject(d, out)
}

func DispatcherToObject(id ID, out *dispatch.Dispatcher) Status {
	return toObject(id, out)
}

func DispatcherAddRef(id ID) Status  { return addRef[dispatch.Dispatcher](id) }
func DispatcherRelease(id ID) Status { return release[dispatch.Dispatcher](id) }

// DispatcherHasThreadAccess writes whether the caller runs on the dispatcher.
func DispatcherHasThreadAccess(id ID, out *bool) Status {
	d, ok := lookup[dispatch.Dispatcher](id)
	if !ok || out == nil {
		return StatusError
	}
	*out = d.HasThreadAccess()
	return StatusOK
}

// DispatcherPost posts task to the dispatcher.
func DispatcherPost(id ID, task func()) Status {
	d, ok := lookup[dispatch.Dispatcher](id)
	if !ok || task == nil {
		return StatusError
	}
	d.Post(task)
	return StatusOK
}

// GetJSDispatcher writes an ID for the bag's JS dispatcher, or the zero ID.
func GetJSDispatcher(bag ID, out *ID) Status {
	return bagDispatcher(bag, dispatch.GetJSDispatcher, out)
}

// GetUIDispatcher writes an ID for the bag's UI dispatcher, or the zero ID.
func GetUIDispatcher(bag ID, out *ID) Status {
	return bagDispatcher(bag, dispatch.GetUIDispatcher, out)
}

func bagDispatcher(bag ID, get func(*property.Bag) dispatch.Dispatcher, out *ID) Status {
	b, ok := lookup[*property.Bag](bag)
	if !ok || out == nil {
		return StatusError
	}
	d := get(b)
	if d == nil {
		*out = 0
		return StatusOK
	}
	return fromObject(d, out)
}

// CreateNotificationService creates a service forwarding to parent, which
// may be the zero ID.
func CreateNotificationService(parent ID, out *ID) Status {
	var p *notify.Service
	if parent != 0 {
		var ok bool
		if p, ok = lookup[*notify.Service](parent); !ok {
			return StatusError
		}
	}
	return fromObject(notify.New(p), out)
}

func NotificationServiceFromObject(s *notify.Service, out *ID) Status {
	if s == nil {
		return StatusError
	}
	return fromObject(s, out)
}

func NotificationServiceToObject(id ID, out **notify.Service) Status {
	return toObject(id, out)
}

func NotificationServiceAddRef(id ID) Status  { return addRef[*notify.Service](id) }
func NotificationServiceRelease(id ID) Status { return release[*notify.Service](id) }

// NotificationServiceSubscribe subscribes handler to name. dispatcher may be
// the zero ID to run the handler on the sending goroutine.
func NotificationServiceSubscribe(service, dispatcher, name ID, handler notify.Handler, out *ID) Status {
	s, ok := lookup[*notify.Service](service)
	if !ok || handler == nil {
		return StatusError
	}
	n, ok := lookup[*property.Name](name)
	if !ok {
		return StatusError
	}
	var d dispatch.Dispatcher
	if dispatcher != 0 {
		if d, ok = lookup[dispatch.Dispatcher](dispatcher); !ok {
			return StatusError
		}
	}
	return fromObject(s.Subscribe(d, n, handler), out)
}

// NotificationServiceSend sends a notification.
func NotificationServiceSend(service, name ID, sender, data any) Status {
	s, ok := lookup[*notify.Service](service)
	if !ok {
		return StatusError
	}
	n, ok := lookup[*property.Name](name)
	if !ok {
		return StatusError
	}
	s.Send(n, sender, data)
	return StatusOK
}

func SubscriptionFromObject(sub *notify.Subscription, out *ID) Status {
	if sub == nil {
		return StatusError
	}
	return fromObject(sub, out)
}

func SubscriptionToObject(id ID, out **notify.Subscription) Status {
	return toObject(id, out)
}

func SubscriptionAddRef(id ID) Status  { return addRef[*notify.Subscription](id) }
func SubscriptionRelease(id ID) Status { return release[*notify.Subscription](id) }

// SubscriptionUnsubscribe stops future deliveries to the subscription.
func SubscriptionUnsubscribe(id ID) Status {
	sub, ok := lookup[*notify.Subscription](id)
	if !ok {
		return StatusError
	}
	sub.Unsubscribe()
	return StatusOK
}

// SubscriptionIsSubscribed writes whether the subscription is live.
func SubscriptionIsSubscribed(id ID, out *bool) Status {
	sub, ok := lookup[*notify.Subscription](id)
	if !ok || out == nil {
		return StatusError
	}
	*out = sub.IsSubscribed()
	return StatusOK
}

func ModuleBuilderFromObject(b *module.Builder, out *ID) Status {
	if b == nil {
		return StatusError
	}
	return fromObject(b, out)
}

func ModuleBuilderToObject(id ID, out **module.Builder) Status {
	return toObject(id, out)
}

func ModuleBuilderAddRef(id ID) Status  { return addRef[*module.Builder](id) }
func ModuleBuilderRelease(id ID) Status { return release[*module.Builder](id) }

func ModuleInstanceFromObject(inst *module.Instance, out *ID) Status {
	if inst == nil {
		return StatusError
	}
	return fromObject(inst, out)
}

func ModuleInstanceToObject(id ID, out **module.Instance) Status {
	return toObject(id, out)
}

func ModuleInstanceAddRef(id ID) Status  { return addRef[*module.Instance](id) }
func ModuleInstanceRelease(id ID) Status { return release[*module.Instance](id) }

// ModuleInstanceName writes the module's script name.
func ModuleInstanceName(id ID, out *string) Status {
	inst, ok := lookup[*module.Instance](id)
	if !ok || out == nil {
		return StatusError
	}
	*out = inst.Info().ModuleName
	return StatusOK
}
