package interceptors

import (
	"context"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/wire"
)

// CallbackInterface faults calls whose client did not register a callback
// object implementing the callback interface of the service.
type CallbackInterface struct {
	implements bool
}

// NewCallbackInterface creates the check from a decision made while the
// wire was built. See ImplementsCallback.
func NewCallbackInterface(implements bool) *CallbackInterface {
	return &CallbackInterface{implements: implements}
}

// Name returns the interceptor name
func (i *CallbackInterface) Name() string {
	return "callback_interface"
}

func (i *CallbackInterface) Invoke(ctx context.Context, msg *invocation.Message, next invocation.Invoker) *invocation.Message {
	if !i.implements {
		msg.SetFaultBody(invocation.ErrNoRegisteredCallback)
		return msg
	}
	return next.Invoke(ctx, msg)
}

// ImplementsCallback reports whether object provides every operation of
// the callback interface.
func ImplementsCallback(object any, callback *interfacedef.Interface) bool {
	if callback == nil {
		return true
	}
	impl, ok := object.(wire.Implementation)
	if !ok {
		return false
	}
	for _, op := range callback.Operations {
		if _, ok := impl.Method(op.Name); !ok {
			return false
		}
	}
	return true
}

// CallbackInterfaceProcessor adds the check to every chain of wires whose
// source carries a callback object, in the reference interface phase.
func CallbackInterfaceProcessor() wire.Processor {
	return wire.InterceptorProcessor(invocation.PhaseReferenceInterface, func(w *wire.RuntimeWire, _ *invocation.Chain) invocation.Interceptor {
		object := w.Source().ReferenceParameters().CallbackObject
		if object == nil {
			return nil
		}
		var callback *interfacedef.Interface
		if ic := w.SourceContract(); ic != nil {
			callback = ic.CallbackInterface
		}
		return NewCallbackInterface(ImplementsCallback(object, callback))
	})
}
