package wire

import (
	"context"
	"fmt"

	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/scope"
)

// Method implements one operation of a component.
type Method func(ctx context.Context, args []any) (any, error)

// Implementation is a component implementation instance.
type Implementation interface {
	Method(operation string) (Method, bool)
}

// MethodSet is an Implementation backed by a map.
type MethodSet map[string]Method

func (m MethodSet) Method(operation string) (Method, bool) {
	fn, ok := m[operation]
	return fn, ok
}

// ImplementationInvoker is the tail of a service chain. It obtains the
// component instance from the component's scope container and calls the
// method implementing the operation. Errors become fault bodies.
type ImplementationInvoker struct {
	component *assembly.Component
	operation *interfacedef.Operation
	factory   scope.Factory
}

var _ invocation.Invoker = (*ImplementationInvoker)(nil)

func NewImplementationInvoker(component *assembly.Component, op *interfacedef.Operation, factory scope.Factory) *ImplementationInvoker {
	return &ImplementationInvoker{component: component, operation: op, factory: factory}
}

func (i *ImplementationInvoker) Invoke(ctx context.Context, msg *invocation.Message) *invocation.Message {
	instance, err := i.instance(ctx, msg)
	if err != nil {
		msg.SetFaultBody(&invocation.ServiceRuntimeError{Operation: i.operation.Name, Cause: err})
		return msg
	}
	impl, ok := instance.(Implementation)
	if !ok {
		msg.SetFaultBody(&invocation.ServiceRuntimeError{
			Operation: i.operation.Name,
			Cause:     fmt.Errorf("component %s: instance %T does not implement operations", i.component.Name, instance),
		})
		return msg
	}
	method, ok := impl.Method(i.operation.Name)
	if !ok {
		msg.SetFaultBody(&invocation.ServiceRuntimeError{Operation: i.operation.Name, Cause: invocation.ErrOperationNotFound})
		return msg
	}

	result, err := method(ctx, msg.Args())
	if err != nil {
		msg.SetFaultBody(err)
		return msg
	}
	msg.SetBody(result)
	return msg
}

func (i *ImplementationInvoker) instance(ctx context.Context, msg *invocation.Message) (any, error) {
	container := i.component.Container
	if container == nil {
		return i.factory(ctx)
	}
	key := ""
	if container.Scope() == scope.ScopeConversation {
		if to := msg.To(); to != nil {
			key = to.ReferenceParameters().ConversationID
		}
	}
	return container.Instance(ctx, key, i.factory)
}

// ImplementationProvider creates implementation invokers for every
// operation of a component service.
func ImplementationProvider(component *assembly.Component, factory scope.Factory) TargetInvokerProvider {
	return InvokerProviderFunc(func(op *interfacedef.Operation) (invocation.Invoker, error) {
		if factory == nil {
			return nil, fmt.Errorf("component %s has no implementation factory", component.Name)
		}
		return NewImplementationInvoker(component, op, factory), nil
	})
}
