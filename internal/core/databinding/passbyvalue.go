package databinding

import (
	"context"
	"fmt"
	"reflect"

	"github.com/mohae/deepcopy"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
)

// PassByValueInterceptor copies arguments and results of remotable calls so
// that caller and callee never share mutable state. Arguments that alias
// each other stay aliased in the copy.
type PassByValueInterceptor struct {
	operation *interfacedef.Operation
	registry  *Registry
	chain     *invocation.Chain
}

var _ invocation.Interceptor = (*PassByValueInterceptor)(nil)

// NewPassByValueInterceptor creates the interceptor for op. When chain is
// not nil and allows pass by reference, copying is skipped.
func NewPassByValueInterceptor(op *interfacedef.Operation, registry *Registry, chain *invocation.Chain) *PassByValueInterceptor {
	return &PassByValueInterceptor{operation: op, registry: registry, chain: chain}
}

func (i *PassByValueInterceptor) Name() string { return "pass-by-value" }

func (i *PassByValueInterceptor) Invoke(ctx context.Context, msg *invocation.Message, next invocation.Invoker) *invocation.Message {
	if i.chain != nil && i.chain.AllowsPassByReference() {
		return next.Invoke(ctx, msg)
	}

	args, err := i.copyArgs(msg.Args())
	if err != nil {
		msg.SetFaultBody(fmt.Errorf("copy arguments of %s: %w", i.operation.Name, err))
		return msg
	}
	msg.SetBody(args)

	resp := next.Invoke(ctx, msg)
	if resp.IsFault() || resp.Body() == nil {
		return resp
	}
	out, err := i.copyValue(resp.Body(), i.operation.Output)
	if err != nil {
		resp.SetFaultBody(fmt.Errorf("copy result of %s: %w", i.operation.Name, err))
		return resp
	}
	resp.SetBody(out)
	return resp
}

type aliasKey struct {
	typ reflect.Type
	ptr uintptr
}

func (i *PassByValueInterceptor) copyArgs(args []any) ([]any, error) {
	if len(args) == 0 {
		return args, nil
	}
	copies := make([]any, len(args))
	seen := make(map[aliasKey]any)
	for idx, arg := range args {
		key, aliasable := aliasOf(arg)
		if aliasable {
			if c, ok := seen[key]; ok {
				copies[idx] = c
				continue
			}
		}
		var dt *interfacedef.DataType
		if idx < len(i.operation.Inputs) {
			dt = i.operation.Inputs[idx]
		}
		c, err := i.copyValue(arg, dt)
		if err != nil {
			return nil, err
		}
		if aliasable {
			seen[key] = c
		}
		copies[idx] = c
	}
	return copies, nil
}

func (i *PassByValueInterceptor) copyValue(value any, dt *interfacedef.DataType) (any, error) {
	if value == nil {
		return nil, nil
	}
	if dt != nil && i.registry != nil {
		if db := i.registry.DataBinding(dt.DataBinding); db != nil {
			return db.Copy(value, dt)
		}
	}
	return deepcopy.Copy(value), nil
}

func aliasOf(v any) (aliasKey, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return aliasKey{}, false
		}
		return aliasKey{typ: rv.Type(), ptr: rv.Pointer()}, true
	default:
		return aliasKey{}, false
	}
}
