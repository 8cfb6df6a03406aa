package databinding

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
)

// TransformationInterceptor mediates request arguments, responses and
// business faults between the source and target operation of a chain.
type TransformationInterceptor struct {
	source   *interfacedef.Operation
	target   *interfacedef.Operation
	mediator Mediator
	registry *Registry
}

var _ invocation.Interceptor = (*TransformationInterceptor)(nil)

func NewTransformationInterceptor(source, target *interfacedef.Operation, mediator Mediator, registry *Registry) *TransformationInterceptor {
	return &TransformationInterceptor{
		source:   source,
		target:   target,
		mediator: mediator,
		registry: registry,
	}
}

func (i *TransformationInterceptor) Name() string { return "databinding" }

func (i *TransformationInterceptor) Invoke(ctx context.Context, msg *invocation.Message, next invocation.Invoker) *invocation.Message {
	request := map[string]any{
		MetadataSourceOperation: i.source,
		MetadataTargetOperation: i.target,
	}
	input, err := i.mediator.Mediate(msg.Body(), i.source.InputType(), i.target.InputType(), request)
	if err != nil {
		msg.SetFaultBody(fmt.Errorf("mediate input of %s: %w", i.source.Name, err))
		return msg
	}
	msg.SetBody(input)

	resp := next.Invoke(ctx, msg)
	if i.source.NonBlocking {
		return resp
	}

	response := map[string]any{
		MetadataSourceOperation: i.target,
		MetadataTargetOperation: i.source,
	}
	if resp.IsFault() {
		fault, err := i.transformFault(resp.Body(), response)
		if err != nil {
			resp.SetFaultBody(err)
		} else {
			resp.SetFaultBody(fault)
		}
		return resp
	}

	output, err := i.mediator.Mediate(resp.Body(), i.target.OutputType(), i.source.OutputType(), response)
	if err != nil {
		resp.SetFaultBody(fmt.Errorf("mediate output of %s: %w", i.source.Name, err))
		return resp
	}
	resp.SetBody(output)
	return resp
}

// transformFault maps a declared business fault of the target operation to
// the corresponding source fault. Anything else is passed through.
func (i *TransformationInterceptor) transformFault(body any, metadata map[string]any) (any, error) {
	faultErr, ok := body.(error)
	if !ok {
		return body, nil
	}
	var ite *invocation.InvocationTargetError
	if errors.As(faultErr, &ite) {
		faultErr = ite.Fault
	}

	targetEx := FindFaultType(faultErr, i.target.Faults)
	if targetEx == nil {
		return body, nil
	}

	targetFault := i.faultType(targetEx)
	if targetFault == nil {
		return nil, &TransformationError{
			Source: targetEx.DataBinding,
			Cause:  fmt.Errorf("%w: target fault type cannot be resolved: %s", ErrFaultMapping, targetEx),
		}
	}

	var sourceEx *interfacedef.DataType
	for _, candidate := range i.source.Faults {
		if sourceFault := i.faultType(candidate); sourceFault != nil && interfacedef.TypesMatch(sourceFault.Logical, targetFault.Logical) {
			sourceEx = candidate
			break
		}
	}
	if sourceEx == nil {
		return nil, &TransformationError{
			Source: targetEx.DataBinding,
			Cause:  fmt.Errorf("%w: no matching source fault type for %v", ErrFaultMapping, targetFault.Logical),
		}
	}

	return i.mediator.Mediate(faultErr, interfacedef.FaultType(targetEx), interfacedef.FaultType(sourceEx), metadata)
}

func (i *TransformationInterceptor) faultType(exceptionType *interfacedef.DataType) *interfacedef.DataType {
	if i.registry == nil {
		return nil
	}
	handler := i.registry.ExceptionHandler(exceptionType.DataBinding)
	if handler == nil {
		return nil
	}
	return handler.FaultType(exceptionType)
}

// FindFaultType returns the declared fault type err is an instance of, or
// nil for undeclared (system) faults. The error chain is searched outermost
// first.
func FindFaultType(err error, faults []*interfacedef.DataType) *interfacedef.DataType {
	for e := err; e != nil; e = errors.Unwrap(e) {
		errType := reflect.TypeOf(e)
		for _, fault := range faults {
			if fault == nil || fault.Physical == nil {
				continue
			}
			if !isInstance(errType, fault.Physical) {
				continue
			}
			if fe, ok := e.(*invocation.FaultException); ok && !fe.IsMatchingType(fault.Logical) {
				continue
			}
			return fault
		}
	}
	return nil
}

func isInstance(errType, declared reflect.Type) bool {
	if errType == declared {
		return true
	}
	return declared.Kind() == reflect.Interface && errType.Implements(declared)
}
