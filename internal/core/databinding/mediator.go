package databinding

import (
	"fmt"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
)

// Metadata keys carried through a mediation.
const (
	MetadataSourceOperation = "source.operation"
	MetadataTargetOperation = "target.operation"
)

// Mediator converts a value described by source into one described by
// target.
type Mediator interface {
	Mediate(value any, source, target *interfacedef.DataType, metadata map[string]any) (any, error)
}

// DefaultMediator walks the registry transformer graph and understands the
// IDL input, output and fault views of operations.
type DefaultMediator struct {
	registry *Registry
}

var _ Mediator = (*DefaultMediator)(nil)

func NewMediator(registry *Registry) *DefaultMediator {
	return &DefaultMediator{registry: registry}
}

func (m *DefaultMediator) Registry() *Registry {
	return m.registry
}

func (m *DefaultMediator) Mediate(value any, source, target *interfacedef.DataType, metadata map[string]any) (any, error) {
	if source == nil || target == nil || source.Equal(target) {
		return value, nil
	}

	sourceDB, targetDB := source.DataBinding, target.DataBinding
	switch {
	case sourceDB == interfacedef.IDLInput && targetDB == interfacedef.IDLInput:
		return m.transformInput(value, source, target, metadata)
	case sourceDB == interfacedef.IDLOutput && targetDB == interfacedef.IDLOutput:
		return m.transformOutput(value, source, target, metadata)
	case sourceDB == interfacedef.IDLFault && targetDB == interfacedef.IDLFault:
		return m.transformFault(value, source, target, metadata)
	}

	if value == nil || sourceDB == "" || targetDB == "" || sourceDB == targetDB {
		return value, nil
	}

	path := m.registry.Path(sourceDB, targetDB)
	if path == nil {
		return nil, &TransformationError{Source: sourceDB, Target: targetDB, Cause: ErrNoTransformer}
	}

	tctx := newContext(source, target, metadata)
	current := source
	for i, t := range path {
		next := target
		if i < len(path)-1 {
			next = &interfacedef.DataType{DataBinding: t.TargetDataBinding(), Logical: target.Logical}
		}
		tctx.SourceType, tctx.TargetType = current, next
		out, err := t.Transform(value, tctx)
		if err != nil {
			return nil, &TransformationError{Source: t.SourceDataBinding(), Target: t.TargetDataBinding(), Cause: err}
		}
		value, current = out, next
	}
	return value, nil
}

func newContext(source, target *interfacedef.DataType, metadata map[string]any) *TransformationContext {
	tctx := &TransformationContext{SourceType: source, TargetType: target, Metadata: metadata}
	if metadata != nil {
		tctx.SourceOperation, _ = metadata[MetadataSourceOperation].(*interfacedef.Operation)
		tctx.TargetOperation, _ = metadata[MetadataTargetOperation].(*interfacedef.Operation)
	}
	return tctx
}

// transformFault converts a business fault raised for the source fault type
// into the matching error of the target fault type.
func (m *DefaultMediator) transformFault(value any, source, target *interfacedef.DataType, metadata map[string]any) (any, error) {
	err, ok := value.(error)
	if !ok {
		return value, nil
	}
	sourceEx, _ := source.Logical.(*interfacedef.DataType)
	targetEx, _ := target.Logical.(*interfacedef.DataType)
	if sourceEx == nil || targetEx == nil {
		return nil, &TransformationError{Source: source.String(), Target: target.String(), Cause: ErrFaultMapping}
	}

	sourceHandler := m.registry.ExceptionHandler(sourceEx.DataBinding)
	targetHandler := m.registry.ExceptionHandler(targetEx.DataBinding)
	if sourceHandler == nil || targetHandler == nil {
		return nil, &TransformationError{
			Source: sourceEx.DataBinding,
			Target: targetEx.DataBinding,
			Cause:  fmt.Errorf("%w: missing exception handler", ErrFaultMapping),
		}
	}

	faultInfo, mediateErr := m.Mediate(
		sourceHandler.FaultInfo(err),
		sourceHandler.FaultType(sourceEx),
		targetHandler.FaultType(targetEx),
		metadata,
	)
	if mediateErr != nil {
		return nil, mediateErr
	}
	converted, createErr := targetHandler.CreateException(targetEx, err.Error(), faultInfo, nil)
	if createErr != nil {
		return nil, &TransformationError{Source: sourceEx.DataBinding, Target: targetEx.DataBinding, Cause: createErr}
	}
	return converted, nil
}
