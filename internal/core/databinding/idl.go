package databinding

import (
	"fmt"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
)

// wrapperPart is one direction (input or output) of an operation wrapper.
type wrapperPart struct {
	dataBinding string
	element     interfacedef.ElementInfo
	children    []interfacedef.ElementInfo
	childTypes  []*interfacedef.DataType
}

func inputPart(op *interfacedef.Operation) wrapperPart {
	w := op.Wrapper
	return wrapperPart{
		dataBinding: wrapperDataBinding(op),
		element:     w.InputWrapperElement,
		children:    w.InputChildElements,
		childTypes:  w.UnwrappedInputType,
	}
}

func outputPart(op *interfacedef.Operation) wrapperPart {
	w := op.Wrapper
	part := wrapperPart{
		dataBinding: wrapperDataBinding(op),
		element:     w.OutputWrapperElement,
		children:    w.OutputChildElements,
	}
	if w.UnwrappedOutputType != nil {
		part.childTypes = []*interfacedef.DataType{w.UnwrappedOutputType}
	}
	return part
}

func isWrapped(op *interfacedef.Operation) bool {
	return op != nil && op.WrapperStyle && op.Wrapper != nil
}

func wrapperDataBinding(op *interfacedef.Operation) string {
	if op.Wrapper != nil && op.Wrapper.DataBinding != "" {
		return op.Wrapper.DataBinding
	}
	return operationDataBinding(op)
}

// operationDataBinding picks the binding an operation's values use.
func operationDataBinding(op *interfacedef.Operation) string {
	if op == nil {
		return ""
	}
	if op.DataBinding != "" {
		return op.DataBinding
	}
	for _, in := range op.Inputs {
		if in != nil && in.DataBinding != "" {
			return in.DataBinding
		}
	}
	if op.Output != nil {
		return op.Output.DataBinding
	}
	return ""
}

func typeAt(types []*interfacedef.DataType, i int) *interfacedef.DataType {
	if i < len(types) {
		return types[i]
	}
	return nil
}

func argsOf(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

func logicalList(dt *interfacedef.DataType) []*interfacedef.DataType {
	list, _ := dt.Logical.([]*interfacedef.DataType)
	return list
}

func logicalSingle(dt *interfacedef.DataType) *interfacedef.DataType {
	single, _ := dt.Logical.(*interfacedef.DataType)
	return single
}

func (m *DefaultMediator) transformInput(value any, source, target *interfacedef.DataType, metadata map[string]any) (any, error) {
	tctx := newContext(source, target, metadata)
	args := argsOf(value)
	sourceTypes, targetTypes := logicalList(source), logicalList(target)
	sourceWrapped, targetWrapped := isWrapped(tctx.SourceOperation), isWrapped(tctx.TargetOperation)

	switch {
	case !sourceWrapped && targetWrapped:
		wrapper, err := m.wrap(args, sourceTypes, operationDataBinding(tctx.SourceOperation),
			inputPart(tctx.TargetOperation), typeAt(targetTypes, 0), tctx)
		if err != nil {
			return nil, err
		}
		return []any{wrapper}, nil

	case sourceWrapped && !targetWrapped:
		if len(args) != 1 {
			return nil, fmt.Errorf("wrapped input expects one wrapper argument, got %d", len(args))
		}
		return m.unwrap(args[0], typeAt(sourceTypes, 0), inputPart(tctx.SourceOperation),
			operationDataBinding(tctx.TargetOperation), targetTypes, tctx)
	}

	out := make([]any, len(args))
	for i, arg := range args {
		v, err := m.Mediate(arg, typeAt(sourceTypes, i), typeAt(targetTypes, i), metadata)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *DefaultMediator) transformOutput(value any, source, target *interfacedef.DataType, metadata map[string]any) (any, error) {
	tctx := newContext(source, target, metadata)
	sourceType, targetType := logicalSingle(source), logicalSingle(target)
	sourceWrapped, targetWrapped := isWrapped(tctx.SourceOperation), isWrapped(tctx.TargetOperation)

	switch {
	case !sourceWrapped && targetWrapped:
		var values []any
		var types []*interfacedef.DataType
		if sourceType != nil {
			values, types = []any{value}, []*interfacedef.DataType{sourceType}
		}
		return m.wrap(values, types, operationDataBinding(tctx.SourceOperation),
			outputPart(tctx.TargetOperation), targetType, tctx)

	case sourceWrapped && !targetWrapped:
		var targetTypes []*interfacedef.DataType
		if targetType != nil {
			targetTypes = []*interfacedef.DataType{targetType}
		}
		children, err := m.unwrap(value, sourceType, outputPart(tctx.SourceOperation),
			operationDataBinding(tctx.TargetOperation), targetTypes, tctx)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 || targetType == nil {
			return nil, nil
		}
		return children[0], nil
	}

	if sourceType == nil || targetType == nil {
		return value, nil
	}
	return m.Mediate(value, sourceType, targetType, metadata)
}

// wrap builds a target side wrapper from positional values. A source side
// wrapper mediated as a whole document is preferred when the source binding
// supports one.
func (m *DefaultMediator) wrap(values []any, valueTypes []*interfacedef.DataType, sourceDB string,
	target wrapperPart, targetWrapperType *interfacedef.DataType, tctx *TransformationContext) (any, error) {

	if sourceHandler := m.registry.WrapperHandler(sourceDB); sourceHandler != nil {
		if sourceWrapperType := sourceHandler.WrapperType(target.element, target.children, tctx); sourceWrapperType != nil {
			sourceWrapper, err := sourceHandler.Create(target.element, tctx)
			if err != nil {
				return nil, err
			}
			for i, child := range target.children {
				var v any
				if i < len(values) {
					v = values[i]
				}
				if err = sourceHandler.SetChild(sourceWrapper, i, child, v); err != nil {
					return nil, err
				}
			}
			return m.Mediate(sourceWrapper, sourceWrapperType, targetWrapperType, tctx.Metadata)
		}
	}

	targetHandler := m.registry.WrapperHandler(target.dataBinding)
	if targetHandler == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoWrapperHandler, target.dataBinding)
	}
	wrapper, err := targetHandler.Create(target.element, tctx)
	if err != nil {
		return nil, err
	}
	for i, child := range target.children {
		var v any
		if i < len(values) {
			v = values[i]
		}
		v, err = m.Mediate(v, typeAt(valueTypes, i), typeAt(target.childTypes, i), tctx.Metadata)
		if err != nil {
			return nil, err
		}
		if err = targetHandler.SetChild(wrapper, i, child, v); err != nil {
			return nil, err
		}
	}
	return wrapper, nil
}

// unwrap extracts positional values from a source side wrapper. When the
// target binding can take the whole wrapper, the document is mediated first
// and the children read on the target side.
func (m *DefaultMediator) unwrap(wrapper any, wrapperType *interfacedef.DataType, source wrapperPart,
	targetDB string, targetTypes []*interfacedef.DataType, tctx *TransformationContext) ([]any, error) {

	if targetHandler := m.registry.WrapperHandler(targetDB); targetHandler != nil && targetDB != source.dataBinding {
		if targetWrapperType := targetHandler.WrapperType(source.element, source.children, tctx); targetWrapperType != nil {
			targetWrapper, err := m.Mediate(wrapper, wrapperType, targetWrapperType, tctx.Metadata)
			if err == nil && targetHandler.IsInstance(targetWrapper, source.element, source.children, tctx) {
				return targetHandler.Children(targetWrapper, source.children, tctx)
			}
		}
	}

	sourceHandler := m.registry.WrapperHandler(source.dataBinding)
	if sourceHandler == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoWrapperHandler, source.dataBinding)
	}
	children, err := sourceHandler.Children(wrapper, source.children, tctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(children))
	for i, child := range children {
		v, err := m.Mediate(child, typeAt(source.childTypes, i), typeAt(targetTypes, i), tctx.Metadata)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
