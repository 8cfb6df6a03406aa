package databinding

import (
	"fmt"
	"reflect"

	"github.com/mohae/deepcopy"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
)

// GoDataBinding is the identifier of plain Go values.
const GoDataBinding = "go"

// Wrapper is the Go representation of a document-literal wrapper: an
// element name plus positional children.
type Wrapper struct {
	Element  interfacedef.QName
	Children []any
}

// Child returns the i-th child or nil.
func (w *Wrapper) Child(i int) any {
	if w == nil || i < 0 || i >= len(w.Children) {
		return nil
	}
	return w.Children[i]
}

// GoBinding handles native Go values.
type GoBinding struct{}

var _ DataBinding = GoBinding{}

func (GoBinding) Name() string { return GoDataBinding }

func (GoBinding) WrapperHandler() WrapperHandler { return goWrapperHandler{} }

func (GoBinding) ExceptionHandler() ExceptionHandler { return goExceptionHandler{} }

func (GoBinding) Copy(value any, _ *interfacedef.DataType) (any, error) {
	return deepcopy.Copy(value), nil
}

// WrapperType returns the DataType of Go wrappers with the given element.
func WrapperType(element interfacedef.QName) *interfacedef.DataType {
	return interfacedef.NewDataType(GoDataBinding, reflect.TypeFor[*Wrapper](), interfacedef.XMLType{Element: element})
}

type goWrapperHandler struct{}

func (goWrapperHandler) Create(element interfacedef.ElementInfo, _ *TransformationContext) (any, error) {
	return &Wrapper{Element: element.QName}, nil
}

// WrapperType is nil: Go wrappers are assembled child by child.
func (goWrapperHandler) WrapperType(interfacedef.ElementInfo, []interfacedef.ElementInfo, *TransformationContext) *interfacedef.DataType {
	return nil
}

func (goWrapperHandler) IsInstance(wrapper any, element interfacedef.ElementInfo, _ []interfacedef.ElementInfo, _ *TransformationContext) bool {
	w, ok := wrapper.(*Wrapper)
	return ok && w != nil && interfacedef.MatchQName(w.Element, element.QName)
}

func (goWrapperHandler) SetChild(wrapper any, i int, _ interfacedef.ElementInfo, value any) error {
	w, ok := wrapper.(*Wrapper)
	if !ok || w == nil {
		return fmt.Errorf("go wrapper handler: unexpected wrapper %T", wrapper)
	}
	for len(w.Children) <= i {
		w.Children = append(w.Children, nil)
	}
	w.Children[i] = value
	return nil
}

func (goWrapperHandler) Children(wrapper any, children []interfacedef.ElementInfo, _ *TransformationContext) ([]any, error) {
	w, ok := wrapper.(*Wrapper)
	if !ok {
		return nil, fmt.Errorf("go wrapper handler: unexpected wrapper %T", wrapper)
	}
	out := make([]any, len(children))
	for i := range children {
		out[i] = w.Child(i)
	}
	return out, nil
}

type goExceptionHandler struct{}

func (goExceptionHandler) FaultType(exceptionType *interfacedef.DataType) *interfacedef.DataType {
	if exceptionType == nil {
		return nil
	}
	return &interfacedef.DataType{DataBinding: GoDataBinding, Logical: exceptionType.Logical}
}

func (goExceptionHandler) FaultInfo(err error) any {
	if fe, ok := err.(*invocation.FaultException); ok {
		return fe.FaultInfo
	}
	return err.Error()
}

func (goExceptionHandler) CreateException(exceptionType *interfacedef.DataType, message string, faultInfo any, cause error) (error, error) {
	fe := invocation.NewFaultException(message, faultInfo, exceptionType.Logical)
	fe.Cause = cause
	return fe, nil
}
