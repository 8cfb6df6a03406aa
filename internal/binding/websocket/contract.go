package websocket

import (
	"reflect"

	"github.com/zeusync/zeuswire/internal/core/databinding"
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
)

var faultExceptionType = reflect.TypeFor[*invocation.FaultException]()

// Contract returns the binding side view of ic. Every operation is unwrapped
// and exchanges json documents, so a wire between a component contract and
// the binding gets a data transformation interceptor.
func Contract(ic *interfacedef.InterfaceContract) *interfacedef.InterfaceContract {
	if ic == nil {
		return nil
	}
	return interfacedef.NewInterfaceContract(jsonInterface(ic.Interface), jsonInterface(ic.CallbackInterface))
}

func jsonInterface(iface *interfacedef.Interface) *interfacedef.Interface {
	if iface == nil {
		return nil
	}
	out := interfacedef.NewInterface(iface.Name)
	out.Remotable = iface.Remotable
	out.Conversational = iface.Conversational
	for _, op := range iface.Operations {
		out.AddOperation(jsonOperation(op))
	}
	return out
}

func jsonOperation(op *interfacedef.Operation) *interfacedef.Operation {
	inputs, output := op.Inputs, op.Output
	if op.WrapperStyle && op.Wrapper != nil {
		inputs, output = op.Wrapper.UnwrappedInputType, op.Wrapper.UnwrappedOutputType
	}

	c := op.Clone()
	c.DataBinding = databinding.JSONDataBinding
	c.WrapperStyle = false
	c.Wrapper = nil
	c.Inputs = make([]*interfacedef.DataType, len(inputs))
	for i, in := range inputs {
		c.Inputs[i] = databinding.JSONType(logicalOf(in))
	}
	c.Output = nil
	if output != nil {
		c.Output = databinding.JSONType(logicalOf(output))
	}
	c.Faults = make([]*interfacedef.DataType, len(op.Faults))
	for i, f := range op.Faults {
		c.Faults[i] = interfacedef.NewDataType(databinding.JSONDataBinding, faultExceptionType, logicalOf(f))
	}
	return c
}

func logicalOf(dt *interfacedef.DataType) any {
	if dt == nil {
		return nil
	}
	return dt.Logical
}
