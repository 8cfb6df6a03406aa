package main

import (
	"context"
	"reflect"
	"sync"

	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/databinding"
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/scope"
	"github.com/zeusync/zeuswire/internal/core/wire"
)

// The demo service: a conversational counter. Each conversation gets its own
// instance, released by "reset".

const counterNS = "urn:zeuswire:counter"

var negativeAmount = interfacedef.XMLType{Element: interfacedef.NewQName(counterNS, "NegativeAmount")}

func intType() *interfacedef.DataType {
	return interfacedef.NewDataType(databinding.GoDataBinding, reflect.TypeFor[int](), nil)
}

func counterContract() *interfacedef.InterfaceContract {
	iface := interfacedef.NewInterface("Counter",
		&interfacedef.Operation{
			Name:        "add",
			Inputs:      []*interfacedef.DataType{intType()},
			Output:      intType(),
			Faults:      []*interfacedef.DataType{interfacedef.NewDataType(databinding.GoDataBinding, reflect.TypeFor[*invocation.FaultException](), negativeAmount)},
			DataBinding: databinding.GoDataBinding,
		},
		&interfacedef.Operation{Name: "total", Output: intType(), DataBinding: databinding.GoDataBinding},
		&interfacedef.Operation{
			Name:                 "reset",
			Output:               intType(),
			DataBinding:          databinding.GoDataBinding,
			ConversationSequence: interfacedef.SequenceEnd,
		},
	)
	iface.Remotable = true
	iface.Conversational = true
	return interfacedef.NewInterfaceContract(iface, nil)
}

func counterComponent() *assembly.Component {
	return assembly.NewComponent("CounterComponent", scope.NewConversationalContainer())
}

type counter struct {
	mu    sync.Mutex
	total int
}

func newCounter(context.Context) (any, error) {
	return &counter{}, nil
}

func (c *counter) Method(name string) (wire.Method, bool) {
	switch name {
	case "add":
		return c.add, true
	case "total", "reset":
		return c.current, true
	}
	return nil, false
}

func (c *counter) add(_ context.Context, args []any) (any, error) {
	n, _ := args[0].(int)
	if n < 0 {
		return nil, invocation.NewFaultException("amount must not be negative", map[string]int{"amount": n}, negativeAmount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += n
	return c.total, nil
}

func (c *counter) current(context.Context, []any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total, nil
}
