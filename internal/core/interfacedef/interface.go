package interfacedef

import (
	"fmt"
)

// Interface is a named set of operations.
type Interface struct {
	Name           string
	Remotable      bool
	Conversational bool
	Operations     []*Operation
}

// NewInterface creates an interface and points every operation back at it.
func NewInterface(name string, ops ...*Operation) *Interface {
	i := &Interface{Name: name}
	for _, op := range ops {
		i.AddOperation(op)
	}
	return i
}

func (i *Interface) AddOperation(op *Operation) {
	op.Interface = i
	i.Operations = append(i.Operations, op)
}

// Operation looks an operation up by name.
func (i *Interface) Operation(name string) *Operation {
	if i == nil {
		return nil
	}
	for _, op := range i.Operations {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// InterfaceContract pairs a forward interface with an optional callback
// interface.
type InterfaceContract struct {
	Interface         *Interface
	CallbackInterface *Interface
}

func NewInterfaceContract(iface, callback *Interface) *InterfaceContract {
	return &InterfaceContract{Interface: iface, CallbackInterface: callback}
}

// IncompatibleError describes the first mismatch found by CheckCompatible.
type IncompatibleError struct {
	Source    string
	Target    string
	Operation string
	Reason    string
}

func (e *IncompatibleError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("interface %s is not compatible with %s: operation %s: %s", e.Source, e.Target, e.Operation, e.Reason)
	}
	return fmt.Sprintf("interface %s is not compatible with %s: %s", e.Source, e.Target, e.Reason)
}

// CheckCompatible verifies that target can serve calls made through source.
func CheckCompatible(source, target *Interface) error {
	if source == target {
		return nil
	}
	if source == nil || target == nil {
		return &IncompatibleError{Source: nameOf(source), Target: nameOf(target), Reason: "missing interface"}
	}
	mismatch := func(op, reason string) error {
		return &IncompatibleError{Source: source.Name, Target: target.Name, Operation: op, Reason: reason}
	}
	if source.Remotable != target.Remotable {
		return mismatch("", "remotable flags differ")
	}
	if source.Conversational != target.Conversational {
		return mismatch("", "conversational flags differ")
	}
	for _, op := range source.Operations {
		tgt := target.Operation(op.Name)
		if tgt == nil {
			return mismatch(op.Name, "no matching target operation")
		}
		if op.WrapperStyle == tgt.WrapperStyle && len(op.Inputs) != len(tgt.Inputs) {
			return mismatch(op.Name, fmt.Sprintf("input count %d != %d", len(op.Inputs), len(tgt.Inputs)))
		}
		if op.ConversationSequence != tgt.ConversationSequence {
			return mismatch(op.Name, "conversation sequence differs")
		}
	}
	return nil
}

// CheckContractCompatible checks forward and, unless ignoreCallback is set,
// callback interfaces. Callback compatibility runs in the reverse direction.
func CheckContractCompatible(source, target *InterfaceContract, ignoreCallback bool) error {
	if source == target {
		return nil
	}
	if source == nil || target == nil {
		return &IncompatibleError{Reason: "missing interface contract"}
	}
	if err := CheckCompatible(source.Interface, target.Interface); err != nil {
		return err
	}
	if ignoreCallback || (source.CallbackInterface == nil && target.CallbackInterface == nil) {
		return nil
	}
	return CheckCompatible(target.CallbackInterface, source.CallbackInterface)
}

func nameOf(i *Interface) string {
	if i == nil {
		return "<nil>"
	}
	return i.Name
}
