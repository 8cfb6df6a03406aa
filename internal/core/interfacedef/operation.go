package interfacedef

import (
	"reflect"
)

// ConversationSequence marks the role an operation plays in a conversation.
type ConversationSequence uint8

const (
	SequenceNone ConversationSequence = iota
	SequenceContinue
	SequenceEnd
)

func (s ConversationSequence) String() string {
	switch s {
	case SequenceContinue:
		return "CONVERSATION_CONTINUE"
	case SequenceEnd:
		return "CONVERSATION_END"
	default:
		return "NONE"
	}
}

// ElementInfo names an element of a wrapper.
type ElementInfo struct {
	QName    QName
	Type     QName
	Many     bool
	Nillable bool
}

// WrapperInfo describes the document-literal wrapper of an operation.
type WrapperInfo struct {
	DataBinding string

	InputWrapperElement ElementInfo
	InputChildElements  []ElementInfo
	InputWrapperType    *DataType

	OutputWrapperElement ElementInfo
	OutputChildElements  []ElementInfo
	OutputWrapperType    *DataType

	// UnwrappedInputType holds one DataType per input child element.
	UnwrappedInputType []*DataType
	// UnwrappedOutputType is nil for void operations.
	UnwrappedOutputType *DataType
}

// Operation is a named operation of an Interface.
//
// For wrapper style operations Inputs holds the single wrapper DataType and
// Output the output wrapper DataType; the unwrapped view lives in Wrapper.
type Operation struct {
	Name      string
	Interface *Interface

	Inputs []*DataType
	// Output is nil for void operations.
	Output *DataType
	Faults []*DataType

	WrapperStyle bool
	Wrapper      *WrapperInfo

	ConversationSequence ConversationSequence
	NonBlocking          bool
	// DataBinding is the default binding for types that do not name one.
	DataBinding string
}

var anySliceType = reflect.TypeFor[[]any]()

// InputType returns the IDL view of the input: a DataType whose logical
// type is the positional list of argument types.
func (o *Operation) InputType() *DataType {
	return &DataType{DataBinding: IDLInput, Physical: anySliceType, Logical: o.Inputs}
}

// OutputType returns the IDL view of the output, wrapping Output.
func (o *Operation) OutputType() *DataType {
	var physical reflect.Type
	if o.Output != nil {
		physical = o.Output.Physical
	}
	return &DataType{DataBinding: IDLOutput, Physical: physical, Logical: o.Output}
}

// FaultType returns the IDL view of a declared fault.
func FaultType(fault *DataType) *DataType {
	var physical reflect.Type
	if fault != nil {
		physical = fault.Physical
	}
	return &DataType{DataBinding: IDLFault, Physical: physical, Logical: fault}
}

// IsConversational reports whether the owning interface is conversational.
func (o *Operation) IsConversational() bool {
	return o.Interface != nil && o.Interface.Conversational
}

// IsRemotable reports whether the owning interface is remotable.
func (o *Operation) IsRemotable() bool {
	return o.Interface != nil && o.Interface.Remotable
}

// Void reports whether the operation produces no output.
func (o *Operation) Void() bool {
	return o.Output == nil
}

// Clone copies the operation without its interface back reference.
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	c := *o
	c.Interface = nil
	c.Inputs = append([]*DataType(nil), o.Inputs...)
	c.Faults = append([]*DataType(nil), o.Faults...)
	return &c
}

func (o *Operation) String() string {
	if o.Interface != nil {
		return o.Interface.Name + "#" + o.Name
	}
	return o.Name
}
