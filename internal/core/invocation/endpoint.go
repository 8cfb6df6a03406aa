package invocation

import (
	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
)

// ReferenceParameters travel with an endpoint reference and identify the
// conversation and callback an invocation belongs to.
type ReferenceParameters struct {
	ConversationID    string
	CallbackID        string
	CallbackReference *EndpointReference
	CallbackObject    any
}

func (p *ReferenceParameters) clone() *ReferenceParameters {
	if p == nil {
		return &ReferenceParameters{}
	}
	c := *p
	return &c
}

// fillFrom copies values p is missing from other.
func (p *ReferenceParameters) fillFrom(other *ReferenceParameters) {
	if other == nil {
		return
	}
	if p.ConversationID == "" {
		p.ConversationID = other.ConversationID
	}
	if p.CallbackID == "" {
		p.CallbackID = other.CallbackID
	}
	if p.CallbackReference == nil {
		p.CallbackReference = other.CallbackReference
	}
	if p.CallbackObject == nil {
		p.CallbackObject = other.CallbackObject
	}
}

// EndpointReference identifies one end of a wire.
type EndpointReference struct {
	URI               string
	Component         *assembly.Component
	Contract          *assembly.Contract
	Binding           *assembly.Binding
	InterfaceContract *interfacedef.InterfaceContract
	CallbackEndpoint  *EndpointReference

	parameters *ReferenceParameters
}

func NewEndpointReference(uri string) *EndpointReference {
	return &EndpointReference{URI: uri, parameters: &ReferenceParameters{}}
}

// ReferenceParameters never returns nil.
func (e *EndpointReference) ReferenceParameters() *ReferenceParameters {
	if e.parameters == nil {
		e.parameters = &ReferenceParameters{}
	}
	return e.parameters
}

func (e *EndpointReference) SetReferenceParameters(p *ReferenceParameters) {
	e.parameters = p
}

// Clone returns a copy whose reference parameters can be written without
// affecting e.
func (e *EndpointReference) Clone() *EndpointReference {
	if e == nil {
		return nil
	}
	c := *e
	c.parameters = e.parameters.clone()
	return &c
}

// Merge takes the endpoint identity from configured while keeping the
// reference parameters and callback endpoint already carried by e.
// Parameters e lacks are filled from configured.
func (e *EndpointReference) Merge(configured *EndpointReference) {
	if configured == nil {
		return
	}
	e.URI = configured.URI
	e.Component = configured.Component
	e.Contract = configured.Contract
	e.Binding = configured.Binding
	e.InterfaceContract = configured.InterfaceContract
	if e.CallbackEndpoint == nil {
		e.CallbackEndpoint = configured.CallbackEndpoint
	}
	e.ReferenceParameters().fillFrom(configured.parameters)
}

// BindingType returns the type of the attached binding or "".
func (e *EndpointReference) BindingType() string {
	if e == nil || e.Binding == nil {
		return ""
	}
	return e.Binding.Type
}

func (e *EndpointReference) String() string {
	if e == nil {
		return "<nil>"
	}
	return e.URI
}
