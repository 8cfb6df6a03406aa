package invocation

import (
	"github.com/google/uuid"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
)

// Well known QoS context keys.
const (
	QoSSecurityPrincipal = "PRINCIPAL"
	QoSSecuritySubject   = "SUBJECT"
)

// Message is the unit flowing through an invocation chain. A message belongs
// to a single invocation and is not safe for concurrent mutation.
type Message struct {
	id        string
	body      any
	fault     bool
	operation *interfacedef.Operation
	from      *EndpointReference
	to        *EndpointReference
	qos       map[string]any
	headers   map[string]any
}

// NewMessage returns an empty message with "/" endpoints and a fresh ID.
func NewMessage() *Message {
	return &Message{
		id:   uuid.NewString(),
		from: NewEndpointReference("/"),
		to:   NewEndpointReference("/"),
	}
}

// NewRequest returns a message carrying args as its body.
func NewRequest(op *interfacedef.Operation, args ...any) *Message {
	msg := NewMessage()
	msg.operation = op
	if args == nil {
		args = []any{}
	}
	msg.body = args
	return msg
}

func (m *Message) ID() string               { return m.id }
func (m *Message) SetID(id string)          { m.id = id }
func (m *Message) Body() any                { return m.body }
func (m *Message) IsFault() bool            { return m.fault }
func (m *Message) From() *EndpointReference { return m.from }
func (m *Message) To() *EndpointReference   { return m.to }

// SetBody stores a normal response and clears the fault flag.
func (m *Message) SetBody(body any) {
	m.body = body
	m.fault = false
}

// SetFaultBody stores a fault and sets the fault flag.
func (m *Message) SetFaultBody(fault any) {
	m.body = fault
	m.fault = true
}

// Args returns the body as a positional argument list. A non-slice body is
// returned as a single argument.
func (m *Message) Args() []any {
	switch b := m.body.(type) {
	case nil:
		return nil
	case []any:
		return b
	default:
		return []any{b}
	}
}

func (m *Message) Operation() *interfacedef.Operation { return m.operation }

func (m *Message) SetOperation(op *interfacedef.Operation) { m.operation = op }

func (m *Message) SetFrom(from *EndpointReference) { m.from = from }

func (m *Message) SetTo(to *EndpointReference) { m.to = to }

// QoSContext is created on first access.
func (m *Message) QoSContext() map[string]any {
	if m.qos == nil {
		m.qos = make(map[string]any)
	}
	return m.qos
}

// Headers is created on first access.
func (m *Message) Headers() map[string]any {
	if m.headers == nil {
		m.headers = make(map[string]any)
	}
	return m.headers
}

// Reply creates the response message for m: same ID, operation and
// endpoints, empty body.
func (m *Message) Reply() *Message {
	return &Message{
		id:        m.id,
		operation: m.operation,
		from:      m.from,
		to:        m.to,
		qos:       m.qos,
		headers:   m.headers,
	}
}
