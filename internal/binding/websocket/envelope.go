package websocket

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
)

// request is the frame sent for every invocation.
type request struct {
	ID             string            `json:"id"`
	Operation      string            `json:"operation"`
	ConversationID string            `json:"conversationId,omitempty"`
	CallbackID     string            `json:"callbackId,omitempty"`
	Callback       string            `json:"callback,omitempty"`
	Principal      string            `json:"principal,omitempty"`
	Args           []json.RawMessage `json:"args"`
}

// response answers the request with the same ID. Exactly one of Result and
// Fault is meaningful; a void result has neither.
type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Fault  *fault          `json:"fault,omitempty"`
}

type fault struct {
	Message string               `json:"message"`
	Code    invocation.ErrorCode `json:"code,omitempty"`
	Element *interfacedef.QName  `json:"element,omitempty"`
	Detail  json.RawMessage      `json:"detail,omitempty"`
}

// newRequest encodes msg. Arguments that are not already JSON documents are
// marshalled.
func newRequest(msg *invocation.Message, operation string) (*request, error) {
	req := &request{ID: msg.ID(), Operation: operation, Args: []json.RawMessage{}}
	if to := msg.To(); to != nil {
		params := to.ReferenceParameters()
		req.ConversationID = params.ConversationID
		req.CallbackID = params.CallbackID
		if params.CallbackReference != nil {
			req.Callback = params.CallbackReference.URI
		}
	}
	if principal, ok := msg.QoSContext()[invocation.QoSSecurityPrincipal].(string); ok {
		req.Principal = principal
	}
	for i, arg := range msg.Args() {
		raw, err := encodeValue(arg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode argument %d", i)
		}
		req.Args = append(req.Args, raw)
	}
	return req, nil
}

func encodeValue(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal value")
	}
	return raw, nil
}

// newFault describes err for the wire. Declared faults keep their element
// name and detail; everything else travels as message and error code.
func newFault(err error) *fault {
	var ite *invocation.InvocationTargetError
	if errors.As(err, &ite) {
		err = ite.Fault
	}
	f := &fault{Message: err.Error()}
	if code := invocation.GetErrorCode(err); code != invocation.ErrorCodeUnknown {
		f.Code = code
	}

	var fe *invocation.FaultException
	if !errors.As(err, &fe) {
		return f
	}
	f.Message = fe.Message
	if logical, ok := fe.Logical.(interfacedef.XMLType); ok && !logical.Element.IsZero() {
		element := logical.Element
		f.Element = &element
		if detail, detailErr := encodeValue(fe.FaultInfo); detailErr == nil {
			f.Detail = detail
		}
	}
	return f
}

// err rebuilds the fault body on the calling side.
func (f *fault) err() error {
	if f.Element != nil {
		return invocation.NewFaultException(f.Message, f.Detail, interfacedef.XMLType{Element: *f.Element})
	}
	if sentinel := invocation.SentinelFor(f.Code); sentinel != nil {
		return invocation.NewError(f.Code, f.Message, sentinel)
	}
	return errors.New(f.Message)
}
