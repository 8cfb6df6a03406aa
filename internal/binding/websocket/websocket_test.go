package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/conversation"
	"github.com/zeusync/zeuswire/internal/core/databinding"
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/scope"
	"github.com/zeusync/zeuswire/internal/core/wire"
)

const counterNS = "urn:counter"

var invalidAmount = interfacedef.XMLType{Element: interfacedef.NewQName(counterNS, "InvalidAmount")}

func goType[T any]() *interfacedef.DataType {
	return interfacedef.NewDataType(databinding.GoDataBinding, reflect.TypeFor[T](), nil)
}

func counterContract() *interfacedef.InterfaceContract {
	iface := interfacedef.NewInterface("Counter",
		&interfacedef.Operation{
			Name:                 "add",
			Inputs:               []*interfacedef.DataType{goType[int]()},
			Output:               goType[int](),
			Faults:               []*interfacedef.DataType{interfacedef.NewDataType(databinding.GoDataBinding, faultExceptionType, invalidAmount)},
			DataBinding:          databinding.GoDataBinding,
			ConversationSequence: interfacedef.SequenceContinue,
		},
		&interfacedef.Operation{
			Name:                 "stop",
			Output:               goType[int](),
			DataBinding:          databinding.GoDataBinding,
			ConversationSequence: interfacedef.SequenceEnd,
		},
	)
	iface.Remotable = true
	iface.Conversational = true
	return interfacedef.NewInterfaceContract(iface, nil)
}

type counter struct {
	mu    sync.Mutex
	total int
}

func (c *counter) Method(name string) (wire.Method, bool) {
	switch name {
	case "add":
		return func(_ context.Context, args []any) (any, error) {
			n := args[0].(int)
			if n < 0 {
				return nil, invocation.NewFaultException("negative amount", map[string]any{"value": n}, invalidAmount)
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			c.total += n
			return c.total, nil
		}, true
	case "stop":
		return func(context.Context, []any) (any, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.total, nil
		}, true
	}
	return nil, false
}

type harness struct {
	container *scope.ConversationalContainer
	handler   *ServiceHandler
	client    *Client
	reference *wire.RuntimeWire
	clientMgr *conversation.Manager
}

func processors() wire.Option {
	registry := databinding.NewDefaultRegistry()
	return wire.WithProcessors(wire.NewDataBindingProcessor(databinding.NewMediator(registry), registry))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// Registered first so it runs after the servers are closed.
	t.Cleanup(func() { goleak.VerifyNone(t) })
	h := &harness{container: scope.NewConversationalContainer()}
	ic := counterContract()

	component := assembly.NewComponent("CounterComponent", h.container)
	component.Conversation = assembly.ConversationAttributes{MaxIdleTime: time.Minute}
	exposed := invocation.NewEndpointReference("/counter")
	exposed.Binding = &assembly.Binding{Type: BindingType, URI: "/counter"}
	exposed.InterfaceContract = Contract(ic)
	service := invocation.NewEndpointReference("CounterComponent/Counter")
	service.Component = component
	service.Contract = assembly.NewService("Counter", ic)
	service.InterfaceContract = ic

	serviceWire, err := wire.New(exposed, service,
		wire.ImplementationProvider(component, func(context.Context) (any, error) { return &counter{}, nil }),
		processors())
	require.NoError(t, err)

	h.handler = NewServiceHandler(serviceWire, conversation.NewManager(), DefaultConfig(), nil)
	srv := httptest.NewServer(h.handler)

	h.client = NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), DefaultConfig(), nil)
	source := invocation.NewEndpointReference("Client/counter")
	source.Contract = assembly.NewReference("counter", ic)
	source.InterfaceContract = ic
	remote := invocation.NewEndpointReference(h.client.URL())
	remote.Binding = &assembly.Binding{Type: BindingType, URI: h.client.URL()}
	remote.InterfaceContract = Contract(ic)

	h.reference, err = wire.New(source, remote, h.client.Provider(), processors())
	require.NoError(t, err)
	h.clientMgr = conversation.NewManager()

	t.Cleanup(func() {
		assert.NoError(t, h.client.Close())
		assert.NoError(t, h.handler.Close())
		srv.Close()
	})
	return h
}

func TestRoundTrip_Conversations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := wire.NewProxy(h.reference, h.clientMgr, nil)
	b := wire.NewProxy(h.reference, h.clientMgr, nil)

	result, err := a.Call(ctx, "add", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result)
	result, err = b.Call(ctx, "add", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, result)
	result, err = a.Call(ctx, "add", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, result)
	assert.Equal(t, 2, h.container.Len())

	result, err = a.Call(ctx, "stop")
	require.NoError(t, err)
	assert.Equal(t, 5, result)
	assert.Equal(t, 1, h.container.Len())
	assert.NotEqual(t, a.ConversationID(), b.ConversationID())
}

func TestRoundTrip_DeclaredFault(t *testing.T) {
	h := newHarness(t)

	_, err := wire.NewProxy(h.reference, h.clientMgr, nil).Call(context.Background(), "add", -1)
	var target *invocation.InvocationTargetError
	require.ErrorAs(t, err, &target)
	var fe *invocation.FaultException
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "negative amount", fe.Message)
	assert.True(t, fe.IsMatchingType(invalidAmount))
	assert.Equal(t, map[string]any{"value": float64(-1)}, fe.FaultInfo)
}

func TestReferenceInvoker_TransportFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	client := NewClient(url, DefaultConfig(), nil)
	msg := invocation.NewRequest(&interfacedef.Operation{Name: "add"}, json.RawMessage("1"))
	resp := (&ReferenceInvoker{client: client, operation: "add"}).Invoke(context.Background(), msg)
	require.True(t, resp.IsFault())
	err := invocation.FaultError(resp.Body())
	assert.ErrorIs(t, err, invocation.ErrTargetUnavailable)
	assert.Equal(t, invocation.ErrorCodeTargetUnavailable, invocation.GetErrorCode(err))
	assert.NoError(t, client.Close())
}

func TestServiceHandler_Handle(t *testing.T) {
	h := newHarness(t)
	invoker := wire.NewInvoker(h.handler.wire, h.handler.conversations, nil)

	resp := h.handler.handle(context.Background(), invoker, &request{ID: "1", Operation: "reset"})
	require.NotNil(t, resp.Fault)
	assert.Equal(t, invocation.ErrorCodeOperationNotFound, resp.Fault.Code)
	assert.ErrorIs(t, resp.Fault.err(), invocation.ErrOperationNotFound)

	resp = h.handler.handle(context.Background(), invoker, &request{
		ID:             "2",
		Operation:      "add",
		ConversationID: "conv-1",
		Args:           []json.RawMessage{json.RawMessage("4")},
	})
	require.Nil(t, resp.Fault)
	assert.Equal(t, "2", resp.ID)
	assert.JSONEq(t, "4", string(resp.Result))
	assert.Equal(t, 1, h.container.Len())
}

func TestNewRequest(t *testing.T) {
	msg := invocation.NewRequest(&interfacedef.Operation{Name: "add"}, json.RawMessage("1"), "two")
	params := msg.To().ReferenceParameters()
	params.ConversationID = "conv-1"
	params.CallbackID = "cb-1"
	params.CallbackReference = invocation.NewEndpointReference("ws://client/callback")
	msg.QoSContext()[invocation.QoSSecurityPrincipal] = "alice"

	req, err := newRequest(msg, "add")
	require.NoError(t, err)
	assert.Equal(t, msg.ID(), req.ID)
	assert.Equal(t, "conv-1", req.ConversationID)
	assert.Equal(t, "cb-1", req.CallbackID)
	assert.Equal(t, "ws://client/callback", req.Callback)
	assert.Equal(t, "alice", req.Principal)
	assert.Equal(t, []json.RawMessage{json.RawMessage("1"), json.RawMessage(`"two"`)}, req.Args)
}

func TestFaultEncoding(t *testing.T) {
	declared := newFault(&invocation.InvocationTargetError{
		Fault: invocation.NewFaultException("bad", json.RawMessage(`{"code":7}`), invalidAmount),
	})
	assert.Equal(t, "bad", declared.Message)
	require.NotNil(t, declared.Element)
	assert.Equal(t, invalidAmount.Element, *declared.Element)
	assert.JSONEq(t, `{"code":7}`, string(declared.Detail))

	ended := newFault(&invocation.ConversationEndedError{ConversationID: "c"})
	assert.Equal(t, invocation.ErrorCodeConversationEnded, ended.Code)
	assert.ErrorIs(t, ended.err(), invocation.ErrConversationEnded)

	plain := newFault(assert.AnError)
	assert.Zero(t, plain.Code)
	assert.EqualError(t, plain.err(), assert.AnError.Error())
}

func TestContract(t *testing.T) {
	child := goType[string]()
	wrapped := &interfacedef.Operation{
		Name:         "echo",
		WrapperStyle: true,
		DataBinding:  databinding.GoDataBinding,
		Inputs:       []*interfacedef.DataType{databinding.WrapperType(interfacedef.NewQName(counterNS, "echo"))},
		Output:       databinding.WrapperType(interfacedef.NewQName(counterNS, "echoResponse")),
		Wrapper: &interfacedef.WrapperInfo{
			UnwrappedInputType:  []*interfacedef.DataType{child, child},
			UnwrappedOutputType: child,
		},
	}
	void := &interfacedef.Operation{Name: "reset", DataBinding: databinding.GoDataBinding}
	iface := interfacedef.NewInterface("Echo", wrapped, void)
	iface.Remotable = true

	ic := Contract(interfacedef.NewInterfaceContract(iface, nil))
	echo := ic.Interface.Operation("echo")
	require.NotNil(t, echo)
	assert.Same(t, ic.Interface, echo.Interface)
	assert.False(t, echo.WrapperStyle)
	assert.Equal(t, databinding.JSONDataBinding, echo.DataBinding)
	require.Len(t, echo.Inputs, 2)
	assert.Equal(t, databinding.JSONDataBinding, echo.Inputs[0].DataBinding)
	assert.Equal(t, databinding.JSONDataBinding, echo.Output.DataBinding)
	assert.Nil(t, ic.Interface.Operation("reset").Output)
	assert.True(t, ic.Interface.Remotable)
	assert.Nil(t, ic.CallbackInterface)
	assert.Nil(t, Contract(nil))
	assert.Same(t, iface, wrapped.Interface)
}
