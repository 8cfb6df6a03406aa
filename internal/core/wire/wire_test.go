package wire

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/conversation"
	"github.com/zeusync/zeuswire/internal/core/databinding"
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/scope"
)

func goType[T any]() *interfacedef.DataType {
	return interfacedef.NewDataType(databinding.GoDataBinding, reflect.TypeFor[T](), nil)
}

func counterInterface(conversational bool) *interfacedef.Interface {
	iface := interfacedef.NewInterface("Counter",
		&interfacedef.Operation{
			Name:                 "add",
			Inputs:               []*interfacedef.DataType{goType[int]()},
			Output:               goType[int](),
			ConversationSequence: interfacedef.SequenceContinue,
		},
		&interfacedef.Operation{Name: "total", Output: goType[int]()},
		&interfacedef.Operation{Name: "fail", Inputs: []*interfacedef.DataType{goType[string]()}},
		&interfacedef.Operation{Name: "crash"},
		&interfacedef.Operation{
			Name:                 "stop",
			Output:               goType[int](),
			ConversationSequence: interfacedef.SequenceEnd,
		},
	)
	iface.Remotable = true
	iface.Conversational = conversational
	return iface
}

type counter struct {
	mu        sync.Mutex
	total     int
	destroyed atomic.Bool
}

func (c *counter) Method(name string) (Method, bool) {
	switch name {
	case "add":
		return func(_ context.Context, args []any) (any, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.total += args[0].(int)
			return c.total, nil
		}, true
	case "total", "stop":
		return func(context.Context, []any) (any, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.total, nil
		}, true
	case "fail":
		return func(_ context.Context, args []any) (any, error) {
			return nil, errors.New(args[0].(string))
		}, true
	case "crash":
		return func(context.Context, []any) (any, error) {
			panic("boom")
		}, true
	}
	return nil, false
}

func (c *counter) Destroy() error {
	c.destroyed.Store(true)
	return nil
}

type fixture struct {
	clock     *testclock.Clock
	manager   *conversation.Manager
	container *scope.ConversationalContainer
	component *assembly.Component
	wire      *RuntimeWire
	proxy     *Proxy

	mu        sync.Mutex
	instances []*counter
}

func (f *fixture) created() []*counter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*counter(nil), f.instances...)
}

func newFixture(t *testing.T, conversational bool) *fixture {
	t.Helper()
	f := &fixture{clock: testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))}
	f.manager = conversation.NewManager(conversation.WithClock(f.clock))
	f.container = scope.NewConversationalContainer()
	f.component = assembly.NewComponent("CounterComponent", f.container)
	f.component.Conversation = assembly.ConversationAttributes{MaxIdleTime: time.Minute}

	ic := interfacedef.NewInterfaceContract(counterInterface(conversational), nil)
	source := invocation.NewEndpointReference("Client/counter")
	source.Contract = assembly.NewReference("counter", ic)
	source.InterfaceContract = ic
	target := invocation.NewEndpointReference("CounterComponent/Counter")
	target.Component = f.component
	target.Contract = assembly.NewService("Counter", ic)
	target.InterfaceContract = ic

	factory := func(context.Context) (any, error) {
		c := &counter{}
		f.mu.Lock()
		f.instances = append(f.instances, c)
		f.mu.Unlock()
		return c, nil
	}
	registry := databinding.NewDefaultRegistry()
	w, err := New(source, target, ImplementationProvider(f.component, factory),
		WithProcessors(NewDataBindingProcessor(databinding.NewMediator(registry), registry)))
	require.NoError(t, err)
	f.wire = w
	f.proxy = NewProxy(w, f.manager, nil)
	return f
}

func TestInvoker_ConversationLifecycle(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	result, err := f.proxy.Call(ctx, "add", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result)

	id := f.proxy.ConversationID()
	require.NotEmpty(t, id)
	conv := f.manager.GetConversation(id)
	require.NotNil(t, conv)
	assert.Equal(t, conversation.StateActive, conv.State())
	assert.Equal(t, time.Minute, conv.MaxIdleTime())

	result, err = f.proxy.Call(ctx, "add", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, result)
	assert.Equal(t, 1, f.container.Len())

	result, err = f.proxy.Call(ctx, "stop")
	require.NoError(t, err)
	assert.Equal(t, 5, result)

	assert.Equal(t, conversation.StateEnded, conv.State())
	assert.Equal(t, conversation.StateEnded, f.manager.GetConversation(id).State())
	assert.Equal(t, 0, f.container.Len())
	instances := f.created()
	require.Len(t, instances, 1)
	assert.True(t, instances[0].destroyed.Load())
}

func TestInvoker_EndRunsOnFault(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.proxy.Call(ctx, "add", 1)
	require.NoError(t, err)
	id := f.proxy.ConversationID()

	endOnFault := &interfacedef.Operation{Name: "fail", ConversationSequence: interfacedef.SequenceEnd}
	chain := f.wire.InvocationChain(f.wire.SourceOperation("fail"))
	require.NotNil(t, chain)
	msg := invocation.NewRequest(chain.SourceOperation(), "bad input")
	msg.SetOperation(endOnFault)
	_, err = f.proxy.Invoker().InvokeChain(ctx, invocation.NewChain(chain.SourceOperation(), endOnFault), msg)
	var target *invocation.InvocationTargetError
	require.ErrorAs(t, err, &target)
	assert.ErrorIs(t, err, invocation.ErrNoTargetInvoker)

	assert.Equal(t, conversation.StateEnded, f.manager.GetConversation(id).State())
	assert.Equal(t, 0, f.container.Len())
}

func TestInvoker_IdleExpiry(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.proxy.Call(ctx, "add", 5)
	require.NoError(t, err)
	expired := f.proxy.ConversationID()

	f.clock.Advance(2 * time.Minute)
	_, err = f.proxy.Call(ctx, "add", 1)
	var ended *invocation.ConversationEndedError
	require.ErrorAs(t, err, &ended)
	assert.Equal(t, expired, ended.ConversationID)
	assert.ErrorIs(t, err, invocation.ErrConversationEnded)
	assert.Equal(t, 0, f.container.Len())
	assert.Empty(t, f.proxy.ConversationID())

	result, err := f.proxy.Call(ctx, "add", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result)
	assert.NotEqual(t, expired, f.proxy.ConversationID())
	assert.Equal(t, conversation.StateExpired, f.manager.GetConversation(expired).State())
}

func TestInvoker_ExpiredIDKeepsFailing(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	op := f.wire.SourceOperation("add")

	call := func() (any, error) {
		msg := invocation.NewRequest(op, 5)
		msg.From().ReferenceParameters().ConversationID = "remote"
		return f.proxy.Invoker().Invoke(ctx, op, msg)
	}

	_, err := call()
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)

	for i := 0; i < 2; i++ {
		_, err = call()
		assert.ErrorIs(t, err, invocation.ErrConversationEnded)
	}
	assert.Equal(t, 0, f.container.Len())

	f.manager.Expire()
	result, err := call()
	require.NoError(t, err)
	assert.Equal(t, 5, result)
}

func TestInvoker_MessageConversationIDWins(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.proxy.SetConversationID("cached")

	op := f.wire.SourceOperation("add")
	msg := invocation.NewRequest(op, 4)
	msg.From().ReferenceParameters().ConversationID = "from-binding"
	_, err := f.proxy.Invoker().Invoke(ctx, op, msg)
	require.NoError(t, err)

	assert.NotNil(t, f.manager.GetConversation("from-binding"))
	assert.Nil(t, f.manager.GetConversation("cached"))
	assert.Equal(t, "from-binding", f.proxy.ConversationID())
	assert.Equal(t, "from-binding", msg.To().ReferenceParameters().ConversationID)
	assert.Empty(t, f.wire.Source().ReferenceParameters().ConversationID)
	assert.Empty(t, f.wire.Target().ReferenceParameters().ConversationID)
}

func TestInvoker_IndependentConversations(t *testing.T) {
	f := newFixture(t, true)
	proxies := map[string]*Proxy{"A": NewProxy(f.wire, f.manager, nil), "B": NewProxy(f.wire, f.manager, nil)}
	proxies["A"].SetConversationID("A")
	proxies["B"].SetConversationID("B")

	var g errgroup.Group
	for id, p := range proxies {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if _, err := p.Call(context.Background(), "add", 1); err != nil {
					return err
				}
			}
			if id == "A" {
				_, err := p.Call(context.Background(), "stop")
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, conversation.StateEnded, f.manager.GetConversation("A").State())
	b := f.manager.GetConversation("B")
	require.NotNil(t, b)
	assert.Equal(t, conversation.StateActive, b.State())

	total, err := proxies["B"].Call(context.Background(), "total")
	require.NoError(t, err)
	assert.Equal(t, 50, total)
}

func TestInvoker_NotConversational(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.proxy.Call(context.Background(), "add", 1)
	require.ErrorAs(t, err, new(*invocation.InvocationTargetError))
	assert.ErrorIs(t, err, scope.ErrMissingKey)
	assert.Equal(t, 0, f.manager.Len())
}

func TestInvoker_FaultTranslation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.proxy.Call(ctx, "fail", "insufficient funds")
	var target *invocation.InvocationTargetError
	require.ErrorAs(t, err, &target)
	assert.EqualError(t, target.Fault, "insufficient funds")

	_, err = f.proxy.Call(ctx, "crash")
	var runtimeErr *invocation.ServiceRuntimeError
	require.ErrorAs(t, err, &runtimeErr)
	assert.Equal(t, "crash", runtimeErr.Operation)
	assert.Contains(t, err.Error(), "boom")

	_, err = f.proxy.Call(ctx, "missing")
	require.ErrorAs(t, err, &runtimeErr)
	assert.ErrorIs(t, err, invocation.ErrOperationNotFound)

	_, err = f.proxy.Invoker().Invoke(ctx, &interfacedef.Operation{Name: "other"}, invocation.NewMessage())
	require.ErrorAs(t, err, &runtimeErr)
	assert.ErrorIs(t, err, invocation.ErrNoInvocationChain)
}

func TestInvoker_AmbientMessage(t *testing.T) {
	inner := interfacedef.NewInterface("Inner", &interfacedef.Operation{Name: "whoami", Output: goType[string]()})
	innerIC := interfacedef.NewInterfaceContract(inner, nil)
	innerSource := invocation.NewEndpointReference("Outer/inner")
	innerSource.InterfaceContract = innerIC
	innerWire, err := New(innerSource, invocation.NewEndpointReference("Inner"), InvokerProviderFunc(
		func(*interfacedef.Operation) (invocation.Invoker, error) {
			return invocation.InvokerFunc(func(ctx context.Context, msg *invocation.Message) *invocation.Message {
				msg.SetBody(invocation.MessageFromContext(ctx).ID())
				return msg
			}), nil
		}))
	require.NoError(t, err)
	innerProxy := NewProxy(innerWire, nil, nil)

	outer := interfacedef.NewInterface("Outer", &interfacedef.Operation{Name: "run", Output: goType[[]string]()})
	outerIC := interfacedef.NewInterfaceContract(outer, nil)
	outerSource := invocation.NewEndpointReference("Client/outer")
	outerSource.InterfaceContract = outerIC
	outerWire, err := New(outerSource, invocation.NewEndpointReference("Outer"), InvokerProviderFunc(
		func(*interfacedef.Operation) (invocation.Invoker, error) {
			return invocation.InvokerFunc(func(ctx context.Context, msg *invocation.Message) *invocation.Message {
				before := invocation.MessageFromContext(ctx).ID()
				nested, err := innerProxy.Call(ctx, "whoami")
				if err != nil {
					msg.SetFaultBody(err)
					return msg
				}
				after := invocation.MessageFromContext(ctx).ID()
				msg.SetBody([]string{before, nested.(string), after})
				return msg
			}), nil
		}))
	require.NoError(t, err)

	ctx := context.Background()
	result, err := NewProxy(outerWire, nil, nil).Call(ctx, "run")
	require.NoError(t, err)
	ids := result.([]string)
	assert.Equal(t, ids[0], ids[2])
	assert.NotEqual(t, ids[0], ids[1])
	assert.Nil(t, invocation.MessageFromContext(ctx))
}

func TestRuntimeWire_ChainsAndRebuild(t *testing.T) {
	f := newFixture(t, true)
	chains := f.wire.Chains()
	require.Len(t, chains, 5)
	for _, c := range chains {
		assert.True(t, c.Sealed())
		assert.Same(t, c, f.wire.InvocationChain(c.SourceOperation()))
	}

	require.NoError(t, f.wire.Rebuild())
	rebuilt := f.wire.Chains()
	require.Len(t, rebuilt, 5)
	assert.NotSame(t, chains[0], rebuilt[0])

	result, err := f.proxy.Call(context.Background(), "add", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, result)
}

func TestRuntimeWire_IncompatibleContracts(t *testing.T) {
	source := invocation.NewEndpointReference("Client/counter")
	source.InterfaceContract = interfacedef.NewInterfaceContract(counterInterface(true), nil)
	target := invocation.NewEndpointReference("Other")
	target.InterfaceContract = interfacedef.NewInterfaceContract(counterInterface(false), nil)

	_, err := New(source, target, nil)
	var incompatible *interfacedef.IncompatibleError
	require.ErrorAs(t, err, &incompatible)
}

func TestRuntimeWire_ProcessorErrorFailsBuild(t *testing.T) {
	source := invocation.NewEndpointReference("Client/counter")
	source.InterfaceContract = interfacedef.NewInterfaceContract(counterInterface(false), nil)
	_, err := New(source, invocation.NewEndpointReference("Counter"), nil,
		WithProcessors(InterceptorProcessor("no.such.phase", func(*RuntimeWire, *invocation.Chain) invocation.Interceptor {
			return invocation.NewInterceptor("noop", func(ctx context.Context, msg *invocation.Message, next invocation.Invoker) *invocation.Message {
				return next.Invoke(ctx, msg)
			})
		})))
	assert.ErrorIs(t, err, invocation.ErrUnknownPhase)
}
