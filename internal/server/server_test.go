package server

import (
	"context"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zeusync/zeuswire/internal/config"
	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/conversation"
	"github.com/zeusync/zeuswire/internal/core/databinding"
	"github.com/zeusync/zeuswire/internal/core/events/bus"
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
	"github.com/zeusync/zeuswire/internal/core/scope"
	"github.com/zeusync/zeuswire/internal/core/wire"
)

func goType[T any]() *interfacedef.DataType {
	return interfacedef.NewDataType(databinding.GoDataBinding, reflect.TypeFor[T](), nil)
}

func counterContract() *interfacedef.InterfaceContract {
	iface := interfacedef.NewInterface("Counter",
		&interfacedef.Operation{
			Name:                 "add",
			Inputs:               []*interfacedef.DataType{goType[int]()},
			Output:               goType[int](),
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
			c.mu.Lock()
			defer c.mu.Unlock()
			c.total += args[0].(int)
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

func newCounter(context.Context) (any, error) {
	return &counter{}, nil
}

type node struct {
	server    *Server
	container *scope.ConversationalContainer
	registry  *prometheus.Registry
	manager   *conversation.Manager
	clock     *testclock.Clock
}

func newNode(t *testing.T, cfg *config.Config) *node {
	t.Helper()
	n := &node{
		container: scope.NewConversationalContainer(),
		registry:  prometheus.NewRegistry(),
		clock:     testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	events := bus.New()
	n.manager = conversation.NewManager(conversation.WithEventBus(events), conversation.WithClock(n.clock))
	srv, err := New(cfg, log.NewNop(), n.manager, events, n.registry)
	require.NoError(t, err)
	n.server = srv

	require.NoError(t, srv.Expose(Service{
		Name:      "counter",
		Component: assembly.NewComponent("CounterComponent", n.container),
		Contract:  counterContract(),
		Factory:   newCounter,
	}))
	return n
}

// serve runs the node on a loopback port and returns the service URL and a
// stop function reporting Serve's result.
func (n *node) serve(t *testing.T) (string, func() error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.server.Serve(ctx, ln) }()
	return "ws://" + ln.Addr().String() + n.server.Path("counter"), func() error {
		cancel()
		return <-done
	}
}

func TestServer_ExposeAndCall(t *testing.T) {
	defer goleak.VerifyNone(t)
	n := newNode(t, config.Default())
	url, stop := n.serve(t)

	ref, err := n.server.Reference("counter", url, counterContract())
	require.NoError(t, err)
	proxy := n.server.Proxy(ref)
	ctx := context.Background()

	result, err := proxy.Call(ctx, "add", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, result)
	result, err = proxy.Call(ctx, "add", 5)
	require.NoError(t, err)
	assert.Equal(t, 9, result)
	assert.Equal(t, 1, n.container.Len())

	result, err = proxy.Call(ctx, "stop")
	require.NoError(t, err)
	assert.Equal(t, 9, result)
	assert.Equal(t, 0, n.container.Len())

	count, err := testutil.GatherAndCount(n.registry, "zeuswire_invocations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, stop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, n.server.Serve(context.Background(), ln), ErrServerClosed)
}

func TestServer_Expose(t *testing.T) {
	n := newNode(t, config.Default())

	err := n.server.Expose(Service{
		Name:      "counter",
		Component: assembly.NewComponent("Other", scope.StatelessContainer{}),
		Contract:  counterContract(),
		Factory:   newCounter,
	})
	assert.ErrorIs(t, err, ErrDuplicateService)

	local := counterContract()
	local.Interface.Remotable = false
	err = n.server.Expose(Service{Name: "local", Component: assembly.NewComponent("Local", nil), Contract: local})
	assert.ErrorIs(t, err, ErrInvalidService)

	conflicting := assembly.NewComponent("Conflicting", nil)
	conflicting.Conversation = assembly.ConversationAttributes{MaxAge: time.Minute, MaxIdleTime: time.Minute}
	err = n.server.Expose(Service{Name: "conflicting", Component: conflicting, Contract: counterContract(), Factory: newCounter})
	assert.ErrorIs(t, err, assembly.ErrConflictingExpiry)

	defaulted := assembly.NewComponent("Defaulted", nil)
	require.NoError(t, n.server.Expose(Service{Name: "defaulted", Component: defaulted, Contract: counterContract(), Factory: newCounter}))
	assert.Equal(t, assembly.ConversationAttributes{MaxIdleTime: config.DefaultMaxIdleTime}, defaulted.Conversation)
	assert.Equal(t, "/sca/defaulted", n.server.Path("defaulted"))
}

func TestServer_RequirePrincipal(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := config.Default()
	cfg.Policy.RequirePrincipal = true
	n := newNode(t, cfg)
	url, stop := n.serve(t)
	defer func() { require.NoError(t, stop()) }()

	anonymous, err := n.server.Reference("anonymous", url, counterContract())
	require.NoError(t, err)
	_, err = n.server.Proxy(anonymous).Call(context.Background(), "add", 1)
	var target *invocation.InvocationTargetError
	require.ErrorAs(t, err, &target)
	assert.ErrorIs(t, err, invocation.ErrUnauthenticated)

	alice, err := n.server.Reference("alice", url, counterContract(), WithPrincipal("alice"))
	require.NoError(t, err)
	result, err := n.server.Proxy(alice).Call(context.Background(), "add", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result)
}

func TestServer_ReleasesExpiredConversations(t *testing.T) {
	n := newNode(t, config.Default())
	ctx := context.Background()

	_, err := n.manager.Acquire("c1", assembly.ConversationAttributes{MaxIdleTime: time.Minute})
	require.NoError(t, err)
	_, err = n.container.Instance(ctx, "c1", newCounter)
	require.NoError(t, err)
	require.Equal(t, 1, n.container.Len())

	n.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, n.manager.Expire())
	assert.Equal(t, 0, n.container.Len())

	published := n.server.eventMetrics.published
	assert.Equal(t, 1.0, testutil.ToFloat64(published.WithLabelValues(conversation.EventStarted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(published.WithLabelValues(conversation.EventExpired)))
	assert.Equal(t, 0.0, testutil.ToFloat64(n.server.eventMetrics.failed.WithLabelValues(conversation.EventExpired)))

	require.NoError(t, n.server.Close())
	n.manager.StartConversation("c2")
	assert.Equal(t, 1.0, testutil.ToFloat64(published.WithLabelValues(conversation.EventStarted)))
}
