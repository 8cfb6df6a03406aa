// Package server hosts components on a runtime node: it builds their service
// wires, exposes them over the websocket binding and creates reference wires
// to remote services.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/zeuswire/internal/binding/websocket"
	"github.com/zeusync/zeuswire/internal/config"
	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/conversation"
	"github.com/zeusync/zeuswire/internal/core/databinding"
	"github.com/zeusync/zeuswire/internal/core/events/bus"
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/invocation/interceptors"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
	"github.com/zeusync/zeuswire/internal/core/scope"
	"github.com/zeusync/zeuswire/internal/core/wire"
)

const shutdownTimeout = 5 * time.Second

// Service describes a component service to expose.
type Service struct {
	// Name is the last path segment of the service address.
	Name      string
	Component *assembly.Component
	Contract  *interfacedef.InterfaceContract
	Factory   scope.Factory
}

type exposed struct {
	component *assembly.Component
	wire      *wire.RuntimeWire
	handler   *websocket.ServiceHandler
}

// Server is a runtime node.
type Server struct {
	config        *config.Config
	logger        log.Log
	conversations *conversation.Manager
	registry      *databinding.Registry
	mediator      databinding.Mediator
	metrics       *interceptors.Metrics
	bindingConfig websocket.Config

	events       bus.EventBus
	eventMetrics *eventMetrics
	expirySub    bus.Subscription

	mux      *http.ServeMux
	mu       sync.Mutex
	services map[string]*exposed
	clients  []*websocket.Client

	running int32 // atomic bool
	closed  int32 // atomic bool
}

// New creates a node. Lifecycle events from the conversation manager arrive
// on events; expired conversations release their component instances.
func New(cfg *config.Config, logger log.Log, conversations *conversation.Manager, events bus.EventBus, registerer prometheus.Registerer) (*Server, error) {
	metrics, err := interceptors.NewMetrics(registerer)
	if err != nil {
		return nil, err
	}
	observer, err := newEventMetrics(registerer)
	if err != nil {
		return nil, err
	}
	registry := databinding.NewDefaultRegistry()
	ws := cfg.Binding.WebSocket
	bindingConfig := websocket.DefaultConfig()
	bindingConfig.ReadTimeout = ws.ReadTimeout
	bindingConfig.WriteTimeout = ws.WriteTimeout
	bindingConfig.MaxMessageSize = ws.MaxMessageSize

	s := &Server{
		config:        cfg,
		logger:        logger.With(log.String("component", "server")),
		conversations: conversations,
		registry:      registry,
		mediator:      databinding.NewMediator(registry),
		metrics:       metrics,
		bindingConfig: bindingConfig,
		mux:           http.NewServeMux(),
		services:      make(map[string]*exposed),
		events:        events,
		eventMetrics:  observer,
	}
	if events != nil {
		if s.expirySub, err = events.Subscribe(conversation.EventExpired, s.releaseExpired); err != nil {
			return nil, fmt.Errorf("subscribe to conversation events: %w", err)
		}
		events.AddObserver(observer)
	}
	return s, nil
}

// Handler serves every exposed service.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Path returns the address path of the named service.
func (s *Server) Path(name string) string {
	return strings.TrimSuffix(s.config.Binding.WebSocket.Path, "/") + "/" + name
}

// Expose builds the service wire for svc and serves it at Path(svc.Name).
func (s *Server) Expose(svc Service) error {
	if svc.Name == "" || svc.Component == nil || svc.Contract == nil {
		return fmt.Errorf("%w: name, component and contract are required", ErrInvalidService)
	}
	if svc.Contract.Interface == nil || !svc.Contract.Interface.Remotable {
		return fmt.Errorf("%w: %s: only remotable interfaces can be exposed", ErrInvalidService, svc.Name)
	}
	if err := svc.Component.Conversation.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidService, svc.Name, err)
	}
	if svc.Component.Conversation.IsZero() {
		svc.Component.Conversation = s.config.Conversation.Attributes()
	}

	path := s.Path(svc.Name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if _, ok := s.services[path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateService, path)
	}

	source := invocation.NewEndpointReference(path)
	source.Binding = &assembly.Binding{Name: svc.Name, Type: websocket.BindingType, URI: path}
	source.InterfaceContract = websocket.Contract(svc.Contract)
	target := invocation.NewEndpointReference(svc.Component.Name + "/" + svc.Name)
	target.Component = svc.Component
	target.Contract = assembly.NewService(svc.Name, svc.Contract)
	target.InterfaceContract = svc.Contract

	w, err := wire.New(source, target, wire.ImplementationProvider(svc.Component, svc.Factory),
		wire.WithProcessors(s.serviceProcessors()...),
		wire.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("service %s: %w", svc.Name, err)
	}
	handler := websocket.NewServiceHandler(w, s.conversations, s.bindingConfig, s.logger)
	s.services[path] = &exposed{component: svc.Component, wire: w, handler: handler}
	s.mux.Handle(path, handler)

	s.logger.Info("Service exposed",
		log.String("service", svc.Name),
		log.String("path", path),
		log.String("scope", svc.Component.Scope().String()),
	)
	return nil
}

// ReferenceOption configures a reference wire.
type ReferenceOption func(*referenceOptions)

type referenceOptions struct {
	principal      string
	callbackObject any
}

// WithPrincipal asserts principal on every call made through the reference.
func WithPrincipal(principal string) ReferenceOption {
	return func(o *referenceOptions) { o.principal = principal }
}

// WithCallback registers the client's callback object.
func WithCallback(object any) ReferenceOption {
	return func(o *referenceOptions) { o.callbackObject = object }
}

// Reference builds a wire from a reference named name to the remote service
// at url.
func (s *Server) Reference(name, url string, contract *interfacedef.InterfaceContract, opts ...ReferenceOption) (*wire.RuntimeWire, error) {
	var o referenceOptions
	for _, opt := range opts {
		opt(&o)
	}

	source := invocation.NewEndpointReference(name)
	source.Contract = assembly.NewReference(name, contract)
	source.InterfaceContract = contract
	source.ReferenceParameters().CallbackObject = o.callbackObject
	target := invocation.NewEndpointReference(url)
	target.Binding = &assembly.Binding{Name: name, Type: websocket.BindingType, URI: url}
	target.InterfaceContract = websocket.Contract(contract)

	client := websocket.NewClient(url, s.bindingConfig, s.logger)
	w, err := wire.New(source, target, client.Provider(),
		wire.WithProcessors(s.referenceProcessors(o.principal)...),
		wire.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", name, err)
	}

	s.mu.Lock()
	s.clients = append(s.clients, client)
	s.mu.Unlock()
	return w, nil
}

// Proxy returns a proxy for w sharing the node's conversation manager.
func (s *Server) Proxy(w *wire.RuntimeWire) *wire.Proxy {
	return wire.NewProxy(w, s.conversations, s.logger)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Binding.WebSocket.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Binding.WebSocket.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and runs the conversation reaper until ctx
// is done, then shuts down. A server serves at most once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		_ = ln.Close()
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		_ = ln.Close()
		return ErrServerAlreadyRunning
	}

	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: s.bindingConfig.HandshakeTimeout,
	}
	s.logger.Info("Server listening", log.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.conversations.Run(gctx, s.config.Conversation.ReaperInterval)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown(httpServer)
	})

	err := g.Wait()
	s.logger.Info("Server stopped")
	return err
}

func (s *Server) shutdown(httpServer *http.Server) error {
	s.logger.Info("Stopping server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := httpServer.Shutdown(ctx)
	return errors.Join(err, s.Close())
}

// Close closes open binding connections. It is safe to call more than once.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if s.events != nil {
		s.events.RemoveObserver(s.eventMetrics)
		_ = s.events.Unsubscribe(s.expirySub)
	}
	s.mu.Lock()
	services := make([]*exposed, 0, len(s.services))
	for _, svc := range s.services {
		services = append(services, svc)
	}
	clients := s.clients
	s.mu.Unlock()

	var errs []error
	for _, svc := range services {
		errs = append(errs, svc.handler.Close())
	}
	for _, c := range clients {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// releaseExpired drops instances held for an expired conversation.
func (s *Server) releaseExpired(event bus.Event) error {
	id, ok := event.Data().(string)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, svc := range s.services {
		if svc.component.Scope() != scope.ScopeConversation {
			continue
		}
		if err := svc.component.Container.Remove(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
