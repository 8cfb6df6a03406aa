package wire

import (
	"context"
	"errors"
	"sync"

	"github.com/zeusync/zeuswire/internal/core/conversation"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
)

// Proxy is the caller facing entry point of a reference: it turns a call by
// operation name into a request message and drives it over the wire.
type Proxy struct {
	invoker *Invoker
}

func NewProxy(w *RuntimeWire, conversations *conversation.Manager, logger log.Log) *Proxy {
	return &Proxy{invoker: NewInvoker(w, conversations, logger)}
}

// Call invokes operation with args and returns its result.
func (p *Proxy) Call(ctx context.Context, operation string, args ...any) (any, error) {
	op := p.invoker.Wire().SourceOperation(operation)
	if op == nil {
		return nil, &invocation.ServiceRuntimeError{Operation: operation, Cause: invocation.ErrOperationNotFound}
	}
	return p.invoker.Invoke(ctx, op, invocation.NewRequest(op, args...))
}

func (p *Proxy) ConversationID() string     { return p.invoker.ConversationID() }
func (p *Proxy) SetConversationID(id string) { p.invoker.SetConversationID(id) }
func (p *Proxy) SetCallbackID(id string)     { p.invoker.SetCallbackID(id) }
func (p *Proxy) Invoker() *Invoker           { return p.invoker }

// CallbackProxy calls back whoever invoked the component. The callback wire
// is chosen per call from the ambient message of ctx.
type CallbackProxy struct {
	wires         []*RuntimeWire
	conversations *conversation.Manager
	logger        log.Log

	mu       sync.Mutex
	invokers map[*RuntimeWire]*Invoker
}

func NewCallbackProxy(wires []*RuntimeWire, conversations *conversation.Manager, logger log.Log) *CallbackProxy {
	if logger == nil {
		logger = log.NewNop()
	}
	return &CallbackProxy{
		wires:         wires,
		conversations: conversations,
		logger:        logger,
		invokers:      make(map[*RuntimeWire]*Invoker, len(wires)),
	}
}

// Call invokes operation on the callback wire that matches the call in
// flight. The callback continues the conversation and callback ID the
// inbound call carried.
func (p *CallbackProxy) Call(ctx context.Context, operation string, args ...any) (any, error) {
	inbound := invocation.MessageFromContext(ctx)
	if inbound == nil {
		return nil, &invocation.ServiceRuntimeError{Operation: operation, Cause: invocation.ErrNoCallbackWire}
	}
	w := p.selectWire(inbound)
	if w == nil {
		p.logger.Warn("No callback wire found",
			log.String("operation", operation),
			log.String("from", inbound.From().String()),
		)
		return nil, &invocation.ServiceRuntimeError{Operation: operation, Cause: invocation.ErrNoCallbackWire}
	}
	op := w.SourceOperation(operation)
	if op == nil {
		return nil, &invocation.ServiceRuntimeError{Operation: operation, Cause: invocation.ErrOperationNotFound}
	}

	msg := invocation.NewRequest(op, args...)
	if to := inbound.To(); to != nil {
		inboundParams := to.ReferenceParameters()
		params := msg.From().ReferenceParameters()
		params.ConversationID = inboundParams.ConversationID
		params.CallbackID = inboundParams.CallbackID
	}

	result, err := p.invokerFor(w).Invoke(ctx, op, msg)
	var target *invocation.InvocationTargetError
	if errors.As(err, &target) && errors.Is(target.Fault, invocation.ErrNoRegisteredCallback) {
		return nil, target.Fault
	}
	return result, err
}

// selectWire prefers the wire targeting the caller's callback endpoint and
// falls back to one using the same binding type.
func (p *CallbackProxy) selectWire(inbound *invocation.Message) *RuntimeWire {
	from := inbound.From()
	if from == nil {
		return nil
	}
	callback := from.CallbackEndpoint
	if callback == nil {
		callback = from.ReferenceParameters().CallbackReference
	}
	if callback == nil {
		if len(p.wires) == 1 {
			return p.wires[0]
		}
		return nil
	}
	for _, w := range p.wires {
		if w.Target().URI == callback.URI {
			return w
		}
	}
	for _, w := range p.wires {
		if bt := w.Source().BindingType(); bt != "" && bt == callback.BindingType() {
			return w
		}
	}
	return nil
}

func (p *CallbackProxy) invokerFor(w *RuntimeWire) *Invoker {
	p.mu.Lock()
	defer p.mu.Unlock()
	inv, ok := p.invokers[w]
	if !ok {
		inv = NewInvoker(w, p.conversations, p.logger)
		p.invokers[w] = inv
	}
	return inv
}
