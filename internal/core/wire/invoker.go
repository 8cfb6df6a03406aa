package wire

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/conversation"
	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
	"github.com/zeusync/zeuswire/internal/core/scope"
)

var errNoResponse = errors.New("invocation chain returned no message")

// Invoker drives calls over a wire. It keeps the conversation and callback
// IDs of the caller it serves, so one Invoker belongs to one reference or
// proxy and is safe for concurrent use.
type Invoker struct {
	wire          *RuntimeWire
	conversations *conversation.Manager
	logger        log.Log

	mu             sync.Mutex
	conversationID string
	callbackID     string
}

func NewInvoker(w *RuntimeWire, conversations *conversation.Manager, logger log.Log) *Invoker {
	if logger == nil {
		logger = log.NewNop()
	}
	params := w.Source().ReferenceParameters()
	return &Invoker{
		wire:           w,
		conversations:  conversations,
		logger:         logger,
		conversationID: params.ConversationID,
		callbackID:     params.CallbackID,
	}
}

func (i *Invoker) Wire() *RuntimeWire { return i.wire }

// ConversationID returns the conversation the invoker is bound to, or "".
func (i *Invoker) ConversationID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.conversationID
}

// SetConversationID binds later calls to the given conversation.
func (i *Invoker) SetConversationID(id string) {
	i.mu.Lock()
	i.conversationID = id
	i.mu.Unlock()
}

func (i *Invoker) CallbackID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.callbackID
}

func (i *Invoker) SetCallbackID(id string) {
	i.mu.Lock()
	i.callbackID = id
	i.mu.Unlock()
}

// Conversational reports whether calls through the wire take part in a
// conversation.
func (i *Invoker) Conversational() bool {
	ic := i.wire.SourceContract()
	return i.conversations != nil && ic != nil && ic.Interface != nil && ic.Interface.Conversational
}

// Invoke calls op over the wire with msg and returns the response body.
//
// A fault returned by the chain is reported as *invocation.InvocationTargetError,
// an expired conversation as *invocation.ConversationEndedError and every
// other failure, including a panic below the invoker, as
// *invocation.ServiceRuntimeError.
func (i *Invoker) Invoke(ctx context.Context, op *interfacedef.Operation, msg *invocation.Message) (any, error) {
	chain := i.wire.InvocationChain(op)
	if chain == nil {
		name := ""
		if op != nil {
			name = op.Name
		}
		return nil, &invocation.ServiceRuntimeError{Operation: name, Cause: invocation.ErrNoInvocationChain}
	}
	return i.InvokeChain(ctx, chain, msg)
}

// InvokeChain runs msg through chain. The caller's context is not modified;
// the message is ambient only below this call.
func (i *Invoker) InvokeChain(ctx context.Context, chain *invocation.Chain, msg *invocation.Message) (result any, err error) {
	i.prepare(chain, msg)
	op := msg.Operation()

	conversational := i.Conversational()
	if conversational {
		defer func() {
			if postErr := i.conversationPostInvoke(msg); postErr != nil && err == nil {
				result, err = nil, &invocation.ServiceRuntimeError{Operation: op.Name, Cause: postErr}
			}
		}()
		if err := i.conversationPreInvoke(msg); err != nil {
			i.logger.Warn("Conversation pre-invoke failed",
				log.String("operation", op.String()),
				log.Error(err),
			)
			return nil, err
		}
	}

	resp, err := dispatch(invocation.ContextWithMessage(ctx, msg), chain, msg)
	if err != nil {
		i.logger.Error("Invocation failed",
			log.String("operation", op.String()),
			log.String("message_id", msg.ID()),
			log.Error(err),
		)
		return nil, err
	}
	if resp.IsFault() {
		fault := invocation.FaultError(resp.Body())
		i.logger.Debug("Invocation returned fault",
			log.String("operation", op.String()),
			log.String("message_id", msg.ID()),
			log.Error(fault),
		)
		return nil, &invocation.InvocationTargetError{Fault: fault}
	}
	return resp.Body(), nil
}

// prepare merges the wire source into the caller supplied From endpoint and
// addresses the message to a private copy of the wire target.
func (i *Invoker) prepare(chain *invocation.Chain, msg *invocation.Message) {
	source := i.wire.Source()
	if from := msg.From(); from != nil {
		from.Merge(source)
	} else {
		msg.SetFrom(source.Clone())
	}
	params := msg.From().ReferenceParameters()
	if params.CallbackID == "" {
		params.CallbackID = i.CallbackID()
	}

	to := i.wire.Target().Clone()
	to.ReferenceParameters().CallbackID = params.CallbackID
	to.ReferenceParameters().CallbackReference = msg.From().CallbackEndpoint
	if msg.From().CallbackEndpoint == nil {
		to.ReferenceParameters().CallbackReference = params.CallbackReference
	}
	msg.SetTo(to)
	msg.SetOperation(chain.TargetOperation())
}

func dispatch(ctx context.Context, chain *invocation.Chain, msg *invocation.Message) (resp *invocation.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &invocation.ServiceRuntimeError{Operation: msg.Operation().Name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	resp = chain.Head().Invoke(ctx, msg)
	if resp == nil {
		return nil, &invocation.ServiceRuntimeError{Operation: msg.Operation().Name, Cause: errNoResponse}
	}
	return resp, nil
}

// resolveConversationID prefers an ID carried by the message, which covers
// bindings that propagate it out of band, over the cached one. A new ID is
// generated when neither exists. The result becomes the cached ID.
func (i *Invoker) resolveConversationID(msg *invocation.Message) string {
	params := msg.From().ReferenceParameters()
	i.mu.Lock()
	defer i.mu.Unlock()
	id := params.ConversationID
	if id == "" {
		id = i.conversationID
	}
	if id == "" {
		id = uuid.NewString()
	}
	i.conversationID = id
	return id
}

// forgetConversation drops the cached ID so the next call starts afresh.
func (i *Invoker) forgetConversation(id string) {
	i.mu.Lock()
	if i.conversationID == id {
		i.conversationID = ""
	}
	i.mu.Unlock()
}

func (i *Invoker) conversationPreInvoke(msg *invocation.Message) error {
	id := i.resolveConversationID(msg)
	conv, err := i.conversations.Acquire(id, i.targetAttributes())
	if err != nil {
		if removeErr := releaseInstance(msg, id); removeErr != nil {
			i.logger.Warn("Failed to release expired conversation instance",
				log.String("conversation_id", id),
				log.Error(removeErr),
			)
		}
		i.forgetConversation(id)
		return err
	}
	msg.From().ReferenceParameters().ConversationID = conv.ID()
	msg.To().ReferenceParameters().ConversationID = conv.ID()
	return nil
}

// releaseInstance removes the instance a conversation-scoped target keeps
// for id.
func releaseInstance(msg *invocation.Message, id string) error {
	if component := msg.To().Component; component != nil && component.Scope() == scope.ScopeConversation {
		return component.Container.Remove(id)
	}
	return nil
}

func (i *Invoker) conversationPostInvoke(msg *invocation.Message) error {
	op := msg.Operation()
	if op == nil || op.ConversationSequence != interfacedef.SequenceEnd {
		return nil
	}
	id := msg.From().ReferenceParameters().ConversationID
	if id == "" {
		id = i.ConversationID()
	}
	if id == "" {
		return nil
	}

	removeErr := releaseInstance(msg, id)
	i.conversations.EndConversation(id)
	return removeErr
}

func (i *Invoker) targetAttributes() (attrs assembly.ConversationAttributes) {
	if component := i.wire.Target().Component; component != nil {
		attrs = component.Conversation
	}
	return attrs
}
