package invocation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
)

// Invoker processes a message and returns the response message.
type Invoker interface {
	Invoke(ctx context.Context, msg *Message) *Message
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, msg *Message) *Message

func (f InvokerFunc) Invoke(ctx context.Context, msg *Message) *Message {
	return f(ctx, msg)
}

// Interceptor is a chain element. It either delegates to next, optionally
// post-processing the response, or answers directly.
type Interceptor interface {
	Name() string
	Invoke(ctx context.Context, msg *Message, next Invoker) *Message
}

// Prioritized interceptors are ordered within a phase by descending
// priority. Interceptors without a priority count as 0.
type Prioritized interface {
	Priority() int
}

type funcInterceptor struct {
	name string
	fn   func(ctx context.Context, msg *Message, next Invoker) *Message
}

func (f *funcInterceptor) Name() string { return f.name }

func (f *funcInterceptor) Invoke(ctx context.Context, msg *Message, next Invoker) *Message {
	return f.fn(ctx, msg, next)
}

// NewInterceptor builds an Interceptor from a function.
func NewInterceptor(name string, fn func(ctx context.Context, msg *Message, next Invoker) *Message) Interceptor {
	return &funcInterceptor{name: name, fn: fn}
}

type chainEntry struct {
	phase       int
	priority    int
	seq         int
	interceptor Interceptor
}

// Chain is the interceptor pipeline of one operation of a wire. It is built
// single threaded, sealed once and then shared read-only by all callers.
// The mutex guards the build phase only.
type Chain struct {
	source *interfacedef.Operation
	target *interfacedef.Operation

	head atomic.Pointer[sealedHead]

	mu                    sync.Mutex
	entries               []chainEntry
	tail                  Invoker
	allowsPassByReference bool
}

type sealedHead struct {
	invoker Invoker
}

func NewChain(source, target *interfacedef.Operation) *Chain {
	return &Chain{source: source, target: target}
}

func (c *Chain) SourceOperation() *interfacedef.Operation { return c.source }
func (c *Chain) TargetOperation() *interfacedef.Operation { return c.target }

// AddInterceptor places i in phase. Within a phase interceptors keep
// insertion order unless they are Prioritized.
func (c *Chain) AddInterceptor(phase string, i Interceptor) error {
	idx, ok := PhaseIndex(phase)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Sealed() {
		return ErrChainSealed
	}
	priority := 0
	if p, ok := i.(Prioritized); ok {
		priority = p.Priority()
	}
	c.entries = append(c.entries, chainEntry{
		phase:       idx,
		priority:    priority,
		seq:         len(c.entries),
		interceptor: i,
	})
	return nil
}

// SetInvoker sets the terminal invoker, usually a binding or implementation
// invoker.
func (c *Chain) SetInvoker(inv Invoker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Sealed() {
		return ErrChainSealed
	}
	c.tail = inv
	return nil
}

func (c *Chain) Invoker() Invoker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tail
}

func (c *Chain) SetAllowsPassByReference(allow bool) {
	c.mu.Lock()
	c.allowsPassByReference = allow
	c.mu.Unlock()
}

func (c *Chain) AllowsPassByReference() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowsPassByReference
}

// Interceptors returns the interceptors in execution order.
func (c *Chain) Interceptors() []Interceptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	ordered := c.orderedLocked()
	out := make([]Interceptor, len(ordered))
	for i, e := range ordered {
		out[i] = e.interceptor
	}
	return out
}

// Seal composes the pipeline. Later additions fail with ErrChainSealed.
func (c *Chain) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealLocked()
}

func (c *Chain) Sealed() bool {
	return c.head.Load() != nil
}

// Head returns the entry point of the pipeline, sealing the chain first if
// needed. Sealed chains answer without locking.
func (c *Chain) Head() Invoker {
	if h := c.head.Load(); h != nil {
		return h.invoker
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealLocked()
	return c.head.Load().invoker
}

// Invoke runs msg through the pipeline.
func (c *Chain) Invoke(ctx context.Context, msg *Message) *Message {
	return c.Head().Invoke(ctx, msg)
}

func (c *Chain) sealLocked() {
	if c.Sealed() {
		return
	}
	var next Invoker = c.tail
	if next == nil {
		next = InvokerFunc(missingTarget)
	}
	ordered := c.orderedLocked()
	for i := len(ordered) - 1; i >= 0; i-- {
		next = &link{interceptor: ordered[i].interceptor, next: next}
	}
	c.head.Store(&sealedHead{invoker: next})
}

func (c *Chain) orderedLocked() []chainEntry {
	ordered := append([]chainEntry(nil), c.entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].phase != ordered[j].phase {
			return ordered[i].phase < ordered[j].phase
		}
		if ordered[i].priority != ordered[j].priority {
			return ordered[i].priority > ordered[j].priority
		}
		return ordered[i].seq < ordered[j].seq
	})
	return ordered
}

type link struct {
	interceptor Interceptor
	next        Invoker
}

func (l *link) Invoke(ctx context.Context, msg *Message) *Message {
	return l.interceptor.Invoke(ctx, msg, l.next)
}

func missingTarget(_ context.Context, msg *Message) *Message {
	msg.SetFaultBody(ErrNoTargetInvoker)
	return msg
}
