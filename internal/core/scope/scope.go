package scope

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Scope is the lifetime of component implementation instances.
type Scope uint8

const (
	ScopeStateless Scope = iota
	ScopeRequest
	ScopeConversation
	ScopeComposite
)

func (s Scope) String() string {
	switch s {
	case ScopeRequest:
		return "REQUEST"
	case ScopeConversation:
		return "CONVERSATION"
	case ScopeComposite:
		return "COMPOSITE"
	default:
		return "STATELESS"
	}
}

var ErrMissingKey = errors.New("scope: instance key is required")

// Factory creates an implementation instance.
type Factory func(ctx context.Context) (any, error)

// Destroyer is implemented by instances that release resources when their
// scope ends.
type Destroyer interface {
	Destroy() error
}

// Container hands out implementation instances for a scope.
type Container interface {
	Scope() Scope
	// Instance returns the instance bound to key, creating it with factory
	// on first use.
	Instance(ctx context.Context, key string, factory Factory) (any, error)
	// Remove discards the instance bound to key. Unknown keys are ignored.
	Remove(key string) error
	Len() int
}

type instanceEntry struct {
	once     sync.Once
	instance any
	err      error
}

// ConversationalContainer keeps one instance per conversation ID.
type ConversationalContainer struct {
	instances sync.Map // key -> *instanceEntry
	count     atomic.Int64
}

var _ Container = (*ConversationalContainer)(nil)

func NewConversationalContainer() *ConversationalContainer {
	return &ConversationalContainer{}
}

func (c *ConversationalContainer) Scope() Scope { return ScopeConversation }

func (c *ConversationalContainer) Instance(ctx context.Context, key string, factory Factory) (any, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	value, loaded := c.instances.LoadOrStore(key, &instanceEntry{})
	if !loaded {
		c.count.Add(1)
	}
	entry := value.(*instanceEntry)
	entry.once.Do(func() {
		entry.instance, entry.err = factory(ctx)
	})
	if entry.err != nil {
		if c.instances.CompareAndDelete(key, entry) {
			c.count.Add(-1)
		}
		return nil, entry.err
	}
	return entry.instance, nil
}

func (c *ConversationalContainer) Remove(key string) error {
	value, ok := c.instances.LoadAndDelete(key)
	if !ok {
		return nil
	}
	c.count.Add(-1)
	entry := value.(*instanceEntry)
	if d, ok := entry.instance.(Destroyer); ok {
		if err := d.Destroy(); err != nil {
			return fmt.Errorf("destroy instance %q: %w", key, err)
		}
	}
	return nil
}

func (c *ConversationalContainer) Len() int {
	return int(c.count.Load())
}

// StatelessContainer creates a fresh instance for every call.
type StatelessContainer struct{}

var _ Container = StatelessContainer{}

func (StatelessContainer) Scope() Scope { return ScopeStateless }

func (StatelessContainer) Instance(ctx context.Context, _ string, factory Factory) (any, error) {
	return factory(ctx)
}

func (StatelessContainer) Remove(string) error { return nil }

func (StatelessContainer) Len() int { return 0 }

// CompositeContainer shares one instance across all callers.
type CompositeContainer struct {
	entry instanceEntry
}

var _ Container = (*CompositeContainer)(nil)

func NewCompositeContainer() *CompositeContainer {
	return &CompositeContainer{}
}

func (c *CompositeContainer) Scope() Scope { return ScopeComposite }

func (c *CompositeContainer) Instance(ctx context.Context, _ string, factory Factory) (any, error) {
	c.entry.once.Do(func() {
		c.entry.instance, c.entry.err = factory(ctx)
	})
	return c.entry.instance, c.entry.err
}

func (c *CompositeContainer) Remove(string) error { return nil }

func (c *CompositeContainer) Len() int {
	if c.entry.instance != nil {
		return 1
	}
	return 0
}
