package conversation

import (
	"sync"
	"time"

	"github.com/zeusync/zeuswire/internal/core/assembly"
)

// State of a conversation.
type State uint8

const (
	StateActive State = iota
	StateEnded
	// StateExpired conversations ran past a limit. Calls with their ID keep
	// failing until a sweep drops them.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateEnded:
		return "ENDED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "ACTIVE"
	}
}

// Conversation is a stateful session between a client and a conversational
// service. Instances are owned by a Manager.
type Conversation struct {
	id      string
	manager *Manager

	mu                    sync.Mutex
	state                 State
	createdAt             time.Time
	lastReferenced        time.Time
	maxAge                time.Duration
	maxIdleTime           time.Duration
	attributesInitialized bool
}

func newConversation(id string, m *Manager) *Conversation {
	now := m.clock.Now()
	return &Conversation{
		id:             id,
		manager:        m,
		state:          StateActive,
		createdAt:      now,
		lastReferenced: now,
	}
}

func (c *Conversation) ID() string { return c.id }

func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conversation) CreatedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdAt
}

func (c *Conversation) LastReferenced() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReferenced
}

func (c *Conversation) MaxAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxAge
}

func (c *Conversation) MaxIdleTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxIdleTime
}

func (c *Conversation) AttributesInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attributesInitialized
}

// InitializeAttributes applies the expiry limits of the target component.
// Components that set neither limit get the manager defaults.
func (c *Conversation) InitializeAttributes(attrs assembly.ConversationAttributes) {
	if attrs.IsZero() {
		attrs = c.manager.defaults
	}
	c.mu.Lock()
	c.maxAge = attrs.MaxAge
	c.maxIdleTime = attrs.MaxIdleTime
	c.attributesInitialized = true
	c.mu.Unlock()
}

// UpdateLastReferencedTime marks the conversation as used now.
func (c *Conversation) UpdateLastReferencedTime() {
	now := c.manager.clock.Now()
	c.mu.Lock()
	c.lastReferenced = now
	c.mu.Unlock()
}

// IsExpired reports whether the idle or the age limit has passed. Ended
// conversations are not considered expired.
func (c *Conversation) IsExpired() bool {
	now := c.manager.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiredAt(now)
}

func (c *Conversation) expiredAt(now time.Time) bool {
	if c.state != StateActive {
		return c.state == StateExpired
	}
	if c.maxIdleTime > 0 && now.Sub(c.lastReferenced) > c.maxIdleTime {
		return true
	}
	return c.maxAge > 0 && now.Sub(c.createdAt) > c.maxAge
}

// End terminates the conversation.
func (c *Conversation) End() {
	c.manager.EndConversation(c.id)
}

// markEnded ends an active conversation and reports whether this call did
// it.
func (c *Conversation) markEnded() bool {
	return c.leave(StateEnded)
}

func (c *Conversation) markExpired() bool {
	return c.leave(StateExpired)
}

func (c *Conversation) leave(to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return false
	}
	c.state = to
	return true
}
