package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/events/bus"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
)

// Lifecycle event types published on the event bus. The event data is the
// conversation ID.
const (
	EventStarted = "conversation.started"
	EventEnded   = "conversation.ended"
	EventExpired = "conversation.expired"
)

const shardCount = 32

type shard struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
}

// Manager tracks live conversations. Lookups and first-touch creation of an
// ID are serialised per shard, so an ID is started or ended exactly once.
type Manager struct {
	shards   [shardCount]*shard
	clock    clock.Clock
	logger   log.Log
	bus      bus.EventBus
	defaults assembly.ConversationAttributes
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithLogger(l log.Log) Option {
	return func(m *Manager) { m.logger = l }
}

func WithEventBus(b bus.EventBus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithDefaults sets the limits used for components that declare none.
func WithDefaults(attrs assembly.ConversationAttributes) Option {
	return func(m *Manager) { m.defaults = attrs }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:  clock.WallClock,
		logger: log.NewNop(),
	}
	for i := range m.shards {
		m.shards[i] = &shard{conversations: make(map[string]*Conversation)}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) shardFor(id string) *shard {
	return m.shards[xxhash.Sum64String(id)&(shardCount-1)]
}

// GetConversation returns the conversation with id or nil. Ended
// conversations stay visible until the next sweep or restart.
func (m *Manager) GetConversation(id string) *Conversation {
	s := m.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[id]
}

// StartConversation returns the active conversation with id, creating it
// when absent, ended or expired. An empty id gets a generated one.
func (m *Manager) StartConversation(id string) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	s := m.shardFor(id)
	s.mu.Lock()
	conv := s.conversations[id]
	started := false
	if conv == nil || conv.State() != StateActive {
		conv = newConversation(id, m)
		s.conversations[id] = conv
		started = true
	}
	s.mu.Unlock()

	if started {
		m.announce(EventStarted, id)
	}
	return conv
}

// Acquire resolves the conversation a call with id belongs to: missing or
// ended conversations are started and initialised with attrs, active ones
// are checked for expiry. Expired conversations fail until swept. The last
// referenced time is updated on success.
func (m *Manager) Acquire(id string, attrs assembly.ConversationAttributes) (*Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}
	s := m.shardFor(id)
	s.mu.Lock()
	conv := s.conversations[id]
	started, expired := false, false
	state := StateActive
	if conv != nil {
		state = conv.State()
	}
	switch {
	case conv == nil || state == StateEnded:
		conv = newConversation(id, m)
		conv.InitializeAttributes(attrs)
		s.conversations[id] = conv
		started = true
	case state == StateExpired:
		s.mu.Unlock()
		return nil, &invocation.ConversationEndedError{ConversationID: id}
	case !conv.AttributesInitialized():
		conv.InitializeAttributes(attrs)
	case conv.IsExpired():
		expired = conv.markExpired()
	}
	if !expired {
		conv.UpdateLastReferencedTime()
	}
	s.mu.Unlock()

	if expired {
		m.announce(EventExpired, id)
		return nil, &invocation.ConversationEndedError{ConversationID: id}
	}
	if started {
		m.announce(EventStarted, id)
	}
	return conv, nil
}

// EndConversation ends the conversation. Unknown ids are ignored.
func (m *Manager) EndConversation(id string) {
	s := m.shardFor(id)
	s.mu.Lock()
	conv := s.conversations[id]
	ended := false
	if conv != nil {
		ended = conv.markEnded()
	}
	s.mu.Unlock()

	if ended {
		m.announce(EventEnded, id)
	}
}

// Len returns the number of active conversations.
func (m *Manager) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for _, conv := range s.conversations {
			if conv.State() == StateActive {
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Expire expires every active conversation past its limits, drops ended
// and expired ones from the table and returns how many it expired.
func (m *Manager) Expire() int {
	now := m.clock.Now()
	var expired []string
	for _, s := range m.shards {
		s.mu.Lock()
		for id, conv := range s.conversations {
			conv.mu.Lock()
			state, isExpired := conv.state, conv.expiredAt(now)
			conv.mu.Unlock()
			switch {
			case state != StateActive:
				delete(s.conversations, id)
			case isExpired:
				conv.markExpired()
				expired = append(expired, id)
				delete(s.conversations, id)
			}
		}
		s.mu.Unlock()
	}
	for _, id := range expired {
		m.announce(EventExpired, id)
	}
	return len(expired)
}

// Run sweeps expired conversations every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	m.logger.Info("Conversation reaper started", log.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Conversation reaper stopped")
			return ctx.Err()
		case <-m.clock.After(interval):
			if n := m.Expire(); n > 0 {
				m.logger.Debug("Expired conversations", log.Int("count", n))
			}
		}
	}
}

func (m *Manager) announce(eventType, id string) {
	switch eventType {
	case EventStarted:
		m.logger.Debug("Conversation started", log.String("conversation_id", id))
	case EventExpired:
		m.logger.Info("Conversation expired", log.String("conversation_id", id))
	default:
		m.logger.Info("Conversation ended", log.String("conversation_id", id))
	}
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(bus.NewEventAt(eventType, "conversation-manager", id, nil, m.clock.Now())); err != nil {
		m.logger.Warn("Conversation event handler failed",
			log.String("event", eventType),
			log.String("conversation_id", id),
			log.Error(err),
		)
	}
}
