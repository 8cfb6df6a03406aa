// Package assembly holds the static model a runtime wire is built from:
// components, their service and reference contracts, and bindings.
package assembly

import (
	"errors"
	"fmt"
	"time"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/scope"
)

var ErrConflictingExpiry = errors.New("maxAge and maxIdleTime are mutually exclusive")

// ConversationAttributes configure how long conversations with a component
// live. Zero means unset.
type ConversationAttributes struct {
	MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
	MaxIdleTime time.Duration `yaml:"maxIdleTime" json:"maxIdleTime"`
}

func (a ConversationAttributes) IsZero() bool {
	return a.MaxAge == 0 && a.MaxIdleTime == 0
}

// Validate rejects negative limits and both limits set at once.
func (a ConversationAttributes) Validate() error {
	if a.MaxAge < 0 || a.MaxIdleTime < 0 {
		return fmt.Errorf("negative conversation expiry: maxAge=%s maxIdleTime=%s", a.MaxAge, a.MaxIdleTime)
	}
	if a.MaxAge > 0 && a.MaxIdleTime > 0 {
		return ErrConflictingExpiry
	}
	return nil
}

// Component is a configured component instance in a composite.
type Component struct {
	Name string
	// Container manages implementation instances. Nil means stateless.
	Container scope.Container
	// Conversation attributes applied to conversations started against the
	// component.
	Conversation ConversationAttributes
	// Implementation is the component implementation factory input; its
	// meaning is up to the implementation invoker.
	Implementation any
}

func NewComponent(name string, container scope.Container) *Component {
	return &Component{Name: name, Container: container}
}

// Scope returns the scope of the component container.
func (c *Component) Scope() scope.Scope {
	if c == nil || c.Container == nil {
		return scope.ScopeStateless
	}
	return c.Container.Scope()
}

// ContractKind tells services from references.
type ContractKind uint8

const (
	KindService ContractKind = iota
	KindReference
)

func (k ContractKind) String() string {
	if k == KindReference {
		return "reference"
	}
	return "service"
}

// Contract is a service or reference declared by a component.
type Contract struct {
	Name              string
	Kind              ContractKind
	InterfaceContract *interfacedef.InterfaceContract
}

func NewService(name string, ic *interfacedef.InterfaceContract) *Contract {
	return &Contract{Name: name, Kind: KindService, InterfaceContract: ic}
}

func NewReference(name string, ic *interfacedef.InterfaceContract) *Contract {
	return &Contract{Name: name, Kind: KindReference, InterfaceContract: ic}
}

func (c *Contract) IsReference() bool {
	return c != nil && c.Kind == KindReference
}

// Binding is the transport configuration attached to a contract.
type Binding struct {
	Name string
	// Type identifies the binding implementation, e.g. "sca" or "websocket".
	Type string
	URI  string
}
