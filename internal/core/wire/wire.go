// Package wire connects a source endpoint to a target endpoint through one
// invocation chain per operation and drives calls over those chains.
package wire

import (
	"fmt"
	"sync"

	"github.com/zeusync/zeuswire/internal/core/interfacedef"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
)

// TargetInvokerProvider creates the terminal invoker of the chain built for
// a target operation: a binding invoker on reference wires, an
// implementation invoker on service wires.
type TargetInvokerProvider interface {
	CreateInvoker(op *interfacedef.Operation) (invocation.Invoker, error)
}

// InvokerProviderFunc adapts a function to TargetInvokerProvider.
type InvokerProviderFunc func(op *interfacedef.Operation) (invocation.Invoker, error)

func (f InvokerProviderFunc) CreateInvoker(op *interfacedef.Operation) (invocation.Invoker, error) {
	return f(op)
}

// Processor contributes interceptors to each chain of a wire while it is
// being built. Processors run in registration order before the chain is
// sealed and published.
type Processor interface {
	Process(w *RuntimeWire, chain *invocation.Chain) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(w *RuntimeWire, chain *invocation.Chain) error

func (f ProcessorFunc) Process(w *RuntimeWire, chain *invocation.Chain) error { return f(w, chain) }

// RuntimeWire is the runtime form of a wire. Source and target endpoints
// are read-only configuration; calls clone them before writing reference
// parameters.
type RuntimeWire struct {
	source     *invocation.EndpointReference
	target     *invocation.EndpointReference
	provider   TargetInvokerProvider
	processors []Processor
	logger     log.Log

	mu     sync.RWMutex
	chains []*invocation.Chain
	byName map[string]*invocation.Chain
}

type Option func(*RuntimeWire)

func WithProcessors(processors ...Processor) Option {
	return func(w *RuntimeWire) { w.processors = append(w.processors, processors...) }
}

func WithLogger(l log.Log) Option {
	return func(w *RuntimeWire) { w.logger = l }
}

// New builds a wire from source to target. The source interface contract
// drives which chains exist; target operations are matched by name. A nil
// target contract means the target uses the source contract.
func New(source, target *invocation.EndpointReference, provider TargetInvokerProvider, opts ...Option) (*RuntimeWire, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("wire requires source and target endpoints")
	}
	w := &RuntimeWire{
		source:   source,
		target:   target,
		provider: provider,
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.build(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RuntimeWire) Source() *invocation.EndpointReference { return w.source }
func (w *RuntimeWire) Target() *invocation.EndpointReference { return w.target }

// SourceContract returns the interface contract calls are made against.
func (w *RuntimeWire) SourceContract() *interfacedef.InterfaceContract {
	return w.source.InterfaceContract
}

// TargetContract returns the target contract, falling back to the source
// contract.
func (w *RuntimeWire) TargetContract() *interfacedef.InterfaceContract {
	if w.target.InterfaceContract != nil {
		return w.target.InterfaceContract
	}
	return w.source.InterfaceContract
}

// Chains returns the invocation chains in source operation order.
func (w *RuntimeWire) Chains() []*invocation.Chain {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*invocation.Chain(nil), w.chains...)
}

// InvocationChain returns the chain for a source operation or nil.
func (w *RuntimeWire) InvocationChain(op *interfacedef.Operation) *invocation.Chain {
	if op == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.chains {
		if c.SourceOperation() == op {
			return c
		}
	}
	return w.byName[op.Name]
}

// SourceOperation looks up an operation of the source interface by name.
func (w *RuntimeWire) SourceOperation(name string) *interfacedef.Operation {
	ic := w.SourceContract()
	if ic == nil || ic.Interface == nil {
		return nil
	}
	return ic.Interface.Operation(name)
}

// Rebuild discards the chains and runs construction again, for example
// after the target endpoint was rebound.
func (w *RuntimeWire) Rebuild() error {
	return w.build()
}

func (w *RuntimeWire) build() error {
	sourceContract := w.SourceContract()
	if sourceContract == nil || sourceContract.Interface == nil {
		return fmt.Errorf("wire %s: source has no interface contract", w.source)
	}
	targetContract := w.TargetContract()
	if err := interfacedef.CheckContractCompatible(sourceContract, targetContract, true); err != nil {
		return fmt.Errorf("wire %s -> %s: %w", w.source, w.target, err)
	}

	chains := make([]*invocation.Chain, 0, len(sourceContract.Interface.Operations))
	byName := make(map[string]*invocation.Chain, len(sourceContract.Interface.Operations))
	for _, sourceOp := range sourceContract.Interface.Operations {
		targetOp := targetContract.Interface.Operation(sourceOp.Name)
		chain := invocation.NewChain(sourceOp, targetOp)
		if w.provider != nil {
			inv, err := w.provider.CreateInvoker(targetOp)
			if err != nil {
				return fmt.Errorf("wire %s: create invoker for %s: %w", w.source, targetOp, err)
			}
			if err := chain.SetInvoker(inv); err != nil {
				return err
			}
		}
		for _, p := range w.processors {
			if err := p.Process(w, chain); err != nil {
				return fmt.Errorf("wire %s: %s: %w", w.source, sourceOp.Name, err)
			}
		}
		chain.Seal()
		chains = append(chains, chain)
		byName[sourceOp.Name] = chain
	}

	w.mu.Lock()
	w.chains = chains
	w.byName = byName
	w.mu.Unlock()

	w.logger.Debug("Wire built",
		log.String("source", w.source.URI),
		log.String("target", w.target.URI),
		log.Int("chains", len(chains)),
	)
	return nil
}
