package wire

import (
	"github.com/zeusync/zeuswire/internal/core/databinding"
	"github.com/zeusync/zeuswire/internal/core/invocation"
)

// onMessageOperation is the one-way entry point of message driven bindings;
// its payload is owned by the binding and never copied.
const onMessageOperation = "onMessage"

// DataBindingProcessor adds data transformation to chains whose source and
// target operations disagree on data representation. Chains that need no
// transformation between remotable interfaces get pass-by-value copying
// instead, since a transformation already yields a copy.
type DataBindingProcessor struct {
	mediator databinding.Mediator
	registry *databinding.Registry
}

var _ Processor = (*DataBindingProcessor)(nil)

func NewDataBindingProcessor(mediator databinding.Mediator, registry *databinding.Registry) *DataBindingProcessor {
	return &DataBindingProcessor{mediator: mediator, registry: registry}
}

func (p *DataBindingProcessor) Process(w *RuntimeWire, chain *invocation.Chain) error {
	sourceContract := w.SourceContract()
	targetContract := w.TargetContract()
	if !sourceContract.Interface.Remotable {
		return nil
	}

	sourceOp := chain.SourceOperation()
	targetOp := chain.TargetOperation()

	var interceptor invocation.Interceptor
	switch {
	case databinding.IsContractTransformationRequired(sourceContract, targetContract, sourceOp):
		interceptor = databinding.NewTransformationInterceptor(sourceOp, targetOp, p.mediator, p.registry)
	case targetOp.Name != onMessageOperation && sourceOp.IsRemotable() && targetOp.IsRemotable():
		interceptor = databinding.NewPassByValueInterceptor(targetOp, p.registry, chain)
	default:
		return nil
	}
	return chain.AddInterceptor(interfacePhase(w), interceptor)
}

// interfacePhase places interface level interceptors on the source side so
// that several references wired to one service each mediate their own
// representation.
func interfacePhase(w *RuntimeWire) string {
	if w.Source().Contract.IsReference() {
		return invocation.PhaseReferenceInterface
	}
	return invocation.PhaseServiceInterface
}

// InterceptorFactory creates the interceptor for one chain. Returning nil
// skips the chain.
type InterceptorFactory func(w *RuntimeWire, chain *invocation.Chain) invocation.Interceptor

// InterceptorProcessor adds the interceptors produced by factory to phase.
func InterceptorProcessor(phase string, factory InterceptorFactory) Processor {
	return ProcessorFunc(func(w *RuntimeWire, chain *invocation.Chain) error {
		interceptor := factory(w, chain)
		if interceptor == nil {
			return nil
		}
		return chain.AddInterceptor(phase, interceptor)
	})
}
