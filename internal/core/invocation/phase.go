package invocation

// Interceptor phases in execution order. Reference side phases run before
// the binding; service side phases run after it.
const (
	PhaseComponentReference         = "component.reference"
	PhaseReferenceInterface         = "reference.interface"
	PhaseReferencePolicy            = "reference.policy"
	PhaseReferenceBindingWireFormat = "reference.binding.wireformat"
	PhaseReferenceBindingPolicy     = "reference.binding.policy"
	PhaseReferenceBindingTransport  = "reference.binding.transport"

	PhaseServiceBindingTransport         = "service.binding.transport"
	PhaseServiceBindingOperationSelector = "service.binding.operationselector"
	PhaseServiceBindingWireFormat        = "service.binding.wireformat"
	PhaseServiceBindingPolicy            = "service.binding.policy"
	PhaseComponentService                = "component.service"
	PhaseServiceInterface                = "service.interface"
	PhaseServicePolicy                   = "service.policy"
	PhaseImplementationPolicy            = "implementation.policy"
	PhaseComponentImplementation         = "component.implementation"
)

var phaseOrder = []string{
	PhaseComponentReference,
	PhaseReferenceInterface,
	PhaseReferencePolicy,
	PhaseReferenceBindingWireFormat,
	PhaseReferenceBindingPolicy,
	PhaseReferenceBindingTransport,
	PhaseServiceBindingTransport,
	PhaseServiceBindingOperationSelector,
	PhaseServiceBindingWireFormat,
	PhaseServiceBindingPolicy,
	PhaseComponentService,
	PhaseServiceInterface,
	PhaseServicePolicy,
	PhaseImplementationPolicy,
	PhaseComponentImplementation,
}

var phaseIndex = func() map[string]int {
	m := make(map[string]int, len(phaseOrder))
	for i, p := range phaseOrder {
		m[p] = i
	}
	return m
}()

// PhaseIndex returns the position of phase in the execution order.
func PhaseIndex(phase string) (int, bool) {
	i, ok := phaseIndex[phase]
	return i, ok
}

// Phases returns the known phases in execution order.
func Phases() []string {
	return append([]string(nil), phaseOrder...)
}
