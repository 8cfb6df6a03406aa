package server

import (
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/invocation/interceptors"
	"github.com/zeusync/zeuswire/internal/core/wire"
)

// shared returns a factory that installs the same interceptor on every chain.
func shared(i invocation.Interceptor) wire.InterceptorFactory {
	return func(*wire.RuntimeWire, *invocation.Chain) invocation.Interceptor { return i }
}

func (s *Server) serviceProcessors() []wire.Processor {
	processors := []wire.Processor{
		wire.NewDataBindingProcessor(s.mediator, s.registry),
		wire.InterceptorProcessor(invocation.PhaseServicePolicy, shared(interceptors.NewLogging(s.logger))),
		wire.InterceptorProcessor(invocation.PhaseServicePolicy, shared(s.metrics)),
	}
	policy := s.config.Policy
	if policy.RequirePrincipal {
		processors = append(processors, wire.InterceptorProcessor(invocation.PhaseServicePolicy,
			shared(interceptors.NewPrincipalCheck(s.logger))))
	}
	if policy.RateLimit > 0 {
		processors = append(processors, wire.InterceptorProcessor(invocation.PhaseServicePolicy,
			shared(interceptors.NewRateLimit(s.logger, policy.RateLimit, policy.Burst,
				interceptors.WithMaxPrincipals(policy.MaxPrincipals)))))
	}
	return processors
}

func (s *Server) referenceProcessors(principal string) []wire.Processor {
	processors := []wire.Processor{
		wire.NewDataBindingProcessor(s.mediator, s.registry),
		interceptors.CallbackInterfaceProcessor(),
		wire.InterceptorProcessor(invocation.PhaseReferencePolicy, shared(interceptors.NewLogging(s.logger))),
	}
	if principal != "" {
		processors = append(processors, wire.InterceptorProcessor(invocation.PhaseReferencePolicy,
			shared(interceptors.NewPrincipalAssertion(principal))))
	}
	return processors
}
