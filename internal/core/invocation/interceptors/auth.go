package interceptors

import (
	"context"

	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
)

// PrincipalCheck rejects invocations that carry no security principal in
// their QoS context.
type PrincipalCheck struct {
	skipMap map[string]struct{}
	logger  log.Log
}

// NewPrincipalCheck creates the check. Operations named in skip are let
// through without a principal.
func NewPrincipalCheck(logger log.Log, skip ...string) *PrincipalCheck {
	skipMap := make(map[string]struct{}, len(skip))
	for _, name := range skip {
		skipMap[name] = struct{}{}
	}
	return &PrincipalCheck{skipMap: skipMap, logger: logger}
}

// Name returns the interceptor name
func (i *PrincipalCheck) Name() string {
	return "principal"
}

// Priority returns the interceptor priority
func (i *PrincipalCheck) Priority() int {
	return 900 // After logging
}

func (i *PrincipalCheck) Invoke(ctx context.Context, msg *invocation.Message, next invocation.Invoker) *invocation.Message {
	if op := msg.Operation(); op != nil {
		if _, skip := i.skipMap[op.Name]; skip {
			return next.Invoke(ctx, msg)
		}
	}

	if principal, _ := msg.QoSContext()[invocation.QoSSecurityPrincipal].(string); principal != "" {
		return next.Invoke(ctx, msg)
	}

	i.logger.Warn("Unauthenticated invocation rejected",
		log.String("operation", operationName(msg)),
		log.String("from", msg.From().String()),
	)
	msg.SetFaultBody(invocation.NewError(invocation.ErrorCodeUnauthenticated, "no security principal", invocation.ErrUnauthenticated).
		WithContext("operation", operationName(msg)))
	return msg
}

// PrincipalAssertion attaches a fixed principal to outgoing invocations that
// carry none.
type PrincipalAssertion struct {
	principal string
}

func NewPrincipalAssertion(principal string) *PrincipalAssertion {
	return &PrincipalAssertion{principal: principal}
}

func (i *PrincipalAssertion) Name() string {
	return "principal_assertion"
}

// Priority places the assertion ahead of PrincipalCheck.
func (i *PrincipalAssertion) Priority() int {
	return 950
}

func (i *PrincipalAssertion) Invoke(ctx context.Context, msg *invocation.Message, next invocation.Invoker) *invocation.Message {
	qos := msg.QoSContext()
	if principal, _ := qos[invocation.QoSSecurityPrincipal].(string); principal == "" {
		qos[invocation.QoSSecurityPrincipal] = i.principal
	}
	return next.Invoke(ctx, msg)
}
