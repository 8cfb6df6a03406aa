package interceptors

import (
	"context"
	"time"

	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
)

// Logging logs every invocation passing the chain.
type Logging struct {
	logger log.Log
}

func NewLogging(logger log.Log) *Logging {
	return &Logging{logger: logger}
}

// Name returns the interceptor name
func (i *Logging) Name() string {
	return "logging"
}

// Priority returns the interceptor priority
func (i *Logging) Priority() int {
	return 1000 // Outermost within its phase
}

func (i *Logging) Invoke(ctx context.Context, msg *invocation.Message, next invocation.Invoker) *invocation.Message {
	fields := []log.Field{
		log.String("operation", operationName(msg)),
		log.String("message_id", msg.ID()),
		log.String("from", msg.From().String()),
		log.String("to", msg.To().String()),
	}
	if id := conversationID(msg); id != "" {
		fields = append(fields, log.String("conversation_id", id))
	}
	i.logger.Debug("Processing invocation", fields...)

	start := time.Now()
	resp := next.Invoke(ctx, msg)
	fields = append(fields, log.Duration("took", time.Since(start)))

	if resp.IsFault() {
		fields = append(fields, log.Error(invocation.FaultError(resp.Body())))
		i.logger.Warn("Invocation faulted", fields...)
	} else {
		i.logger.Debug("Invocation handled successfully", fields...)
	}
	return resp
}

func operationName(msg *invocation.Message) string {
	if op := msg.Operation(); op != nil {
		return op.String()
	}
	return ""
}

func conversationID(msg *invocation.Message) string {
	if from := msg.From(); from != nil {
		return from.ReferenceParameters().ConversationID
	}
	return ""
}
