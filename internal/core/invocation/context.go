package invocation

import (
	"context"
)

type ambientMessageKey struct{}

// ContextWithMessage makes msg the ambient message for code running under
// the returned context. The parent context keeps its own ambient message.
func ContextWithMessage(ctx context.Context, msg *Message) context.Context {
	return context.WithValue(ctx, ambientMessageKey{}, msg)
}

// MessageFromContext returns the ambient message or nil.
func MessageFromContext(ctx context.Context) *Message {
	if ctx == nil {
		return nil
	}
	msg, _ := ctx.Value(ambientMessageKey{}).(*Message)
	return msg
}
