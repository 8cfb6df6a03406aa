package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/zeuswire/internal/core/assembly"
	"github.com/zeusync/zeuswire/internal/core/conversation"
	"github.com/zeusync/zeuswire/internal/core/invocation"
	"github.com/zeusync/zeuswire/internal/core/observability/log"
	"github.com/zeusync/zeuswire/internal/core/wire"
)

// ServiceHandler exposes a service wire over websocket. Each connection gets
// its own wire invoker; requests on a connection are handled in order.
type ServiceHandler struct {
	wire          *wire.RuntimeWire
	conversations *conversation.Manager
	config        Config
	upgrader      websocket.Upgrader
	logger        log.Log

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

var _ http.Handler = (*ServiceHandler)(nil)

func NewServiceHandler(w *wire.RuntimeWire, conversations *conversation.Manager, config Config, logger log.Log) *ServiceHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ServiceHandler{
		wire:          w,
		conversations: conversations,
		config:        config,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		logger: logger.With(log.String("protocol", "websocket"), log.String("service", w.Target().URI)),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

func (h *ServiceHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", log.Error(err))
		return
	}
	if !h.track(conn) {
		_ = conn.Close()
		return
	}
	defer h.untrack(conn)

	if h.config.MaxMessageSize > 0 {
		conn.SetReadLimit(h.config.MaxMessageSize)
	}
	h.logger.Debug("Connection opened", log.String("remote_addr", conn.RemoteAddr().String()))
	h.serve(context.WithoutCancel(r.Context()), conn)
}

func (h *ServiceHandler) serve(ctx context.Context, conn *websocket.Conn) {
	invoker := wire.NewInvoker(h.wire, h.conversations, h.logger)
	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("Connection read failed", log.Error(err))
			}
			return
		}

		resp := h.handle(ctx, invoker, &req)

		if h.config.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
		}
		if err := conn.WriteJSON(resp); err != nil {
			h.logger.Warn("Failed to write response",
				log.String("message_id", req.ID),
				log.Error(errors.Wrap(err, "write response")),
			)
			return
		}
	}
}

func (h *ServiceHandler) handle(ctx context.Context, invoker *wire.Invoker, req *request) *response {
	resp := &response{ID: req.ID}
	op := h.wire.SourceOperation(req.Operation)
	if op == nil {
		resp.Fault = newFault(invocation.NewError(invocation.ErrorCodeOperationNotFound,
			"unknown operation "+req.Operation, invocation.ErrOperationNotFound))
		return resp
	}

	args := make([]any, len(req.Args))
	for i, arg := range req.Args {
		args[i] = arg
	}
	msg := invocation.NewRequest(op, args...)
	if req.ID != "" {
		msg.SetID(req.ID)
	}
	params := msg.From().ReferenceParameters()
	params.ConversationID = req.ConversationID
	params.CallbackID = req.CallbackID
	if req.Callback != "" {
		callback := invocation.NewEndpointReference(req.Callback)
		callback.Binding = &assembly.Binding{Type: BindingType, URI: req.Callback}
		msg.From().CallbackEndpoint = callback
	}
	if req.Principal != "" {
		msg.QoSContext()[invocation.QoSSecurityPrincipal] = req.Principal
	}

	result, err := invoker.Invoke(ctx, op, msg)
	if err != nil {
		resp.Fault = newFault(err)
		return resp
	}
	raw, err := encodeValue(result)
	if err != nil {
		resp.Fault = newFault(err)
		return resp
	}
	resp.Result = json.RawMessage(raw)
	return resp
}

func (h *ServiceHandler) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *ServiceHandler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
	h.wg.Done()
}

// Close closes every open connection and waits for their handlers to return.
// Later upgrades are refused.
func (h *ServiceHandler) Close() error {
	h.mu.Lock()
	h.closed = true
	for conn := range h.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}
