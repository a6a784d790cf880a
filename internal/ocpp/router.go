package ocpp

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/errs"
	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
)

// Identity is the routing header attached to every inbound message.
type Identity struct {
	TenantID        string
	StationID       string
	ProtocolVersion string
}

// HandlerFunc processes one message payload and returns the response body.
type HandlerFunc func(ctx context.Context, id Identity, payload json.RawMessage) (interface{}, error)

// Router dispatches OCPP actions to handlers. The action set is closed at
// wiring time; unknown actions are rejected at dispatch.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register attaches a handler to an action.
func (r *Router) Register(action string, handler HandlerFunc) {
	r.handlers[action] = handler
}

// Route executes the handler for a message.
func (r *Router) Route(ctx context.Context, id Identity, msg *Message) (interface{}, error) {
	handler, ok := r.handlers[msg.Action]
	if !ok {
		return nil, fmt.Errorf("ocpp: unsupported action %s", msg.Action)
	}
	return handler(ctx, id, msg.Payload)
}

// Processor ties together parsing, routing and response encoding. It is the
// error boundary: a handler failure becomes a CALLERROR frame, never a
// transport-level failure.
type Processor struct {
	parser *Parser
	router *Router
	logger *zap.Logger
}

// NewProcessor builds a Processor.
func NewProcessor(parser *Parser, router *Router, logger *zap.Logger) *Processor {
	return &Processor{parser: parser, router: router, logger: logger}
}

// Process handles one raw frame and returns the response frame bytes.
func (p *Processor) Process(ctx context.Context, id Identity, raw []byte) ([]byte, error) {
	msg, err := p.parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	responsePayload, err := p.router.Route(ctx, id, msg)
	if err != nil {
		p.logger.Warn("ocpp handler failed",
			zap.String("tenant_id", id.TenantID),
			zap.String("station_id", id.StationID),
			zap.String("action", msg.Action),
			zap.Error(err))
		return BuildCallError(msg.UniqueID, callErrorCode(err), err.Error())
	}

	if responsePayload == nil {
		return nil, nil
	}

	respBytes, err := BuildCallResult(msg.UniqueID, responsePayload)
	if err != nil {
		p.logger.Error("encode ocpp response failed",
			zap.String("station_id", id.StationID),
			zap.String("action", msg.Action),
			zap.Error(err))
		return nil, err
	}
	return respBytes, nil
}

func callErrorCode(err error) string {
	switch errs.KindOf(err) {
	case errs.KindInvalidArgument:
		return protocol.CallErrorFormationViolation
	case errs.KindUnauthorized:
		return protocol.CallErrorSecurityError
	case errs.KindNotFound, errs.KindConflict:
		return protocol.CallErrorGenericError
	default:
		return protocol.CallErrorInternal
	}
}

// Decode is a convenience payload decoder for handlers.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, errs.Wrap(errs.KindInvalidArgument, err)
	}
	return target, nil
}
