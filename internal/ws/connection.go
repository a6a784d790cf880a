// Package ws carries the station-facing OCPP websocket transport.
package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp"
)

// MessageProcessor handles raw OCPP frames.
type MessageProcessor interface {
	Process(ctx context.Context, id ocpp.Identity, raw []byte) ([]byte, error)
}

// Connection is one active station websocket.
type Connection struct {
	identity     ocpp.Identity
	ws           *websocket.Conn
	send         chan []byte
	logger       *zap.Logger
	processor    MessageProcessor
	writeTimeout time.Duration
	onClose      func(id ocpp.Identity)
}

// NewConnection builds the connection wrapper.
func NewConnection(id ocpp.Identity, ws *websocket.Conn, processor MessageProcessor, writeTimeout time.Duration, logger *zap.Logger, onClose func(ocpp.Identity)) *Connection {
	return &Connection{
		identity:     id,
		ws:           ws,
		send:         make(chan []byte, 16),
		logger:       logger,
		processor:    processor,
		writeTimeout: writeTimeout,
		onClose:      onClose,
	}
}

// Identity returns the routing identity of this connection.
func (c *Connection) Identity() ocpp.Identity {
	return c.identity
}

// Start launches the read/write pumps. Blocks until the read side closes.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer c.cleanup()
	c.ws.SetReadLimit(1024 * 1024)
	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Info("connection read closed",
				zap.String("tenant_id", c.identity.TenantID),
				zap.String("station_id", c.identity.StationID),
				zap.Error(err))
			return
		}

		response, err := c.processor.Process(ctx, c.identity, message)
		if err != nil {
			c.logger.Warn("failed to process message",
				zap.String("tenant_id", c.identity.TenantID),
				zap.String("station_id", c.identity.StationID),
				zap.Error(err))
			continue
		}
		if response != nil {
			c.Send(response)
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Send enqueues a frame for writing. Full buffers drop the frame rather than
// blocking the caller.
func (c *Connection) Send(msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("attempted to send on closed channel",
				zap.String("station_id", c.identity.StationID))
		}
	}()
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping outgoing message, buffer full",
			zap.String("station_id", c.identity.StationID))
	}
}

// Ping sends a keepalive frame.
func (c *Connection) Ping() error {
	return c.write(websocket.PingMessage, []byte("ping"))
}

func (c *Connection) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Connection) cleanup() {
	close(c.send)
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose(c.identity)
	}
}
