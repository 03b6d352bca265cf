package transport

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
)

// Conn is the duplex connection a session drives. Wrapping the websocket
// library keeps sessions testable with in-memory fakes.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// Dialer opens a Conn to the relay endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("websocket read: %w", err)
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *wsConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}

// WebsocketDialer dials the relay over a real websocket.
type WebsocketDialer struct{}

func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid relay endpoint: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}

	return &wsConn{conn: conn}, nil
}
