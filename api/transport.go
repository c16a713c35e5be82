package api

import (
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xraph/nostr-relay/session"
)

var _ session.Transport = (*transport)(nil)

// transport adapts a gorilla websocket connection to session.Transport.
type transport struct {
	ws *websocket.Conn
}

func newTransport(ws *websocket.Conn) *transport {
	return &transport{ws: ws}
}

// ReadMessage returns the next text or binary frame. Control frames are
// handled by gorilla inside the read.
func (t *transport) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := t.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *transport) WriteMessage(frame []byte, deadline time.Time) error {
	if err := t.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.ws.WriteMessage(websocket.TextMessage, frame)
}

func (t *transport) Ping(deadline time.Time) error {
	return t.ws.WriteControl(websocket.PingMessage, nil, deadline)
}

// OnPong runs fn for pongs and for client pings, which are answered here
// as gorilla's default handler would.
func (t *transport) OnPong(fn func()) {
	t.ws.SetPongHandler(func(string) error {
		fn()
		return nil
	})
	t.ws.SetPingHandler(func(data string) error {
		fn()
		err := t.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})
}

func (t *transport) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.ws.Close()
}
