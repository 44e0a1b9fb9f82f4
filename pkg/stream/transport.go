package stream

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WebSocketSink adapts a coder/websocket connection to the Sink
// interface, JSON-encoding each Event as one text frame.
type WebSocketSink struct {
	Conn *websocket.Conn
}

// Send writes e as a JSON text frame.
func (w *WebSocketSink) Send(ctx context.Context, e Event) error {
	return wsjson.Write(ctx, w.Conn, e)
}

// ReadInvoke reads and decodes one InboundInvoke message from conn —
// spec §6's only inbound subscriber message shape.
func ReadInvoke(ctx context.Context, conn *websocket.Conn) (InboundInvoke, error) {
	var msg InboundInvoke
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		return InboundInvoke{}, err
	}
	return msg, nil
}

// MarshalEvent is exposed for callers that need the same JSON shape
// without a websocket connection; the synchronous HTTP endpoint does not
// use it.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
