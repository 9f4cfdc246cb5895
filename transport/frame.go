package transport

import (
	"dashrpc/protocol"

	"github.com/gorilla/websocket"
)

// ReadFrame reads the next WebSocket message and decodes it as one frame.
// It must be called from a single goroutine per connection.
func ReadFrame(conn *websocket.Conn) (*protocol.Frame, error) {
	_, r, err := conn.NextReader()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(r)
}

// WriteFrame writes one frame as one binary WebSocket message.
// gorilla/websocket allows a single concurrent writer; callers hold their write lock.
func WriteFrame(conn *websocket.Conn, h *protocol.Header, metadata, data []byte) error {
	w, err := conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return err
	}
	if err := protocol.Encode(w, h, metadata, data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
