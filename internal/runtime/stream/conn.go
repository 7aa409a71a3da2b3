package stream

import (
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// Close codes sent by the gateway.
const (
	CloseNormal    = websocket.CloseNormalClosure
	CloseGoingAway = websocket.CloseGoingAway
	CloseInternal  = websocket.CloseInternalServerErr
	// CloseInvalidRequest reports a handshake or frame the gateway rejected.
	// The reason carries the validation message.
	CloseInvalidRequest = 4000
)

// closeGrace bounds how long writing the close frame may take.
const closeGrace = time.Second

// maxReasonBytes is the room left for the reason in a close control frame.
const maxReasonBytes = 123

// Conn is the frame connection a session drives. *websocket.Conn implements it.
// One goroutine may read while another writes; WriteControl and Close may be
// called from any goroutine.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// CloseWith sends a close frame carrying code and reason, then closes conn.
func CloseWith(conn Conn, code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, truncateReason(reason))
	writeErr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	closeErr := conn.Close()
	if writeErr != nil && writeErr != websocket.ErrCloseSent {
		return writeErr
	}
	return closeErr
}

func truncateReason(reason string) string {
	if len(reason) <= maxReasonBytes {
		return reason
	}
	cut := maxReasonBytes
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
