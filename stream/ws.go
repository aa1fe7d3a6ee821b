package stream

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WSEmitter writes each event as a JSON WebSocket message.
type WSEmitter struct {
	log  *zap.SugaredLogger
	conn *websocket.Conn

	closeConnOnce sync.Once
}

func NewWSEmitter(log *zap.SugaredLogger, conn *websocket.Conn) *WSEmitter {
	return &WSEmitter{log: log.Named("ws_emitter"), conn: conn}
}

func (e *WSEmitter) Emit(ctx context.Context, ev Event) error {
	e.log.Debugf("writing %d bytes", len(ev.Text))
	return wsjson.Write(ctx, e.conn, ev)
}

// Close closes the connection with a normal closure.
func (e *WSEmitter) Close() error {
	var err error
	e.closeConnOnce.Do(func() {
		err = e.conn.Close(websocket.StatusNormalClosure, "")
		e.log.Debugw("closed conn", "Error", err)
	})
	return err
}
