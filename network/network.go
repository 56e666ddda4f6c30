package network

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fruitninja/protocol"
)

const (
	readLimit    = 1 << 20 // 1MB
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
	sendQueue    = 256
	maxSession   = 64
)

var errQueueFull = errors.New("send queue full")
var errClosed = errors.New("connection closed")

// Conn is the outbound half of one client connection.
type Conn interface {
	Send(b []byte) error
	SendBinary(b []byte) error
	Close() error
}

type frame struct {
	binary bool
	data   []byte
}

// wsConn queues outbound frames for a single writer goroutine. A slow client
// loses frames instead of stalling the broadcaster.
type wsConn struct {
	ws   *websocket.Conn
	send chan frame
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

func newWSConn(ws *websocket.Conn, logger *slog.Logger) *wsConn {
	return &wsConn{
		ws:   ws,
		send: make(chan frame, sendQueue),
		done: make(chan struct{}),
		log:  logger,
	}
}

func (c *wsConn) Send(b []byte) error       { return c.enqueue(frame{data: b}) }
func (c *wsConn) SendBinary(b []byte) error { return c.enqueue(frame{binary: true, data: b}) }

func (c *wsConn) enqueue(f frame) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return errClosed
	default:
		return errQueueFull
	}
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// writeLoop owns all writes to the socket, pings included.
func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case f := <-c.send:
			typ := websocket.TextMessage
			if f.binary {
				typ = websocket.BinaryMessage
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(typ, f.data); err != nil {
				c.log.Debug("write failed", slog.String("error", err.Error()))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
// The session identity comes from ?session=, or is issued here and reported
// in the welcome message.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sid := q.Get("session")
	if len(sid) > maxSession {
		http.Error(w, "session id too long", http.StatusBadRequest)
		return
	}
	if sid == "" {
		sid = uuid.NewString()
	}
	codec := protocol.CodecJSON
	if q.Get("codec") == protocol.CodecMsgpack {
		codec = protocol.CodecMsgpack
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	log := g.log.With(slog.String("session", sid))
	conn := newWSConn(ws, log)
	go conn.writeLoop()

	g.Connect(sid, codec, conn)
	defer func() {
		g.Disconnect(sid, conn)
		conn.Close()
	}()

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		typ, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("read failed", slog.String("error", err.Error()))
			}
			return
		}
		if typ != websocket.TextMessage {
			log.Debug("ignoring non-text frame")
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		g.Handle(sid, msg)
	}
}
