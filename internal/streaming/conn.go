package streaming

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/voice-stt/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBuffer     = 128
	receiveBuffer  = 256
)

var errSendTimeout = errors.New("send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn is the message-oriented client channel a session runs on.
type Conn interface {
	// Messages yields raw inbound frames and is closed when the peer goes away.
	Messages() <-chan []byte
	Send(msg any) error
	Done() <-chan struct{}
	Close() error
	RemoteAddr() string
}

type wsConn struct {
	ws          *websocket.Conn
	logger      *slog.Logger
	send        chan []byte
	sendTimeout time.Duration
	messages    chan []byte
	mu          sync.Mutex
	closed      bool
	done        chan struct{}
}

func newWSConn(ws *websocket.Conn, logger *slog.Logger) *wsConn {
	c := &wsConn{
		ws:          ws,
		logger:      logger,
		send:        make(chan []byte, sendBuffer),
		sendTimeout: writeWait,
		messages:    make(chan []byte, receiveBuffer),
		done:        make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c
}

func (c *wsConn) Messages() <-chan []byte {
	return c.messages
}

func (c *wsConn) Done() <-chan struct{} {
	return c.done
}

func (c *wsConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Send queues msg for the write pump. A client that stays behind for longer
// than sendTimeout gets an error instead of a silently dropped frame.
func (c *wsConn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return shared.ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
	}

	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return shared.ErrClosed
	case <-timer.C:
		c.logger.Warn("client not reading, send buffer full")
		return errSendTimeout
	}
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return nil
}

func (c *wsConn) readPump() {
	defer func() {
		close(c.messages)
		c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			continue
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued and a close frame.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
