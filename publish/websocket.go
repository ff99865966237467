package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/nvr-ai/go-vision-detect/output"
	"github.com/pkg/errors"
)

// Number of results buffered per subscriber before results are dropped for
// that subscriber.
const WebSocketSendBufferSize = 16

const writeTimeout = 5 * time.Second

// WebSocketHub broadcasts results to websocket subscribers.
//
// Routes:
//
//	GET /ws       upgrade and stream results as JSON text messages
//	GET /latest   the most recent result as JSON
type WebSocketHub struct {
	log      logs.Log
	upgrader websocket.Upgrader
	router   *httprouter.Router

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	latest  []byte
	closed  bool
}

type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	dropped int64
}

// NewWebSocketHub returns a hub with its routes registered.
func NewWebSocketHub(log logs.Log) *WebSocketHub {
	h := &WebSocketHub{
		log:     log,
		router:  httprouter.New(),
		clients: map[*wsClient]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	h.router.GET("/ws", h.httpSubscribe)
	h.router.GET("/latest", h.httpLatest)
	return h
}

// ServeHTTP serves the hub routes.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// NumClients returns the number of connected subscribers.
func (h *WebSocketHub) NumClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues the result for every subscriber. A subscriber whose queue is
// full misses the result; Publish never blocks on a slow subscriber.
func (h *WebSocketHub) Publish(ctx context.Context, result output.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := json.Marshal(result)
	if err != nil {
		return errors.Wrapf(err, "encode frame %d", result.Header.Seq)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("websocket hub is closed")
	}
	h.latest = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			c.dropped++
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (h *WebSocketHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	return nil
}

func (h *WebSocketHub) httpLatest(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	h.mu.Lock()
	latest := h.latest
	h.mu.Unlock()

	if latest == nil {
		http.Error(w, "no results yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(latest)
}

func (h *WebSocketHub) httpSubscribe(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, WebSocketSendBufferSize)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Infof("websocket subscriber connected from %v", r.RemoteAddr)
	go h.writer(c)
	h.reader(c)
}

// reader discards inbound messages and unregisters the client once the
// connection fails.
func (h *WebSocketHub) reader(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	dropped := c.dropped
	h.mu.Unlock()
	h.log.Infof("websocket subscriber disconnected, %v results dropped", dropped)
}

func (h *WebSocketHub) writer(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warnf("websocket write failed: %v", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
}
