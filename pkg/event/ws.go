package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSSubscribed acknowledges a subscribe message from a websocket client.
const WSSubscribed = "ws.subscribed"

const (
	wsSendBuffer   = 64
	wsReadLimit    = 4096
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 5 * time.Second
)

// WSMessage is the JSON message sent over WebSocket.
type WSMessage struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
	TS    int64          `json:"ts"` // Unix ms
}

// wsControl is sent by clients to replace their subscription:
//
//	{"type":"subscribe","events":["vfs.*","command.finished"]}
type wsControl struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

// Filter selects the events a client receives. A pattern ending in "." or
// ".*" matches every event under that prefix ("vfs.*" covers
// vfs.directoryChanged); "*" or an empty filter matches everything.
type Filter struct {
	names    map[string]bool
	prefixes []string
	all      bool
}

func ParseFilter(patterns []string) Filter {
	f := Filter{names: make(map[string]bool)}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case p == "*":
			f.all = true
		case strings.HasSuffix(p, ".*"):
			f.prefixes = append(f.prefixes, strings.TrimSuffix(p, "*"))
		case strings.HasSuffix(p, "."):
			f.prefixes = append(f.prefixes, p)
		default:
			f.names[p] = true
		}
	}
	if len(f.names) == 0 && len(f.prefixes) == 0 {
		f.all = true
	}
	return f
}

func (f Filter) Match(name string) bool {
	if f.all || f.names[name] {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Patterns returns the filter in its canonical, sorted form.
func (f Filter) Patterns() []string {
	if f.all {
		return []string{"*"}
	}
	out := make([]string, 0, len(f.names)+len(f.prefixes))
	for n := range f.names {
		out = append(out, n)
	}
	for _, p := range f.prefixes {
		out = append(out, p+"*")
	}
	sort.Strings(out)
	return out
}

// WSHandler bridges emitter events to browser clients.
type WSHandler struct {
	emitter  *Emitter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a WebSocket handler bridging emitter to browser
// clients. A nil emitter means the global one.
func NewWSHandler(emitter *Emitter, logger *slog.Logger) *WSHandler {
	if emitter == nil {
		emitter = Global()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		emitter: emitter,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle serves one client. The initial subscription comes from
// ?events=vfs.*,command.finished and can be replaced later with a subscribe
// message.
func (h *WSHandler) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	cl := &wsClient{
		conn:   conn,
		send:   make(chan WSMessage, wsSendBuffer),
		logger: h.logger.With("remote", conn.RemoteAddr().String()),
	}
	initial := ParseFilter(strings.Split(c.Query("events"), ","))
	cl.filter.Store(&initial)
	cl.logger.Debug("Websocket client connected", "events", initial.Patterns())

	unsubscribe := h.emitter.OnAny(cl.offer)
	defer unsubscribe()

	done := make(chan struct{})
	go cl.readLoop(done)
	cl.writeLoop(c.Request.Context(), done)

	if n := cl.dropped.Load(); n > 0 {
		cl.logger.Warn("Websocket client fell behind", "dropped", n)
	}
	cl.logger.Debug("Websocket client disconnected")
}

type wsClient struct {
	conn    *websocket.Conn
	filter  atomic.Pointer[Filter]
	send    chan WSMessage
	dropped atomic.Int64
	logger  *slog.Logger
}

// offer queues ev if the client subscribed to it. Emitters never block on a
// slow client; the event is dropped instead.
func (cl *wsClient) offer(ev Event) {
	if !cl.filter.Load().Match(ev.EventName()) {
		return
	}
	cl.queue(WSMessage{Event: ev.EventName(), Data: eventToData(ev), TS: time.Now().UnixMilli()})
}

func (cl *wsClient) queue(msg WSMessage) {
	select {
	case cl.send <- msg:
	default:
		cl.dropped.Add(1)
	}
}

// readLoop applies control messages and keeps the read deadline alive. It
// closes done when the connection breaks.
func (cl *wsClient) readLoop(done chan<- struct{}) {
	defer close(done)
	cl.conn.SetReadLimit(wsReadLimit)
	_ = cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		var ctl wsControl
		if err := json.Unmarshal(raw, &ctl); err != nil {
			cl.logger.Debug("Ignoring malformed websocket message", "error", err)
			continue
		}
		switch ctl.Type {
		case "subscribe":
			f := ParseFilter(ctl.Events)
			cl.filter.Store(&f)
			cl.queue(WSMessage{
				Event: WSSubscribed,
				Data:  map[string]any{"events": f.Patterns()},
				TS:    time.Now().UnixMilli(),
			})
		default:
			cl.logger.Debug("Ignoring websocket message", "type", ctl.Type)
		}
	}
}

// writeLoop is the only writer on the connection.
func (cl *wsClient) writeLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// eventToData converts an Event to its JSON object form.
func eventToData(ev Event) map[string]any {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
