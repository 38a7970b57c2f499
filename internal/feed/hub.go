package feed

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rickgao/motionfeed/internal/model"
)

// ErrClosed is returned when a viewer connects after Close.
var ErrClosed = errors.New("feed closed")

// Frame is the message written to viewers.
type Frame struct {
	Type   string         `json:"type"` // "snapshot"
	Seq    int64          `json:"seq"`
	Series []model.Series `json:"series"`
}

// Config holds hub configuration.
type Config struct {
	QueueSize    int           // Frames buffered per viewer
	PingInterval time.Duration // Interval between pings
	PongTimeout  time.Duration // Read deadline extended on each pong
	WriteTimeout time.Duration // Deadline for a single write
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:    8,
		PingInterval: 15 * time.Second,
		PongTimeout:  45 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder receives feed metrics. metrics.Collector satisfies it.
type Recorder interface {
	ObserveFeedDrop()
	ObserveViewers(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFeedDrop()  {}
func (nopRecorder) ObserveViewers(int) {}

type viewer struct {
	send chan []byte
	done chan struct{}
}

// Hub tracks viewers and the latest snapshot.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	recorder Recorder
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	last    []model.Series
	frame   []byte
	viewers map[*viewer]struct{}
	closed  bool

	seq     atomic.Int64
	frames  atomic.Int64
	dropped atomic.Int64
}

// NewHub creates a hub. recorder may be nil.
func NewHub(cfg Config, logger *slog.Logger, recorder Recorder) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		viewers: make(map[*viewer]struct{}),
	}
}

// Update replaces the snapshot and fans it out. It implements poller.Chart.
func (h *Hub) Update(series []model.Series) {
	frame := Frame{Type: "snapshot", Seq: h.seq.Add(1), Series: series}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("marshal frame", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = series
	h.frame = data
	for v := range h.viewers {
		select {
		case v.send <- data:
			h.frames.Add(1)
		default:
			h.dropped.Add(1)
			h.recorder.ObserveFeedDrop()
		}
	}
}

// Snapshot returns the most recent series passed to Update.
func (h *Hub) Snapshot() []model.Series {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return []model.Series{}
	}
	return h.last
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Frames returns frames queued to viewers.
func (h *Hub) Frames() int64 {
	return h.frames.Load()
}

// Dropped returns frames skipped for slow viewers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Register mounts GET feedPath (WebSocket) and GET seriesPath (JSON snapshot).
func (h *Hub) Register(r gin.IRoutes, feedPath, seriesPath string) {
	r.GET(feedPath, func(c *gin.Context) {
		h.ServeWS(c.Writer, c.Request)
	})
	r.GET(seriesPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Snapshot())
	})
}

// ServeWS upgrades the request and streams frames until the viewer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}

	v, initial, err := h.subscribe()
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	defer h.unsubscribe(v)

	h.logger.Debug("viewer connected", "remote", r.RemoteAddr)

	go h.readLoop(conn, v)
	h.writeLoop(conn, v, initial)
}

func (h *Hub) subscribe() (*viewer, []byte, error) {
	v := &viewer{
		send: make(chan []byte, h.cfg.QueueSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrClosed
	}
	h.viewers[v] = struct{}{}
	n := len(h.viewers)
	initial := h.frame
	h.mu.Unlock()

	h.recorder.ObserveViewers(n)
	return v, initial, nil
}

func (h *Hub) unsubscribe(v *viewer) {
	h.mu.Lock()
	_, ok := h.viewers[v]
	delete(h.viewers, v)
	n := len(h.viewers)
	h.mu.Unlock()

	if ok {
		h.recorder.ObserveViewers(n)
	}
}

// readLoop discards viewer messages and signals done when the socket closes.
func (h *Hub) readLoop(conn *websocket.Conn, v *viewer) {
	defer close(v.done)

	if h.cfg.PongTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		})
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, v *viewer, initial []byte) {
	defer conn.Close()

	var ping <-chan time.Time
	if h.cfg.PingInterval > 0 {
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	if initial != nil {
		if err := h.write(conn, initial); err != nil {
			return
		}
	}

	for {
		select {
		case <-v.done:
			return
		case data, ok := <-v.send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			if err := h.write(conn, data); err != nil {
				h.logger.Debug("viewer write failed", "error", err)
				return
			}
		case <-ping:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	if h.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close disconnects all viewers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for v := range h.viewers {
		close(v.send)
		delete(h.viewers, v)
	}
	h.recorder.ObserveViewers(0)
}
