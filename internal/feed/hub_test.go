package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rickgao/motionfeed/internal/model"
	"github.com/rickgao/motionfeed/internal/poller"
)

var _ poller.Chart = (*Hub)(nil)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingRecorder struct {
	drops   atomic.Int64
	viewers atomic.Int64
}

func (r *countingRecorder) ObserveFeedDrop()     { r.drops.Add(1) }
func (r *countingRecorder) ObserveViewers(n int) { r.viewers.Store(int64(n)) }

func newTestServer(h *Hub) *httptest.Server {
	r := gin.New()
	h.Register(r, "/feed", "/series")
	return httptest.NewServer(r)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return f
}

func waitViewers(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Viewers() != want {
		if time.Now().After(deadline) {
			t.Fatalf("viewers = %d, want %d", h.Viewers(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_InitialSnapshotAndUpdates(t *testing.T) {
	rec := &countingRecorder{}
	h := NewHub(DefaultConfig(), nil, rec)
	h.Update([]model.Series{{Name: "a", Data: []model.Point{{X: 1, Y: 2}}}})

	server := newTestServer(h)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	f := readFrame(t, conn)
	if f.Type != "snapshot" || f.Seq != 1 {
		t.Errorf("initial frame = %+v, want snapshot seq 1", f)
	}
	if len(f.Series) != 1 || len(f.Series[0].Data) != 1 {
		t.Fatalf("initial series = %+v", f.Series)
	}

	waitViewers(t, h, 1)
	if rec.viewers.Load() != 1 {
		t.Errorf("recorded viewers = %d, want 1", rec.viewers.Load())
	}

	h.Update([]model.Series{{Name: "a", Data: []model.Point{{X: 1, Y: 2}, {X: 2, Y: 3}}}})
	f = readFrame(t, conn)
	if f.Seq != 2 || len(f.Series[0].Data) != 2 {
		t.Errorf("update frame = %+v, want seq 2 with two points", f)
	}
}

func TestHub_NoSnapshotYet(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, nil)
	server := newTestServer(h)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	waitViewers(t, h, 1)

	h.Update([]model.Series{{Name: "a", Data: []model.Point{}}})
	if f := readFrame(t, conn); f.Seq != 1 {
		t.Errorf("first frame seq = %d, want 1", f.Seq)
	}
}

func TestHub_SeriesEndpoint(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, nil)
	server := newTestServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL + "/series")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var empty []model.Series
	json.NewDecoder(resp.Body).Decode(&empty)
	resp.Body.Close()
	if empty == nil || len(empty) != 0 {
		t.Errorf("before update = %v, want []", empty)
	}

	h.Update([]model.Series{{Name: "Mean Displacement", Color: "#c05020", Data: []model.Point{{X: 2, Y: 0.1}}}})

	resp, err = http.Get(server.URL + "/series")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var got []model.Series
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Color != "#c05020" {
		t.Errorf("series = %+v", got)
	}
}

func TestHub_DropsForFullQueue(t *testing.T) {
	rec := &countingRecorder{}
	h := NewHub(Config{QueueSize: 1}, nil, rec)

	// A viewer nobody drains.
	v, _, err := h.subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 3; i++ {
		h.Update([]model.Series{{Name: "a"}})
	}

	if got := h.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
	if got := rec.drops.Load(); got != 2 {
		t.Errorf("recorded drops = %d, want 2", got)
	}
	if got := h.Frames(); got != 1 {
		t.Errorf("Frames = %d, want 1", got)
	}
	if len(v.send) != 1 {
		t.Errorf("queued = %d, want 1", len(v.send))
	}
}

func TestHub_ViewerDisconnect(t *testing.T) {
	rec := &countingRecorder{}
	h := NewHub(DefaultConfig(), nil, rec)
	server := newTestServer(h)
	defer server.Close()

	conn := dial(t, server)
	waitViewers(t, h, 1)

	conn.Close()
	waitViewers(t, h, 0)
	if rec.viewers.Load() != 0 {
		t.Errorf("recorded viewers = %d, want 0", rec.viewers.Load())
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, nil)
	server := newTestServer(h)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	waitViewers(t, h, 1)

	h.Close()
	h.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read after Close = %v, want normal closure", err)
	}

	if _, _, err := h.subscribe(); err != ErrClosed {
		t.Errorf("subscribe after Close = %v, want ErrClosed", err)
	}
}
