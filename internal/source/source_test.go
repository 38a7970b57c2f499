package source

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/motionfeed/internal/api"
	"github.com/rickgao/motionfeed/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStore_Append(t *testing.T) {
	s := NewStore()

	if err := s.Append("a", model.Point{X: 1}, model.Point{X: 2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append("a", model.Point{X: 2}); !errors.Is(err, ErrNotIncreasing) {
		t.Errorf("Append equal x error = %v, want ErrNotIncreasing", err)
	}
	if got := s.Len("a"); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
}

func TestStore_Since(t *testing.T) {
	s := NewStore()
	s.Register("primary", "#c05020")
	s.Register("other", "")
	s.Append("primary", model.Point{X: 1}, model.Point{X: 2}, model.Point{X: 3})
	s.Append("other", model.Point{X: 1}, model.Point{X: 2})

	got := s.Since(model.Offsets{Start: 2, From: map[string]int{"other": 0}})

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "primary" || len(got[0].Data) != 1 || got[0].Data[0].X != 3 {
		t.Errorf("primary = %+v, want one point at x=3", got[0])
	}
	if got[0].Color != "#c05020" {
		t.Errorf("primary color = %q", got[0].Color)
	}
	if len(got[1].Data) != 2 {
		t.Errorf("other has %d points, want 2", len(got[1].Data))
	}

	past := s.Since(model.Offsets{Start: 10})
	for _, ser := range past {
		if ser.Data == nil || len(ser.Data) != 0 {
			t.Errorf("%s past the end = %v, want empty non-nil", ser.Name, ser.Data)
		}
	}
}

func newTestServer(store *Store) *httptest.Server {
	r := gin.New()
	NewHandler(store, nil).Register(r, "/data.json")
	return httptest.NewServer(r)
}

func TestHandler_Data(t *testing.T) {
	store := NewStore()
	store.Append(SeriesMeanDisplacement, model.Point{X: 2, Y: 0.1}, model.Point{X: 4, Y: 0.456})
	store.Append(SeriesRotation, model.Point{X: 2, Y: 0.01})

	server := newTestServer(store)
	defer server.Close()

	resp, err := http.Get(server.URL + "/data.json?start=1&from=Rotation:0")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got []model.Series
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if len(got[0].Data) != 1 || got[0].Data[0].Y != 0.456 {
		t.Errorf("displacement = %+v, want [{4 0.456}]", got[0].Data)
	}
	if len(got[1].Data) != 1 {
		t.Errorf("rotation has %d points, want 1", len(got[1].Data))
	}
}

func TestHandler_BadRequest(t *testing.T) {
	server := newTestServer(NewStore())
	defer server.Close()

	for _, q := range []string{"?start=-1", "?start=abc", "?from=nocolon"} {
		resp, err := http.Get(server.URL + "/data.json" + q)
		if err != nil {
			t.Fatalf("GET %s: %v", q, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestHandler_WithClient(t *testing.T) {
	store := NewStore()
	store.Append(SeriesMeanDisplacement, model.Point{X: 2}, model.Point{X: 4})

	server := newTestServer(store)
	defer server.Close()

	client := api.NewClient(server.URL+"/data.json", "")
	got, err := client.FetchSince(context.Background(), model.Offsets{Start: 1})
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}
	if len(got) != 1 || len(got[0].Data) != 1 || got[0].Data[0].X != 4 {
		t.Errorf("FetchSince = %+v, want one point at x=4", got)
	}
}

func TestGenerator_Step(t *testing.T) {
	store := NewStore()
	cfg := DefaultGeneratorConfig()
	cfg.SkipVolumes = 2

	g, err := NewGenerator(cfg, store, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	for i := 0; i < 2; i++ {
		g.Step()
	}
	if got := store.Len(SeriesMeanDisplacement); got != 0 {
		t.Fatalf("points during skip window = %d, want 0", got)
	}

	g.Step()
	series := store.Since(model.Offsets{})
	if len(series) != 3 {
		t.Fatalf("series = %d, want 3", len(series))
	}
	ref := series[0].Data[0]
	if ref.X != 6 {
		t.Errorf("first x = %v, want 6 (volume 3 at TR 2s)", ref.X)
	}
	if ref.Y != 0 {
		t.Errorf("reference displacement = %v, want 0", ref.Y)
	}

	for i := 0; i < 5; i++ {
		if err := g.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	for _, name := range []string{SeriesMeanDisplacement, SeriesScanDisplacement, SeriesRotation} {
		if got := store.Len(name); got != 6 {
			t.Errorf("%s has %d points, want 6", name, got)
		}
	}
}

func TestGenerator_RunStopsAfterVolumes(t *testing.T) {
	store := NewStore()
	g, err := NewGenerator(GeneratorConfig{TR: time.Millisecond, Volumes: 5, SkipVolumes: 1, Drift: 0.1, Seed: 7}, store, nil)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := store.Len(SeriesMeanDisplacement); got != 4 {
		t.Errorf("points = %d, want 4", got)
	}
}

func TestNewGenerator_Invalid(t *testing.T) {
	if _, err := NewGenerator(GeneratorConfig{}, NewStore(), nil); err == nil {
		t.Error("expected error for zero TR")
	}
}

func TestRMSDisplacement(t *testing.T) {
	tests := []struct {
		name string
		m    Rigid
		want float64
	}{
		{name: "identity", m: Rigid{}, want: 0},
		{name: "translation", m: Rigid{Trans: [3]float64{1, 2, 2}}, want: 3},
		{
			// A = R - I for a small z rotation has trace(A'A) = 4(1 - cos t).
			name: "rotation",
			m:    Rigid{Rot: [3]float64{0, 0, 0.01}},
			want: math.Sqrt(HeadRadius * HeadRadius / 5 * 4 * (1 - math.Cos(0.01))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMSDisplacement(tt.m, HeadRadius)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RMSDisplacement = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxRotationDegrees(t *testing.T) {
	got := MaxRotationDegrees(Rigid{Rot: [3]float64{0.01, -math.Pi / 180, 0}})
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("MaxRotationDegrees = %v, want 1", got)
	}
}
