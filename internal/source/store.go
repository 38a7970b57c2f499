package source

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rickgao/motionfeed/internal/model"
)

// ErrNotIncreasing is returned when an appended point does not advance x.
var ErrNotIncreasing = errors.New("x must be strictly increasing")

// Store is a thread-safe, append-only set of named series.
type Store struct {
	mu     sync.RWMutex
	order  []string
	series map[string]*model.Series
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{series: make(map[string]*model.Series)}
}

// Register adds an empty series. Registering an existing name only updates
// its color.
func (s *Store) Register(name, color string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ser, ok := s.series[name]; ok {
		ser.Color = color
		return
	}
	s.order = append(s.order, name)
	s.series[name] = &model.Series{Name: name, Color: color, Data: []model.Point{}}
}

// Append adds points to the end of a series, registering it if needed.
func (s *Store) Append(name string, pts ...model.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ser, ok := s.series[name]
	if !ok {
		ser = &model.Series{Name: name, Data: []model.Point{}}
		s.order = append(s.order, name)
		s.series[name] = ser
	}

	last, has := ser.Last()
	for _, p := range pts {
		if has && p.X <= last.X {
			return fmt.Errorf("append %q at x=%v: %w", name, p.X, ErrNotIncreasing)
		}
		ser.Data = append(ser.Data, p)
		last, has = p, true
	}
	return nil
}

// Len returns the number of points in the named series.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ser, ok := s.series[name]; ok {
		return len(ser.Data)
	}
	return 0
}

// Since returns, for every series in registration order, the points at
// index >= that series' offset. Every series gets an entry, possibly empty.
func (s *Store) Since(o model.Offsets) []model.Series {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Series, 0, len(s.order))
	for _, name := range s.order {
		ser := s.series[name]
		off := o.For(name)
		if off > len(ser.Data) {
			off = len(ser.Data)
		}
		data := make([]model.Point, len(ser.Data)-off)
		copy(data, ser.Data[off:])
		out = append(out, model.Series{Name: name, Color: ser.Color, Data: data})
	}
	return out
}
