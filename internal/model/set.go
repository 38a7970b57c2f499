package model

// AppendResult reports what happened to one batch of points handed to
// SeriesSet.Append.
type AppendResult struct {
	Added      int  // Points appended
	Duplicates int  // Points at indices already held
	Gap        bool // Remaining points were dropped (hole or non-increasing x)
}

// SeriesSet is an ordered collection of series keyed by name.
//
// The first series added is the primary series; its length is the poll
// cursor. SeriesSet is not safe for concurrent use.
type SeriesSet struct {
	order  []string
	series map[string]*Series
}

// NewSeriesSet creates a set holding the given series in order.
func NewSeriesSet(initial ...Series) *SeriesSet {
	s := &SeriesSet{series: make(map[string]*Series)}
	for _, ser := range initial {
		if _, ok := s.series[ser.Name]; ok {
			continue
		}
		c := ser.Clone()
		s.order = append(s.order, c.Name)
		s.series[c.Name] = &c
	}
	return s
}

// Primary returns the primary series name, or "" if the set is empty.
func (s *SeriesSet) Primary() string {
	if len(s.order) == 0 {
		return ""
	}
	return s.order[0]
}

// Names returns series names in registration order.
func (s *SeriesSet) Names() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of points held for the named series.
func (s *SeriesSet) Len(name string) int {
	if ser, ok := s.series[name]; ok {
		return len(ser.Data)
	}
	return 0
}

// Has reports whether the named series is registered.
func (s *SeriesSet) Has(name string) bool {
	_, ok := s.series[name]
	return ok
}

// Ensure registers an empty series if the name is new.
func (s *SeriesSet) Ensure(name string) {
	if _, ok := s.series[name]; ok {
		return
	}
	s.order = append(s.order, name)
	s.series[name] = &Series{Name: name}
}

// Offsets returns the cursor for the next fetch: the primary length as the
// start, plus an override for every series whose length differs from it.
func (s *SeriesSet) Offsets() Offsets {
	start := s.Len(s.Primary())
	o := Offsets{Start: start}
	for _, name := range s.order {
		if n := len(s.series[name].Data); n != start {
			if o.From == nil {
				o.From = make(map[string]int)
			}
			o.From[name] = n
		}
	}
	return o
}

// Append merges pts into the named series, where pts[0] sits at index
// offset. Points already held are skipped. A point that would leave a hole,
// or whose x does not exceed the previous point's, drops the rest of the
// batch.
func (s *SeriesSet) Append(name string, offset int, pts []Point) AppendResult {
	s.Ensure(name)
	ser := s.series[name]

	var res AppendResult
	for i, p := range pts {
		idx := offset + i
		n := len(ser.Data)
		if idx < n {
			res.Duplicates++
			continue
		}
		if idx > n {
			res.Gap = true
			return res
		}
		if n > 0 && p.X <= ser.Data[n-1].X {
			res.Gap = true
			return res
		}
		ser.Data = append(ser.Data, p)
		res.Added++
	}
	return res
}

// Snapshot returns a deep copy of every series in order.
func (s *SeriesSet) Snapshot() []Series {
	out := make([]Series, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.series[name].Clone())
	}
	return out
}
