package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Point is a single (x, y) sample.
type Point struct {
	X float64 `json:"x"` // Seconds
	Y float64 `json:"y"` // mm or degrees
}

// Series is a named, ordered list of points plotted as one line.
type Series struct {
	Name  string  `json:"name"`
	Color string  `json:"color,omitempty"` // Display only, owned by the chart
	Data  []Point `json:"data"`
}

// Last returns the last point and true, or false if the series is empty.
func (s Series) Last() (Point, bool) {
	if len(s.Data) == 0 {
		return Point{}, false
	}
	return s.Data[len(s.Data)-1], true
}

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	out := Series{Name: s.Name, Color: s.Color, Data: make([]Point, len(s.Data))}
	copy(out.Data, s.Data)
	return out
}

// PollState is the cursor and failure bookkeeping of a poller.
type PollState struct {
	LastIndex         int // Length of the primary series
	ConsecutiveEmpty  int // Successful fetches in a row with no new points
	ConsecutiveErrors int // Transport failures in a row
}

// Offsets tells a data source where each series' new data begins.
//
// Start applies to every series without an entry in From.
type Offsets struct {
	Start int
	From  map[string]int
}

// For returns the offset for the named series.
func (o Offsets) For(name string) int {
	if off, ok := o.From[name]; ok {
		return off
	}
	return o.Start
}

// FromParams encodes the per-series overrides as "name:offset" strings,
// sorted by name so requests are stable.
func (o Offsets) FromParams() []string {
	if len(o.From) == 0 {
		return nil
	}
	out := make([]string, 0, len(o.From))
	for name, off := range o.From {
		out = append(out, name+":"+strconv.Itoa(off))
	}
	sort.Strings(out)
	return out
}

// ParseFrom parses a "name:offset" override. The name may itself contain
// colons; the offset is everything after the last one.
func ParseFrom(s string) (string, int, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid from %q: want name:offset", s)
	}
	off, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid from %q: %w", s, err)
	}
	if off < 0 {
		return "", 0, fmt.Errorf("invalid from %q: negative offset", s)
	}
	return s[:i], off, nil
}
