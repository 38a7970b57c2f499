package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/motionfeed/internal/model"
)

var (
	// ErrTickInFlight is returned by Tick when another tick is still fetching.
	ErrTickInFlight = errors.New("poller: tick already in flight")

	// ErrTerminated is returned once the poller has stopped.
	ErrTerminated = errors.New("poller: terminated")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("poller: already started")
)

// Fetcher returns the points each series gained since the given offsets.
type Fetcher interface {
	FetchSince(ctx context.Context, offsets model.Offsets) ([]model.Series, error)
}

// Chart receives the full series after every merge that added points.
// The slice is a copy owned by the receiver.
type Chart interface {
	Update(series []model.Series)
}

// ChartFunc is a function adapter for Chart.
type ChartFunc func([]model.Series)

func (f ChartFunc) Update(series []model.Series) {
	f(series)
}

// Merge is a run of points appended to one series.
type Merge struct {
	Series string
	Offset int // Index of Points[0]
	Points []model.Point
}

// MergeHandler receives every run of appended points, in order.
type MergeHandler interface {
	HandleMerge(m Merge) error
}

// MergeHandlerFunc is a function adapter for MergeHandler.
type MergeHandlerFunc func(Merge) error

func (f MergeHandlerFunc) HandleMerge(m Merge) error {
	return f(m)
}

// Recorder observes poller activity.
type Recorder interface {
	ObserveFetch(d time.Duration, err error)
	ObserveEmpty()
	ObserveMerged(series string, n int)
	ObserveSkipped()
	ObserveCursor(lastIndex int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(time.Duration, error) {}
func (nopRecorder) ObserveEmpty()                     {}
func (nopRecorder) ObserveMerged(string, int)         {}
func (nopRecorder) ObserveSkipped()                   {}
func (nopRecorder) ObserveCursor(int)                 {}

// StopReason says why the poll loop ended.
type StopReason string

const (
	StopReasonNone    StopReason = ""
	StopReasonEmpty   StopReason = "empty_responses"
	StopReasonErrors  StopReason = "transport_errors"
	StopReasonStopped StopReason = "stopped"
	StopReasonContext StopReason = "context_done"
)

// Stats are cumulative poller counters.
type Stats struct {
	Fetches        int64
	Errors         int64
	EmptyResponses int64
	PointsMerged   int64
	Duplicates     int64
	Gaps           int64
	SkippedTicks   int64
	State          model.PollState
}

// Option configures a Poller.
type Option func(*Poller)

// WithChart sets the chart collaborator.
func WithChart(c Chart) Option {
	return func(p *Poller) {
		p.chart = c
	}
}

// WithMergeHandler adds a handler for appended points.
func WithMergeHandler(h MergeHandler) Option {
	return func(p *Poller) {
		p.handlers = append(p.handlers, h)
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Poller) {
		p.recorder = r
	}
}

// Poller incrementally fetches series data on a fixed interval.
type Poller struct {
	cfg      Config
	fetcher  Fetcher
	chart    Chart
	handlers []MergeHandler
	recorder Recorder
	logger   *slog.Logger

	// Guards set, state, stats, reason and cancel.
	mu     sync.Mutex
	set    *model.SeriesSet
	state  model.PollState
	stats  Stats
	reason StopReason

	inFlight atomic.Bool
	started  atomic.Bool
	stopping atomic.Bool

	done     chan struct{}
	doneOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. cfg.Initial seeds the tracked series; the first
// one is the primary series.
func New(cfg Config, fetcher Fetcher, logger *slog.Logger, opts ...Option) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, errors.New("poller: fetcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Poller{
		cfg:      cfg,
		fetcher:  fetcher,
		recorder: nopRecorder{},
		logger:   logger,
		set:      model.NewSeriesSet(cfg.Initial...),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.state.LastIndex = p.set.Len(p.set.Primary())

	return p, nil
}

// Start begins the polling loop. The first fetch happens immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopping.Load() || p.Terminated() {
		p.mu.Unlock()
		return ErrTerminated
	}
	if !p.started.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run()

	p.logger.Info("poller started",
		"interval", p.cfg.Interval,
		"max_empty_responses", p.cfg.MaxEmptyResponses,
		"max_errors", p.cfg.MaxErrors,
		"last_index", p.LastIndex(),
	)

	return nil
}

// Stop cancels the loop and waits for it to exit. Safe to call more than
// once and before Start.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopping.Store(true)
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.finish(StopReasonStopped)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the poller stops for any reason.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Terminated reports whether the poller has stopped.
func (p *Poller) Terminated() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Reason returns why the poller stopped, or StopReasonNone while running.
func (p *Poller) Reason() StopReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// LastIndex returns the current cursor.
func (p *Poller) LastIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.LastIndex
}

// Stats returns a copy of the counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.State = p.state
	return s
}

// Series returns a copy of every tracked series.
func (p *Poller) Series() []model.Series {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set.Snapshot()
}

// finish records the stop reason and closes Done. Only the first call wins.
func (p *Poller) finish(reason StopReason) {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		p.reason = reason
		p.mu.Unlock()
		close(p.done)
	})
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	if p.tickAndCheck() {
		return
	}

	for {
		select {
		case <-p.ctx.Done():
			if p.stopping.Load() {
				p.finish(StopReasonStopped)
			} else {
				p.finish(StopReasonContext)
			}
			return
		case <-ticker.C:
			if p.tickAndCheck() {
				return
			}
		}
	}
}

// tickAndCheck runs one tick from the loop and reports whether the loop
// should exit.
func (p *Poller) tickAndCheck() bool {
	if err := p.Tick(p.ctx); err != nil && !errors.Is(err, ErrTerminated) {
		p.logger.Debug("tick failed", "error", err)
	}
	if p.Terminated() {
		p.logger.Info("poller stopped",
			"reason", p.Reason(),
			"last_index", p.LastIndex(),
		)
		return true
	}
	return false
}

// Tick performs one fetch-and-merge cycle. It returns the transport error,
// if any, after it has been counted.
func (p *Poller) Tick(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.stats.SkippedTicks++
		p.mu.Unlock()
		p.recorder.ObserveSkipped()
		return ErrTickInFlight
	}
	defer p.inFlight.Store(false)

	if p.Terminated() {
		return ErrTerminated
	}

	p.mu.Lock()
	offsets := p.set.Offsets()
	p.state.LastIndex = offsets.Start
	p.stats.Fetches++
	p.mu.Unlock()

	fetchCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	series, err := p.fetcher.FetchSince(fetchCtx, offsets)
	p.recorder.ObserveFetch(time.Since(start), err)

	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; not the data source's fault.
			return ctx.Err()
		}
		return p.fetchFailed(err)
	}

	return p.merge(offsets, series)
}

// fetchFailed counts a transport error and terminates past the threshold.
func (p *Poller) fetchFailed(err error) error {
	p.mu.Lock()
	p.stats.Errors++
	p.state.ConsecutiveErrors++
	n := p.state.ConsecutiveErrors
	p.mu.Unlock()

	p.logger.Warn("fetch failed",
		"error", err,
		"consecutive_errors", n,
		"max_errors", p.cfg.MaxErrors,
	)

	if n > p.cfg.MaxErrors {
		p.finish(StopReasonErrors)
	}

	return fmt.Errorf("fetch: %w", err)
}

// merge appends a successful response and notifies collaborators.
func (p *Poller) merge(offsets model.Offsets, series []model.Series) error {
	var merges []Merge
	total := 0

	p.mu.Lock()
	p.state.ConsecutiveErrors = 0

	for _, s := range series {
		if s.Name == "" {
			continue
		}
		off := offsets.For(s.Name)
		if !p.set.Has(s.Name) {
			p.logger.Info("tracking new series", "series", s.Name)
		}
		res := p.set.Append(s.Name, off, s.Data)

		p.stats.Duplicates += int64(res.Duplicates)
		if res.Gap {
			p.stats.Gaps++
			p.logger.Warn("dropped points past a gap",
				"series", s.Name,
				"offset", off,
				"held", p.set.Len(s.Name),
			)
		}
		if res.Added == 0 {
			continue
		}

		total += res.Added
		merges = append(merges, Merge{
			Series: s.Name,
			Offset: off + res.Duplicates,
			Points: append([]model.Point(nil), s.Data[res.Duplicates:res.Duplicates+res.Added]...),
		})
	}

	p.state.LastIndex = p.set.Len(p.set.Primary())

	var exhausted bool
	var snapshot []model.Series
	if total == 0 {
		p.stats.EmptyResponses++
		p.state.ConsecutiveEmpty++
		exhausted = p.state.ConsecutiveEmpty > p.cfg.MaxEmptyResponses
	} else {
		p.stats.PointsMerged += int64(total)
		p.state.ConsecutiveEmpty = 0
		snapshot = p.set.Snapshot()
	}
	state := p.state
	p.mu.Unlock()

	p.recorder.ObserveCursor(state.LastIndex)

	if total == 0 {
		p.recorder.ObserveEmpty()
		p.logger.Debug("empty response",
			"consecutive_empty", state.ConsecutiveEmpty,
			"max_empty_responses", p.cfg.MaxEmptyResponses,
		)
		if exhausted {
			p.finish(StopReasonEmpty)
		}
		return nil
	}

	for _, m := range merges {
		p.recorder.ObserveMerged(m.Series, len(m.Points))
		for _, h := range p.handlers {
			if err := h.HandleMerge(m); err != nil {
				p.logger.Warn("merge handler failed",
					"series", m.Series,
					"error", err,
				)
			}
		}
	}

	if p.chart != nil {
		p.chart.Update(snapshot)
	}

	p.logger.Debug("merged points",
		"points", total,
		"series", len(merges),
		"last_index", state.LastIndex,
	)

	return nil
}
