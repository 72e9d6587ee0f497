package batch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/engine"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/observability/metrics"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/protocol"
)

const (
	DefaultConcurrency = 3
	DefaultMaxFileSize = 50 << 20
)

// Status is the lifecycle state of an item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusError}

// Item is a snapshot of one queued file.
type Item struct {
	ID         string
	File       engine.File
	Name       string
	Size       int64
	Status     Status
	Progress   float64
	Result     *protocol.Result
	Error      string
	AddedAt    time.Time
	FinishedAt time.Time
}

// Stats aggregates item counts by status.
type Stats struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Encoder is the part of the engine the queue drives.
type Encoder interface {
	EncodeFile(ctx context.Context, f engine.File, opts engine.Options, onProgress engine.ProgressFunc) (*protocol.Result, error)
	Destroy() error
}

// Option configures a Queue.
type Option func(*Queue)

// WithConcurrency caps how many items a scheduling pass runs at once.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.limit = n
		}
	}
}

// WithMaxFileSize sets the admission ceiling in bytes.
func WithMaxFileSize(n int64) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxSize = n
		}
	}
}

// WithOptions sets the engine options used for every item.
func WithOptions(opts engine.Options) Option {
	return func(q *Queue) {
		q.opts = opts
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClock overrides the time source used for item timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithObserver registers fn to receive a snapshot after every state change.
// fn may be called from several goroutines at once.
func WithObserver(fn func([]Item)) Option {
	return func(q *Queue) {
		q.observer = fn
	}
}

// Queue encodes files with bounded concurrency. Items are scheduled in
// passes: each pass takes up to the concurrency limit of pending items in
// submission order and waits for all of them before the next pass starts.
type Queue struct {
	enc      Encoder
	opts     engine.Options
	limit    int
	maxSize  int64
	logger   *slog.Logger
	now      func() time.Time
	observer func([]Item)

	mu        sync.Mutex
	items     []*Item
	cancels   map[string]context.CancelFunc
	running   bool
	idle      chan struct{}
	destroyed bool
}

type task struct {
	item *Item
	ctx  context.Context
}

// NewQueue returns a queue that encodes with enc. The queue owns enc and
// destroys it on Destroy.
func NewQueue(enc Encoder, opts ...Option) *Queue {
	q := &Queue{
		enc:     enc,
		limit:   DefaultConcurrency,
		maxSize: DefaultMaxFileSize,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// AddFiles admits files and starts a scheduling pass if none is running. It
// never waits for encoding. Files over the size ceiling are reported in
// warnings and are not queued.
func (q *Queue) AddFiles(files ...engine.File) (ids []string, warnings []error) {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		for range files {
			warnings = append(warnings, ErrDestroyed)
		}
		return nil, warnings
	}
	for _, f := range files {
		if f == nil {
			continue
		}
		if f.Size() > q.maxSize {
			q.logger.Warn("file rejected at admission", "name", f.Name(), "size", f.Size(), "limit", q.maxSize)
			warnings = append(warnings, &SizeLimitError{Name: f.Name(), Size: f.Size(), Limit: q.maxSize})
			continue
		}
		item := &Item{
			ID:      uuid.NewString(),
			File:    f,
			Name:    f.Name(),
			Size:    f.Size(),
			Status:  StatusPending,
			AddedAt: q.now(),
		}
		q.items = append(q.items, item)
		ids = append(ids, item.ID)
	}
	q.mu.Unlock()

	if len(ids) > 0 {
		q.logger.Info("files queued", "count", len(ids))
		q.changed()
		q.schedule()
	}
	return ids, warnings
}

func (q *Queue) schedule() {
	q.mu.Lock()
	if q.running || q.destroyed {
		q.mu.Unlock()
		return
	}
	pass := q.nextPassLocked()
	if len(pass) == 0 {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	q.mu.Unlock()

	q.changed()
	go q.loop(pass)
}

func (q *Queue) loop(pass []task) {
	for len(pass) > 0 {
		var wg sync.WaitGroup
		for _, t := range pass {
			wg.Add(1)
			go func(t task) {
				defer wg.Done()
				q.process(t)
			}(t)
		}
		wg.Wait()

		q.mu.Lock()
		pass = nil
		if !q.destroyed {
			pass = q.nextPassLocked()
		}
		if len(pass) == 0 {
			q.running = false
			close(q.idle)
		}
		q.mu.Unlock()
		q.changed()
	}
}

// nextPassLocked marks up to limit pending items as processing.
func (q *Queue) nextPassLocked() []task {
	var pass []task
	for _, item := range q.items {
		if len(pass) == q.limit {
			break
		}
		if item.Status != StatusPending {
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		item.Status = StatusProcessing
		q.cancels[item.ID] = cancel
		pass = append(pass, task{item: item, ctx: ctx})
	}
	return pass
}

func (q *Queue) process(t task) {
	id := t.item.ID
	result, err := q.enc.EncodeFile(t.ctx, t.item.File, q.opts, func(fraction float64) {
		q.mu.Lock()
		_, live := q.cancels[id]
		if live {
			t.item.Progress = fraction
		}
		q.mu.Unlock()
		if live {
			q.changed()
		}
	})

	q.mu.Lock()
	cancel, live := q.cancels[id]
	if !live {
		q.mu.Unlock()
		q.logger.Debug("dropping outcome for removed item", "id", id)
		return
	}
	delete(q.cancels, id)
	t.item.FinishedAt = q.now()
	if err != nil {
		t.item.Status = StatusError
		t.item.Error = err.Error()
	} else {
		t.item.Status = StatusCompleted
		t.item.Result = result
		t.item.Progress = 1
	}
	q.mu.Unlock()
	cancel()

	if err != nil {
		q.logger.Warn("item failed", "id", id, "name", t.item.Name, "error", err)
	} else {
		q.logger.Info("item completed", "id", id, "name", t.item.Name, "bytes", t.item.Size)
	}
	q.changed()
}

// Snapshot returns copies of all items in submission order.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) snapshotLocked() []Item {
	out := make([]Item, len(q.items))
	for i, item := range q.items {
		out[i] = *item
	}
	return out
}

// Item returns a copy of the item with id.
func (q *Queue) Item(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.ID == id {
			return *item, true
		}
	}
	return Item{}, false
}

// RemoveItem drops the item with id, cancelling its encode if it is running.
func (q *Queue) RemoveItem(id string) bool {
	q.mu.Lock()
	idx := -1
	for i, item := range q.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	cancel := q.cancels[id]
	delete(q.cancels, id)
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.changed()
	return true
}

// ClearCompleted drops every completed item and returns how many were removed.
func (q *Queue) ClearCompleted() int {
	q.mu.Lock()
	kept := q.items[:0]
	removed := 0
	for _, item := range q.items {
		if item.Status == StatusCompleted {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	q.mu.Unlock()

	if removed > 0 {
		q.changed()
	}
	return removed
}

// ClearAll drops every item and cancels running encodes.
func (q *Queue) ClearAll() {
	q.mu.Lock()
	cancels := q.cancels
	q.cancels = make(map[string]context.CancelFunc)
	q.items = nil
	q.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	q.changed()
}

// Wait blocks until no scheduling pass is running or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats counts items by status.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statsLocked()
}

func (q *Queue) statsLocked() Stats {
	s := Stats{Total: len(q.items)}
	for _, item := range q.items {
		switch item.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusError:
			s.Failed++
		}
	}
	return s
}

// Destroy clears the queue, waits for the running pass and destroys the
// encoder. Later AddFiles calls are refused.
func (q *Queue) Destroy() error {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return nil
	}
	q.destroyed = true
	q.mu.Unlock()

	q.ClearAll()
	_ = q.Wait(context.Background())
	return q.enc.Destroy()
}

// changed republishes gauges and notifies the observer.
func (q *Queue) changed() {
	q.mu.Lock()
	stats := q.statsLocked()
	var snapshot []Item
	if q.observer != nil {
		snapshot = q.snapshotLocked()
	}
	q.mu.Unlock()

	counts := map[Status]int{
		StatusPending:    stats.Pending,
		StatusProcessing: stats.Processing,
		StatusCompleted:  stats.Completed,
		StatusError:      stats.Failed,
	}
	for _, status := range statuses {
		metrics.SetQueueItems(string(status), counts[status])
	}
	if q.observer != nil {
		q.observer(snapshot)
	}
}
