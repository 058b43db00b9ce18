package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"accord/internal/config"
	"accord/internal/domain"
	"accord/internal/logging"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// EventSource reads the events outbox. repo.Repo satisfies it.
type EventSource interface {
	EventsAfter(ctx context.Context, limit int, cursor int64, familyID string) ([]domain.Event, error)
	LatestEventID(ctx context.Context, familyID string) (int64, error)
}

// Sink receives events from the dispatcher. Deliver must be safe to retry.
type Sink interface {
	Name() string
	Accepts(eventType string) bool
	Deliver(ctx context.Context, evt domain.Event) error
}

// Dispatcher polls the outbox and hands new events to each sink. Every sink
// keeps its own cursor; a failed delivery stops that sink's batch and the
// event is retried on the next tick.
type Dispatcher struct {
	Source EventSource
	Sinks  []Sink
	// FamilyID restricts delivery to one family; empty means all.
	FamilyID string
	Interval time.Duration
	Batch    int
	Log      *zap.Logger

	mu      sync.Mutex
	cursors map[int]int64
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a dispatcher with the sinks configured in accord.yml.
func New(src EventSource, cfg config.NotificationsConfig, log *zap.Logger) *Dispatcher {
	log = logging.OrNop(log)
	d := &Dispatcher{
		Source:   src,
		Interval: time.Duration(cfg.PollInterval),
		Batch:    cfg.BatchSize,
		Log:      log,
	}
	if cfg.LogEvents {
		d.Sinks = append(d.Sinks, LogSink{Log: log})
	}
	for _, hook := range cfg.Webhooks {
		if !hook.IsEnabled() {
			continue
		}
		d.Sinks = append(d.Sinks, NewWebhookSink(hook))
	}
	return d
}

// Start runs the polling loop in its own goroutine until ctx is done or
// Stop is called. Starting twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
}

// Stop cancels the loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.Flush(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush delivers every pending event once.
func (d *Dispatcher) Flush(ctx context.Context) {
	for i, sink := range d.Sinks {
		if ctx.Err() != nil {
			return
		}
		d.dispatch(ctx, i, sink)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, idx int, sink Sink) {
	log := logging.OrNop(d.Log).With(zap.String("sink", sink.Name()))
	cursor, err := d.cursorFor(ctx, idx)
	if err != nil {
		log.Warn("init cursor failed", zap.Error(err))
		return
	}
	batch := d.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	evts, err := d.Source.EventsAfter(ctx, batch, cursor, d.FamilyID)
	if err != nil {
		log.Warn("fetch events failed", zap.Error(err))
		return
	}
	for _, evt := range evts {
		if sink.Accepts(evt.Type) {
			if err := sink.Deliver(ctx, evt); err != nil {
				log.Warn("delivery failed", zap.Int64("event_id", evt.ID), zap.String("type", evt.Type), zap.Error(err))
				return
			}
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursors == nil {
		d.cursors = make(map[int]int64)
	}
	if cur, ok := d.cursors[idx]; ok {
		return cur, nil
	}
	cur, err := d.Source.LatestEventID(ctx, d.FamilyID)
	if err != nil {
		return 0, err
	}
	d.cursors[idx] = cur
	return cur, nil
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}
