package events

import (
	"context"
	"sync/atomic"

	"github.com/nulln0ne/cpamm/internal/logging"
	"github.com/rs/zerolog"
)

// Dispatcher queues published events and delivers them to every sink from
// a single goroutine. Publish never blocks; when the queue is full the
// event is dropped and counted.
type Dispatcher struct {
	logger  zerolog.Logger
	queue   chan Event
	sinks   []Sink
	dropped atomic.Uint64
}

func NewDispatcher(logger zerolog.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		logger: logging.Component(logger, "events"),
		queue:  make(chan Event, buffer),
		sinks:  sinks,
	}
}

func (d *Dispatcher) Publish(e Event) {
	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		d.logger.Warn().Str("source", e.Source.Hex()).Str("kind", string(e.Kind)).Msg("event queue full, dropping event")
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run delivers events until ctx is done, then flushes what is queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		case <-ctx.Done():
			d.flush()
			return nil
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case e := <-d.queue:
			d.deliver(context.Background(), e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		if err := s.Record(ctx, e); err != nil {
			d.logger.Error().Err(err).Str("id", e.ID.Hex()).Str("kind", string(e.Kind)).Msg("sink failed to record event")
		}
	}
}
