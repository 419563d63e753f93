package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
)

const drainTimeout = 5 * time.Second

// Sink delivers one event, typically to the NATS event stream.
type Sink func(ctx context.Context, ev models.AttendanceEvent) error

// Dispatcher decouples the scan path from event delivery. Publish never
// blocks: when the buffer is full the event is dropped and counted.
type Dispatcher struct {
	sink   Sink
	events chan models.AttendanceEvent

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(sink Sink, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		sink:   sink,
		events: make(chan models.AttendanceEvent, buffer),
		done:   make(chan struct{}),
	}
}

// Publish queues ev for delivery. It returns nil even when the event is
// dropped.
func (d *Dispatcher) Publish(ctx context.Context, ev models.AttendanceEvent) error {
	select {
	case <-d.done:
		observability.NotificationsDropped.Inc()
		return nil
	default:
	}

	select {
	case d.events <- ev:
	default:
		observability.NotificationsDropped.Inc()
		slog.Warn("notification dropped", "employee_code", ev.EmployeeCode, "action", ev.Action)
	}
	return nil
}

// Run delivers queued events in order until ctx is done, then drains what is
// already buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.closeOnce.Do(func() { close(d.done) })
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.AttendanceEvent) {
	if err := d.sink(ctx, ev); err != nil {
		slog.Warn("deliver notification", "employee_code", ev.EmployeeCode, "action", ev.Action, "error", err)
	}
}
