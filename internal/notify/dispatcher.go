// Package notify fans appointment lifecycle events out to subscribers (email, push,
// payments) off the request path.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
)

// Subscriber reacts to one lifecycle event. Errors are retried by the dispatcher.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, ev appointment.Event) error
}

type Options struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	Backoff        time.Duration
	HandlerTimeout time.Duration
	Logger         logrus.FieldLogger
	Metrics        *metrics.Collector
}

// Dispatcher is an appointment.Publisher backed by a bounded queue and a worker
// pool. When the queue is full the event is dropped and counted.
type Dispatcher struct {
	opts  Options
	subs  []Subscriber
	queue chan appointment.Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(opts Options, subs ...Subscriber) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		opts:  opts,
		subs:  subs,
		queue: make(chan appointment.Event, opts.QueueSize),
	}
}

// Start launches the workers. They exit once Close has drained the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.deliver(ctx, ev)
			}
		}()
	}
}

func (d *Dispatcher) Publish(_ context.Context, ev appointment.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ev, "dispatcher closed")
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.drop(ev, "queue full")
	}
}

// Close stops accepting events and waits for queued ones to be delivered or ctx
// to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) drop(ev appointment.Event, why string) {
	d.opts.Metrics.RecordHookDropped()
	d.opts.Logger.WithFields(logrus.Fields{
		"event":          ev.Type,
		"appointment_id": ev.AppointmentID,
	}).Warn("lifecycle event dropped: " + why)
}

func (d *Dispatcher) deliver(ctx context.Context, ev appointment.Event) {
	for _, sub := range d.subs {
		err := d.attempt(ctx, sub, ev)
		d.opts.Metrics.RecordHookDelivery(sub.Name(), err == nil)
		if err != nil {
			d.opts.Logger.WithError(err).WithFields(logrus.Fields{
				"subscriber":     sub.Name(),
				"event":          ev.Type,
				"appointment_id": ev.AppointmentID,
			}).Error("lifecycle hook failed")
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, sub Subscriber, ev appointment.Event) error {
	var err error
	for i := 1; i <= d.opts.MaxAttempts; i++ {
		hctx, cancel := context.WithTimeout(ctx, d.opts.HandlerTimeout)
		err = sub.Handle(hctx, ev)
		cancel()
		if err == nil {
			return nil
		}
		if i == d.opts.MaxAttempts {
			break
		}
		select {
		case <-time.After(d.opts.Backoff * time.Duration(i)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
