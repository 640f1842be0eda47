package deduplication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcdev/deduper/internal/tracker"
)

// ErrQueueFull is returned when a webhook event arrives at a full queue
var ErrQueueFull = errors.New("webhook queue full")

// ErrDispatcherClosed is returned for events arriving after Shutdown
var ErrDispatcherClosed = errors.New("dispatcher closed")

// EventHandler applies a decoded webhook event
type EventHandler interface {
	HandleEvent(ctx context.Context, event *tracker.Event) error
}

type delivery struct {
	eventType string
	payload   []byte
}

// Dispatcher hands webhook deliveries to a fixed pool of workers so the HTTP
// handler can acknowledge them without waiting for tracker or store calls.
type Dispatcher struct {
	handler EventHandler
	logger  *slog.Logger

	mu     sync.RWMutex
	queue  chan delivery
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines reading from a queue of queueSize
func NewDispatcher(handler EventHandler, workers, queueSize int, logger *slog.Logger) (*Dispatcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1 (got %d)", workers)
	}
	if queueSize < 0 {
		return nil, fmt.Errorf("queue size must be non-negative (got %d)", queueSize)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handler: handler,
		logger:  logger.With("component", "dispatcher"),
		queue:   make(chan delivery, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d, nil
}

// HandleWebhookEvent enqueues a verified delivery and returns immediately.
// The event is dropped if the queue is full or the dispatcher is shut down.
func (d *Dispatcher) HandleWebhookEvent(eventType string, payload []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		webhookDropped.WithLabelValues("shutdown").Inc()
		d.logger.Warn("dropping webhook event after shutdown", "type", eventType)
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- delivery{eventType: eventType, payload: payload}:
		return nil
	default:
		webhookDropped.WithLabelValues("queue_full").Inc()
		d.logger.Warn("dropping webhook event, queue full", "type", eventType, "capacity", cap(d.queue))
		return ErrQueueFull
	}
}

// Shutdown stops accepting events and waits for queued ones to be handled.
// If ctx expires first, in-flight handlers are canceled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
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
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for del := range d.queue {
		d.dispatch(del)
	}
}

func (d *Dispatcher) dispatch(del delivery) {
	defer func() {
		if r := recover(); r != nil {
			webhookEvents.WithLabelValues(del.eventType, "panic").Inc()
			d.logger.Error("webhook handler panicked", "type", del.eventType, "panic", r)
		}
	}()

	event, err := tracker.ParseEvent(del.eventType, del.payload)
	if err == nil {
		err = d.handler.HandleEvent(d.ctx, event)
	}
	webhookEvents.WithLabelValues(del.eventType, resultLabel(err)).Inc()
	if err != nil {
		d.logger.Error("failed to handle webhook event", "type", del.eventType, "error", err)
		return
	}
	d.logger.Debug("handled webhook event", "type", del.eventType, "action", event.Action)
}
