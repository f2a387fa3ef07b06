// Package convlog records chat exchanges without slowing the conversation down.
package convlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
	"github.com/AyushPatel04/dental-chatbot/internal/observability/metrics"
	"github.com/AyushPatel04/dental-chatbot/pkg/logging"
)

const (
	defaultQueueSize   = 256
	defaultSinkTimeout = 5 * time.Second
)

// Sink persists one exchange.
type Sink interface {
	Name() string
	Write(ctx context.Context, ex chatflow.Exchange) error
}

// Dispatcher queues exchanges and writes them to every sink from a single
// worker. When the queue is full the exchange is dropped.
type Dispatcher struct {
	sinks       []Sink
	queue       chan chatflow.Exchange
	sinkTimeout time.Duration
	metrics     *metrics.ChatMetrics
	logger      *logging.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ chatflow.ConversationLogger = (*Dispatcher)(nil)

// Options tunes a Dispatcher. Zero values mean defaults.
type Options struct {
	QueueSize   int
	SinkTimeout time.Duration
	Metrics     *metrics.ChatMetrics
	Logger      *logging.Logger
}

// NewDispatcher starts the worker. Close stops it.
func NewDispatcher(opts Options, sinks ...Sink) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = defaultSinkTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	d := &Dispatcher{
		sinks:       sinks,
		queue:       make(chan chatflow.Exchange, opts.QueueSize),
		sinkTimeout: opts.SinkTimeout,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		done:        make(chan struct{}),
	}
	go d.run()
	return d
}

// Log enqueues ex and returns immediately.
func (d *Dispatcher) Log(_ context.Context, ex chatflow.Exchange) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ex, "closed")
		return
	}
	select {
	case d.queue <- ex:
	default:
		d.drop(ex, "queue_full")
	}
}

func (d *Dispatcher) drop(ex chatflow.Exchange, reason string) {
	d.metrics.ObserveLogDrop()
	d.logger.Warn("conversation log entry dropped", "session_id", ex.SessionID, "reason", reason)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ex := range d.queue {
		d.write(ex)
	}
}

func (d *Dispatcher) write(ex chatflow.Exchange) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.sinkTimeout)
		err := sink.Write(ctx, ex)
		cancel()
		if err != nil {
			d.logger.Error("conversation log sink failed",
				"sink", sink.Name(),
				"session_id", ex.SessionID,
				"error", err,
			)
		}
	}
}

// Close stops accepting exchanges and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("convlog: queue not drained"), ctx.Err())
	}
}
