package journal

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-devicelink/internal/mqttclient"
)

const (
	// DefaultBufferSize is the event queue capacity used when none is given.
	DefaultBufferSize = 256

	// drainTimeout bounds the writes made after Run's context is cancelled.
	drainTimeout = 2 * time.Second
)

var _ mqttclient.Observer = (*Recorder)(nil)

// Recorder turns facade observer callbacks into journal events.
//
// Callbacks arrive on MQTT engine goroutines, so they only enqueue. Run
// drains the queue into the Repository. When the queue is full, events are
// dropped and counted rather than blocking message dispatch.
//
// Recorded: every status change, publishes the engine refused, failed
// delivery acknowledgements, and inbound messages no handler matched.
//
// Thread Safety:
//   - Observer methods are safe for concurrent use.
//   - Run must be called at most once.
type Recorder struct {
	repo    Repository
	logger  *logging.Logger
	queue   chan Event
	dropped atomic.Uint64
}

// NewRecorder creates a Recorder writing to repo.
//
// Parameters:
//   - repo: Destination repository
//   - logger: Logger for write failures (nil uses logging.Default)
//   - bufferSize: Queue capacity; values below 1 use DefaultBufferSize
func NewRecorder(repo Repository, logger *logging.Logger, bufferSize int) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Recorder{
		repo:   repo,
		logger: logger.With("component", "journal"),
		queue:  make(chan Event, bufferSize),
	}
}

// Run writes queued events until ctx is cancelled, then flushes whatever is
// still queued with a short deadline.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Event) {
	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Warn("failed to record link event", "kind", string(e.Kind), "error", err)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) enqueue(e Event) {
	e.CreatedAt = time.Now().UTC()
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
	}
}

// StatusChanged records every link state transition.
func (r *Recorder) StatusChanged(state string, err error) {
	r.enqueue(Event{Kind: KindStatus, State: state, Error: errString(err)})
}

// MessageSent records publishes the engine refused.
func (r *Recorder) MessageSent(topic string, size int, err error) {
	if err == nil {
		return
	}
	r.enqueue(Event{Kind: KindSendFailed, Topic: topic, Size: size, Error: err.Error()})
}

// DeliveryAcknowledged records failed acknowledgements.
func (r *Recorder) DeliveryAcknowledged(id uint64, err error) {
	if err == nil {
		return
	}
	r.enqueue(Event{Kind: KindAckFailed, RequestID: id, Error: err.Error()})
}

// MessageReceived records inbound messages no handler matched.
func (r *Recorder) MessageReceived(topic string, size int, dispatched bool) {
	if dispatched {
		return
	}
	r.enqueue(Event{Kind: KindUnhandled, Topic: topic, Size: size, Dispatched: &dispatched})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
