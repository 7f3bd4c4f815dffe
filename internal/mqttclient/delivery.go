package mqttclient

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/mqtt"
)

// Delivery tracks one publish until the broker acknowledges it.
type Delivery struct {
	id    mqtt.RequestID
	topic string
	done  chan struct{}
	once  sync.Once
	err   error
}

func newDelivery(id mqtt.RequestID, topic string) *Delivery {
	return &Delivery{id: id, topic: topic, done: make(chan struct{})}
}

// ID is the request identifier used to correlate the acknowledgement.
func (d *Delivery) ID() uint64 {
	return uint64(d.id)
}

// Topic is the topic the message was published to.
func (d *Delivery) Topic() string {
	return d.topic
}

// Done is closed when the delivery has been acknowledged or has failed.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Err returns the delivery outcome. It is nil while the delivery is
// outstanding and after a successful acknowledgement.
func (d *Delivery) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Wait blocks until the delivery completes or ctx is done.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Delivery) resolve(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
	})
}

// pendingDeliveries maps outstanding request IDs to their Delivery.
type pendingDeliveries struct {
	mu   sync.Mutex
	byID map[mqtt.RequestID]*Delivery
}

func newPendingDeliveries() *pendingDeliveries {
	return &pendingDeliveries{byID: make(map[mqtt.RequestID]*Delivery)}
}

func (p *pendingDeliveries) add(d *Delivery) {
	p.mu.Lock()
	p.byID[d.id] = d
	p.mu.Unlock()
}

// take removes and returns the delivery for id, or nil.
func (p *pendingDeliveries) take(id mqtt.RequestID) *Delivery {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.byID[id]
	delete(p.byID, id)
	return d
}

func (p *pendingDeliveries) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

// failAll resolves every outstanding delivery with err.
func (p *pendingDeliveries) failAll(err error) {
	p.mu.Lock()
	all := p.byID
	p.byID = make(map[mqtt.RequestID]*Delivery)
	p.mu.Unlock()

	for _, d := range all {
		d.resolve(err)
	}
}
