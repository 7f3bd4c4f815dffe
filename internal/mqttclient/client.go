package mqttclient

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/mqtt"
)

// Handler is called with the topic and verbatim payload of an inbound
// message.
//
// Handlers run synchronously on the engine's message goroutine, so a slow
// handler delays every later message. A panicking handler is recovered and
// logged.
type Handler func(topic, payload string)

// Client is a device-side MQTT connection with a topic-to-handler registry.
//
// It owns one engine session. Connect, Disconnect, Send and Subscribe only
// hand requests to the engine; broker answers arrive later as Status changes,
// Delivery completions, and handler calls.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Close must not be called from inside a Handler.
type Client struct {
	engine   mqtt.Engine
	session  mqtt.Session
	deviceID string
	tlsFiles mqtt.TLSFiles

	registry   *registry
	deliveries *pendingDeliveries
	status     statusTracker
	nextID     atomic.Uint64

	// observers is fixed after New.
	observers []Observer

	logger   Logger
	loggerMu sync.RWMutex

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Client for deviceID on engine.
//
// It acquires the engine runtime (initialising it if this is the first
// Client on engine), creates a persistent session (clean session off), and
// stores the credentials. No network activity happens until Connect.
//
// Parameters:
//   - engine: MQTT engine; shared engines must be comparable (pointers)
//   - deviceID: MQTT client identifier
//   - username, password: Broker credentials (username may be empty)
//   - opts: WithTLSFiles, WithLogger, WithObserver
//
// Returns:
//   - *Client: Ready to Connect
//   - error: *Error of KindInit if the runtime or session cannot be created
func New(engine mqtt.Engine, deviceID, username, password string, opts ...Option) (*Client, error) {
	if engine == nil {
		return nil, newError(KindInit, "new", errors.New("engine is nil"))
	}

	c := &Client{
		engine:     engine,
		deviceID:   deviceID,
		tlsFiles:   DefaultTLSFiles(),
		registry:   newRegistry(),
		deliveries: newPendingDeliveries(),
	}
	c.status.current = Status{State: StateDisconnected, Since: time.Now()}

	for _, opt := range opts {
		opt(c)
	}

	if err := acquireRuntime(engine); err != nil {
		return nil, newError(KindInit, "init", err)
	}

	session, err := engine.NewSession(deviceID, false, &sink{c: c})
	if err != nil {
		releaseRuntime(engine)
		return nil, newError(KindInit, "new session", err)
	}

	if err := session.SetCredentials(username, password); err != nil {
		session.Destroy()
		releaseRuntime(engine)
		return nil, newError(KindInit, "set credentials", err)
	}

	c.session = session
	return c, nil
}

// DeviceID returns the MQTT client identifier.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// Connect configures TLS and starts connecting to host:port.
//
// A nil return means the request was accepted. Whether the broker accepts
// the connection is reported later through Status and SetOnStatus.
//
// Returns:
//   - error: *Error of KindTLSConfig if TLS or protocol options fail (nothing
//     is sent on the network), KindTransport if the engine cannot start the
//     connection, or ErrClosed
func (c *Client) Connect(host string, port uint16) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if err := c.session.ConfigureTLS(c.tlsFiles); err != nil {
		return newError(KindTLSConfig, "connect", err)
	}
	if err := c.session.SetProtocolVersion(ProtocolVersion); err != nil {
		return newError(KindTLSConfig, "connect", err)
	}

	c.setStatus(StateConnecting, nil)

	if err := c.session.ConnectAsync(host, port, KeepAlive); err != nil {
		e := newError(KindTransport, "connect", err)
		c.setStatus(StateDisconnected, e)
		return e
	}
	if err := c.session.StartLoop(); err != nil {
		e := newError(KindTransport, "connect", err)
		c.setStatus(StateDisconnected, e)
		return e
	}

	return nil
}

// Disconnect asks the engine to close the connection.
//
// Returns:
//   - error: *Error of KindTransport if the engine refuses (for example,
//     when not connected), or ErrClosed
func (c *Client) Disconnect() error {
	if c.closed.Load() {
		return ErrClosed
	}

	if err := c.session.Disconnect(); err != nil {
		return newError(KindTransport, "disconnect", err)
	}

	c.setStatus(StateDisconnected, nil)
	return nil
}

// Send publishes message on topic at QoS 1 with the retained flag set.
//
// A nil return means the engine accepted the publish, not that the broker
// received it. Use SendTracked to learn the outcome.
func (c *Client) Send(topic, message string) error {
	_, err := c.publish(topic, message, false)
	return err
}

// SendTracked publishes like Send and returns a Delivery that completes when
// the engine reports the broker's acknowledgement.
func (c *Client) SendTracked(topic, message string) (*Delivery, error) {
	return c.publish(topic, message, true)
}

func (c *Client) publish(topic, message string, tracked bool) (*Delivery, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := mqtt.ValidateTopic(topic); err != nil {
		return nil, err
	}

	id := mqtt.RequestID(c.nextID.Add(1))

	// Register before publishing so an immediate acknowledgement finds it.
	var d *Delivery
	if tracked {
		d = newDelivery(id, topic)
		c.deliveries.add(d)
	}

	if err := c.session.Publish(id, topic, []byte(message), QoS, Retain); err != nil {
		if tracked {
			c.deliveries.take(id)
		}
		e := newError(KindTransport, "send", err)
		c.notifySent(topic, len(message), e)
		return nil, e
	}

	c.notifySent(topic, len(message), nil)
	return d, nil
}

// Subscribe asks the engine to subscribe to topic at QoS 1 and, if the
// engine accepts, routes matching messages to handler.
//
// A later Subscribe on the same topic replaces the handler. Topic filters
// with + and # wildcards are supported; an exact subscription takes
// precedence over a matching wildcard.
//
// Returns:
//   - error: ErrInvalidTopic, ErrNilHandler, ErrClosed, or *Error of
//     KindTransport if the engine refuses (any previous handler for topic
//     is put back)
func (c *Client) Subscribe(topic string, handler Handler) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if handler == nil {
		return ErrNilHandler
	}
	if err := mqtt.ValidateFilter(topic); err != nil {
		return err
	}

	// Register before asking the engine: the broker's retained message can
	// arrive before session.Subscribe returns.
	undo := c.registry.set(topic, handler)

	id := mqtt.RequestID(c.nextID.Add(1))
	if err := c.session.Subscribe(id, topic, QoS); err != nil {
		undo()
		return newError(KindTransport, "subscribe", err)
	}
	return nil
}

// Close disconnects (best effort), destroys the session and releases the
// engine runtime. Outstanding deliveries fail with ErrClosed.
//
// Close is idempotent and always returns nil.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		_ = c.session.Disconnect() //nolint:errcheck // best effort; usually not connected
		c.session.Destroy()
		releaseRuntime(c.engine)

		c.deliveries.failAll(ErrClosed)
		c.setStatus(StateClosed, nil)
	})
	return nil
}

// Status returns the current link status.
func (c *Client) Status() Status {
	return c.status.get()
}

// SetOnStatus sets a callback invoked on every status transition.
// The callback runs on the goroutine that caused the transition, which is
// often an engine goroutine; it may call Subscribe and Send.
func (c *Client) SetOnStatus(callback func(Status)) {
	c.status.setCallback(callback)
}

// SetLogger replaces the logger. If none is set, handler panics are
// recovered silently.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SubscriptionCount returns the number of registered topics and filters.
func (c *Client) SubscriptionCount() int {
	return c.registry.count()
}

// HasSubscription reports whether topic has a registered handler.
// topic is compared literally; filters are not expanded.
func (c *Client) HasSubscription(topic string) bool {
	return c.registry.has(topic)
}

// Subscriptions returns the registered topics and filters, sorted.
func (c *Client) Subscriptions() []string {
	return c.registry.topics()
}

// PendingDeliveries returns the number of tracked publishes still awaiting
// acknowledgement.
func (c *Client) PendingDeliveries() int {
	return c.deliveries.len()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// setStatus records a transition and notifies the callback, observers and log.
func (c *Client) setStatus(state State, err error) {
	st, callback, changed := c.status.set(state, err)
	if !changed {
		return
	}

	if logger := c.getLogger(); logger != nil {
		if err != nil {
			logger.Warn("MQTT link state changed", "device_id", c.deviceID, "state", string(st.State), "error", err)
		} else {
			logger.Info("MQTT link state changed", "device_id", c.deviceID, "state", string(st.State))
		}
	}

	for _, o := range c.observers {
		o.StatusChanged(string(st.State), err)
	}
	if callback != nil {
		callback(st)
	}
}

func (c *Client) notifySent(topic string, size int, err error) {
	for _, o := range c.observers {
		o.MessageSent(topic, size, err)
	}
}

// dispatch routes an inbound message to its handler, if any.
func (c *Client) dispatch(topic string, payload []byte) {
	if c.closed.Load() {
		return
	}
	handler, ok := c.registry.lookup(topic)
	if ok {
		c.invoke(handler, topic, string(payload))
	}

	for _, o := range c.observers {
		o.MessageReceived(topic, len(payload), ok)
	}
}

// invoke runs handler with panic recovery.
func (c *Client) invoke(handler Handler, topic, payload string) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", topic,
					"panic", r,
				)
			}
		}
	}()

	handler(topic, payload)
}

// sink receives engine events on behalf of a Client.
type sink struct {
	c *Client
}

func (s *sink) ConnectAcknowledged(err error) {
	switch {
	case err == nil:
		s.c.setStatus(StateConnected, nil)
	case errors.Is(err, mqtt.ErrConnectionRefused):
		s.c.setStatus(StateRejected, newError(KindProtocol, "connect", err))
	default:
		s.c.setStatus(StateDisconnected, newError(KindTransport, "connect", err))
	}
}

func (s *sink) PublishAcknowledged(id mqtt.RequestID, err error) {
	if s.c.closed.Load() {
		return
	}
	var result error
	if err != nil {
		result = newError(KindTransport, "deliver", err)
	}

	if d := s.c.deliveries.take(id); d != nil {
		d.resolve(result)
	}
	for _, o := range s.c.observers {
		o.DeliveryAcknowledged(uint64(id), result)
	}
}

func (s *sink) SubscribeAcknowledged(_ mqtt.RequestID, err error) {
	if err == nil {
		return
	}
	if logger := s.c.getLogger(); logger != nil {
		logger.Warn("MQTT subscription not acknowledged", "device_id", s.c.deviceID, "error", err)
	}
}

func (s *sink) MessageArrived(topic string, payload []byte) {
	s.c.dispatch(topic, payload)
}

func (s *sink) ConnectionLost(err error) {
	s.c.setStatus(StateLost, newError(KindTransport, "connection", err))
}
