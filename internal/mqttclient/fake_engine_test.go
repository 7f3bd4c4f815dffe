package mqttclient

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/mqtt"
)

// fakeEngine is an in-memory mqtt.Engine for facade tests.
type fakeEngine struct {
	mu           sync.Mutex
	initCalls    int
	cleanupCalls int
	initErr      error
	sessionErr   error
	sessions     []*fakeSession
}

func (e *fakeEngine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initCalls++
	return e.initErr
}

func (e *fakeEngine) Cleanup() {
	e.mu.Lock()
	e.cleanupCalls++
	e.mu.Unlock()
}

func (e *fakeEngine) NewSession(clientID string, cleanSession bool, events mqtt.Events) (mqtt.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionErr != nil {
		return nil, e.sessionErr
	}
	s := &fakeSession{clientID: clientID, cleanSession: cleanSession, events: events}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *fakeEngine) counts() (initCalls, cleanupCalls int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initCalls, e.cleanupCalls
}

func (e *fakeEngine) lastSession() *fakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// fakePublish records one Publish call.
type fakePublish struct {
	id      mqtt.RequestID
	topic   string
	payload string
	qos     byte
	retain  bool
}

// fakeSession records calls and lets tests inject failures and events.
type fakeSession struct {
	mu           sync.Mutex
	clientID     string
	cleanSession bool
	events       mqtt.Events

	username string
	password string
	tlsFiles mqtt.TLSFiles
	protocol uint
	host     string
	port     uint16
	keep     time.Duration

	tlsErr        error
	connectErr    error
	startErr      error
	disconnectErr error
	publishErr    error
	subscribeErr  error

	// retained is delivered from inside Subscribe, before it returns, the
	// way a broker's retained message can beat the SUBACK bookkeeping.
	retained map[string]string

	loopStarted bool
	connected   bool
	destroyed   int
	publishes   []fakePublish
	subscribed  []string
	subQoS      []byte
}

func (s *fakeSession) SetCredentials(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username, s.password = username, password
	return nil
}

func (s *fakeSession) ConfigureTLS(files mqtt.TLSFiles) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tlsErr != nil {
		return s.tlsErr
	}
	s.tlsFiles = files
	return nil
}

func (s *fakeSession) SetProtocolVersion(version uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocol = version
	return nil
}

func (s *fakeSession) ConnectAsync(host string, port uint16, keepAlive time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.host, s.port, s.keep = host, port, keepAlive
	return nil
}

func (s *fakeSession) StartLoop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.loopStarted = true
	return nil
}

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnectErr != nil {
		return s.disconnectErr
	}
	if !s.connected {
		return mqtt.ErrNotConnected
	}
	s.connected = false
	return nil
}

func (s *fakeSession) Publish(id mqtt.RequestID, topic string, payload []byte, qos byte, retain bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return s.publishErr
	}
	if !s.connected {
		return fmt.Errorf("%w: %w", mqtt.ErrPublishFailed, mqtt.ErrNotConnected)
	}
	s.publishes = append(s.publishes, fakePublish{id: id, topic: topic, payload: string(payload), qos: qos, retain: retain})
	return nil
}

func (s *fakeSession) Subscribe(_ mqtt.RequestID, topic string, qos byte) error {
	s.mu.Lock()
	if s.subscribeErr != nil {
		err := s.subscribeErr
		s.mu.Unlock()
		return err
	}
	s.subscribed = append(s.subscribed, topic)
	s.subQoS = append(s.subQoS, qos)
	payload, ok := s.retained[topic]
	s.mu.Unlock()

	if ok {
		s.events.MessageArrived(topic, []byte(payload))
	}
	return nil
}

func (s *fakeSession) Destroy() {
	s.mu.Lock()
	s.destroyed++
	s.connected = false
	s.mu.Unlock()
}

// acceptConnection simulates a successful CONNACK.
func (s *fakeSession) acceptConnection() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.events.ConnectAcknowledged(nil)
}

// deliver simulates an inbound message from the broker.
func (s *fakeSession) deliver(topic, payload string) {
	s.events.MessageArrived(topic, []byte(payload))
}

// ack simulates the broker acknowledging publish id.
func (s *fakeSession) ack(id mqtt.RequestID, err error) {
	s.events.PublishAcknowledged(id, err)
}

func (s *fakeSession) lastPublish() (fakePublish, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.publishes) == 0 {
		return fakePublish{}, false
	}
	return s.publishes[len(s.publishes)-1], true
}

func (s *fakeSession) destroyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

var errFake = errors.New("fake engine failure")

// recordingLogger captures log calls.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
	infos  []string
}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// recordingObserver captures observer calls.
type recordingObserver struct {
	mu       sync.Mutex
	received []receivedEvent
	sent     []error
	acks     []uint64
	states   []string
}

type receivedEvent struct {
	topic      string
	size       int
	dispatched bool
}

func (o *recordingObserver) MessageReceived(topic string, size int, dispatched bool) {
	o.mu.Lock()
	o.received = append(o.received, receivedEvent{topic, size, dispatched})
	o.mu.Unlock()
}

func (o *recordingObserver) MessageSent(_ string, _ int, err error) {
	o.mu.Lock()
	o.sent = append(o.sent, err)
	o.mu.Unlock()
}

func (o *recordingObserver) DeliveryAcknowledged(id uint64, _ error) {
	o.mu.Lock()
	o.acks = append(o.acks, id)
	o.mu.Unlock()
}

func (o *recordingObserver) StatusChanged(state string, _ error) {
	o.mu.Lock()
	o.states = append(o.states, state)
	o.mu.Unlock()
}
