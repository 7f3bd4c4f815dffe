package mqttclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/mqtt"
)

// newTestClient builds a Client on a fresh fake engine and closes it at the end.
func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeEngine, *fakeSession) {
	t.Helper()
	engine := &fakeEngine{}
	c, err := New(engine, "sensor-17", "user", "secret", opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // test cleanup
	return c, engine, engine.lastSession()
}

// connectedClient returns a Client whose fake session has accepted the connection.
func connectedClient(t *testing.T, opts ...Option) (*Client, *fakeSession) {
	t.Helper()
	c, _, s := newTestClient(t, opts...)
	if err := c.Connect("broker.local", 8883); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.acceptConnection()
	return c, s
}

// ============================================================================
// Construction
// ============================================================================

func TestNew(t *testing.T) {
	c, engine, s := newTestClient(t)

	if initCalls, _ := engine.counts(); initCalls != 1 {
		t.Errorf("Init calls = %d, want 1", initCalls)
	}
	if s.clientID != "sensor-17" {
		t.Errorf("session clientID = %q, want sensor-17", s.clientID)
	}
	if s.cleanSession {
		t.Error("session should be persistent (clean session off)")
	}
	if s.username != "user" || s.password != "secret" {
		t.Errorf("credentials = %q/%q, want user/secret", s.username, s.password)
	}
	if got := c.Status().State; got != StateDisconnected {
		t.Errorf("initial state = %q, want %q", got, StateDisconnected)
	}
	if c.DeviceID() != "sensor-17" {
		t.Errorf("DeviceID() = %q, want sensor-17", c.DeviceID())
	}
}

func TestNew_InitFailure(t *testing.T) {
	engine := &fakeEngine{initErr: errFake}

	c, err := New(engine, "sensor-17", "", "")
	if c != nil {
		t.Error("New() should not return a client on init failure")
	}
	if !errors.Is(err, ErrInit) {
		t.Errorf("New() error = %v, want ErrInit", err)
	}
	if !errors.Is(err, errFake) {
		t.Errorf("New() error = %v, should wrap the engine diagnostic", err)
	}
	if KindOf(err) != KindInit {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindInit)
	}
	if runtimeRefs(engine) != 0 {
		t.Errorf("runtime refs = %d, want 0", runtimeRefs(engine))
	}
}

func TestNew_SessionFailureReleasesRuntime(t *testing.T) {
	engine := &fakeEngine{sessionErr: errFake}

	_, err := New(engine, "sensor-17", "", "")
	if !errors.Is(err, ErrInit) {
		t.Errorf("New() error = %v, want ErrInit", err)
	}

	initCalls, cleanupCalls := engine.counts()
	if initCalls != 1 || cleanupCalls != 1 {
		t.Errorf("Init/Cleanup = %d/%d, want 1/1", initCalls, cleanupCalls)
	}
}

func TestNew_NilEngine(t *testing.T) {
	if _, err := New(nil, "sensor-17", "", ""); !errors.Is(err, ErrInit) {
		t.Errorf("New(nil) error = %v, want ErrInit", err)
	}
}

// ============================================================================
// Connect / Disconnect
// ============================================================================

func TestConnect(t *testing.T) {
	c, _, s := newTestClient(t)

	if err := c.Connect("broker.local", 8883); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if s.tlsFiles != DefaultTLSFiles() {
		t.Errorf("TLS files = %+v, want defaults", s.tlsFiles)
	}
	if s.protocol != mqtt.ProtocolV311 {
		t.Errorf("protocol = %d, want 4", s.protocol)
	}
	if s.host != "broker.local" || s.port != 8883 {
		t.Errorf("broker = %s:%d, want broker.local:8883", s.host, s.port)
	}
	if s.keep != 60*time.Second {
		t.Errorf("keepAlive = %v, want 60s", s.keep)
	}
	if !s.loopStarted {
		t.Error("engine loop should be started")
	}
	if got := c.Status().State; got != StateConnecting {
		t.Errorf("state after Connect = %q, want %q", got, StateConnecting)
	}

	s.acceptConnection()
	if !c.Status().Connected() {
		t.Errorf("state after CONNACK = %q, want connected", c.Status().State)
	}
}

func TestConnect_WithTLSFiles(t *testing.T) {
	c, _, s := newTestClient(t, WithTLSFiles(mqtt.TLSFiles{KeyFile: "/etc/devicelink/key.pem"}))

	if err := c.Connect("broker.local", 8883); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if s.tlsFiles.KeyFile != "/etc/devicelink/key.pem" {
		t.Errorf("KeyFile = %q, want override", s.tlsFiles.KeyFile)
	}
	if s.tlsFiles.CAFile != DefaultCAFile {
		t.Errorf("CAFile = %q, want default", s.tlsFiles.CAFile)
	}
}

// A TLS configuration failure must stop Connect before any network request.
func TestConnect_TLSFailureDoesNotStartLoop(t *testing.T) {
	c, _, s := newTestClient(t)
	s.tlsErr = mqtt.ErrTLSConfig

	err := c.Connect("broker.local", 8883)
	if !errors.Is(err, ErrTLSConfig) {
		t.Fatalf("Connect() error = %v, want ErrTLSConfig", err)
	}
	if !errors.Is(err, mqtt.ErrTLSConfig) {
		t.Errorf("Connect() error = %v, should wrap the engine diagnostic", err)
	}
	if s.loopStarted {
		t.Error("engine loop must not start after TLS failure")
	}
	if s.host != "" {
		t.Error("no connection should be requested after TLS failure")
	}
	if got := c.Status().State; got != StateDisconnected {
		t.Errorf("state = %q, want %q", got, StateDisconnected)
	}
}

func TestConnect_TransportFailures(t *testing.T) {
	tests := []struct {
		name   string
		inject func(*fakeSession)
	}{
		{"connect request refused", func(s *fakeSession) { s.connectErr = mqtt.ErrInvalidBroker }},
		{"loop start refused", func(s *fakeSession) { s.startErr = errFake }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, s := newTestClient(t)
			tt.inject(s)

			err := c.Connect("broker.local", 8883)
			if !errors.Is(err, ErrTransport) {
				t.Errorf("Connect() error = %v, want ErrTransport", err)
			}
			st := c.Status()
			if st.State != StateDisconnected || st.Err == nil {
				t.Errorf("status = %+v, want disconnected with error", st)
			}
		})
	}
}

func TestConnect_BrokerRejection(t *testing.T) {
	c, _, s := newTestClient(t)

	var got []Status
	var mu sync.Mutex
	c.SetOnStatus(func(st Status) {
		mu.Lock()
		got = append(got, st)
		mu.Unlock()
	})

	if err := c.Connect("broker.local", 8883); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.events.ConnectAcknowledged(errors.Join(mqtt.ErrConnectionRefused, errFake))

	st := c.Status()
	if st.State != StateRejected {
		t.Fatalf("state = %q, want %q", st.State, StateRejected)
	}
	if !errors.Is(st.Err, ErrProtocol) {
		t.Errorf("status error = %v, want ErrProtocol", st.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0].State != StateConnecting || got[1].State != StateRejected {
		t.Errorf("callback states = %+v, want [connecting rejected]", got)
	}
}

func TestConnect_NetworkFailureReported(t *testing.T) {
	c, _, s := newTestClient(t)
	if err := c.Connect("broker.local", 8883); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	s.events.ConnectAcknowledged(mqtt.ErrConnectionFailed)

	st := c.Status()
	if st.State != StateDisconnected || !errors.Is(st.Err, ErrTransport) {
		t.Errorf("status = %+v, want disconnected with transport error", st)
	}
}

func TestConnectionLost(t *testing.T) {
	c, s := connectedClient(t)

	s.events.ConnectionLost(errFake)

	st := c.Status()
	if st.State != StateLost {
		t.Errorf("state = %q, want %q", st.State, StateLost)
	}
	if !errors.Is(st.Err, errFake) {
		t.Errorf("status error = %v, should wrap the engine error", st.Err)
	}
}

func TestDisconnect(t *testing.T) {
	c, _ := connectedClient(t)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if got := c.Status().State; got != StateDisconnected {
		t.Errorf("state = %q, want %q", got, StateDisconnected)
	}

	err := c.Disconnect()
	if !errors.Is(err, ErrTransport) || !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("second Disconnect() error = %v, want transport error wrapping ErrNotConnected", err)
	}
}

// ============================================================================
// Send
// ============================================================================

func TestSend(t *testing.T) {
	c, s := connectedClient(t)

	if err := c.Send("devices/sensor-17/telemetry/temp", "21.5"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	p, ok := s.lastPublish()
	if !ok {
		t.Fatal("no publish recorded")
	}
	if p.topic != "devices/sensor-17/telemetry/temp" || p.payload != "21.5" {
		t.Errorf("publish = %+v, want topic/payload passed through", p)
	}
	if p.qos != 1 {
		t.Errorf("qos = %d, want 1", p.qos)
	}
	if !p.retain {
		t.Error("retain flag should be set")
	}
}

// Send reports engine errors and succeeds without waiting for the broker.
func TestSend_TransportError(t *testing.T) {
	c, _, _ := newTestClient(t)

	err := c.Send("devices/sensor-17/status", "online")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Send() while not connected error = %v, want ErrTransport", err)
	}
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Send() error = %v, should wrap engine diagnostic", err)
	}
}

func TestSend_AcceptedWithoutAck(t *testing.T) {
	c, s := connectedClient(t)

	if err := c.Send("a/b", "x"); err != nil {
		t.Fatalf("Send() error = %v, want nil before any acknowledgement", err)
	}
	if _, ok := s.lastPublish(); !ok {
		t.Error("publish should reach the engine")
	}
}

func TestSend_InvalidTopic(t *testing.T) {
	c, _ := connectedClient(t)

	for _, topic := range []string{"", "a/+/b", "a/#"} {
		if err := c.Send(topic, "x"); !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("Send(%q) error = %v, want ErrInvalidTopic", topic, err)
		}
	}
}

// ============================================================================
// SendTracked / Delivery
// ============================================================================

func TestSendTracked_ResolvesOnAck(t *testing.T) {
	c, s := connectedClient(t)

	d, err := c.SendTracked("a/b", "x")
	if err != nil {
		t.Fatalf("SendTracked() error = %v", err)
	}
	select {
	case <-d.Done():
		t.Fatal("delivery resolved before acknowledgement")
	default:
	}
	if c.PendingDeliveries() != 1 {
		t.Errorf("PendingDeliveries() = %d, want 1", c.PendingDeliveries())
	}

	p, _ := s.lastPublish()
	if uint64(p.id) != d.ID() {
		t.Errorf("publish id = %d, delivery id = %d", p.id, d.ID())
	}
	s.ack(p.id, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if d.Err() != nil {
		t.Errorf("Err() = %v, want nil", d.Err())
	}
	if d.Topic() != "a/b" {
		t.Errorf("Topic() = %q, want a/b", d.Topic())
	}
	if c.PendingDeliveries() != 0 {
		t.Errorf("PendingDeliveries() = %d, want 0", c.PendingDeliveries())
	}
}

func TestSendTracked_FailedAck(t *testing.T) {
	c, s := connectedClient(t)

	d, err := c.SendTracked("a/b", "x")
	if err != nil {
		t.Fatalf("SendTracked() error = %v", err)
	}
	p, _ := s.lastPublish()
	s.ack(p.id, mqtt.ErrPublishFailed)

	<-d.Done()
	if !errors.Is(d.Err(), ErrTransport) || !errors.Is(d.Err(), mqtt.ErrPublishFailed) {
		t.Errorf("Err() = %v, want transport error wrapping ErrPublishFailed", d.Err())
	}
}

func TestSendTracked_CorrelatesOutOfOrderAcks(t *testing.T) {
	c, s := connectedClient(t)

	first, _ := c.SendTracked("a/1", "x")
	p1, _ := s.lastPublish()
	second, _ := c.SendTracked("a/2", "y")
	p2, _ := s.lastPublish()

	s.ack(p2.id, nil)
	select {
	case <-second.Done():
	default:
		t.Error("second delivery should resolve on its own ack")
	}
	select {
	case <-first.Done():
		t.Error("first delivery must not resolve on another request's ack")
	default:
	}

	s.ack(p1.id, nil)
	<-first.Done()
}

func TestSendTracked_WaitHonoursContext(t *testing.T) {
	c, _ := connectedClient(t)

	d, err := c.SendTracked("a/b", "x")
	if err != nil {
		t.Fatalf("SendTracked() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestSendTracked_EngineRejects(t *testing.T) {
	c, _, _ := newTestClient(t)

	d, err := c.SendTracked("a/b", "x")
	if d != nil || !errors.Is(err, ErrTransport) {
		t.Errorf("SendTracked() = %v, %v; want nil, ErrTransport", d, err)
	}
	if c.PendingDeliveries() != 0 {
		t.Errorf("PendingDeliveries() = %d, want 0 after rejection", c.PendingDeliveries())
	}
}

func TestClose_FailsPendingDeliveries(t *testing.T) {
	c, _ := connectedClient(t)

	d, err := c.SendTracked("a/b", "x")
	if err != nil {
		t.Fatalf("SendTracked() error = %v", err)
	}

	c.Close() //nolint:errcheck // always nil

	<-d.Done()
	if !errors.Is(d.Err(), ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", d.Err())
	}
}

// ============================================================================
// Subscribe and dispatch
// ============================================================================

// A subscribed topic's handler runs exactly once with the verbatim payload.
func TestSubscribe_DispatchesExactlyOnce(t *testing.T) {
	c, s := connectedClient(t)

	var calls []string
	err := c.Subscribe("devices/sensor-17/command", func(topic, payload string) {
		calls = append(calls, topic+"="+payload)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if len(s.subscribed) != 1 || s.subQoS[0] != 1 {
		t.Errorf("engine subscriptions = %v qos %v, want one at QoS 1", s.subscribed, s.subQoS)
	}

	payload := "{\"cmd\":\"reboot\",\"bytes\":\"\x00\xff\"}"
	s.deliver("devices/sensor-17/command", payload)

	if len(calls) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(calls))
	}
	if calls[0] != "devices/sensor-17/command="+payload {
		t.Errorf("handler got %q, want verbatim payload", calls[0])
	}
}

// Subscribing the same topic twice keeps only the second handler.
func TestSubscribe_ReplacesHandler(t *testing.T) {
	c, s := connectedClient(t)

	var first, second int
	if err := c.Subscribe("a/b", func(string, string) { first++ }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Subscribe("a/b", func(string, string) { second++ }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	s.deliver("a/b", "x")

	if first != 0 || second != 1 {
		t.Errorf("first/second calls = %d/%d, want 0/1", first, second)
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", c.SubscriptionCount())
	}
}

// Unmatched messages are dropped without handler calls or panics.
func TestDispatch_UnmatchedTopicDropped(t *testing.T) {
	obs := &recordingObserver{}
	logger := &recordingLogger{}
	c, s := connectedClient(t, WithObserver(obs), WithLogger(logger))

	var calls int
	if err := c.Subscribe("a/b", func(string, string) { calls++ }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	s.deliver("x/y", "ignored")

	if calls != 0 {
		t.Errorf("handler calls = %d, want 0", calls)
	}
	if logger.errorCount() != 0 || len(logger.warns) != 0 {
		t.Error("dropped messages should not be logged")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.received) != 1 || obs.received[0].dispatched {
		t.Errorf("observer received = %+v, want one undispatched", obs.received)
	}
}

func TestDispatch_NoSubscriptions(t *testing.T) {
	_, s := connectedClient(t)
	s.deliver("anything", "x")
}

func TestDispatch_WildcardFallback(t *testing.T) {
	c, s := connectedClient(t)

	var exact, wild []string
	if err := c.Subscribe("devices/+/command", func(topic, _ string) { wild = append(wild, topic) }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Subscribe("devices/sensor-17/command", func(topic, _ string) { exact = append(exact, topic) }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	s.deliver("devices/sensor-17/command", "a")
	s.deliver("devices/sensor-18/command", "b")
	s.deliver("devices/sensor-18/status", "c")

	if len(exact) != 1 || exact[0] != "devices/sensor-17/command" {
		t.Errorf("exact handler topics = %v", exact)
	}
	if len(wild) != 1 || wild[0] != "devices/sensor-18/command" {
		t.Errorf("wildcard handler topics = %v", wild)
	}
}

func TestDispatch_FirstRegisteredFilterWins(t *testing.T) {
	c, s := connectedClient(t)

	var winner string
	if err := c.Subscribe("devices/#", func(string, string) { winner = "hash" }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Subscribe("devices/+/status", func(string, string) { winner = "plus" }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	s.deliver("devices/x/status", "")
	if winner != "hash" {
		t.Errorf("winner = %q, want hash", winner)
	}
}

func TestDispatch_HandlerPanicRecovered(t *testing.T) {
	logger := &recordingLogger{}
	c, s := connectedClient(t, WithLogger(logger))

	if err := c.Subscribe("a/b", func(string, string) { panic("boom") }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	s.deliver("a/b", "x")

	if logger.errorCount() != 1 {
		t.Errorf("logged errors = %d, want 1", logger.errorCount())
	}
}

func TestSubscribe_EngineFailureDoesNotRegister(t *testing.T) {
	c, s := connectedClient(t)
	s.subscribeErr = mqtt.ErrSubscribeFailed

	var calls int
	err := c.Subscribe("a/b", func(string, string) { calls++ })
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Subscribe() error = %v, want ErrTransport", err)
	}
	if c.HasSubscription("a/b") {
		t.Error("handler should not be registered after engine failure")
	}

	s.deliver("a/b", "x")
	if calls != 0 {
		t.Errorf("handler calls = %d, want 0", calls)
	}
}

func TestSubscribe_EngineFailureRestoresPreviousHandler(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		deliv string
	}{
		{"exact", "a/b", "a/b"},
		{"wildcard", "a/+", "a/c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := connectedClient(t)

			var first, second int
			if err := c.Subscribe(tt.topic, func(string, string) { first++ }); err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}

			s.mu.Lock()
			s.subscribeErr = mqtt.ErrSubscribeFailed
			s.mu.Unlock()
			if err := c.Subscribe(tt.topic, func(string, string) { second++ }); !errors.Is(err, ErrTransport) {
				t.Fatalf("Subscribe() error = %v, want ErrTransport", err)
			}

			s.deliver(tt.deliv, "x")
			if first != 1 || second != 0 {
				t.Errorf("first = %d, second = %d; want 1, 0", first, second)
			}
			if c.SubscriptionCount() != 1 {
				t.Errorf("SubscriptionCount() = %d, want 1", c.SubscriptionCount())
			}
		})
	}
}

func TestSubscribe_RetainedMessageBeforeReturn(t *testing.T) {
	c, s := connectedClient(t)
	s.mu.Lock()
	s.retained = map[string]string{"devices/sensor-17/command": "on"}
	s.mu.Unlock()

	var got []string
	err := c.Subscribe("devices/sensor-17/command", func(_, payload string) {
		got = append(got, payload)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if len(got) != 1 || got[0] != "on" {
		t.Errorf("handler payloads = %v, want [on]", got)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, s := connectedClient(t)

	if err := c.Subscribe("a/b", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrNilHandler", err)
	}
	if err := c.Subscribe("", func(string, string) {}); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("a/#/b", func(string, string) {}); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(a/#/b) error = %v, want ErrInvalidTopic", err)
	}
	if len(s.subscribed) != 0 {
		t.Errorf("engine subscriptions = %v, want none", s.subscribed)
	}
}

func TestSubscriptions(t *testing.T) {
	c, _ := connectedClient(t)
	noop := func(string, string) {}

	for _, topic := range []string{"b/c", "a/#", "a/b"} {
		if err := c.Subscribe(topic, noop); err != nil {
			t.Fatalf("Subscribe(%q) error = %v", topic, err)
		}
	}

	got := c.Subscriptions()
	want := []string{"a/#", "a/b", "b/c"}
	if len(got) != len(want) {
		t.Fatalf("Subscriptions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Subscriptions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if !c.HasSubscription("a/#") || c.HasSubscription("a/c") {
		t.Error("HasSubscription should compare literally")
	}
}

// Subscribing from the application while the engine dispatches must be safe.
func TestSubscribe_ConcurrentWithDispatch(t *testing.T) {
	c, s := connectedClient(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = c.Subscribe("a/b", func(string, string) {}) //nolint:errcheck // stress only
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.deliver("a/b", "x")
		}
	}()
	wg.Wait()
}

// ============================================================================
// Close
// ============================================================================

func TestClose(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
	}{
		{"never connected", false},
		{"connected", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			c, err := New(engine, "sensor-17", "", "")
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			s := engine.lastSession()
			if tt.connect {
				if err := c.Connect("broker.local", 8883); err != nil {
					t.Fatalf("Connect() error = %v", err)
				}
				s.acceptConnection()
			}

			done := make(chan struct{})
			go func() {
				c.Close() //nolint:errcheck // always nil
				c.Close() //nolint:errcheck // second call is a no-op
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("Close() did not return")
			}

			if s.destroyCount() != 1 {
				t.Errorf("Destroy calls = %d, want 1", s.destroyCount())
			}
			if _, cleanupCalls := engine.counts(); cleanupCalls != 1 {
				t.Errorf("Cleanup calls = %d, want 1", cleanupCalls)
			}
			if c.Status().State != StateClosed {
				t.Errorf("state = %q, want closed", c.Status().State)
			}
		})
	}
}

func TestClose_OperationsReturnErrClosed(t *testing.T) {
	c, _ := connectedClient(t)
	c.Close() //nolint:errcheck // always nil

	if err := c.Connect("broker.local", 8883); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() error = %v, want ErrClosed", err)
	}
	if err := c.Disconnect(); !errors.Is(err, ErrClosed) {
		t.Errorf("Disconnect() error = %v, want ErrClosed", err)
	}
	if err := c.Send("a/b", "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() error = %v, want ErrClosed", err)
	}
	if err := c.Subscribe("a/b", func(string, string) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() error = %v, want ErrClosed", err)
	}
}

func TestClose_LateEngineEventsIgnored(t *testing.T) {
	obs := &recordingObserver{}
	c, s := connectedClient(t, WithObserver(obs))

	var calls int
	if err := c.Subscribe("devices/a/command", func(string, string) { calls++ }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	c.Close() //nolint:errcheck // always nil

	s.events.ConnectionLost(errFake)
	s.events.ConnectAcknowledged(nil)
	s.events.MessageArrived("devices/a/command", []byte("late"))
	s.events.PublishAcknowledged(99, nil)

	if c.Status().State != StateClosed {
		t.Errorf("state = %q, want closed", c.Status().State)
	}
	if calls != 0 {
		t.Errorf("handler calls after Close = %d, want 0", calls)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.received) != 0 {
		t.Errorf("observer received %d messages after Close, want 0", len(obs.received))
	}
	if len(obs.acks) != 0 {
		t.Errorf("observer saw acks %v after Close, want none", obs.acks)
	}
}

// ============================================================================
// Observers
// ============================================================================

func TestObserver_ReceivesEvents(t *testing.T) {
	obs := &recordingObserver{}
	c, s := connectedClient(t, WithObserver(obs), WithObserver(nil))

	if err := c.Subscribe("a/b", func(string, string) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	s.deliver("a/b", "hello")
	d, err := c.SendTracked("a/b", "x")
	if err != nil {
		t.Fatalf("SendTracked() error = %v", err)
	}
	s.ack(mqtt.RequestID(d.ID()), nil)

	obs.mu.Lock()
	defer obs.mu.Unlock()

	if len(obs.states) != 2 || obs.states[0] != "connecting" || obs.states[1] != "connected" {
		t.Errorf("states = %v, want [connecting connected]", obs.states)
	}
	if len(obs.received) != 1 || obs.received[0] != (receivedEvent{"a/b", 5, true}) {
		t.Errorf("received = %+v", obs.received)
	}
	if len(obs.sent) != 1 || obs.sent[0] != nil {
		t.Errorf("sent = %v, want one success", obs.sent)
	}
	if len(obs.acks) != 1 || obs.acks[0] != d.ID() {
		t.Errorf("acks = %v, want [%d]", obs.acks, d.ID())
	}
}

// ============================================================================
// Errors
// ============================================================================

func TestError(t *testing.T) {
	err := newError(KindTransport, "send", mqtt.ErrNotConnected)

	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is(ErrTransport) = false")
	}
	if errors.Is(err, ErrProtocol) {
		t.Error("errors.Is(ErrProtocol) = true for a transport error")
	}
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Error("engine diagnostic should be reachable with errors.Is")
	}
	if got := err.Error(); got != "mqttclient: send: transport failure: mqtt: client not connected" {
		t.Errorf("Error() = %q", got)
	}
	if KindOf(errFake) != 0 {
		t.Error("KindOf(non-facade error) should be 0")
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("Kind(99).String() = %q", Kind(99).String())
	}
}
