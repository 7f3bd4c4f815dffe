package mqtt

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/logging"
)

// Connection constants.
const (
	// connectTimeout bounds the TCP/TLS handshake and CONNACK wait inside paho.
	connectTimeout = 10 * time.Second

	// disconnectQuiesce is how long paho may spend flushing work on Disconnect (ms).
	disconnectQuiesce = 250

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// subackFailure is the SUBACK return code for a rejected subscription.
	subackFailure = 0x80

	// lastRefusalCode is the highest CONNACK return code defined by MQTT 3.1.1.
	// paho reports local network failures with codes above it.
	lastRefusalCode = 5
)

// Protocol versions accepted by SetProtocolVersion.
const (
	ProtocolV31  uint = 3
	ProtocolV311 uint = 4
)

// PahoEngine is an Engine backed by github.com/eclipse/paho.mqtt.golang.
//
// paho keeps its diagnostic loggers in package-level variables. Init points
// them at the engine's logger and Cleanup silences them again, so Init and
// Cleanup must be paired and not interleaved with another PahoEngine.
type PahoEngine struct {
	logger *logging.Logger
}

// NewPahoEngine creates an engine that logs through logger.
// A nil logger falls back to logging.Default().
func NewPahoEngine(logger *logging.Logger) *PahoEngine {
	if logger == nil {
		logger = logging.Default()
	}
	return &PahoEngine{logger: logger.With("component", "paho")}
}

// Init routes paho's internal logging into the structured logger.
func (e *PahoEngine) Init() error {
	pahomqtt.ERROR = e.logger.Printer(slog.LevelError)
	pahomqtt.CRITICAL = e.logger.Printer(slog.LevelError)
	pahomqtt.WARN = e.logger.Printer(slog.LevelWarn)
	pahomqtt.DEBUG = e.logger.Printer(slog.LevelDebug)
	return nil
}

// Cleanup restores paho's silent default loggers.
func (e *PahoEngine) Cleanup() {
	pahomqtt.ERROR = pahomqtt.NOOPLogger{}
	pahomqtt.CRITICAL = pahomqtt.NOOPLogger{}
	pahomqtt.WARN = pahomqtt.NOOPLogger{}
	pahomqtt.DEBUG = pahomqtt.NOOPLogger{}
}

// NewSession creates an unconnected session for clientID.
func (e *PahoEngine) NewSession(clientID string, cleanSession bool, events Events) (Session, error) {
	if events == nil {
		return nil, ErrNilEvents
	}
	return &pahoSession{
		clientID:     clientID,
		cleanSession: cleanSession,
		protocol:     ProtocolV311,
		events:       events,
		logger:       e.logger.With("client_id", clientID),
	}, nil
}

// pahoSession adapts one paho client to the Session interface.
//
// The paho client is built lazily by ConnectAsync because paho fixes its
// options at construction time.
type pahoSession struct {
	mu           sync.Mutex
	clientID     string
	cleanSession bool
	username     string
	password     string
	protocol     uint
	tlsConfig    *tls.Config
	client       pahomqtt.Client
	destroyed    bool

	events Events
	logger *logging.Logger
}

func (s *pahoSession) SetCredentials(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrNoSession
	}
	s.username = username
	s.password = password
	return nil
}

func (s *pahoSession) ConfigureTLS(files TLSFiles) error {
	cfg, err := LoadTLSConfig(files, s.logger.Warn)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrNoSession
	}
	s.tlsConfig = cfg
	return nil
}

func (s *pahoSession) SetProtocolVersion(version uint) error {
	if version != ProtocolV31 && version != ProtocolV311 {
		return fmt.Errorf("%w: %d", ErrUnsupportedProtocol, version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrNoSession
	}
	s.protocol = version
	return nil
}

// ConnectAsync prepares a paho client for host:port. The network connection
// is opened by StartLoop.
func (s *pahoSession) ConnectAsync(host string, port uint16, keepAlive time.Duration) error {
	if host == "" || port == 0 {
		return fmt.Errorf("%w: %q:%d", ErrInvalidBroker, host, port)
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrNoSession
	}
	previous := s.client
	s.client = pahomqtt.NewClient(s.buildOptions(host, port, keepAlive))
	s.mu.Unlock()

	// The previous client may still be connecting or reconnecting; either
	// way it must stop before the new one claims the same client ID.
	if previous != nil {
		previous.Disconnect(disconnectQuiesce)
	}
	return nil
}

// buildOptions translates the session settings into paho options.
// Caller must hold s.mu.
func (s *pahoSession) buildOptions(host string, port uint16, keepAlive time.Duration) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if s.tlsConfig != nil {
		scheme = "ssl"
		opts.SetTLSConfig(s.tlsConfig)
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, host, port))

	opts.SetClientID(s.clientID)
	if s.username != "" {
		opts.SetUsername(s.username)
		opts.SetPassword(s.password)
	}

	opts.SetProtocolVersion(s.protocol)
	opts.SetCleanSession(s.cleanSession)
	opts.SetKeepAlive(keepAlive)
	opts.SetConnectTimeout(connectTimeout)

	// Reconnect after a lost connection is paho's job; the first attempt
	// is reported once and not retried.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)

	// Deliver messages one at a time, in order, on paho's router goroutine.
	opts.SetOrderMatters(true)
	opts.SetDefaultPublishHandler(func(c pahomqtt.Client, msg pahomqtt.Message) {
		if s.owns(c) {
			s.events.MessageArrived(msg.Topic(), msg.Payload())
		}
	})

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		if s.owns(c) {
			s.events.ConnectAcknowledged(nil)
		}
	})
	opts.SetConnectionLostHandler(func(c pahomqtt.Client, err error) {
		if s.owns(c) {
			s.events.ConnectionLost(err)
		}
	})

	return opts
}

// StartLoop opens the connection in the background. A failed first attempt
// is reported through Events.ConnectAcknowledged.
func (s *pahoSession) StartLoop() error {
	client, err := s.currentClient()
	if err != nil {
		return err
	}

	token := client.Connect()
	go func() {
		token.Wait()
		if err := connectError(token); err != nil && s.owns(client) {
			s.events.ConnectAcknowledged(err)
		}
	}()

	return nil
}

// connectError classifies a finished connect token.
func connectError(token pahomqtt.Token) error {
	err := token.Error()
	if err == nil {
		return nil
	}
	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		if rc := ct.ReturnCode(); rc > 0 && rc <= lastRefusalCode {
			return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}

func (s *pahoSession) Disconnect() error {
	client, err := s.currentClient()
	if err != nil {
		return err
	}
	if !client.IsConnectionOpen() {
		return ErrNotConnected
	}
	client.Disconnect(disconnectQuiesce)
	return nil
}

// Publish hands the message to paho without waiting for the broker.
// Errors paho reports synchronously (for example, not connected) are
// returned; everything else arrives through Events.PublishAcknowledged.
func (s *pahoSession) Publish(id RequestID, topic string, payload []byte, qos byte, retain bool) error {
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	client, err := s.currentClient()
	if err != nil {
		return err
	}

	token := client.Publish(topic, qos, retain, payload)
	if err := failedEarly(token); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	go func() {
		token.Wait()
		var err error
		if token.Error() != nil {
			err = fmt.Errorf("%w: %w", ErrPublishFailed, token.Error())
		}
		s.events.PublishAcknowledged(id, err)
	}()

	return nil
}

// Subscribe requests a subscription whose messages are routed to
// Events.MessageArrived.
func (s *pahoSession) Subscribe(id RequestID, topic string, qos byte) error {
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	client, err := s.currentClient()
	if err != nil {
		return err
	}

	// A nil callback sends matching messages to the default publish handler.
	token := client.Subscribe(topic, qos, nil)
	if err := failedEarly(token); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	go func() {
		token.Wait()
		s.events.SubscribeAcknowledged(id, subscribeError(token, topic))
	}()

	return nil
}

// subscribeError extracts a failure from a finished subscribe token,
// including a SUBACK that granted no QoS.
func subscribeError(token pahomqtt.Token, topic string) error {
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if granted, ok := st.Result()[topic]; ok && granted == subackFailure {
			return fmt.Errorf("%w: broker rejected %q", ErrSubscribeFailed, topic)
		}
	}
	return nil
}

// Destroy stops the paho client in whatever state it is in (connected,
// connecting or reconnecting) and makes the session unusable. Hooks from the
// stopped client are not forwarded once Destroy has begun.
//
// Destroy waits for an in-flight connection attempt to finish, so it must not
// be called from inside an Events hook.
func (s *pahoSession) Destroy() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.destroyed = true
	s.mu.Unlock()

	if client != nil {
		client.Disconnect(disconnectQuiesce)
	}
}

// owns reports whether c is the session's live client. Hooks from a client
// that was replaced or destroyed are dropped.
func (s *pahoSession) owns(c pahomqtt.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.destroyed && s.client == c
}

func (s *pahoSession) currentClient() (pahomqtt.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, ErrNoSession
	}
	if s.client == nil {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// failedEarly returns the token's error if it has already completed with one.
func failedEarly(token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}
