package mqtt

import "time"

// RequestID correlates a Publish or Subscribe call with its acknowledgement.
// IDs are chosen by the caller and handed back unchanged through Events.
type RequestID uint64

// TLSFiles names the PEM files used to secure the broker connection.
type TLSFiles struct {
	// CAFile is the certificate authority bundle. A missing file is tolerated.
	CAFile string

	// CertDir is scanned for additional *.crt and *.pem trust anchors.
	CertDir string

	// CertFile and KeyFile hold the client certificate and its unencrypted key.
	CertFile string
	KeyFile  string
}

// Engine is the process-wide MQTT runtime that creates sessions.
//
// Init and Cleanup bracket the lifetime of every session created by the
// engine. Callers sharing one engine must coordinate so that Init runs once
// before the first session and Cleanup once after the last.
type Engine interface {
	Init() error
	Cleanup()
	NewSession(clientID string, cleanSession bool, events Events) (Session, error)
}

// Session is one client connection owned by an Engine.
//
// None of the methods wait for the broker. Results that depend on the broker
// arrive later through the Events the session was created with.
type Session interface {
	SetCredentials(username, password string) error
	ConfigureTLS(files TLSFiles) error
	SetProtocolVersion(version uint) error
	ConnectAsync(host string, port uint16, keepAlive time.Duration) error
	StartLoop() error
	Disconnect() error
	Publish(id RequestID, topic string, payload []byte, qos byte, retain bool) error
	Subscribe(id RequestID, topic string, qos byte) error
	Destroy()
}

// Events receives the asynchronous outcomes of a Session.
//
// Hooks are called from engine goroutines. MessageArrived is called from a
// single goroutine in arrival order; implementations must not block it for
// long.
type Events interface {
	// ConnectAcknowledged reports the broker's answer to a connect request.
	// err is nil on success and wraps ErrConnectionRefused when the broker
	// rejected the client.
	ConnectAcknowledged(err error)

	PublishAcknowledged(id RequestID, err error)
	SubscribeAcknowledged(id RequestID, err error)
	MessageArrived(topic string, payload []byte)

	// ConnectionLost reports an established connection dropping.
	ConnectionLost(err error)
}
