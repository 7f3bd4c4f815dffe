package mqtt

import "errors"

// Domain-specific errors for the MQTT engine adapter.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrNoSession is returned when a session is used after Destroy.
	ErrNoSession = errors.New("mqtt: session destroyed")

	// ErrNilEvents is returned by NewSession when no event sink is supplied.
	ErrNilEvents = errors.New("mqtt: events sink cannot be nil")

	// ErrInvalidBroker is returned when the broker host or port is unusable.
	ErrInvalidBroker = errors.New("mqtt: invalid broker address")

	// ErrTLSConfig is returned when the TLS material cannot be loaded.
	ErrTLSConfig = errors.New("mqtt: TLS configuration failed")

	// ErrUnsupportedProtocol is returned for protocol versions other than 3 and 4.
	ErrUnsupportedProtocol = errors.New("mqtt: unsupported protocol version")

	// ErrConnectionRefused wraps a CONNACK carrying a non-zero return code.
	ErrConnectionRefused = errors.New("mqtt: connection refused by broker")

	// ErrConnectionFailed wraps connect failures that never reached a CONNACK.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when a topic name or filter is malformed.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
