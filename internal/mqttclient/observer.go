package mqttclient

// Observer receives a copy of every link event.
//
// Methods are called synchronously from the goroutine that produced the
// event, including the engine's message goroutine, and must return quickly.
// Parameters use plain types so infrastructure packages can implement the
// interface without importing this package.
type Observer interface {
	// MessageReceived is called for each inbound message after dispatch.
	// dispatched is false when no handler matched.
	MessageReceived(topic string, size int, dispatched bool)

	// MessageSent is called for each publish request. err is the error
	// returned to the caller, if any.
	MessageSent(topic string, size int, err error)

	// DeliveryAcknowledged is called when the engine reports the outcome of
	// a publish that it accepted.
	DeliveryAcknowledged(id uint64, err error)

	// StatusChanged is called on every link state transition.
	StatusChanged(state string, err error)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
