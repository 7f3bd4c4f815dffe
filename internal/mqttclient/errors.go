package mqttclient

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/mqtt"
)

// Kind classifies why a facade operation failed.
type Kind int

// Error kinds.
const (
	// KindInit means the engine runtime or session could not be created.
	KindInit Kind = iota + 1

	// KindTLSConfig means TLS material or protocol options were rejected
	// before any network activity.
	KindTLSConfig

	// KindTransport means the engine refused a request or the connection failed.
	KindTransport

	// KindProtocol means the broker answered but refused the request.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindTLSConfig:
		return "tls config"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors. An *Error matches the sentinel for its Kind with errors.Is.
var (
	ErrInit      = errors.New("mqttclient: initialisation failed")
	ErrTLSConfig = errors.New("mqttclient: TLS configuration failed")
	ErrTransport = errors.New("mqttclient: transport failure")
	ErrProtocol  = errors.New("mqttclient: protocol failure")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("mqttclient: client closed")

	// ErrNilHandler is returned by Subscribe when handler is nil.
	ErrNilHandler = errors.New("mqttclient: handler cannot be nil")

	// ErrInvalidTopic is returned for malformed topic names and filters.
	ErrInvalidTopic = mqtt.ErrInvalidTopic
)

// Error carries the failure kind, the facade operation, and the engine's
// original diagnostic.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mqttclient: %s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("mqttclient: %s: %s failure: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the engine error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInit:
		return e.Kind == KindInit
	case ErrTLSConfig:
		return e.Kind == KindTLSConfig
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrProtocol:
		return e.Kind == KindProtocol
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
