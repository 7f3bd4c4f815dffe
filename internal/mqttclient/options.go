package mqttclient

import (
	"time"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/mqtt"
)

// Fixed protocol parameters.
const (
	// QoS is used for every publish and subscribe (at least once).
	QoS byte = 1

	// KeepAlive is the MQTT keep-alive interval.
	KeepAlive = 60 * time.Second

	// ProtocolVersion selects MQTT 3.1.1.
	ProtocolVersion = mqtt.ProtocolV311

	// Retain is the retained flag set on every publish.
	Retain = true
)

// Default TLS material locations, relative to the working directory.
const (
	DefaultCertDir  = "certificates"
	DefaultCAFile   = "certificates/ca.crt"
	DefaultCertFile = "certificates/client01.crt"
	DefaultKeyFile  = "certificates/client01.key"
)

// DefaultTLSFiles returns the conventional certificates/ layout.
func DefaultTLSFiles() mqtt.TLSFiles {
	return mqtt.TLSFiles{
		CAFile:   DefaultCAFile,
		CertDir:  DefaultCertDir,
		CertFile: DefaultCertFile,
		KeyFile:  DefaultKeyFile,
	}
}

// Option configures a Client at construction.
type Option func(*Client)

// WithTLSFiles overrides the TLS material used by Connect.
// Empty fields keep their defaults.
func WithTLSFiles(files mqtt.TLSFiles) Option {
	return func(c *Client) {
		if files.CAFile != "" {
			c.tlsFiles.CAFile = files.CAFile
		}
		if files.CertDir != "" {
			c.tlsFiles.CertDir = files.CertDir
		}
		if files.CertFile != "" {
			c.tlsFiles.CertFile = files.CertFile
		}
		if files.KeyFile != "" {
			c.tlsFiles.KeyFile = files.KeyFile
		}
	}
}

// WithLogger sets the logger used for handler panics and link transitions.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithObserver adds an observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}
