// Package mqtt is the engine layer underneath the devicelink client facade.
//
// This package manages:
//   - The Engine, Session and Events contract the facade is written against
//   - A paho.mqtt.golang implementation of that contract (PahoEngine)
//   - Client TLS configuration from PEM files
//   - Topic validation, wildcard matching and per-device topic builders
//
// # Architecture
//
// The engine owns everything that touches the network: TCP/TLS, packet
// encoding, QoS retransmission, keep-alive pings and reconnect backoff.
// Every Session method returns as soon as the request has been handed to
// paho; broker answers come back through the Events hooks on paho's
// goroutines.
//
//	mqttclient.Client → Session → paho → broker
//	mqttclient.Client ← Events  ← paho ← broker
//
// Incoming messages are routed through paho's default publish handler with
// ordered delivery enabled, so MessageArrived is called from one goroutine in
// arrival order.
//
// # Security Considerations
//
//   - TLS 1.2 is the minimum accepted version
//   - A missing CA file is logged as a warning; the client key pair is mandatory
//   - Passwords are passed to paho only and never logged
//
// # Usage
//
//	engine := mqtt.NewPahoEngine(logger)
//	if err := engine.Init(); err != nil {
//	    return err
//	}
//	defer engine.Cleanup()
//
//	session, err := engine.NewSession("sensor-17", false, sink)
//	if err != nil {
//	    return err
//	}
//	defer session.Destroy()
//
// Most callers should use package mqttclient instead of driving a Session
// directly.
package mqtt
