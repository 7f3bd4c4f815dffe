// Package mqttclient is a small device-side MQTT facade.
//
// A Client wraps one session of an mqtt.Engine and offers connect,
// disconnect, publish and subscribe with a topic-to-handler registry. The
// engine does all network work; every Client method returns once the engine
// has accepted the request.
//
// Fixed parameters: QoS 1, retained publishes, MQTT 3.1.1, 60s keep-alive,
// persistent session. TLS material defaults to the certificates/ directory.
//
// # Dispatch
//
// Inbound messages are matched against exact topics first, then against
// wildcard filters in registration order. The handler runs on the engine's
// message goroutine. Messages nobody subscribed to are dropped without a log
// line; observers still see them.
//
// # Errors
//
// Failures are returned as *Error with a Kind (init, TLS config, transport,
// protocol) and the engine's diagnostic. Broker rejections arrive
// asynchronously as a StateRejected Status carrying a KindProtocol error.
//
// # Usage
//
//	client, err := mqttclient.New(engine, "sensor-17", "sensor", password,
//	    mqttclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnStatus(func(s mqttclient.Status) {
//	    if s.Connected() {
//	        client.Subscribe("devices/sensor-17/command", onCommand)
//	    }
//	})
//	if err := client.Connect("broker.local", 8883); err != nil {
//	    return err
//	}
//
// Several Clients may share one engine; the engine is initialised by the
// first New and cleaned up by the last Close.
package mqttclient
