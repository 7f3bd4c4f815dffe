// Package influxdb writes devicelink link telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library: Connect pings the
// server and opens a non-blocking, batched write API; Telemetry converts
// MQTT link events into points.
//
// # Measurements
//
//   - mqtt_messages: one point per inbound message, outbound publish and
//     delivery acknowledgement. Tags device_id, direction (in, out, ack),
//     topic. Fields bytes, dispatched, ok, request_id, error.
//   - mqtt_link: one point per link state change. Tags device_id, state.
//     Fields connected, error.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
//
//	link, err := mqttclient.New(engine, id, user, pass,
//	    mqttclient.WithObserver(influxdb.NewTelemetry(client, id)))
//
// # Error Handling
//
// Writes never return errors. Batch failures are delivered asynchronously
// to the SetOnError callback, wrapped in ErrWriteFailed.
package influxdb
