package influxdb

import "time"

// Measurement names written by Telemetry.
const (
	MeasurementMessages = "mqtt_messages"
	MeasurementLink     = "mqtt_link"
)

// Message directions used as the "direction" tag.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
	DirectionAck = "ack"
)

// pointWriter is the part of Client that Telemetry needs.
type pointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Telemetry records MQTT link activity as InfluxDB points. It satisfies the
// mqttclient Observer interface.
//
// Every call queues one point and returns; batching and network I/O happen
// in the write API's own goroutines.
type Telemetry struct {
	writer   pointWriter
	deviceID string
	now      func() time.Time
}

// NewTelemetry creates a Telemetry writing through client for deviceID.
func NewTelemetry(client *Client, deviceID string) *Telemetry {
	return newTelemetry(client, deviceID)
}

func newTelemetry(w pointWriter, deviceID string) *Telemetry {
	return &Telemetry{writer: w, deviceID: deviceID, now: time.Now}
}

// MessageReceived writes an inbound mqtt_messages point.
func (t *Telemetry) MessageReceived(topic string, size int, dispatched bool) {
	t.writer.WritePoint(MeasurementMessages,
		t.tags("direction", DirectionIn, "topic", topic),
		map[string]any{"bytes": size, "dispatched": dispatched},
		t.now(),
	)
}

// MessageSent writes an outbound mqtt_messages point.
func (t *Telemetry) MessageSent(topic string, size int, err error) {
	fields := map[string]any{"bytes": size, "ok": err == nil}
	if err != nil {
		fields["error"] = err.Error()
	}
	t.writer.WritePoint(MeasurementMessages,
		t.tags("direction", DirectionOut, "topic", topic),
		fields,
		t.now(),
	)
}

// DeliveryAcknowledged writes an acknowledgement mqtt_messages point.
func (t *Telemetry) DeliveryAcknowledged(id uint64, err error) {
	fields := map[string]any{"request_id": id, "ok": err == nil}
	if err != nil {
		fields["error"] = err.Error()
	}
	t.writer.WritePoint(MeasurementMessages,
		t.tags("direction", DirectionAck),
		fields,
		t.now(),
	)
}

// StatusChanged writes an mqtt_link point.
func (t *Telemetry) StatusChanged(state string, err error) {
	fields := map[string]any{"connected": state == "connected"}
	if err != nil {
		fields["error"] = err.Error()
	}
	t.writer.WritePoint(MeasurementLink,
		t.tags("state", state),
		fields,
		t.now(),
	)
}

// tags returns device_id plus the given key/value pairs.
func (t *Telemetry) tags(kv ...string) map[string]string {
	tags := make(map[string]string, len(kv)/2+1)
	tags["device_id"] = t.deviceID
	for i := 0; i+1 < len(kv); i += 2 {
		tags[kv[i]] = kv[i+1]
	}
	return tags
}
