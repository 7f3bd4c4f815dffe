package mqtt

import (
	"fmt"
	"strings"
)

// Topic limits from the MQTT 3.1.1 specification.
const (
	maxTopicLength = 65535

	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// TopicPrefixDevices is the root of every per-device topic.
const TopicPrefixDevices = "devices"

// DeviceTopics builds the topics a single device publishes and listens on.
//
//	topics := mqtt.DeviceTopics{DeviceID: "sensor-17"}
//	topics.Status() // "devices/sensor-17/status"
type DeviceTopics struct {
	DeviceID string
}

// Status is where the device announces online/offline state (retained).
//
// Example: devices/sensor-17/status
func (t DeviceTopics) Status() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevices, t.DeviceID)
}

// Command is where the device receives commands.
//
// Example: devices/sensor-17/command
func (t DeviceTopics) Command() string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevices, t.DeviceID)
}

// Telemetry is where the device publishes readings for one channel.
//
// Example: devices/sensor-17/telemetry/temperature
func (t DeviceTopics) Telemetry(channel string) string {
	return fmt.Sprintf("%s/%s/telemetry/%s", TopicPrefixDevices, t.DeviceID, channel)
}

// All matches every topic below this device.
//
// Example: devices/sensor-17/#
func (t DeviceTopics) All() string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevices, t.DeviceID, multiLevelWildcard)
}

// ValidateTopic checks a topic name used for publishing.
// Names must be non-empty, at most 65535 bytes, and free of wildcards and NUL.
func ValidateTopic(topic string) error {
	if err := checkTopicString(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, singleLevelWildcard+multiLevelWildcard) {
		return fmt.Errorf("%w: wildcards not allowed in topic name %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a topic filter used for subscribing.
// "+" must occupy a whole level and "#" must be the whole last level.
func ValidateFilter(filter string) error {
	if err := checkTopicString(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == multiLevelWildcard:
			if i != len(levels)-1 {
				return fmt.Errorf("%w: %q: '#' must be the last level", ErrInvalidTopic, filter)
			}
		case level == singleLevelWildcard:
		case strings.ContainsAny(level, singleLevelWildcard+multiLevelWildcard):
			return fmt.Errorf("%w: %q: wildcard must occupy a whole level", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func checkTopicString(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	case len(s) > maxTopicLength:
		return fmt.Errorf("%w: topic longer than %d bytes", ErrInvalidTopic, maxTopicLength)
	case strings.ContainsRune(s, 0):
		return fmt.Errorf("%w: topic contains NUL", ErrInvalidTopic)
	}
	return nil
}

// IsWildcard reports whether filter contains a wildcard level.
func IsWildcard(filter string) bool {
	return strings.ContainsAny(filter, singleLevelWildcard+multiLevelWildcard)
}

// MatchTopic reports whether topic matches filter using MQTT wildcard rules.
//
// Topics starting with "$" are not matched by filters that begin with a
// wildcard, so "#" does not match "$SYS/broker/uptime".
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, singleLevelWildcard) || strings.HasPrefix(filter, multiLevelWildcard)) {
		return false
	}

	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == multiLevelWildcard {
			// "a/#" also matches the parent level "a".
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != singleLevelWildcard && level != t[i] {
			return false
		}
	}

	return len(f) == len(t)
}
