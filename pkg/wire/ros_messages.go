package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// PoseMsg mirrors turtlesim/msg/Pose. Velocities are optional on the wire.
type PoseMsg struct {
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Theta           float64 `json:"theta"`
	LinearVelocity  float64 `json:"linear_velocity,omitempty"`
	AngularVelocity float64 `json:"angular_velocity,omitempty"`
}

// Vector3 mirrors geometry_msgs/msg/Vector3.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TwistMsg mirrors geometry_msgs/msg/Twist.
type TwistMsg struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// EncodeTwist wraps a twist for topic in a JSON_COMMAND envelope.
func EncodeTwist(topic string, twist TwistMsg, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(twist)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal twist: %w", err)
	}
	msg := BridgeMessage{
		Topic:       topic,
		TimestampNs: now.UnixNano(),
		ContentType: ContentTypeJSONCommand,
		Payload:     payload,
	}
	return msg.Encode(), nil
}

// EncodePose wraps a pose sample in a JSON_STATE envelope. The catcher only
// consumes poses; the bridge simulator in tests produces them with this.
func EncodePose(topic string, pose PoseMsg, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(pose)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pose: %w", err)
	}
	msg := BridgeMessage{
		Topic:       topic,
		TimestampNs: now.UnixNano(),
		ContentType: ContentTypeJSONState,
		Payload:     payload,
	}
	return msg.Encode(), nil
}

// DecodePose extracts a pose sample from an envelope.
func DecodePose(buf []byte) (PoseMsg, *BridgeMessage, error) {
	msg, err := Decode(buf)
	if err != nil {
		return PoseMsg{}, nil, err
	}
	if msg.ContentType != ContentTypeJSONState {
		return PoseMsg{}, msg, fmt.Errorf("unexpected content type %s for pose on '%s'", msg.ContentType, msg.Topic)
	}

	var pose PoseMsg
	if err := json.Unmarshal(msg.Payload, &pose); err != nil {
		return PoseMsg{}, msg, fmt.Errorf("failed to unmarshal pose on '%s': %w", msg.Topic, err)
	}
	return pose, msg, nil
}

// DecodeTwist extracts a twist from a JSON_COMMAND envelope.
func DecodeTwist(buf []byte) (TwistMsg, *BridgeMessage, error) {
	msg, err := Decode(buf)
	if err != nil {
		return TwistMsg{}, nil, err
	}
	if msg.ContentType != ContentTypeJSONCommand {
		return TwistMsg{}, msg, fmt.Errorf("unexpected content type %s for twist on '%s'", msg.ContentType, msg.Topic)
	}

	var twist TwistMsg
	if err := json.Unmarshal(msg.Payload, &twist); err != nil {
		return TwistMsg{}, msg, fmt.Errorf("failed to unmarshal twist on '%s': %w", msg.Topic, err)
	}
	return twist, msg, nil
}
