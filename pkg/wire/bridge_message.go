// Package wire holds the messages exchanged with the ROS2 bridge on topic
// sockets: a FlatBuffers envelope carrying a JSON-encoded ROS message.
package wire

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// ContentType tags the payload carried by a BridgeMessage.
type ContentType byte

const (
	ContentTypeUnknown     ContentType = 0
	ContentTypeJSONCommand ContentType = 1
	ContentTypeJSONState   ContentType = 2
)

func (c ContentType) String() string {
	switch c {
	case ContentTypeJSONCommand:
		return "JSON_COMMAND"
	case ContentTypeJSONState:
		return "JSON_STATE"
	default:
		return "UNKNOWN"
	}
}

// Table slots, in schema order:
//
//	table BridgeMessage {
//	  topic:string; timestamp_ns:long; content_type:ubyte; payload:[ubyte]; version:ushort = 1;
//	}
const (
	slotTopic = iota
	slotTimestampNs
	slotContentType
	slotPayload
	slotVersion
	numSlots
)

// CurrentVersion is written into every encoded envelope.
const CurrentVersion uint16 = 1

// ErrShortBuffer is returned when a buffer cannot hold a FlatBuffers root.
var ErrShortBuffer = errors.New("buffer too short for bridge message")

// BridgeMessage is the decoded form of a bridge envelope.
type BridgeMessage struct {
	Topic       string
	TimestampNs int64
	ContentType ContentType
	Payload     []byte
	Version     uint16
}

// Encode serializes m into a finished FlatBuffers buffer.
func (m *BridgeMessage) Encode() []byte {
	builder := flatbuffers.NewBuilder(64 + len(m.Topic) + len(m.Payload))

	topicOffset := builder.CreateString(m.Topic)
	payloadOffset := builder.CreateByteVector(m.Payload)

	version := m.Version
	if version == 0 {
		version = CurrentVersion
	}

	builder.StartObject(numSlots)
	builder.PrependUOffsetTSlot(slotTopic, topicOffset, 0)
	builder.PrependInt64Slot(slotTimestampNs, m.TimestampNs, 0)
	builder.PrependUOffsetTSlot(slotPayload, payloadOffset, 0)
	builder.PrependUint16Slot(slotVersion, version, 1)
	builder.PrependByteSlot(slotContentType, byte(m.ContentType), 0)
	root := builder.EndObject()

	builder.Finish(root)
	return builder.FinishedBytes()
}

// Decode parses a buffer produced by Encode. The returned Payload aliases buf.
func Decode(buf []byte) (msg *BridgeMessage, err error) {
	if len(buf) < flatbuffers.SizeUOffsetT {
		return nil, ErrShortBuffer
	}

	// Out-of-range offsets in a corrupt buffer panic inside the runtime.
	defer func() {
		if r := recover(); r != nil {
			msg = nil
			err = fmt.Errorf("malformed bridge message: %v", r)
		}
	}()

	var tab flatbuffers.Table
	tab.Bytes = buf
	tab.Pos = flatbuffers.GetUOffsetT(buf)
	if int(tab.Pos) >= len(buf) {
		return nil, fmt.Errorf("malformed bridge message: root offset %d beyond %d bytes", tab.Pos, len(buf))
	}

	msg = &BridgeMessage{Version: 1}
	if o := field(&tab, slotTopic); o != 0 {
		msg.Topic = string(tab.ByteVector(o + tab.Pos))
	}
	if o := field(&tab, slotTimestampNs); o != 0 {
		msg.TimestampNs = tab.GetInt64(o + tab.Pos)
	}
	if o := field(&tab, slotContentType); o != 0 {
		msg.ContentType = ContentType(tab.GetByte(o + tab.Pos))
	}
	if o := field(&tab, slotPayload); o != 0 {
		msg.Payload = tab.ByteVector(o + tab.Pos)
	}
	if o := field(&tab, slotVersion); o != 0 {
		msg.Version = tab.GetUint16(o + tab.Pos)
	}
	return msg, nil
}

func field(tab *flatbuffers.Table, slot int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(tab.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}
