package channel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Kind tells the receiver what to do with a frame's payload.
type Kind uint8

const (
	KindPost       Kind = 0x01 // Fire-and-forget message
	KindSync       Kind = 0x02 // Synchronous request, answered with the same sequence
	KindReply      Kind = 0x03 // Answer to a KindSync frame
	KindReplyError Kind = 0x04 // The peer could not answer; the payload is the reason
)

func (k Kind) String() string {
	switch k {
	case KindPost:
		return "post"
	case KindSync:
		return "sync"
	case KindReply:
		return "reply"
	case KindReplyError:
		return "reply_error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Frame is the unit carried inside one multiplexer message.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// MarshalBinary encodes the frame as kind, payload length, payload.
func (f *Frame) MarshalBinary() ([]byte, error) {
	var buffer bytes.Buffer

	if err := binary.Write(&buffer, binary.BigEndian, uint8(f.Kind)); err != nil {
		return nil, fmt.Errorf("failed to write kind: %w", err)
	}

	if err := binary.Write(&buffer, binary.BigEndian, uint32(len(f.Payload))); err != nil {
		return nil, fmt.Errorf("failed to write payload length: %w", err)
	}

	if _, err := buffer.Write(f.Payload); err != nil {
		return nil, fmt.Errorf("failed to write payload: %w", err)
	}

	return buffer.Bytes(), nil
}

func (f *Frame) UnmarshalBinary(data []byte) error {
	buffer := bytes.NewReader(data)

	var kind uint8
	if err := binary.Read(buffer, binary.BigEndian, &kind); err != nil {
		return fmt.Errorf("failed to read kind: %w", err)
	}
	f.Kind = Kind(kind)

	var payloadLen uint32
	if err := binary.Read(buffer, binary.BigEndian, &payloadLen); err != nil {
		return fmt.Errorf("failed to read payload length: %w", err)
	}
	if int64(payloadLen) > int64(buffer.Len()) {
		return fmt.Errorf("payload length %d exceeds frame size", payloadLen)
	}

	f.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(buffer, f.Payload); err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	return nil
}
