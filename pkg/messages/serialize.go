package messages

import (
	"errors"
	"fmt"

	messagefb "github.com/cbodonnell/tabletop/flatbuffers/message"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrMalformedMessage is returned when bytes cannot be decoded into a Message.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrMalformedPayload is returned when a payload does not match its message type.
	ErrMalformedPayload = errors.New("malformed payload")
)

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MessageBufferSize))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
	}
}

// SerializeMessage encodes a Message as a zstd compressed flatbuffer.
func SerializeMessage(m *Message) ([]byte, error) {
	b, err := SerializeMessageFlatbuffer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %v", err)
	}

	return encoder.EncodeAll(b, make([]byte, 0, len(b))), nil
}

// DeserializeMessage decodes bytes produced by SerializeMessage.
func DeserializeMessage(data []byte) (*Message, error) {
	if len(data) > MessageBufferSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit", ErrMalformedMessage, len(data))
	}

	b, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decompress: %v", ErrMalformedMessage, err)
	}

	message, err := DeserializeMessageFlatbuffer(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize message: %w", err)
	}

	return message, nil
}

func SerializeMessageFlatbuffer(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("message is nil")
	}
	builder := flatbuffers.NewBuilder(len(m.Payload) + 32)

	payload := builder.CreateByteVector(m.Payload)

	messagefb.MessageStart(builder)
	messagefb.MessageAddType(builder, byte(m.Type))
	messagefb.MessageAddPayload(builder, payload)
	messageOffset := messagefb.MessageEnd(builder)
	builder.Finish(messageOffset)

	return builder.FinishedBytes(), nil
}

// DeserializeMessageFlatbuffer reads a Message table. Flatbuffer accessors
// index the buffer without bounds checks, so corrupt input is caught by recover.
func DeserializeMessageFlatbuffer(b []byte) (message *Message, err error) {
	if len(b) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: buffer too short", ErrMalformedMessage)
	}

	defer func() {
		if r := recover(); r != nil {
			message = nil
			err = fmt.Errorf("%w: %v", ErrMalformedMessage, r)
		}
	}()

	messageFlatbuffer := messagefb.GetRootAsMessage(b, 0)
	t := MessageType(messageFlatbuffer.Type())
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %d", ErrMalformedMessage, byte(t))
	}

	payload := messageFlatbuffer.PayloadBytes()
	// copy out of the decode buffer
	message = &Message{
		Type:    t,
		Payload: append([]byte(nil), payload...),
	}

	return message, nil
}
