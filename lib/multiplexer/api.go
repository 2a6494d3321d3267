package multiplexer

import (
	"context"
	"io"
)

// Multiplexer provides a unified interface for framed message exchange
type Multiplexer interface {
	// WriteMessage sends a message with automatic sequence numbering
	WriteMessage(ctx context.Context, data []byte) error

	// WriteMessageWithSequence sends a message with a specific sequence number
	WriteMessageWithSequence(ctx context.Context, seq uint32, data []byte) error

	// NextSequence reserves a sequence number for WriteMessageWithSequence
	NextSequence() uint32

	// ReadMessage reads messages and returns a channel
	ReadMessage(ctx context.Context) (<-chan *Message, error)

	// Close cleanly shuts down the multiplexer
	Close() error

	// GetPendingMessageCount returns the number of partially received messages
	GetPendingMessageCount() int
}

var _ Multiplexer = (*Node)(nil)

// New creates a multiplexer over the given reader and writer.
func New(reader io.Reader, writer io.Writer) Multiplexer {
	return NewNode(reader, writer)
}
