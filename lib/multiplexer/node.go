package multiplexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

const (
	// 1 Byte for the frame type, 4 Bytes for the sequence, and 4 Bytes for the data length
	FrameHeaderSize   = 9
	FrameTypeStart    = uint8(0x01) // Opens a message, carries the total length
	FrameTypeEnd      = uint8(0x02) // Closes a message
	FrameTypeData     = uint8(0x03) // One chunk of a message
	FrameTypeError    = uint8(0x04) // Local read error, never written to the wire
	FrameTypeComplete = uint8(0x05) // Reassembled message handed to the reader
	FrameTypeAbort    = uint8(0x06) // Sender gave up on a message
)

const (
	ChunkSize      = 1024
	MaxMessageSize = 10 * 1024 * 1024
)

// Message is a reassembled message (or a local error) delivered by ReadMessage.
type Message struct {
	Sequence uint32
	Data     []byte
	Type     uint8
}

// Node frames messages over a reader/writer pair. Each message is written as
// Start, zero or more Data chunks, then End (or Abort), all tagged with the
// same sequence number.
type Node struct {
	reader io.Reader
	writer io.Writer

	writerLock sync.Mutex
	readerLock sync.RWMutex

	readBuffer map[uint32]*Message

	sequence atomic.Uint32
}

func NewNode(reader io.Reader, writer io.Writer) *Node {
	return &Node{
		reader:     reader,
		writer:     writer,
		readBuffer: make(map[uint32]*Message),
	}
}

// ReadMessage starts a reader goroutine and returns the channel it delivers
// complete, aborted and error messages on. The channel is closed when the
// underlying reader fails or reaches EOF.
func (n *Node) ReadMessage(ctx context.Context) (<-chan *Message, error) {
	if n.reader == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	ch := make(chan *Message, 64)

	go func() {
		defer close(ch)

		emit := func(m *Message) bool {
			select {
			case ch <- m:
				return true
			case <-ctx.Done():
				return false
			}
		}

		header := make([]byte, FrameHeaderSize)
		chunk := make([]byte, ChunkSize)

		for {
			if ctx.Err() != nil {
				return
			}

			if _, err := io.ReadFull(n.reader, header); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
					emit(&Message{Type: FrameTypeError, Data: []byte(err.Error())})
				}
				return
			}

			frameType := header[0]
			seq := uint32(header[1])<<24 | uint32(header[2])<<16 | uint32(header[3])<<8 | uint32(header[4])
			length := uint32(header[5])<<24 | uint32(header[6])<<16 | uint32(header[7])<<8 | uint32(header[8])

			if length > MaxMessageSize {
				if !emit(&Message{Type: FrameTypeError, Sequence: seq, Data: []byte(fmt.Sprintf("data length %d exceeds maximum %d", length, MaxMessageSize))}) {
					return
				}
				continue
			}

			switch frameType {
			case FrameTypeStart:
				n.readerLock.Lock()
				_, exists := n.readBuffer[seq]
				if !exists {
					n.readBuffer[seq] = &Message{
						Sequence: seq,
						Type:     FrameTypeStart,
						Data:     make([]byte, 0, min(int(length), ChunkSize*64)),
					}
				}
				n.readerLock.Unlock()

				if exists {
					if !emit(&Message{Type: FrameTypeError, Sequence: seq, Data: []byte(fmt.Sprintf("sequence %d already open", seq))}) {
						return
					}
				}

			case FrameTypeData:
				if int(length) > len(chunk) {
					chunk = make([]byte, length)
				}
				if _, err := io.ReadFull(n.reader, chunk[:length]); err != nil {
					if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
						emit(&Message{Type: FrameTypeError, Sequence: seq, Data: []byte(err.Error())})
					}
					return
				}

				n.readerLock.Lock()
				m, ok := n.readBuffer[seq]
				overflow := ok && len(m.Data)+int(length) > MaxMessageSize
				switch {
				case overflow:
					delete(n.readBuffer, seq)
				case ok:
					m.Data = append(m.Data, chunk[:length]...)
				}
				n.readerLock.Unlock()

				var problem string
				if !ok {
					problem = fmt.Sprintf("unknown sequence: %d", seq)
				} else if overflow {
					problem = fmt.Sprintf("message size would exceed maximum: %d", MaxMessageSize)
				}
				if problem != "" && !emit(&Message{Type: FrameTypeError, Sequence: seq, Data: []byte(problem)}) {
					return
				}

			case FrameTypeEnd, FrameTypeAbort:
				n.readerLock.Lock()
				m, ok := n.readBuffer[seq]
				if ok {
					delete(n.readBuffer, seq)
				}
				n.readerLock.Unlock()

				if !ok {
					if !emit(&Message{Type: FrameTypeError, Sequence: seq, Data: []byte(fmt.Sprintf("unknown sequence: %d", seq))}) {
						return
					}
					continue
				}

				m.Type = FrameTypeComplete
				if frameType == FrameTypeAbort {
					m.Type = FrameTypeAbort
				}
				if !emit(m) {
					return
				}

			default:
				if !emit(&Message{Type: FrameTypeError, Sequence: seq, Data: []byte(fmt.Sprintf("unknown frame type: %d", frameType))}) {
					return
				}
			}
		}
	}()

	return ch, nil
}

// writeFrame must be called with writerLock held.
func (n *Node) writeFrame(frameType uint8, seq uint32, length int, data []byte) error {
	header := make([]byte, FrameHeaderSize)
	header[0] = frameType
	header[1] = byte(seq >> 24)
	header[2] = byte(seq >> 16)
	header[3] = byte(seq >> 8)
	header[4] = byte(seq)
	header[5] = byte(length >> 24)
	header[6] = byte(length >> 16)
	header[7] = byte(length >> 8)
	header[8] = byte(length)
	if _, err := n.writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if frameType == FrameTypeData && len(data) > 0 {
		if _, err := n.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
	}

	return nil
}

// WriteMessageWithSequence writes data as one framed message tagged with seq.
// The whole message is written under the writer lock so frames of different
// messages never interleave on the wire.
func (n *Node) WriteMessageWithSequence(ctx context.Context, seq uint32, data []byte) error {
	if n.writer == nil {
		return fmt.Errorf("writer is nil")
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("data length %d exceeds maximum %d", len(data), MaxMessageSize)
	}

	n.writerLock.Lock()
	defer n.writerLock.Unlock()

	abort := func() error {
		if err := n.writeFrame(FrameTypeAbort, seq, 0, nil); err != nil {
			return fmt.Errorf("failed to write abort frame: %w", err)
		}
		return ctx.Err()
	}

	if err := n.writeFrame(FrameTypeStart, seq, len(data), nil); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	for len(data) > 0 {
		if ctx.Err() != nil {
			return abort()
		}

		size := min(len(data), ChunkSize)
		if err := n.writeFrame(FrameTypeData, seq, size, data[:size]); err != nil {
			return fmt.Errorf("failed to write data chunk: %w", err)
		}
		data = data[size:]
	}

	if ctx.Err() != nil {
		return abort()
	}

	if err := n.writeFrame(FrameTypeEnd, seq, 0, nil); err != nil {
		return fmt.Errorf("failed to write end frame: %w", err)
	}

	return nil
}

// WriteMessage sends a message with automatic sequence numbering
func (n *Node) WriteMessage(ctx context.Context, data []byte) error {
	return n.WriteMessageWithSequence(ctx, n.NextSequence(), data)
}

// NextSequence returns the next non-zero sequence number.
func (n *Node) NextSequence() uint32 {
	for {
		if seq := n.sequence.Add(1); seq != 0 {
			return seq
		}
	}
}

// Close drops partially received messages.
func (n *Node) Close() error {
	n.readerLock.Lock()
	defer n.readerLock.Unlock()

	clear(n.readBuffer)
	return nil
}

// GetPendingMessageCount returns the number of pending incomplete messages
func (n *Node) GetPendingMessageCount() int {
	n.readerLock.RLock()
	defer n.readerLock.RUnlock()
	return len(n.readBuffer)
}
