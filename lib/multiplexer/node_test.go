package multiplexer_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/snowmerak/presentation.go/lib/multiplexer"
)

func TestNode_WriteMessageWithSequence(t *testing.T) {
	tests := []struct {
		name string
		seq  uint32
		data []byte
	}{
		{name: "empty data", seq: 1, data: []byte{}},
		{name: "small data", seq: 2, data: []byte(`{"cmd":"DisplayAvailableChange","data":true}`)},
		{name: "large data", seq: 3, data: bytes.Repeat([]byte("x"), multiplexer.ChunkSize*3+17)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, writer := io.Pipe()
			defer reader.Close()
			defer writer.Close()

			node := multiplexer.NewNode(reader, writer)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				errCh <- node.WriteMessageWithSequence(ctx, tt.seq, tt.data)
			}()

			messageCh, err := node.ReadMessage(ctx)
			if err != nil {
				t.Fatalf("ReadMessage failed: %v", err)
			}

			var received *multiplexer.Message
			select {
			case received = <-messageCh:
			case <-ctx.Done():
				t.Fatal("timeout waiting for message")
			}

			if err := <-errCh; err != nil {
				t.Fatalf("WriteMessageWithSequence() error = %v", err)
			}

			if received.Type != multiplexer.FrameTypeComplete {
				t.Fatalf("Expected complete message, got type %d (%s)", received.Type, received.Data)
			}
			if received.Sequence != tt.seq {
				t.Errorf("Expected sequence %d, got %d", tt.seq, received.Sequence)
			}
			if !bytes.Equal(received.Data, tt.data) {
				t.Errorf("Expected %d bytes, got %d", len(tt.data), len(received.Data))
			}
			if n := node.GetPendingMessageCount(); n != 0 {
				t.Errorf("Expected no pending messages, got %d", n)
			}
		})
	}
}

func TestNode_WriteMessage_AssignsDistinctSequences(t *testing.T) {
	var buf bytes.Buffer
	node := multiplexer.NewNode(&buf, &buf)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := node.WriteMessage(ctx, []byte("ping")); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}

	messageCh, err := node.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	seen := map[uint32]bool{}
	for msg := range messageCh {
		if msg.Type != multiplexer.FrameTypeComplete {
			t.Fatalf("unexpected message type %d: %s", msg.Type, msg.Data)
		}
		if seen[msg.Sequence] {
			t.Fatalf("sequence %d delivered twice", msg.Sequence)
		}
		if msg.Sequence == 0 {
			t.Fatal("sequence 0 must never be assigned")
		}
		seen[msg.Sequence] = true
	}

	if len(seen) != 3 {
		t.Errorf("Expected 3 messages, got %d", len(seen))
	}
}

func TestNode_WriteMessage_CancelledContextAborts(t *testing.T) {
	var buf bytes.Buffer
	node := multiplexer.NewNode(&buf, &buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := node.WriteMessageWithSequence(ctx, 7, []byte("never delivered"))
	if err != context.Canceled {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	messageCh, err := node.ReadMessage(context.Background())
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	msg, ok := <-messageCh
	if !ok {
		t.Fatal("Expected an aborted message before the channel closed")
	}
	if msg.Type != multiplexer.FrameTypeAbort || msg.Sequence != 7 {
		t.Errorf("Expected abort for sequence 7, got type %d seq %d", msg.Type, msg.Sequence)
	}
}

func TestNode_ReadMessage_UnknownSequence(t *testing.T) {
	var buf bytes.Buffer
	// An End frame for a sequence that was never opened.
	buf.Write([]byte{multiplexer.FrameTypeEnd, 0, 0, 0, 9, 0, 0, 0, 0})

	node := multiplexer.NewNode(&buf, io.Discard)
	messageCh, err := node.ReadMessage(context.Background())
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	msg := <-messageCh
	if msg.Type != multiplexer.FrameTypeError {
		t.Errorf("Expected error message, got type %d", msg.Type)
	}
}

func TestNode_ReadMessage_EOF(t *testing.T) {
	reader, writer := io.Pipe()
	node := multiplexer.NewNode(reader, writer)

	messageCh, err := node.ReadMessage(context.Background())
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	writer.Close()

	select {
	case msg, ok := <-messageCh:
		if ok {
			t.Errorf("Expected channel to close, but received message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel to close")
	}
}
