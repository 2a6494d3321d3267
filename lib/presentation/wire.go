package presentation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Commands exchanged with the host.
const (
	CmdRequestShow              = "RequestShow"
	CmdQueryDisplayAvailability = "QueryDisplayAvailability"
	CmdDisplayAvailableChange   = "DisplayAvailableChange"
	CmdShowSucceeded            = "ShowSucceeded"
	CmdShowFailed               = "ShowFailed"

	// Deprecated: older hosts send ShowSucceed; it is accepted on input only.
	CmdShowSucceed = "ShowSucceed"
)

// NoOpener is the opener id sent when there is no current view.
const NoOpener int64 = -1

// Envelope is the decoded form of every message on the host channel. Which
// fields are meaningful depends on Cmd.
type Envelope struct {
	Cmd string

	// RequestShow, ShowSucceeded, ShowFailed
	RequestID RequestID

	// RequestShow
	URL      string
	OpenerID int64

	// DisplayAvailableChange
	Available bool

	// ShowSucceeded
	View ViewHandle

	// ShowFailed
	Error string
}

// Codec turns envelopes into bytes and back. Decode accepts the deprecated
// field spellings; Encode always writes the canonical ones.
type Codec interface {
	Name() string
	Encode(env Envelope) ([]byte, error)
	Decode(data []byte) (Envelope, error)
}

// CodecByName returns the codec registered under name ("json" or "protobuf").
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSONCodec{}, nil
	case "protobuf", "proto":
		return ProtobufCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// JSONCodec is the canonical wire format: one JSON object per message.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(env Envelope) ([]byte, error) {
	fields, err := envelopeFields(env)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (JSONCodec) Decode(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return envelopeFromFields(fields)
}

// ProtobufCodec carries the same fields as a google.protobuf.Struct.
type ProtobufCodec struct{}

func (ProtobufCodec) Name() string { return "protobuf" }

func (ProtobufCodec) Encode(env Envelope) ([]byte, error) {
	fields, err := envelopeFields(env)
	if err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build struct: %w", err)
	}
	return proto.Marshal(s)
}

func (ProtobufCodec) Decode(data []byte) (Envelope, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return envelopeFromFields(s.AsMap())
}

func envelopeFields(env Envelope) (map[string]any, error) {
	fields := map[string]any{"cmd": env.Cmd}

	switch env.Cmd {
	case CmdRequestShow:
		fields["requestId"] = int64(env.RequestID)
		fields["url"] = env.URL
		fields["openerId"] = env.OpenerID
	case CmdDisplayAvailableChange:
		fields["data"] = env.Available
	case CmdShowSucceeded, CmdShowSucceed:
		fields["cmd"] = CmdShowSucceeded
		fields["requestId"] = int64(env.RequestID)
		fields["data"] = int64(env.View)
	case CmdShowFailed:
		fields["requestId"] = int64(env.RequestID)
		fields["data"] = env.Error
	case CmdQueryDisplayAvailability:
	case "":
		return nil, fmt.Errorf("envelope has no command")
	}

	return fields, nil
}

func envelopeFromFields(fields map[string]any) (Envelope, error) {
	cmd, ok := fields["cmd"].(string)
	if !ok || cmd == "" {
		return Envelope{}, fmt.Errorf("%w: missing cmd", ErrMalformedMessage)
	}
	env := Envelope{Cmd: cmd}

	switch cmd {
	case CmdRequestShow:
		id, err := requestIDField(fields)
		if err != nil {
			return env, err
		}
		env.RequestID = id
		env.URL, _ = fields["url"].(string)
		env.OpenerID = NoOpener
		if raw, ok := firstField(fields, "openerId", "opener_id", "viewId"); ok {
			opener, err := toInt64(raw)
			if err != nil {
				return env, fmt.Errorf("%w: opener id: %v", ErrMalformedMessage, err)
			}
			env.OpenerID = opener
		}

	case CmdDisplayAvailableChange:
		raw, ok := firstField(fields, "data", "displayAvailable")
		if !ok {
			return env, fmt.Errorf("%w: %s without data", ErrMalformedMessage, cmd)
		}
		available, err := toBool(raw)
		if err != nil {
			return env, fmt.Errorf("%w: availability: %v", ErrMalformedMessage, err)
		}
		env.Available = available

	case CmdShowSucceeded, CmdShowSucceed:
		env.Cmd = CmdShowSucceeded
		id, err := requestIDField(fields)
		if err != nil {
			return env, err
		}
		env.RequestID = id
		// The request is settled whatever the handle looks like.
		env.View = ViewHandleNone
		if raw, ok := firstField(fields, "data", "view_id", "viewId"); ok {
			if view, ok := leadingInt(raw); ok {
				env.View = ViewHandle(view)
			}
		}

	case CmdShowFailed:
		id, err := requestIDField(fields)
		if err != nil {
			return env, err
		}
		env.RequestID = id
		if raw, ok := firstField(fields, "data", "error_message", "errorMessage"); ok {
			env.Error = fmt.Sprint(raw)
		}
	}

	return env, nil
}

func requestIDField(fields map[string]any) (RequestID, error) {
	raw, ok := firstField(fields, "requestId", "request_id")
	if !ok {
		return 0, fmt.Errorf("%w: missing request id", ErrMalformedMessage)
	}
	id, err := toInt64(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: request id: %v", ErrMalformedMessage, err)
	}
	return RequestID(id), nil
}

func firstField(fields map[string]any, names ...string) (any, bool) {
	for _, name := range names {
		if v, ok := fields[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	// -2^63 is exact in float64; 2^63 is the first value past MaxInt64.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is out of range", f)
	}
	return int64(f), nil
}

// leadingInt reads a view handle the way parseInt does: numbers are
// truncated and strings contribute their leading integer, so "42px" is 42.
// It reports false when there is no integer to read.
func leadingInt(v any) (int64, bool) {
	var s string
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return leadingInt(f)
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		i, err := floatToInt64(math.Trunc(n))
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		s = n
	default:
		return 0, false
	}

	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	i, err := strconv.ParseInt(s[:end], 10, 64)
	return i, err == nil
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	default:
		return false, fmt.Errorf("unexpected %T", v)
	}
}
