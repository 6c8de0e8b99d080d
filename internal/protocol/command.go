// Package protocol defines the messages exchanged between the controller and
// the device: commands, responses and the error kinds reported in them.
package protocol

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"unicode/utf8"
)

// Version is the protocol version reported by the get_version action.
const Version = "1.11.0"

// Well-known command and response fields.
const (
	FieldAction        = "action"
	FieldTimeReceived  = "time_received"
	FieldTimeSent      = "time_sent"
	FieldTimeResponded = "time_responded"
	FieldError         = "error"
	FieldException     = "exception"
	FieldCommand       = "command"
)

// Command is a decoded request. Every field other than "action" is action
// specific; unknown fields are kept and echoed back in the response.
type Command map[string]any

// DecodeCommand parses raw as a single JSON object. Numbers are decoded as
// json.Number so integers such as nanosecond timestamps survive the round
// trip exactly.
func DecodeCommand(raw []byte) (Command, error) {
	if !utf8.Valid(raw) {
		return nil, Errorf(KindDecode, "request is not valid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, Wrap(KindDecode, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, Errorf(KindDecode, "unexpected data after JSON object")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, Errorf(KindDecode, "request must be a JSON object")
	}
	return Command(obj), nil
}

// Action returns the action name and whether it is present as a string.
func (c Command) Action() (string, bool) {
	name, ok := c[FieldAction].(string)
	return name, ok
}

// Clone returns a shallow copy of c.
func (c Command) Clone() Command {
	out := make(Command, len(c)+4)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Failed reports whether c carries an error outcome.
func (c Command) Failed() bool {
	_, ok := c[FieldError]
	return ok
}

// Int64 returns the field as an integer. Integral JSON numbers and native
// integer types are accepted.
func (c Command) Int64(key string) (int64, bool) {
	switch v := c[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), true
		}
	}
	return 0, false
}
