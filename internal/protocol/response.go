package protocol

import "encoding/json"

// Response is built from the fields of the originating command plus named
// result fields, or an error pair when the command failed. Results set
// before a failure are kept.
type Response struct {
	fields Command
}

// NewResponse starts a response echoing cmd. cmd itself is not modified.
func NewResponse(cmd Command) *Response {
	return &Response{fields: cmd.Clone()}
}

// ErrorResponse is a response carrying only the error pair, used when no
// command could be decoded.
func ErrorResponse(err error) *Response {
	r := &Response{fields: Command{}}
	r.Fail(err)
	return r
}

// Set records a result field.
func (r *Response) Set(key string, value any) {
	r.fields[key] = value
}

// Get returns a field of the response.
func (r *Response) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Fail records err as the outcome of the command.
func (r *Response) Fail(err error) {
	r.fields[FieldError] = err.Error()
	r.fields[FieldException] = string(KindOf(err))
}

// Failed reports whether the response carries an error.
func (r *Response) Failed() bool {
	return r.fields.Failed()
}

// Fields returns a copy of the response fields.
func (r *Response) Fields() Command {
	return r.fields.Clone()
}

func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(r.fields))
}
