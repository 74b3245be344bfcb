package transport

import "encoding/json"

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// CodeDegraded reports that the service answers but a backend is unreachable.
const CodeDegraded = "DEGRADED"

// Envelope wraps every API response.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
	Meta   *Meta       `json:"meta,omitempty"`
}

// Meta describes a list result and the predicate that produced it.
type Meta struct {
	Count int    `json:"count"`
	Field string `json:"field,omitempty"`
	Op    string `json:"op,omitempty"`
}

// NewSuccess returns a success envelope.
func NewSuccess(data interface{}) Envelope {
	return Envelope{Status: StatusSuccess, Data: data}
}

// NewList returns a success envelope for a query result.
func NewList(items interface{}, meta Meta) Envelope {
	return Envelope{Status: StatusSuccess, Data: items, Meta: &meta}
}

// NewError returns an error envelope.
func NewError(code, message string) Envelope {
	return Envelope{Status: StatusError, Code: code, Error: message}
}

// NewDegraded returns an error envelope that still carries the health payload.
func NewDegraded(message string, data interface{}) Envelope {
	return Envelope{Status: StatusError, Code: CodeDegraded, Error: message, Data: data}
}

// String returns the JSON form for logging. It never fails.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}
