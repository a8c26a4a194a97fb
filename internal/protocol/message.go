package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/wagiedev/host-mcp-go/internal/errors"
)

// Version is the JSON-RPC version stamped on outgoing messages.
const Version = "2.0"

// Built-in method names.
const (
	MethodInitialize     = "initialize"
	MethodInitialized    = "notifications/initialized"
	MethodPing           = "ping"
	MethodListProcedures = "procedures/list"
	MethodCancelRequest  = "$/cancelRequest"
	MethodProgress       = "notifications/progress"
)

// nullID is sent when a response cannot be correlated with a request id.
var nullID = json.RawMessage("null")

// Request is an incoming message.
//
// Wire format:
//
//	{
//	  "jsonrpc": "2.0",
//	  "id": 1,
//	  "method": "add",
//	  "params": {"a": 2, "b": 3}
//	}
//
// A request without an id is a notification and never receives a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// ParamsMap decodes params into an object. Absent or null params decode to nil.
func (r *Request) ParamsMap() (map[string]any, error) {
	trimmed := bytes.TrimSpace(r.Params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, nullID) {
		return nil, nil
	}

	if trimmed[0] != '{' {
		return nil, &errors.ProtocolError{Message: "params must be an object"}
	}

	var params map[string]any
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return nil, &errors.ProtocolError{Message: "unparseable params", Err: err}
	}

	return params, nil
}

// ParseRequest decodes and checks a single message.
//
// Malformed JSON, batches, a missing method, an id that is neither a string
// nor a number, and params that are not an object all fail with ProtocolError.
func ParseRequest(data []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &errors.ProtocolError{Message: "empty message"}
	}

	if trimmed[0] == '[' {
		return nil, &errors.ProtocolError{Message: "batch requests are not supported"}
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, &errors.ProtocolError{Message: "invalid JSON", Err: err}
	}

	if req.JSONRPC != "" && req.JSONRPC != Version {
		return nil, &errors.ProtocolError{Message: "unsupported jsonrpc version " + strconv.Quote(req.JSONRPC)}
	}

	if !req.IsNotification() {
		if _, err := idKey(req.ID); err != nil {
			return nil, err
		}
	}

	if req.Method == "" {
		return nil, &errors.ProtocolError{Message: "missing method"}
	}

	if _, err := req.ParamsMap(); err != nil {
		return nil, err
	}

	return &req, nil
}

// salvageID extracts a usable id from a message that failed to parse, so the
// error response can still be correlated. Returns null when none is found.
func salvageID(data []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}

	if err := json.Unmarshal(data, &probe); err != nil || len(probe.ID) == 0 {
		return nullID
	}

	if _, err := idKey(probe.ID); err != nil {
		return nullID
	}

	return probe.ID
}

// idKey canonicalizes a request id for in-flight tracking. String ids keep
// their quotes so "1" and 1 stay distinct.
func idKey(id json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(id, &v); err != nil {
		return "", &errors.ProtocolError{Message: "invalid id", Err: err}
	}

	switch typed := v.(type) {
	case string:
		return strconv.Quote(typed), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	default:
		return "", &errors.ProtocolError{Message: "id must be a string or a number"}
	}
}

// ErrorObject is the error member of a failed Response.
type ErrorObject struct {
	Code    int         `json:"code"`
	Kind    errors.Kind `json:"kind"`
	Message string      `json:"message"`
}

// NewErrorObject converts err into its wire form.
func NewErrorObject(err error) *ErrorObject {
	kind := errors.KindOf(err)

	return &ErrorObject{
		Code:    kind.Code(),
		Kind:    kind,
		Message: err.Error(),
	}
}

// Response answers exactly one Request.
//
// Wire format for success:
//
//	{"jsonrpc": "2.0", "id": 1, "result": 5}
//
// Wire format for error:
//
//	{"jsonrpc": "2.0", "id": 2, "error": {"code": -32602, "kind": "InvalidParametersError", "message": "..."}}
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// IsError reports whether the response carries an error.
func (r *Response) IsError() bool {
	return r.Error != nil
}

func newResultResponse(id json.RawMessage, value any) *Response {
	data, err := json.Marshal(value)
	if err != nil {
		return newErrorResponse(id, &errors.HostError{
			Message: "result is not JSON serializable",
			Err:     err,
		})
	}

	return &Response{JSONRPC: Version, ID: id, Result: data}
}

func newErrorResponse(id json.RawMessage, err error) *Response {
	if len(id) == 0 {
		id = nullID
	}

	return &Response{JSONRPC: Version, ID: id, Error: NewErrorObject(err)}
}

// Notification is a server-initiated message pushed on a session's event
// stream. It is independent of the request/response path.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// ProgressParams is the payload of a notifications/progress event.
type ProgressParams struct {
	ProgressToken json.RawMessage `json:"progressToken"`
	Progress      float64         `json:"progress"`
	Total         float64         `json:"total,omitempty"`
	Message       string          `json:"message,omitempty"`
}
