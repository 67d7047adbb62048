package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Messages synthesised for upstream answers that carry no JSON of their own.
const (
	MessageEmptyResponse = "Upload completed (empty response)"
	MessageUploaded      = "Upload completed"
)

// Result is the parsed answer to an upload: either an ImmediateResult or a JobHandle.
type Result interface {
	isResult()
}

// ImmediateResult means the conversion finished within the upload call.
type ImmediateResult struct {
	Message string
	Payload json.RawMessage
}

// JobHandle means the conversion continues upstream and must be polled.
type JobHandle struct {
	ID      string
	Payload json.RawMessage
}

func (ImmediateResult) isResult() {}
func (JobHandle) isResult()       {}

// Normalize turns a raw upstream answer into a JSON payload. Empty and
// non-JSON bodies of successful answers are wrapped; non-2xx answers become a
// *StatusError carrying the upstream message when there is one.
func Normalize(statusCode int, body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)

	if !statusOK(statusCode) {
		return nil, &StatusError{StatusCode: statusCode, Message: statusMessage(statusCode, trimmed)}
	}

	if len(trimmed) == 0 {
		return mustJSON(map[string]any{"success": true, "status": statusCode, "message": MessageEmptyResponse}), nil
	}
	if !json.Valid(trimmed) {
		return mustJSON(map[string]any{"success": true, "status": statusCode, "message": MessageUploaded, "data": string(trimmed)}), nil
	}
	return json.RawMessage(trimmed), nil
}

func statusMessage(statusCode int, body []byte) string {
	fallback := fmt.Sprintf("HTTP error! status: %d", statusCode)
	if len(body) == 0 {
		return fallback
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
		return fallback
	}

	text := string(body)
	if len(text) > 500 {
		text = text[:500]
	}
	return fallback + "\nResponse: " + text
}

// ParseResult classifies a normalized upload payload. A "Success" message or
// a truthy success flag is an immediate result; otherwise a migrationId or id
// field makes it a job handle.
func ParseResult(payload json.RawMessage) (Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, &UnexpectedResponseError{Payload: compact(payload)}
	}

	message := stringField(fields["message"])
	if message == "Success" || truthy(fields["success"]) {
		return ImmediateResult{Message: message, Payload: payload}, nil
	}

	for _, key := range []string{"migrationId", "id"} {
		if id := idField(fields[key]); id != "" {
			return JobHandle{ID: id, Payload: payload}, nil
		}
	}

	return nil, &UnexpectedResponseError{Payload: compact(payload)}
}

// JobStatus is the answer of the status endpoint while polling a job
type JobStatus struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Progress *int   `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Job states reported by the status endpoint
const (
	JobCompleted = "completed"
	JobFailed    = "failed"
)

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func idField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if s := stringField(raw); s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String()
		}
	}
	return ""
}

// truthy follows loose truthiness: false, 0, "", null and absent are false
func truthy(raw json.RawMessage) bool {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

func compact(payload json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return strings.TrimSpace(string(payload))
	}
	return buf.String()
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// statusOK reports whether code is a 2xx
func statusOK(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
