package telephony

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AnswerParams are the query parameters of the answer webhook.
// Missing fields are empty strings; the answer flow never rejects a call.
type AnswerParams struct {
	UUID             string `json:"uuid"`
	From             string `json:"from"`
	To               string `json:"to"`
	ConversationUUID string `json:"conversation_uuid"`
}

// RecordingPayload is the body of the recording-complete webhook.
type RecordingPayload struct {
	RecordingURL     string
	RecordingUUID    string
	ConversationUUID string
	StartTime        string
	EndTime          string
	Size             int64
	Duration         int
}

// EventPayload is one call lifecycle event. Raw keeps the full body for
// postmortem logging.
type EventPayload struct {
	UUID      string
	Status    string
	Timestamp string
	Reason    string
	Raw       map[string]any
}

// ValidationError is a rejected webhook body. Kind is one of the error
// vocabulary constants (ErrKindInvalidJSON, ...).
type ValidationError struct {
	Kind    string
	Message string
}

func (e *ValidationError) Error() string { return e.Kind + ": " + e.Message }

func ParseAnswerParams(q url.Values) AnswerParams {
	return AnswerParams{
		UUID:             strings.TrimSpace(q.Get("uuid")),
		From:             strings.TrimSpace(q.Get("from")),
		To:               strings.TrimSpace(q.Get("to")),
		ConversationUUID: strings.TrimSpace(q.Get("conversation_uuid")),
	}
}

// ParseRecordingPayload decodes the recording webhook body.
func ParseRecordingPayload(r *http.Request) (RecordingPayload, error) {
	m, err := decodeObject(r.Body)
	if err != nil {
		return RecordingPayload{}, err
	}
	return RecordingPayload{
		RecordingURL:     stringField(m, "recording_url"),
		RecordingUUID:    stringField(m, "recording_uuid"),
		ConversationUUID: stringField(m, "conversation_uuid"),
		StartTime:        stringField(m, "start_time"),
		EndTime:          stringField(m, "end_time"),
		Size:             int64Field(m, "size"),
		Duration:         int(int64Field(m, "duration")),
	}, nil
}

// ParseEventPayload reads an event from a JSON body, or from the query
// string when the body is empty (GET deliveries).
func ParseEventPayload(r *http.Request) (EventPayload, error) {
	var m map[string]any
	if r.Method == http.MethodGet {
		m = map[string]any{}
	} else {
		decoded, err := decodeObject(r.Body)
		if err != nil {
			return EventPayload{}, err
		}
		m = decoded
	}
	if len(m) == 0 {
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				m[k] = v[0]
			}
		}
	}

	ev := EventPayload{
		UUID:      stringField(m, "uuid"),
		Status:    stringField(m, "status"),
		Timestamp: stringField(m, "timestamp"),
		Reason:    stringField(m, "reason"),
		Raw:       m,
	}
	return ev, nil
}

// decodeObject reads a JSON object. An empty body is treated as {}.
func decodeObject(body io.Reader) (map[string]any, error) {
	if body == nil {
		return map[string]any{}, nil
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, &ValidationError{Kind: ErrKindInvalidJSON, Message: "Invalid JSON: request body could not be read"}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ValidationError{Kind: ErrKindInvalidJSON, Message: "Invalid JSON: request body is malformed"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Kind: ErrKindInvalidJSON, Message: "Invalid JSON: request body is malformed"}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ValidationError{Kind: ErrKindInvalidJSON, Message: "Invalid JSON: request body must be a JSON object"}
	}
	return m, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// int64Field accepts numbers or numeric strings; anything else, including
// negatives, reads as 0.
func int64Field(m map[string]any, key string) int64 {
	var n int64
	switch v := m[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = i
		} else if f, err := v.Float64(); err == nil {
			n = int64(f)
		}
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			n = i
		} else if f, err := strconv.ParseFloat(s, 64); err == nil {
			n = int64(f)
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. Naive values are read as UTC.
// It returns fallback when s is empty or unparseable.
func ParseTimestamp(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
