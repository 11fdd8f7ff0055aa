package chatclient

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FallbackText is shown when a reply cannot even be serialized.
const FallbackText = "Received response"

// ReplyKind tells which shape of webhook reply produced the display text.
type ReplyKind int

const (
	// ReplyEmpty is a missing, null or falsy body.
	ReplyEmpty ReplyKind = iota
	// ReplyString is a bare string reply (or a body that is not JSON at all).
	ReplyString
	// ReplyField is an object carrying one of the well-known text fields.
	ReplyField
	// ReplySingleField is an object with exactly one string-valued key.
	ReplySingleField
	// ReplyOpaque is anything else, shown as compact JSON.
	ReplyOpaque
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyEmpty:
		return "empty"
	case ReplyString:
		return "string"
	case ReplyField:
		return "field"
	case ReplySingleField:
		return "single_field"
	case ReplyOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Reply is a relay response resolved to the text a user should see.
type Reply struct {
	Kind  ReplyKind
	Field string // key the text came from, for ReplyField and ReplySingleField
	Text  string
}

// Probed in order on the webhook reply, then on the relay body itself.
var (
	replyFields = []string{"text", "reply", "message", "content", "output"}
	bodyFields  = []string{"message", "output"}
)

// ExtractText returns the display text for a relay response body.
func ExtractText(body []byte) string {
	return ParseReply(body).Text
}

// ParseReply resolves a relay response body, stopping at the first rule that matches:
// the webhookResponse field (or the body) as a string; a well-known text field;
// the value of a single-key object; compact JSON of the whole reply.
func ParseReply(body []byte) Reply {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Reply{Kind: ReplyEmpty}
	}
	if !json.Valid(trimmed) {
		return Reply{Kind: ReplyString, Text: string(body)}
	}
	if isFalsy(trimmed) {
		return Reply{Kind: ReplyEmpty}
	}

	bodyObj, _ := asObject(trimmed)
	working := json.RawMessage(trimmed)
	if wr, ok := bodyObj["webhookResponse"]; ok && !isNull(wr) {
		working = wr
	}

	if s, ok := asString(working); ok {
		return Reply{Kind: ReplyString, Text: s}
	}

	workingObj, isObj := asObject(working)
	for _, field := range replyFields {
		if s, ok := nonBlankString(workingObj[field]); ok {
			return Reply{Kind: ReplyField, Field: field, Text: s}
		}
	}
	for _, field := range bodyFields {
		if s, ok := nonBlankString(bodyObj[field]); ok {
			return Reply{Kind: ReplyField, Field: field, Text: s}
		}
	}

	if isObj && len(workingObj) == 1 {
		for key, value := range workingObj {
			if s, ok := nonBlankString(value); ok {
				return Reply{Kind: ReplySingleField, Field: key, Text: s}
			}
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, working); err != nil {
		return Reply{Kind: ReplyOpaque, Text: FallbackText}
	}
	return Reply{Kind: ReplyOpaque, Text: buf.String()}
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func asString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func nonBlankString(raw json.RawMessage) (string, bool) {
	s, ok := asString(raw)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// isFalsy matches the bodies a browser client treats as "no data": null, false, 0 and "".
func isFalsy(raw json.RawMessage) bool {
	switch string(raw) {
	case "null", "false", `""`:
		return true
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n == 0
	}
	return false
}
