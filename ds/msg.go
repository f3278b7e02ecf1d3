package ds

import (
	"encoding/json"

	"github.com/kychandar/gqlwsc/common"
)

// Msg is one protocol message. Every field is independently optional and is
// omitted from the wire entirely when absent; omission is meaningful and is
// not the same as an explicit empty value.
type Msg struct {
	ID      *string `json:"id"`
	Type    *string `json:"type"`
	Payload any     `json:"payload"`
}

// MarshalJSON writes only the fields that are present. An explicitly empty
// payload (e.g. the "" sent with connection_init) stays on the wire; only a
// truly absent field is dropped, and never as null.
func (m *Msg) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, 3)
	if m.ID != nil {
		obj["id"] = *m.ID
	}
	if m.Type != nil {
		obj["type"] = *m.Type
	}
	if m.Payload != nil {
		obj["payload"] = m.Payload
	}
	return json.Marshal(obj)
}

// New builds an outbound message including only the fields actually
// provided. The id resolves per the MsgID mode (see msgid.go); the resolved
// id is returned so callers can correlate replies.
func New(id MsgID, msgType string, payload any) (*Msg, string) {
	msg := &Msg{}
	resolved, present := id.resolve()
	if present {
		msg.ID = &resolved
	}
	if msgType != "" {
		msg.Type = &msgType
	}
	if payload != nil {
		msg.Payload = payload
	}
	return msg, resolved
}

func (m *Msg) Serialize() ([]byte, error) {
	return json.Marshal(m)
}

// DeserializeFrom parses an inbound message. Messages missing type or
// payload still parse; complete messages in particular often carry neither.
func (m *Msg) DeserializeFrom(b []byte) error {
	return json.Unmarshal(b, m)
}

// GetID returns the correlation id, empty when the field is absent.
func (m *Msg) GetID() string {
	if m.ID == nil {
		return ""
	}
	return *m.ID
}

// GetType returns the message type, empty when the field is absent.
func (m *Msg) GetType() string {
	if m.Type == nil {
		return ""
	}
	return *m.Type
}

// IsKeepAlive reports whether the message is pure liveness signaling. Such
// messages carry no id and never match any correlation.
func (m *Msg) IsKeepAlive() bool {
	return m.GetType() == common.MsgTypeKeepAlive
}

// HasErrors reports whether the payload carries a non-empty errors
// collection. Any such payload is a protocol-level error result regardless
// of the message type.
func (m *Msg) HasErrors() bool {
	payload, ok := m.Payload.(map[string]any)
	if !ok {
		return false
	}
	errsVal, ok := payload["errors"]
	if !ok || errsVal == nil {
		return false
	}
	if errs, ok := errsVal.([]any); ok {
		return len(errs) > 0
	}
	return true
}
