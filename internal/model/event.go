package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogEvent is one access-log record submitted for anomaly analysis.
// Fields outside the core schema are kept in Attributes and are
// addressable by dotted path (e.g. "risk_context.failed_logins").
type LogEvent struct {
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	Status    string `json:"status,omitempty"`
	Role      string `json:"role,omitempty"`
	System    string `json:"system,omitempty"`
	Location  string `json:"location,omitempty"`

	Attributes map[string]any `json:"-"`
}

// coreKeys are the schema fields that never land in Attributes.
var coreKeys = map[string]bool{
	"event_id":  true,
	"timestamp": true,
	"action":    true,
	"status":    true,
	"role":      true,
	"user_role": true,
	"system":    true,
	"location":  true,
}

// EventFromMap builds a LogEvent from a decoded record. "user_role" is
// accepted as an alias for "role".
func EventFromMap(m map[string]any) LogEvent {
	ev := LogEvent{
		EventID:   str(m["event_id"]),
		Timestamp: str(m["timestamp"]),
		Action:    str(m["action"]),
		Status:    str(m["status"]),
		Role:      str(m["role"]),
		System:    str(m["system"]),
		Location:  str(m["location"]),
	}
	if ev.Role == "" {
		ev.Role = str(m["user_role"])
	}
	for k, v := range m {
		if coreKeys[k] {
			continue
		}
		if ev.Attributes == nil {
			ev.Attributes = make(map[string]any)
		}
		ev.Attributes[k] = v
	}
	return ev
}

// UnmarshalJSON decodes the core fields and collects the rest into Attributes.
func (e *LogEvent) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = EventFromMap(m)
	return nil
}

// UnmarshalYAML lets scenario files embed events inline.
func (e *LogEvent) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	*e = EventFromMap(m)
	return nil
}

// MarshalJSON flattens Attributes next to the core fields.
func (e LogEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields())
}

// Fields returns the event as a flat record. Core fields win over
// attributes with the same key.
func (e LogEvent) Fields() map[string]any {
	m := make(map[string]any, len(e.Attributes)+7)
	for k, v := range e.Attributes {
		m[k] = v
	}
	m["event_id"] = e.EventID
	m["timestamp"] = e.Timestamp
	m["action"] = e.Action
	setIfNotEmpty(m, "status", e.Status)
	setIfNotEmpty(m, "role", e.Role)
	setIfNotEmpty(m, "system", e.System)
	setIfNotEmpty(m, "location", e.Location)
	return m
}

// Lookup resolves a field name or dotted path against the event.
// The second return is false when any path segment is absent.
func (e LogEvent) Lookup(path string) (any, bool) {
	switch path {
	case "event_id":
		return e.EventID, e.EventID != ""
	case "timestamp":
		return e.Timestamp, e.Timestamp != ""
	case "action":
		return e.Action, e.Action != ""
	case "status":
		return e.Status, e.Status != ""
	case "role", "user_role":
		return e.Role, e.Role != ""
	case "system":
		return e.System, e.System != ""
	case "location":
		return e.Location, e.Location != ""
	}

	var cur any = e.Attributes
	for _, part := range strings.Split(path, ".") {
		next, ok := child(cur, part)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

func child(v any, key string) (any, bool) {
	switch m := v.(type) {
	case map[string]any:
		c, ok := m[key]
		return c, ok
	case map[any]any:
		c, ok := m[key]
		return c, ok
	default:
		return nil, false
	}
}

func setIfNotEmpty(m map[string]any, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
