package reconcile

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Targets are the four remote directories one run uploads into.
type Targets struct {
	PrimaryPDF     string `json:"agSftpPdfPath"`
	PrimaryJSON    string `json:"agSftpJsonPath"`
	DownstreamPDF  string `json:"hrmsSftpPdfPath"`
	DownstreamJSON string `json:"hrmsSftpJsonPath"`
}

func (t Targets) withDefaults(d Targets) Targets {
	if t.PrimaryPDF == "" {
		t.PrimaryPDF = d.PrimaryPDF
	}
	if t.PrimaryJSON == "" {
		t.PrimaryJSON = d.PrimaryJSON
	}
	if t.DownstreamPDF == "" {
		t.DownstreamPDF = d.DownstreamPDF
	}
	if t.DownstreamJSON == "" {
		t.DownstreamJSON = d.DownstreamJSON
	}
	return t
}

func (t Targets) missing() []string {
	var out []string
	if t.PrimaryPDF == "" {
		out = append(out, "agSftpPdfPath")
	}
	if t.PrimaryJSON == "" {
		out = append(out, "agSftpJsonPath")
	}
	if t.DownstreamPDF == "" {
		out = append(out, "hrmsSftpPdfPath")
	}
	if t.DownstreamJSON == "" {
		out = append(out, "hrmsSftpJsonPath")
	}
	return out
}

// Envelope is the parsed inbound request.
type Envelope struct {
	RequestID string
	SystemID  string
	Targets   Targets
	Employees []EmployeeRecord
	// Rejected holds employee entries that were not JSON objects.
	Rejected []RecordSkipped
}

// EmployeeRecord is one entry of employeeDetails. Fields keeps every original
// attribute except the event list so manifests can echo them back.
type EmployeeRecord struct {
	Ordinal      int
	Fields       map[string]json.RawMessage
	EmployeeID   string
	SecondaryID  string
	FileID       string
	ArtifactName string
	Events       []EventRecord
}

// EventRecord is one entry of an employee's event list, kept verbatim.
type EventRecord struct {
	EventID   string
	EventName string
	Raw       json.RawMessage
}

var eventListKeys = []string{"eventDetails", "leaveDetails"}

// ParseEnvelope decodes the inbound body. Three shapes are accepted: jsonData
// as a JSON-encoded string, jsonData as an object, or the payload inlined at
// the top level. Missing target paths fall back to defaults.
func ParseEnvelope(body []byte, defaults Targets, defaultSystemID string) (*Envelope, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, malformed("decode envelope: %v", err)
	}
	if outer == nil {
		return nil, malformed("envelope is not an object")
	}

	payload := outer
	if raw, ok := outer["jsonData"]; ok && !isNull(raw) {
		inner, err := decodeJSONData(raw)
		if err != nil {
			return nil, err
		}
		payload = inner
	}

	env := &Envelope{
		RequestID: firstText(payload, outer, "transactionId"),
		SystemID:  firstText(payload, outer, "gemsId"),
	}
	if env.SystemID == "" {
		env.SystemID = defaultSystemID
	}

	env.Targets = Targets{
		PrimaryPDF:     textField(outer, "agSftpPdfPath"),
		PrimaryJSON:    textField(outer, "agSftpJsonPath"),
		DownstreamPDF:  textField(outer, "hrmsSftpPdfPath"),
		DownstreamJSON: textField(outer, "hrmsSftpJsonPath"),
	}.withDefaults(defaults)
	if missing := env.Targets.missing(); len(missing) > 0 {
		return nil, malformed("missing target paths: %s", strings.Join(missing, ", "))
	}

	var employees []json.RawMessage
	if raw, ok := payload["employeeDetails"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &employees); err != nil {
			return nil, malformed("employeeDetails is not an array")
		}
	}
	if len(employees) == 0 {
		return nil, malformed("employeeDetails array is missing or empty")
	}

	for i, raw := range employees {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			env.Rejected = append(env.Rejected, RecordSkipped{Reason: SkipMissingField, Detail: "employee entry is not an object"})
			continue
		}
		env.Employees = append(env.Employees, newEmployeeRecord(i, fields))
	}
	return env, nil
}

func decodeJSONData(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var inner map[string]json.RawMessage
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &inner); err != nil {
			return nil, malformed("decode jsonData: %v", err)
		}
	} else if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, malformed("decode jsonData: %v", err)
	}
	if inner == nil {
		return nil, malformed("jsonData is not an object")
	}
	return inner, nil
}

func newEmployeeRecord(ordinal int, fields map[string]json.RawMessage) EmployeeRecord {
	rec := EmployeeRecord{
		Ordinal:      ordinal,
		Fields:       make(map[string]json.RawMessage, len(fields)),
		EmployeeID:   textField(fields, "gerNo"),
		SecondaryID:  textField(fields, "kgidNo"),
		FileID:       textField(fields, "fileId"),
		ArtifactName: textField(fields, "fileName"),
	}
	if rec.FileID == "" {
		rec.FileID = rec.SecondaryID
	}

	isEventKey := map[string]bool{}
	for _, key := range eventListKeys {
		isEventKey[key] = true
	}
	for k, v := range fields {
		if !isEventKey[k] {
			rec.Fields[k] = v
		}
	}

	for _, key := range eventListKeys {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		var events []json.RawMessage
		if err := json.Unmarshal(raw, &events); err != nil {
			continue
		}
		for _, ev := range events {
			var evFields map[string]json.RawMessage
			if err := json.Unmarshal(ev, &evFields); err != nil || evFields == nil {
				rec.Events = append(rec.Events, EventRecord{Raw: ev})
				continue
			}
			rec.Events = append(rec.Events, EventRecord{
				EventID:   textField(evFields, "eventId"),
				EventName: textField(evFields, "eventName"),
				Raw:       ev,
			})
		}
		break
	}
	return rec
}

// textField reads a string or number attribute as text.
func textField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstText(primary, fallback map[string]json.RawMessage, key string) string {
	if v := textField(primary, key); v != "" {
		return v
	}
	return textField(fallback, key)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
