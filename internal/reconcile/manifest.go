package reconcile

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

const reprocessComment = "Reprocessed due to data corrections identified by the user. A new PDF has been generated; please use the updated PDF."

// Manifest is the outbound JSON document for one artifact group. Field order
// is fixed by the struct: transactionId, gemsId, employeeDetails.
type Manifest struct {
	TransactionID   string          `json:"transactionId"`
	GemsID          string          `json:"gemsId"`
	EmployeeDetails []EmployeeEntry `json:"employeeDetails"`
}

// MarshalJSON echoes the source record's attributes with the event list
// narrowed to the matched events. Map keys are emitted sorted, which keeps
// the output stable.
func (e EmployeeEntry) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Record.Fields)+3)
	for k, v := range e.Record.Fields {
		out[k] = v
	}

	events := make([]json.RawMessage, len(e.Events))
	for i, ev := range e.Events {
		events[i] = ev.Raw
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	out["eventDetails"] = raw

	if e.PreviousTransactionID != "" {
		if out["oldTransactionId"], err = json.Marshal(e.PreviousTransactionID); err != nil {
			return nil, err
		}
		if out["comments"], err = json.Marshal(reprocessComment); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// ManifestName swaps the artifact's extension for .json.
func ManifestName(artifactName string) string {
	return strings.TrimSuffix(artifactName, path.Ext(artifactName)) + ".json"
}

// BuildManifests renders one pretty-printed manifest per group, in group order.
func BuildManifests(groups []ArtifactGroup, txID, systemID string) ([]Artifact, error) {
	files := make([]Artifact, 0, len(groups))
	for _, g := range groups {
		doc := Manifest{
			TransactionID:   txID,
			GemsID:          systemID,
			EmployeeDetails: g.Entries,
		}
		content, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("render manifest for %s: %w", g.ArtifactName, err)
		}
		files = append(files, Artifact{Name: ManifestName(g.ArtifactName), Content: content})
	}
	return files, nil
}

// ManifestDocument is the decoded form of an uploaded manifest.
type ManifestDocument struct {
	TransactionID   string             `json:"transactionId"`
	GemsID          string             `json:"gemsId"`
	EmployeeDetails []ManifestEmployee `json:"employeeDetails"`
}

type ManifestEmployee struct {
	GerNo            string
	KgidNo           string
	FileID           string
	FileName         string
	OldTransactionID string
	Comments         string
	EventDetails     []json.RawMessage
}

// UnmarshalJSON tolerates ids sent as numbers as well as strings.
func (m *ManifestEmployee) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*m = ManifestEmployee{
		GerNo:            textField(fields, "gerNo"),
		KgidNo:           textField(fields, "kgidNo"),
		FileID:           textField(fields, "fileId"),
		FileName:         textField(fields, "fileName"),
		OldTransactionID: textField(fields, "oldTransactionId"),
		Comments:         textField(fields, "comments"),
	}
	if raw, ok := fields["eventDetails"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &m.EventDetails); err != nil {
			return fmt.Errorf("decode eventDetails: %w", err)
		}
	}
	return nil
}

// EventIDs extracts eventId from each event, as text.
func (m ManifestEmployee) EventIDs() []string {
	ids := make([]string, 0, len(m.EventDetails))
	for _, raw := range m.EventDetails {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			ids = append(ids, "")
			continue
		}
		ids = append(ids, textField(fields, "eventId"))
	}
	return ids
}

// ParseManifest decodes a manifest produced by BuildManifests.
func ParseManifest(data []byte) (*ManifestDocument, error) {
	var doc ManifestDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &doc, nil
}
