package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput aborts a run before any remote or ledger work.
	ErrMalformedInput = errors.New("malformed input")
	// ErrTransport marks an unreachable endpoint or a failed remote operation.
	ErrTransport = errors.New("transport error")
	// ErrPartialUpload marks a run where at least one upload leg failed.
	ErrPartialUpload = errors.New("partial upload failure")
	// ErrLedgerWrite marks a failed ledger insert or sent-timestamp update.
	ErrLedgerWrite = errors.New("ledger write failure")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInput, fmt.Sprintf(format, args...))
}

// SkipReason explains why an event unit was left out of a run.
type SkipReason string

const (
	SkipMissingField     SkipReason = "missing_field"
	SkipNoEvents         SkipReason = "no_events"
	SkipAlreadyDelivered SkipReason = "already_delivered"
	SkipArtifactNotFound SkipReason = "artifact_not_found"
	SkipArtifactEmpty    SkipReason = "artifact_empty"
	SkipArtifactRead     SkipReason = "artifact_read_failed"
	SkipLedgerLookup     SkipReason = "ledger_lookup_failed"
	SkipLedgerWrite      SkipReason = "ledger_write_failed"
)

// RecordSkipped describes one unit (or employee record) dropped from a run.
// It is never fatal.
type RecordSkipped struct {
	EmployeeID   string     `json:"employee_id,omitempty"`
	EventID      string     `json:"event_id,omitempty"`
	FileID       string     `json:"file_id,omitempty"`
	ArtifactName string     `json:"artifact,omitempty"`
	Reason       SkipReason `json:"reason"`
	Detail       string     `json:"detail,omitempty"`
}

func (r RecordSkipped) Error() string {
	if r.Detail != "" {
		return fmt.Sprintf("record skipped (%s): %s", r.Reason, r.Detail)
	}
	return fmt.Sprintf("record skipped (%s)", r.Reason)
}

func skipUnit(u EventUnit, reason SkipReason, detail string) RecordSkipped {
	return RecordSkipped{
		EmployeeID:   u.EmployeeID,
		EventID:      u.EventID,
		FileID:       u.FileID,
		ArtifactName: u.ArtifactName,
		Reason:       reason,
		Detail:       detail,
	}
}
