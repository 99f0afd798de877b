package reconcile

import "strings"

// EventUnit is one employee's one event, the unit of matching and ledger
// bookkeeping. Employee points back at the source record for manifest output.
type EventUnit struct {
	EmployeeID   string
	SecondaryID  string
	FileID       string
	EventID      string
	EventName    string
	ArtifactName string

	// PreviousTransactionID is the latest ledger transaction for the same
	// employee and event, filled in by the filter when one exists.
	PreviousTransactionID string

	Employee *EmployeeRecord
	Event    EventRecord
}

// Normalize flattens the envelope into event units in input order. Records
// missing a required attribute are returned as skips; they never fail the run.
func Normalize(env *Envelope) ([]EventUnit, []RecordSkipped) {
	var (
		units   []EventUnit
		skipped []RecordSkipped
	)
	skipped = append(skipped, env.Rejected...)

	for i := range env.Employees {
		emp := &env.Employees[i]
		if len(emp.Events) == 0 {
			skipped = append(skipped, RecordSkipped{
				EmployeeID:   emp.EmployeeID,
				FileID:       emp.FileID,
				ArtifactName: emp.ArtifactName,
				Reason:       SkipNoEvents,
				Detail:       "employee has no event details",
			})
			continue
		}
		for _, ev := range emp.Events {
			unit, skip := validateUnit(emp, ev)
			if skip != nil {
				skipped = append(skipped, *skip)
				continue
			}
			units = append(units, unit)
		}
	}
	return units, skipped
}

// validateUnit produces either a complete unit or the reason it was rejected.
func validateUnit(emp *EmployeeRecord, ev EventRecord) (EventUnit, *RecordSkipped) {
	unit := EventUnit{
		EmployeeID:   emp.EmployeeID,
		SecondaryID:  emp.SecondaryID,
		FileID:       emp.FileID,
		EventID:      ev.EventID,
		EventName:    ev.EventName,
		ArtifactName: emp.ArtifactName,
		Employee:     emp,
		Event:        ev,
	}

	var missing []string
	if unit.EmployeeID == "" {
		missing = append(missing, "gerNo")
	}
	if unit.EventID == "" {
		missing = append(missing, "eventId")
	}
	if unit.EventName == "" {
		missing = append(missing, "eventName")
	}
	if unit.FileID == "" {
		missing = append(missing, "fileId")
	}
	if unit.ArtifactName == "" {
		missing = append(missing, "fileName")
	}
	if len(missing) > 0 {
		skip := skipUnit(unit, SkipMissingField, "missing "+strings.Join(missing, ", "))
		return EventUnit{}, &skip
	}
	return unit, nil
}
