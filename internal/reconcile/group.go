package reconcile

import "strings"

// ArtifactGroup is the set of employee entries that share one PDF.
type ArtifactGroup struct {
	ArtifactName string
	Entries      []EmployeeEntry
}

// EmployeeEntry is one employee record restricted to its matched events.
type EmployeeEntry struct {
	Record                *EmployeeRecord
	Events                []EventRecord
	PreviousTransactionID string
}

func (e EmployeeEntry) dedupKey() string {
	ids := make([]string, len(e.Events))
	for i, ev := range e.Events {
		ids[i] = ev.EventID
	}
	return e.Record.EmployeeID + "\x1f" + e.Record.FileID + "\x1f" + strings.Join(ids, ",")
}

// Group buckets matched units by artifact name in first-seen order. Units of
// the same source record are folded into one entry, then entries with the
// same employee, file and ordered event ids are collapsed.
func Group(units []EventUnit) []ArtifactGroup {
	var groups []ArtifactGroup
	groupIndex := map[string]int{}
	entryIndex := map[string]map[int]int{}

	for _, u := range units {
		gi, ok := groupIndex[u.ArtifactName]
		if !ok {
			gi = len(groups)
			groupIndex[u.ArtifactName] = gi
			groups = append(groups, ArtifactGroup{ArtifactName: u.ArtifactName})
			entryIndex[u.ArtifactName] = map[int]int{}
		}
		g := &groups[gi]

		ei, ok := entryIndex[u.ArtifactName][u.Employee.Ordinal]
		if !ok {
			ei = len(g.Entries)
			entryIndex[u.ArtifactName][u.Employee.Ordinal] = ei
			g.Entries = append(g.Entries, EmployeeEntry{Record: u.Employee})
		}
		entry := &g.Entries[ei]
		entry.Events = append(entry.Events, u.Event)
		if entry.PreviousTransactionID == "" {
			entry.PreviousTransactionID = u.PreviousTransactionID
		}
	}

	for i := range groups {
		groups[i].Entries = dedupEntries(groups[i].Entries)
	}
	return groups
}

func dedupEntries(entries []EmployeeEntry) []EmployeeEntry {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, e := range entries {
		key := e.dedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
