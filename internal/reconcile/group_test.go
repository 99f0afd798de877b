package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupByArtifactInFirstSeenOrder(t *testing.T) {
	units := unitsFor(t, `[
		{"gerNo": "E1", "fileId": "F1", "fileName": "B.pdf", "eventDetails": [{"eventId": "1", "eventName": "x"}, {"eventId": "2", "eventName": "y"}]},
		{"gerNo": "E2", "fileId": "F2", "fileName": "A.pdf", "eventDetails": [{"eventId": "3", "eventName": "x"}]},
		{"gerNo": "E3", "fileId": "F3", "fileName": "B.pdf", "eventDetails": [{"eventId": "4", "eventName": "x"}]}
	]`)

	groups := Group(units)
	require.Len(t, groups, 2)
	assert.Equal(t, "B.pdf", groups[0].ArtifactName)
	assert.Equal(t, "A.pdf", groups[1].ArtifactName)

	require.Len(t, groups[0].Entries, 2)
	assert.Equal(t, "E1", groups[0].Entries[0].Record.EmployeeID)
	require.Len(t, groups[0].Entries[0].Events, 2)
	assert.Equal(t, "1", groups[0].Entries[0].Events[0].EventID)
	assert.Equal(t, "2", groups[0].Entries[0].Events[1].EventID)
	assert.Equal(t, "E3", groups[0].Entries[1].Record.EmployeeID)
}

func TestGroupCollapsesDuplicateEntries(t *testing.T) {
	units := unitsFor(t, `[
		{"gerNo": "E1", "fileId": "F1", "fileName": "A.pdf", "eventDetails": [{"eventId": "1", "eventName": "x"}]},
		{"gerNo": "E1", "fileId": "F1", "fileName": "A.pdf", "eventDetails": [{"eventId": "1", "eventName": "x"}]},
		{"gerNo": "E1", "fileId": "F1", "fileName": "A.pdf", "eventDetails": [{"eventId": "2", "eventName": "x"}]}
	]`)

	groups := Group(units)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Entries, 2)
	assert.Equal(t, "1", groups[0].Entries[0].Events[0].EventID)
	assert.Equal(t, "2", groups[0].Entries[1].Events[0].EventID)
}

func TestGroupKeepsOnlyMatchedEvents(t *testing.T) {
	units := unitsFor(t, `[{"gerNo": "E1", "fileId": "F1", "fileName": "A.pdf",
		"eventDetails": [{"eventId": "1", "eventName": "x"}, {"eventId": "2", "eventName": "x"}, {"eventId": "3", "eventName": "x"}]}]`)

	groups := Group([]EventUnit{units[0], units[2]})
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Entries, 1)
	events := groups[0].Entries[0].Events
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].EventID)
	assert.Equal(t, "3", events[1].EventID)
}
