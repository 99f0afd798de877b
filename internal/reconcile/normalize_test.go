package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTargets = Targets{
	PrimaryPDF:     "/ag/pdf",
	PrimaryJSON:    "/ag/json",
	DownstreamPDF:  "/hrms/pdf",
	DownstreamJSON: "/hrms/json",
}

const innerPayload = `{
  "gemsId": "GEMS-7",
  "employeeDetails": [
    {"gerNo": "E1", "kgidNo": "K1", "fileId": "F1", "fileName": "A1.pdf",
     "eventDetails": [
       {"eventId": 101, "eventName": "EL Credit", "elCredit": 15, "remarks": "half year"},
       {"eventId": "102", "eventName": "HPL Credit", "hplCredit": 10}
     ]},
    {"gerNo": "E2", "fileId": "F2", "fileName": "A2.pdf",
     "leaveDetails": [{"eventId": 201, "eventName": "EL Credit"}]}
  ]
}`

func TestParseEnvelopeVariants(t *testing.T) {
	encoded, err := json.Marshal(innerPayload)
	require.NoError(t, err)

	bodies := map[string]string{
		"string jsonData": `{"jsonData": ` + string(encoded) + `,
			"agSftpPdfPath": "/ag/pdf", "agSftpJsonPath": "/ag/json",
			"hrmsSftpPdfPath": "/hrms/pdf", "hrmsSftpJsonPath": "/hrms/json"}`,
		"object jsonData": `{"jsonData": ` + innerPayload + `,
			"agSftpPdfPath": "/ag/pdf", "agSftpJsonPath": "/ag/json",
			"hrmsSftpPdfPath": "/hrms/pdf", "hrmsSftpJsonPath": "/hrms/json"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(body), Targets{}, "DEFAULT")
			require.NoError(t, err)
			assert.Equal(t, "GEMS-7", env.SystemID)
			assert.Equal(t, testTargets, env.Targets)
			require.Len(t, env.Employees, 2)

			e1 := env.Employees[0]
			assert.Equal(t, "E1", e1.EmployeeID)
			assert.Equal(t, "K1", e1.SecondaryID)
			assert.Equal(t, "F1", e1.FileID)
			assert.Equal(t, "A1.pdf", e1.ArtifactName)
			require.Len(t, e1.Events, 2)
			assert.Equal(t, "101", e1.Events[0].EventID)
			assert.Equal(t, "102", e1.Events[1].EventID)
			assert.NotContains(t, e1.Fields, "eventDetails")

			require.Len(t, env.Employees[1].Events, 1)
			assert.Equal(t, "201", env.Employees[1].Events[0].EventID)
		})
	}

	t.Run("inline payload with default targets", func(t *testing.T) {
		body := `{"transactionId": "REQ-1", "employeeDetails": [{"gerNo": "E1", "fileId": "F1", "fileName": "A1.pdf",
			"eventDetails": [{"eventId": "1", "eventName": "x"}]}]}`
		env, err := ParseEnvelope([]byte(body), testTargets, "GEMS")
		require.NoError(t, err)
		assert.Equal(t, "REQ-1", env.RequestID)
		assert.Equal(t, "GEMS", env.SystemID)
		assert.Equal(t, testTargets, env.Targets)
	})
}

func TestParseEnvelopeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":           `{`,
		"not an object":      `[1,2]`,
		"missing employees":  `{"jsonData": {"gemsId": "G"}}`,
		"empty employees":    `{"employeeDetails": []}`,
		"employees not list": `{"employeeDetails": {"gerNo": "E1"}}`,
		"bad jsonData":       `{"jsonData": "{oops", "employeeDetails": [{}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(body), testTargets, "GEMS")
			require.ErrorIs(t, err, ErrMalformedInput)
		})
	}

	t.Run("missing targets", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"employeeDetails": [{"gerNo": "E1"}], "agSftpPdfPath": "/p"}`), Targets{}, "GEMS")
		require.ErrorIs(t, err, ErrMalformedInput)
		assert.ErrorContains(t, err, "agSftpJsonPath")
	})
}

func TestNormalizeDropsIncompleteRecords(t *testing.T) {
	body := `{"employeeDetails": [
		{"gerNo": "E1", "fileId": "F1", "fileName": "A1.pdf",
		 "eventDetails": [{"eventId": "1", "eventName": "EL"}, {"eventId": "2"}]},
		{"fileId": "F2", "fileName": "A2.pdf", "eventDetails": [{"eventId": "3", "eventName": "EL"}]},
		{"gerNo": "E3", "fileId": "F3", "fileName": "A3.pdf"},
		"not-an-object",
		{"gerNo": "E4", "kgidNo": "K4", "fileName": "A4.pdf", "eventDetails": [{"eventId": "4", "eventName": "EL"}]}
	]}`
	env, err := ParseEnvelope([]byte(body), testTargets, "GEMS")
	require.NoError(t, err)

	units, skipped := Normalize(env)
	require.Len(t, units, 2)
	assert.Equal(t, "E1", units[0].EmployeeID)
	assert.Equal(t, "1", units[0].EventID)
	assert.Same(t, &env.Employees[0], units[0].Employee)

	// kgidNo stands in for a missing fileId.
	assert.Equal(t, "E4", units[1].EmployeeID)
	assert.Equal(t, "K4", units[1].FileID)

	reasons := map[SkipReason]int{}
	for _, s := range skipped {
		reasons[s.Reason]++
	}
	assert.Equal(t, 3, reasons[SkipMissingField])
	assert.Equal(t, 1, reasons[SkipNoEvents])
}
