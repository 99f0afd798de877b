package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/creditsync/pkg/ledger"
	"github.com/your-org/creditsync/pkg/storage/remotestore"
)

func runFilter(t *testing.T, l Ledger, store *remotestore.Memory, limit int, units []EventUnit) (*MatchResult, error) {
	t.Helper()
	var res *MatchResult
	err := remotestore.WithSession(context.Background(), store, func(sess remotestore.Session) error {
		var ferr error
		res, ferr = NewFilter(l, nopLogger, limit, testSourceDir).Run(context.Background(), sess, units, "TX1", testNow)
		return ferr
	})
	return res, err
}

func TestFilterMatchesAndClaims(t *testing.T) {
	ctx := context.Background()
	repo := newTestLedger(t)
	store := remotestore.NewMemory("primary")
	store.Put(testPeriodDir+"A1.pdf", []byte("%PDF-1"))

	units := unitsFor(t, `[{"gerNo": "E1", "fileId": "F1", "fileName": "A1.pdf",
		"eventDetails": [{"eventId": "EV1", "eventName": "EL Credit"}]}]`)

	res, err := runFilter(t, repo, store, 10, units)
	require.NoError(t, err)
	require.Len(t, res.Matched, 1)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, "A1.pdf", res.Artifacts[0].Name)
	assert.Equal(t, []byte("%PDF-1"), res.Artifacts[0].Content)
	assert.Empty(t, res.Skipped)
	assert.Zero(t, store.OpenSessions())

	delivered, err := repo.Exists(ctx, ledger.Key{EmployeeID: "E1", EventID: "EV1", FileID: "F1", ArtifactName: "A1.pdf"}, ledger.StatusYes)
	require.NoError(t, err)
	assert.True(t, delivered)

	rows, err := repo.FindByTransaction(ctx, "TX1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.StatusNo, rows[0].JSONGenerationState)
	assert.Nil(t, rows[0].SentAt)
}

func TestFilterSkipsDeliveredUnitOnly(t *testing.T) {
	ctx := context.Background()
	repo := newTestLedger(t)
	require.NoError(t, repo.Insert(ctx, &ledger.StatusRecord{
		TransactionID: "OLD", EmployeeID: "E1", EventID: "EV1", FileID: "F1",
		ArtifactName: "A1.pdf", ArtifactStatus: ledger.StatusYes, CreatedAt: testNow.AddDate(0, 0, -1),
	}))
	store := remotestore.NewMemory("primary")
	store.Put(testPeriodDir+"A1.pdf", []byte("%PDF-1"))

	units := unitsFor(t, `[{"gerNo": "E1", "fileId": "F1", "fileName": "A1.pdf",
		"eventDetails": [{"eventId": "EV1", "eventName": "EL Credit"}, {"eventId": "EV2", "eventName": "HPL Credit"}]}]`)

	res, err := runFilter(t, repo, store, 10, units)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipAlreadyDelivered, res.Skipped[0].Reason)
	assert.Equal(t, "EV1", res.Skipped[0].EventID)
	require.Len(t, res.Matched, 1)
	assert.Equal(t, "EV2", res.Matched[0].EventID)
}

func TestFilterArtifactProblems(t *testing.T) {
	repo := newTestLedger(t)
	store := remotestore.NewMemory("primary")
	store.Put(testPeriodDir+"empty.pdf", nil)

	units := unitsFor(t, `[
		{"gerNo": "E1", "fileId": "F1", "fileName": "missing.pdf", "eventDetails": [{"eventId": "EV1", "eventName": "x"}]},
		{"gerNo": "E2", "fileId": "F2", "fileName": "empty.pdf", "eventDetails": [{"eventId": "EV2", "eventName": "x"}]}
	]`)

	res, err := runFilter(t, repo, store, 10, units)
	require.NoError(t, err)
	assert.Empty(t, res.Matched)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, SkipArtifactNotFound, res.Skipped[0].Reason)
	assert.Equal(t, SkipArtifactEmpty, res.Skipped[1].Reason)

	rows, err := repo.FindByTransaction(context.Background(), "TX1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFilterStopsAtArtifactLimit(t *testing.T) {
	repo := newTestLedger(t)
	store := remotestore.NewMemory("primary")
	for _, name := range []string{"A1.pdf", "A2.pdf", "A3.pdf"} {
		store.Put(testPeriodDir+name, []byte(name))
	}

	units := unitsFor(t, `[
		{"gerNo": "E1", "fileId": "F1", "fileName": "A1.pdf", "eventDetails": [{"eventId": "1", "eventName": "x"}, {"eventId": "2", "eventName": "x"}]},
		{"gerNo": "E2", "fileId": "F2", "fileName": "A2.pdf", "eventDetails": [{"eventId": "3", "eventName": "x"}]},
		{"gerNo": "E3", "fileId": "F3", "fileName": "A3.pdf", "eventDetails": [{"eventId": "4", "eventName": "x"}]},
		{"gerNo": "E4", "fileId": "F4", "fileName": "A1.pdf", "eventDetails": [{"eventId": "5", "eventName": "x"}]}
	]`)

	res, err := runFilter(t, repo, store, 2, units)
	require.NoError(t, err)
	assert.True(t, res.CapReached)
	assert.Equal(t, 2, res.Unevaluated)
	require.Len(t, res.Artifacts, 2)
	assert.Equal(t, "A1.pdf", res.Artifacts[0].Name)
	assert.Equal(t, "A2.pdf", res.Artifacts[1].Name)
	assert.Len(t, res.Matched, 3)

	rows, err := repo.FindByTransaction(context.Background(), "TX1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	var claimed []string
	for _, row := range rows {
		claimed = append(claimed, row.EmployeeID+"/"+row.EventID)
	}
	assert.Equal(t, []string{"E1/1", "E1/2", "E2/3"}, claimed)
}

func TestFilterMissingPeriodDirectory(t *testing.T) {
	repo := newTestLedger(t)
	store := remotestore.NewMemory("primary")

	units := unitsFor(t, `[{"gerNo": "E1", "fileId": "F1", "fileName": "A1.pdf", "eventDetails": [{"eventId": "1", "eventName": "x"}]}]`)

	res, err := runFilter(t, repo, store, 10, units)
	require.ErrorIs(t, err, ErrTransport)
	assert.Nil(t, res)
	assert.Zero(t, store.OpenSessions())
}

func TestFilterLedgerInsertFailure(t *testing.T) {
	store := remotestore.NewMemory("primary")
	store.Put(testPeriodDir+"A1.pdf", []byte("pdf"))
	l := &flakyLedger{Ledger: newTestLedger(t), failInsert: map[string]bool{"EV1": true}}

	units := unitsFor(t, `[{"gerNo": "E1", "fileId": "F1", "fileName": "A1.pdf",
		"eventDetails": [{"eventId": "EV1", "eventName": "x"}, {"eventId": "EV2", "eventName": "x"}]}]`)

	res, err := runFilter(t, l, store, 10, units)
	require.NoError(t, err)
	assert.Equal(t, 1, res.LedgerFailures)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipLedgerWrite, res.Skipped[0].Reason)
	require.Len(t, res.Matched, 1)
	assert.Equal(t, "EV2", res.Matched[0].EventID)
}

func TestFilterCarriesPreviousTransaction(t *testing.T) {
	ctx := context.Background()
	repo := newTestLedger(t)
	require.NoError(t, repo.Insert(ctx, &ledger.StatusRecord{
		TransactionID: "OLD", EmployeeID: "E1", EventID: "EV1", FileID: "F1",
		ArtifactName: "A0.pdf", ArtifactStatus: ledger.StatusYes, CreatedAt: testNow.AddDate(0, -1, 0),
	}))
	store := remotestore.NewMemory("primary")
	store.Put(testPeriodDir+"A1.pdf", []byte("pdf"))

	units := unitsFor(t, `[{"gerNo": "E1", "fileId": "F1", "fileName": "A1.pdf", "eventDetails": [{"eventId": "EV1", "eventName": "x"}]}]`)

	res, err := runFilter(t, repo, store, 10, units)
	require.NoError(t, err)
	require.Len(t, res.Matched, 1)
	assert.Equal(t, "OLD", res.Matched[0].PreviousTransactionID)
}

func TestFilterInsertConflictCountsAsDelivered(t *testing.T) {
	ctx := context.Background()
	repo := newTestLedger(t)
	require.NoError(t, repo.Insert(ctx, &ledger.StatusRecord{
		TransactionID: "OTHER", EmployeeID: "E1", EventID: "EV1", FileID: "F1",
		ArtifactName: "A1.pdf", ArtifactStatus: ledger.StatusYes, CreatedAt: testNow,
	}))
	store := remotestore.NewMemory("primary")
	store.Put(testPeriodDir+"A1.pdf", []byte("pdf"))

	units := unitsFor(t, `[{"gerNo": "E1", "fileId": "F1", "fileName": "A1.pdf", "eventDetails": [{"eventId": "EV1", "eventName": "x"}]}]`)

	res, err := runFilter(t, &slowLedger{Ledger: repo, miss: true}, store, 10, units)
	require.NoError(t, err)
	assert.Empty(t, res.Matched)
	assert.Zero(t, res.LedgerFailures)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipAlreadyDelivered, res.Skipped[0].Reason)

	rows, err := repo.FindByTransaction(ctx, "TX1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
