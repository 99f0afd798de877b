package reconcile

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/creditsync/pkg/ledger"
	"github.com/your-org/creditsync/pkg/storage/remotestore"
)

const testSourceDir = "/upload/pdf"

var (
	testNow       = time.Date(2024, time.July, 15, 10, 30, 0, 0, time.UTC)
	testPeriodDir = "/upload/pdf/2024/Jul/"
)

func newTestLedger(t *testing.T) *ledger.Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ledger.db") + "?_pragma=busy_timeout(5000)"
	repo, err := ledger.Open("sqlite", dsn, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func fixedClock() time.Time { return testNow }

// envelopeBody renders a jsonData envelope with the standard target paths.
func envelopeBody(employees string) []byte {
	return []byte(`{"jsonData": {"gemsId": "GEMS", "employeeDetails": ` + employees + `},
		"agSftpPdfPath": "/ag/pdf", "agSftpJsonPath": "/ag/json",
		"hrmsSftpPdfPath": "/hrms/pdf", "hrmsSftpJsonPath": "/hrms/json"}`)
}

func unitsFor(t *testing.T, employees string) []EventUnit {
	t.Helper()
	env, err := ParseEnvelope(envelopeBody(employees), Targets{}, "GEMS")
	require.NoError(t, err)
	units, _ := Normalize(env)
	return units
}

// faultyDialer wraps a memory store and injects failures.
type faultyDialer struct {
	*remotestore.Memory
	dialErr   error
	mkdirErr  error
	failWrite func(p string) bool
}

func (d *faultyDialer) Dial(ctx context.Context) (remotestore.Session, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	sess, err := d.Memory.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &faultySession{Session: sess, mkdirErr: d.mkdirErr, failWrite: d.failWrite}, nil
}

type faultySession struct {
	remotestore.Session
	mkdirErr  error
	failWrite func(p string) bool
}

func (s *faultySession) MakeDir(ctx context.Context, dir string) error {
	if s.mkdirErr != nil {
		return s.mkdirErr
	}
	return s.Session.MakeDir(ctx, dir)
}

func (s *faultySession) Write(ctx context.Context, remotePath string, r io.Reader) error {
	if s.failWrite != nil && s.failWrite(remotePath) {
		return errors.New("write refused: " + remotePath)
	}
	return s.Session.Write(ctx, remotePath, r)
}

func failUnder(prefix string) func(string) bool {
	return func(p string) bool { return strings.HasPrefix(p, prefix) }
}

// flakyLedger fails Insert for the listed event ids.
type flakyLedger struct {
	Ledger
	failInsert map[string]bool
	marked     []string
}

func (l *flakyLedger) Insert(ctx context.Context, rec *ledger.StatusRecord) error {
	if l.failInsert[rec.EventID] {
		return errors.New("insert rejected")
	}
	return l.Ledger.Insert(ctx, rec)
}

func (l *flakyLedger) MarkSent(ctx context.Context, txID string, at time.Time) (int64, error) {
	l.marked = append(l.marked, txID)
	return l.Ledger.MarkSent(ctx, txID, at)
}

// slowLedger delays the answer of Exists, widening the window between the
// idempotency check and the insert. With miss set it always reports "not
// delivered".
type slowLedger struct {
	Ledger
	delay time.Duration
	miss  bool
}

func (l *slowLedger) Exists(ctx context.Context, key ledger.Key, status string) (bool, error) {
	ok, err := l.Ledger.Exists(ctx, key, status)
	time.Sleep(l.delay)
	if l.miss {
		return false, err
	}
	return ok, err
}

var nopLogger = zap.NewNop()
