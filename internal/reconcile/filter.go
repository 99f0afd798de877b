package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/creditsync/pkg/ledger"
	"github.com/your-org/creditsync/pkg/metrics"
	"github.com/your-org/creditsync/pkg/storage/remotestore"
)

// Ledger is the idempotency store the pipeline consults and updates.
type Ledger interface {
	Exists(ctx context.Context, key ledger.Key, status string) (bool, error)
	Insert(ctx context.Context, rec *ledger.StatusRecord) error
	LatestTransactionID(ctx context.Context, employeeID, eventID string) (string, error)
	MarkSent(ctx context.Context, transactionID string, at time.Time) (int64, error)
}

// Artifact is a named file held in memory between fetch and upload.
type Artifact struct {
	Name    string
	Content []byte
}

// MatchResult accumulates one filter pass. It is built and returned by Run
// and never shared between runs.
type MatchResult struct {
	Matched        []EventUnit
	Artifacts      []Artifact
	Skipped        []RecordSkipped
	LedgerFailures int
	CapReached     bool
	Unevaluated    int

	artifactIndex map[string]int
}

func newMatchResult() *MatchResult {
	return &MatchResult{artifactIndex: map[string]int{}}
}

func (r *MatchResult) artifact(name string) ([]byte, bool) {
	i, ok := r.artifactIndex[name]
	if !ok {
		return nil, false
	}
	return r.Artifacts[i].Content, true
}

func (r *MatchResult) addMatch(u EventUnit, content []byte) {
	if _, ok := r.artifactIndex[u.ArtifactName]; !ok {
		r.artifactIndex[u.ArtifactName] = len(r.Artifacts)
		r.Artifacts = append(r.Artifacts, Artifact{Name: u.ArtifactName, Content: content})
	}
	r.Matched = append(r.Matched, u)
}

// Filter decides, per event unit, whether it joins the current run.
type Filter struct {
	ledger    Ledger
	logger    *zap.Logger
	limit     int
	sourceDir string
}

func NewFilter(l Ledger, logger *zap.Logger, limit int, sourceDir string) *Filter {
	return &Filter{ledger: l, logger: logger, limit: limit, sourceDir: sourceDir}
}

// Run evaluates units in order against the ledger and the period-scoped
// directory on sess. Each matched unit gets a ledger row with artifact
// status "Y" before anything is uploaded. Evaluation stops once limit
// distinct artifacts have matched. Only a failure to enter the period
// directory is returned as an error.
func (f *Filter) Run(ctx context.Context, sess remotestore.Session, units []EventUnit, txID string, now time.Time) (*MatchResult, error) {
	res := newMatchResult()

	dir := remotestore.PeriodDir(f.sourceDir, now)
	if err := sess.ChangeDir(ctx, dir); err != nil {
		return nil, fmt.Errorf("%w: enter %s: %v", ErrTransport, dir, err)
	}
	f.logger.Debug("entered period directory", zap.String("dir", dir))

	for i, u := range units {
		if len(res.Artifacts) >= f.limit {
			res.CapReached = true
			res.Unevaluated = len(units) - i
			f.logger.Info("artifact limit reached, stopping evaluation",
				zap.Int("limit", f.limit), zap.Int("unevaluated", res.Unevaluated))
			break
		}

		key := ledger.Key{EmployeeID: u.EmployeeID, EventID: u.EventID, FileID: u.FileID, ArtifactName: u.ArtifactName}
		delivered, err := f.ledger.Exists(ctx, key, ledger.StatusYes)
		if err != nil {
			f.skip(res, skipUnit(u, SkipLedgerLookup, err.Error()))
			continue
		}
		if delivered {
			f.skip(res, skipUnit(u, SkipAlreadyDelivered, ""))
			continue
		}

		content, ok := res.artifact(u.ArtifactName)
		if !ok {
			var reason SkipReason
			content, reason, err = fetchArtifact(ctx, sess, u.ArtifactName)
			if reason != "" {
				detail := ""
				if err != nil {
					detail = err.Error()
				}
				f.skip(res, skipUnit(u, reason, detail))
				continue
			}
		}

		prev, err := f.ledger.LatestTransactionID(ctx, u.EmployeeID, u.EventID)
		if err != nil {
			f.logger.Warn("previous transaction lookup failed",
				zap.String("employee_id", u.EmployeeID), zap.String("event_id", u.EventID), zap.Error(err))
		}

		if err := f.ledger.Insert(ctx, newStatusRecord(u, txID, now)); err != nil {
			if errors.Is(err, ledger.ErrDuplicate) {
				// claimed by a concurrent run after the Exists check
				f.skip(res, skipUnit(u, SkipAlreadyDelivered, err.Error()))
				continue
			}
			res.LedgerFailures++
			f.logger.Error("ledger insert failed",
				zap.String("employee_id", u.EmployeeID), zap.String("event_id", u.EventID),
				zap.Error(fmt.Errorf("%w: %v", ErrLedgerWrite, err)))
			f.skip(res, skipUnit(u, SkipLedgerWrite, err.Error()))
			continue
		}

		u.PreviousTransactionID = prev
		res.addMatch(u, content)
		metrics.UnitsTotal.WithLabelValues("matched").Inc()
		f.logger.Info("event matched",
			zap.String("employee_id", u.EmployeeID), zap.String("event_id", u.EventID),
			zap.String("file_id", u.FileID), zap.String("artifact", u.ArtifactName))
	}
	return res, nil
}

func (f *Filter) skip(res *MatchResult, s RecordSkipped) {
	res.Skipped = append(res.Skipped, s)
	metrics.UnitsTotal.WithLabelValues(string(s.Reason)).Inc()
	f.logger.Warn("record skipped",
		zap.String("employee_id", s.EmployeeID), zap.String("event_id", s.EventID),
		zap.String("file_id", s.FileID), zap.String("artifact", s.ArtifactName),
		zap.String("reason", string(s.Reason)), zap.String("detail", s.Detail))
}

// fetchArtifact checks that name exists with non-zero size and reads it. A
// non-empty reason means the unit must be skipped.
func fetchArtifact(ctx context.Context, sess remotestore.Session, name string) ([]byte, SkipReason, error) {
	info, err := sess.Stat(ctx, name)
	if errors.Is(err, remotestore.ErrNotFound) {
		return nil, SkipArtifactNotFound, nil
	}
	if err != nil {
		return nil, SkipArtifactRead, err
	}
	if info.Size == 0 {
		return nil, SkipArtifactEmpty, nil
	}
	content, err := remotestore.ReadAll(ctx, sess, name)
	if err != nil {
		return nil, SkipArtifactRead, err
	}
	if len(content) == 0 {
		return nil, SkipArtifactEmpty, nil
	}
	return content, "", nil
}

func newStatusRecord(u EventUnit, txID string, now time.Time) *ledger.StatusRecord {
	return &ledger.StatusRecord{
		TransactionID:            txID,
		EmployeeID:               u.EmployeeID,
		SecondaryID:              u.SecondaryID,
		EventID:                  u.EventID,
		EventName:                u.EventName,
		FileID:                   u.FileID,
		ArtifactName:             u.ArtifactName,
		ArtifactStatus:           ledger.StatusYes,
		JSONGenerationState:      ledger.StatusNo,
		DownstreamReceivedStatus: ledger.StatusNo,
		DownstreamRejectedStatus: ledger.StatusNo,
		OfficeReceivedStatus:     ledger.StatusNo,
		OfficeRejectedStatus:     ledger.StatusNo,
		CreatedAt:                now.UTC(),
	}
}
