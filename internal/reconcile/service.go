package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/creditsync/pkg/ledger"
	"github.com/your-org/creditsync/pkg/metrics"
	"github.com/your-org/creditsync/pkg/storage/remotestore"
	"github.com/your-org/creditsync/pkg/tracing"
)

var tracer = tracing.Tracer("reconcile")

// Publisher emits run reports. *kafka.Producer satisfies it.
type Publisher interface {
	PublishJSON(ctx context.Context, key, eventType string, value any) error
}

// CallbackStore records partner status callbacks on the ledger.
type CallbackStore interface {
	ApplyCallback(ctx context.Context, cb ledger.Callback) (int64, error)
}

// Service wires the ledger, the remote stores and the pipeline stages.
type Service struct {
	ledger     Ledger
	callbacks  CallbackStore
	source     remotestore.Dialer
	primary    remotestore.Dialer
	downstream remotestore.Dialer
	publisher  Publisher
	logger     *zap.Logger
	filter     *Filter
	dispatcher *Dispatcher
	sourceDir  string
	systemID   string
	defaults   Targets
	clock      func() time.Time
}

type Params struct {
	Ledger    Ledger
	Callbacks CallbackStore
	// Source is where matched PDFs are read from; usually the primary endpoint.
	Source         remotestore.Dialer
	Primary        remotestore.Dialer
	Downstream     remotestore.Dialer
	Publisher      Publisher
	Logger         *zap.Logger
	SourceDir      string
	ArtifactLimit  int
	SystemID       string
	DefaultTargets Targets
	Clock          func() time.Time
}

// NewService constructs a reconciliation Service.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	source := p.Source
	if source == nil {
		source = p.Primary
	}
	limit := p.ArtifactLimit
	if limit <= 0 {
		limit = 10
	}
	return &Service{
		ledger:     p.Ledger,
		callbacks:  p.Callbacks,
		source:     source,
		primary:    p.Primary,
		downstream: p.Downstream,
		publisher:  p.Publisher,
		logger:     logger,
		filter:     NewFilter(p.Ledger, logger.Named("filter"), limit, p.SourceDir),
		dispatcher: NewDispatcher(logger.Named("dispatcher")),
		sourceDir:  p.SourceDir,
		systemID:   p.SystemID,
		defaults:   p.DefaultTargets,
		clock:      clock,
	}
}

// Process runs one full pass for an inbound envelope. The returned error is
// classified by ErrMalformedInput, ErrTransport or ErrPartialUpload; the
// report is non-nil whenever the envelope was valid.
func (s *Service) Process(ctx context.Context, body []byte) (*RunReport, error) {
	ctx, span := tracer.Start(ctx, "reconcile.Process")
	defer span.End()

	started := s.clock()
	timer := time.Now()
	defer func() { metrics.RunDuration.Observe(time.Since(timer).Seconds()) }()

	env, err := ParseEnvelope(body, s.defaults, s.systemID)
	if err != nil {
		s.logger.Warn("rejected envelope", zap.Error(err))
		metrics.RunsTotal.WithLabelValues("malformed").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	units, skipped := Normalize(env)
	for _, sk := range skipped {
		metrics.UnitsTotal.WithLabelValues(string(sk.Reason)).Inc()
		s.logger.Warn("record skipped", zap.String("employee_id", sk.EmployeeID),
			zap.String("event_id", sk.EventID), zap.String("reason", string(sk.Reason)),
			zap.String("detail", sk.Detail))
	}

	report := &RunReport{
		RunID:         uuid.NewString(),
		TransactionID: NewTransactionID(started),
		RequestID:     env.RequestID,
		SystemID:      env.SystemID,
		Units:         len(units),
		Skipped:       skipped,
		StartedAt:     started.UTC(),
	}
	log := s.logger.With(zap.String("run_id", report.RunID), zap.String("transaction_id", report.TransactionID))
	span.SetAttributes(
		attribute.String("creditsync.transaction_id", report.TransactionID),
		attribute.Int("creditsync.units", len(units)),
	)

	match, err := s.match(ctx, units, report.TransactionID, started)
	if err != nil {
		log.Error("match phase failed", zap.Error(err))
		metrics.RunsTotal.WithLabelValues("transport_error").Inc()
		span.SetStatus(codes.Error, err.Error())
		return s.finish(ctx, report), err
	}
	report.Skipped = append(report.Skipped, match.Skipped...)
	report.Matched = len(match.Matched)
	report.CapReached = match.CapReached
	report.Unevaluated = match.Unevaluated

	if len(match.Matched) == 0 {
		log.Info("no matching artifacts, nothing to deliver", zap.Int("units", len(units)))
		metrics.RunsTotal.WithLabelValues("nothing_matched").Inc()
		return s.finish(ctx, report), nil
	}

	groups := Group(match.Matched)
	manifests, err := BuildManifests(groups, report.TransactionID, env.SystemID)
	if err != nil {
		log.Error("manifest generation failed", zap.Error(err))
		metrics.RunsTotal.WithLabelValues("manifest_error").Inc()
		span.SetStatus(codes.Error, err.Error())
		return s.finish(ctx, report), err
	}
	for _, m := range manifests {
		report.Manifests = append(report.Manifests, m.Name)
	}
	for _, a := range match.Artifacts {
		report.Artifacts = append(report.Artifacts, a.Name)
	}

	outcome := s.dispatch(ctx, env.Targets, manifests, match.Artifacts)
	report.Outcome = &outcome
	report.Stamped = s.stampSent(ctx, log, report.TransactionID, outcome, match.LedgerFailures)

	if !outcome.AllSucceeded() {
		metrics.RunsTotal.WithLabelValues("partial_upload").Inc()
		err := fmt.Errorf("%w: primary json=%t pdf=%t, downstream json=%t pdf=%t", ErrPartialUpload,
			outcome.PrimaryJSON, outcome.PrimaryPDF, outcome.DownstreamJSON, outcome.DownstreamPDF)
		span.SetStatus(codes.Error, err.Error())
		return s.finish(ctx, report), err
	}
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	log.Info("run complete", zap.Int("matched", report.Matched), zap.Strings("manifests", report.Manifests))
	return s.finish(ctx, report), nil
}

// match holds one source session open for the whole filter pass.
func (s *Service) match(ctx context.Context, units []EventUnit, txID string, now time.Time) (*MatchResult, error) {
	ctx, span := tracer.Start(ctx, "reconcile.match")
	defer span.End()

	var res *MatchResult
	err := remotestore.WithSession(ctx, s.source, func(sess remotestore.Session) error {
		var ferr error
		res, ferr = s.filter.Run(ctx, sess, units, txID, now)
		return ferr
	})
	if res != nil {
		if err != nil {
			s.logger.Warn("source session release failed", zap.Error(err))
		}
		return res, nil
	}
	if !errors.Is(err, ErrTransport) {
		err = fmt.Errorf("%w: %v", ErrTransport, err)
	}
	span.RecordError(err)
	return nil, err
}

func (s *Service) dispatch(ctx context.Context, targets Targets, manifests, pdfs []Artifact) UploadOutcome {
	ctx, span := tracer.Start(ctx, "reconcile.dispatch")
	defer span.End()

	outcome := s.dispatcher.Dispatch(ctx,
		Endpoint{Name: s.primary.Name(), Dialer: s.primary, JSONPath: targets.PrimaryJSON, PDFPath: targets.PrimaryPDF},
		Endpoint{Name: s.downstream.Name(), Dialer: s.downstream, JSONPath: targets.DownstreamJSON, PDFPath: targets.DownstreamPDF},
		manifests, pdfs)
	span.SetAttributes(attribute.Bool("creditsync.all_legs_ok", outcome.AllSucceeded()))
	return outcome
}

// stampSent sets the sent timestamp for txID only when all four legs
// succeeded and every ledger insert of the run went through.
func (s *Service) stampSent(ctx context.Context, log *zap.Logger, txID string, outcome UploadOutcome, ledgerFailures int) bool {
	if !outcome.AllSucceeded() {
		log.Error("sent timestamp not updated: upload legs failed",
			zap.Bool("primary_json", outcome.PrimaryJSON), zap.Bool("primary_pdf", outcome.PrimaryPDF),
			zap.Bool("downstream_json", outcome.DownstreamJSON), zap.Bool("downstream_pdf", outcome.DownstreamPDF))
		metrics.SentStampsTotal.WithLabelValues("suppressed_upload").Inc()
		return false
	}
	if ledgerFailures > 0 {
		log.Error("sent timestamp not updated: ledger inserts failed", zap.Int("failures", ledgerFailures))
		metrics.SentStampsTotal.WithLabelValues("suppressed_ledger").Inc()
		return false
	}
	n, err := s.ledger.MarkSent(ctx, txID, s.clock())
	if err != nil {
		log.Error("sent timestamp update failed", zap.Error(fmt.Errorf("%w: %v", ErrLedgerWrite, err)))
		metrics.SentStampsTotal.WithLabelValues("error").Inc()
		return false
	}
	log.Info("sent timestamp updated", zap.Int64("rows", n))
	metrics.SentStampsTotal.WithLabelValues("stamped").Inc()
	return true
}

func (s *Service) finish(ctx context.Context, report *RunReport) *RunReport {
	report.FinishedAt = s.clock().UTC()
	if s.publisher == nil {
		return report
	}
	if err := s.publisher.PublishJSON(ctx, report.TransactionID, EventDeliveryCompleted, report); err != nil {
		s.logger.Warn("publish run report failed", zap.String("transaction_id", report.TransactionID), zap.Error(err))
	}
	return report
}

// PeriodArtifacts lists the PDFs in the current period directory of the
// source store.
func (s *Service) PeriodArtifacts(ctx context.Context) (string, []string, error) {
	dir := remotestore.PeriodDir(s.sourceDir, s.clock())
	var names []string
	err := remotestore.WithSession(ctx, s.source, func(sess remotestore.Session) error {
		var lerr error
		names, lerr = sess.List(ctx, dir, "*.pdf")
		return lerr
	})
	if err != nil {
		return dir, nil, fmt.Errorf("%w: list %s: %v", ErrTransport, dir, err)
	}
	return dir, names, nil
}

// ApplyCallback records a partner's received/rejected decision.
func (s *Service) ApplyCallback(ctx context.Context, cb ledger.Callback) (int64, error) {
	if s.callbacks == nil {
		return 0, errors.New("status callbacks are not configured")
	}
	if cb.At.IsZero() {
		cb.At = s.clock()
	}
	n, err := s.callbacks.ApplyCallback(ctx, cb)
	if err != nil {
		return 0, err
	}
	s.logger.Info("status callback applied", zap.String("transaction_id", cb.TransactionID),
		zap.String("party", string(cb.Party)), zap.String("decision", string(cb.Decision)), zap.Int64("rows", n))
	return n, nil
}
