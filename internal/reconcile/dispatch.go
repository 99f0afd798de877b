package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/your-org/creditsync/pkg/metrics"
	"github.com/your-org/creditsync/pkg/storage/remotestore"
)

const (
	KindJSON = "json"
	KindPDF  = "pdf"
)

// Endpoint is one delivery destination with its two target directories.
type Endpoint struct {
	Name     string
	Dialer   remotestore.Dialer
	JSONPath string
	PDFPath  string
}

// LegResult records one (endpoint, kind) upload leg.
type LegResult struct {
	Endpoint  string `json:"endpoint"`
	Kind      string `json:"kind"`
	Attempted int    `json:"attempted"`
	Failed    int    `json:"failed"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// UploadOutcome is the four-leg result of a dispatch.
type UploadOutcome struct {
	PrimaryJSON    bool        `json:"primary_json"`
	PrimaryPDF     bool        `json:"primary_pdf"`
	DownstreamJSON bool        `json:"downstream_json"`
	DownstreamPDF  bool        `json:"downstream_pdf"`
	Legs           []LegResult `json:"legs"`
}

func (o UploadOutcome) AllSucceeded() bool {
	return o.PrimaryJSON && o.PrimaryPDF && o.DownstreamJSON && o.DownstreamPDF
}

// Dispatcher pushes manifests and PDFs to both endpoints.
type Dispatcher struct {
	logger *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Dispatch delivers to primary, then downstream. A failure on one endpoint
// never prevents the attempt on the other.
func (d *Dispatcher) Dispatch(ctx context.Context, primary, downstream Endpoint, manifests []Artifact, pdfs []Artifact) UploadOutcome {
	var out UploadOutcome

	pj, pp := d.deliver(ctx, primary, manifests, pdfs)
	out.PrimaryJSON, out.PrimaryPDF = pj.OK, pp.OK

	dj, dp := d.deliver(ctx, downstream, manifests, pdfs)
	out.DownstreamJSON, out.DownstreamPDF = dj.OK, dp.OK

	out.Legs = []LegResult{pj, pp, dj, dp}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, ep Endpoint, manifests []Artifact, pdfs []Artifact) (jsonLeg, pdfLeg LegResult) {
	jsonLeg = LegResult{Endpoint: ep.Name, Kind: KindJSON, Attempted: len(manifests)}
	pdfLeg = LegResult{Endpoint: ep.Name, Kind: KindPDF, Attempted: len(pdfs)}

	sessionOpened := false
	err := remotestore.WithSession(ctx, ep.Dialer, func(sess remotestore.Session) error {
		sessionOpened = true
		jsonLeg = d.uploadLeg(ctx, sess, jsonLeg, ep.JSONPath, manifests)
		pdfLeg = d.uploadLeg(ctx, sess, pdfLeg, ep.PDFPath, pdfs)
		return nil
	})
	if err != nil && !sessionOpened {
		msg := fmt.Errorf("%w: %v", ErrTransport, err).Error()
		jsonLeg.Error, pdfLeg.Error = msg, msg
		jsonLeg.Failed, pdfLeg.Failed = jsonLeg.Attempted, pdfLeg.Attempted
		d.logger.Error("endpoint unreachable", zap.String("endpoint", ep.Name), zap.Error(err))
		recordUploads(jsonLeg)
		recordUploads(pdfLeg)
		return jsonLeg, pdfLeg
	}
	if err != nil {
		d.logger.Warn("session release failed", zap.String("endpoint", ep.Name), zap.Error(err))
	}

	if jsonLeg.OK && pdfLeg.OK {
		d.logger.Info("endpoint delivery complete", zap.String("endpoint", ep.Name),
			zap.Int("manifests", len(manifests)), zap.Int("pdfs", len(pdfs)))
	} else {
		d.logger.Error("endpoint delivery incomplete", zap.String("endpoint", ep.Name),
			zap.Bool("json_ok", jsonLeg.OK), zap.Bool("pdf_ok", pdfLeg.OK))
	}
	return jsonLeg, pdfLeg
}

// uploadLeg writes every file into dir, continuing past individual failures.
// The leg succeeds only when every file was written.
func (d *Dispatcher) uploadLeg(ctx context.Context, sess remotestore.Session, leg LegResult, dir string, files []Artifact) LegResult {
	var mkdirErr error
	if err := sess.MakeDir(ctx, dir); err != nil {
		mkdirErr = fmt.Errorf("ensure %s: %w", dir, err)
		leg.Error = mkdirErr.Error()
		d.logger.Error("ensure directory failed", zap.String("endpoint", leg.Endpoint),
			zap.String("dir", dir), zap.Error(err))
	}

	for _, f := range files {
		target := path.Join(dir, f.Name)
		if err := sess.Write(ctx, target, bytes.NewReader(f.Content)); err != nil {
			leg.Failed++
			// keep the mkdir failure ahead of the upload error
			leg.Error = errors.Join(mkdirErr, fmt.Errorf("upload %s: %w", target, err)).Error()
			d.logger.Error("upload failed", zap.String("endpoint", leg.Endpoint),
				zap.String("kind", leg.Kind), zap.String("path", target), zap.Error(err))
			metrics.UploadsTotal.WithLabelValues(leg.Endpoint, leg.Kind, "error").Inc()
			continue
		}
		metrics.UploadsTotal.WithLabelValues(leg.Endpoint, leg.Kind, "ok").Inc()
		d.logger.Debug("uploaded", zap.String("endpoint", leg.Endpoint), zap.String("path", target))
	}

	leg.OK = leg.Failed == 0
	return leg
}

func recordUploads(leg LegResult) {
	if leg.Failed > 0 {
		metrics.UploadsTotal.WithLabelValues(leg.Endpoint, leg.Kind, "unreachable").Add(float64(leg.Failed))
	}
}
