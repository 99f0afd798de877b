package reconcile

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/creditsync/pkg/ledger"
)

// HTTPHandler exposes the reconciliation endpoints.
type HTTPHandler struct {
	service      *Service
	logger       *zap.Logger
	maxBodyBytes int64
	router       chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(service *Service, logger *zap.Logger, maxBodyBytes int64) *HTTPHandler {
	h := &HTTPHandler{
		service:      service,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", h.handleHealth)
	r.Route("/hrms-status", func(r chi.Router) {
		r.Post("/save-json-data", h.handleSubmit)
		r.Post("/callback", h.handleCallback)
		r.Get("/artifacts", h.handleArtifacts)
	})

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		return
	}

	report, err := h.service.Process(r.Context(), body)
	switch {
	case err == nil:
		if report.Matched == 0 {
			writeText(w, http.StatusOK, "No matching artifacts to deliver for transaction "+report.TransactionID)
			return
		}
		writeText(w, http.StatusOK, "Data processed and uploaded successfully for transaction "+report.TransactionID)
	case errors.Is(err, ErrMalformedInput):
		writeText(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("submission failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Error processing data: "+err.Error())
	}
}

type callbackRequest struct {
	TransactionID string `json:"transactionId"`
	Party         string `json:"party"`
	Decision      string `json:"decision"`
	Comments      string `json:"comments"`
}

func (h *HTTPHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		return
	}
	var req callbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeText(w, http.StatusBadRequest, "invalid callback body")
		return
	}
	if req.TransactionID == "" {
		writeText(w, http.StatusBadRequest, "transactionId is required")
		return
	}

	n, err := h.service.ApplyCallback(r.Context(), ledger.Callback{
		TransactionID: req.TransactionID,
		Party:         ledger.Party(req.Party),
		Decision:      ledger.Decision(req.Decision),
		Comments:      req.Comments,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"transaction_id": req.TransactionID,
			"rows":           n,
		})
	case errors.Is(err, ledger.ErrInvalidCallback):
		writeText(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeText(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("callback failed", zap.String("transaction_id", req.TransactionID), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "callback failed")
	}
}

func (h *HTTPHandler) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	dir, names, err := h.service.PeriodArtifacts(r.Context())
	if err != nil {
		h.logger.Error("list artifacts failed", zap.String("dir", dir), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "failed to list artifacts")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"directory": dir,
		"files":     names,
	})
}

// readBody enforces the body limit and writes the error response itself.
func (h *HTTPHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if h.maxBodyBytes > 0 && r.ContentLength > h.maxBodyBytes {
		writeText(w, http.StatusRequestEntityTooLarge, "payload too large")
		return nil, errors.New("payload too large")
	}
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "payload too large")
		} else {
			writeText(w, http.StatusBadRequest, "unable to read request body")
		}
		return nil, err
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
