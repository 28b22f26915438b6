package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/dotrep/internal/domain/model"
	"github.com/okian/dotrep/pkg/logger"
)

// ScoreHandler serves the scoring endpoints.
type ScoreHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps Dependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps, logger: logger.Get().Named("api")}
}

// scoreRequest is the body of POST /score.
type scoreRequest struct {
	Activity *model.WalletActivity `json:"activity"`
	// At is an optional RFC 3339 evaluation time.
	At string `json:"at"`
}

func (s scoreRequest) evaluationTime() (time.Time, error) {
	if strings.TrimSpace(s.At) == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, s.At)
	if err != nil {
		return time.Time{}, errors.New("invalid at; must be RFC3339")
	}
	return at, nil
}

// batchRequest is the body of POST /score/batch.
type batchRequest struct {
	Addresses []string `json:"addresses"`
	Network   string   `json:"network"`
}

// HandleGetScore handles GET /score/{address}?network= requests.
func (h *ScoreHandler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_score"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	addr := strings.TrimPrefix(r.URL.Path, "/score/")
	if addr == "" || strings.Contains(addr, "/") {
		writeError(w, r, NewKind(op, ErrBadRequest))
		return
	}

	report, err := h.deps.ScoreAddress(r.Context(), addr, r.URL.Query().Get("network"))
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandlePostScore handles POST /score requests carrying an inline snapshot.
func (h *ScoreHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req scoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Activity == nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, errors.New("missing activity")))
		return
	}
	at, err := req.evaluationTime()
	if err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	writeJSON(w, http.StatusOK, h.deps.ScoreActivity(r.Context(), *req.Activity, at))
}

// HandlePostBatch handles POST /score/batch requests.
func (h *ScoreHandler) HandlePostBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_batch"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Addresses) == 0 {
		writeError(w, r, NewKind(op, ErrEmptyBatch))
		return
	}
	if limit := h.deps.MaxBatchSize(); len(req.Addresses) > limit {
		writeError(w, r, WrapKind(op, ErrBatchTooLarge, fmt.Errorf("%d addresses, limit %d", len(req.Addresses), limit)))
		return
	}

	report, err := h.deps.ScoreBatch(r.Context(), req.Addresses, req.Network)
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// fail writes err and logs it when it is the server's fault.
func (h *ScoreHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := statusFor(err); status >= statusInternalError {
		h.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", RequestIDFromContext(r.Context())),
			logger.Error(err),
		)
	}
	writeError(w, r, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}
