package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/freeflow/internal/budget"
	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/generator"
	"github.com/claude/freeflow/internal/models"
	"github.com/claude/freeflow/internal/storage"
)

type generateRequest struct {
	DurationSeconds int         `json:"duration_seconds"`
	Tier            models.Tier `json:"tier"`
	Focus           []string    `json:"focus"`
	// Save defaults to true when a store is configured.
	Save *bool `json:"save,omitempty"`
}

type generateResponse struct {
	ID *uuid.UUID `json:"id,omitempty"`
	*generator.Result
}

type failureResponse struct {
	Error   string                       `json:"error"`
	Failure *generator.GenerationFailure `json:"failure"`
}

type budgetResponse struct {
	budget.Budget
	Allowances     []int `json:"allowances"`
	PlannedSeconds int   `json:"planned_seconds"`
}

type validateRequest struct {
	MovementIDs []string         `json:"movement_ids"`
	Sequence    *models.Sequence `json:"sequence"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	start := time.Now()
	res, err := s.engine.Generate(r.Context(), generator.Request{
		DurationSeconds: req.DurationSeconds,
		Tier:            req.Tier,
		Focus:           req.Focus,
	})
	elapsed := time.Since(start)

	var gf *generator.GenerationFailure
	switch {
	case err == nil:
	case errors.As(err, &gf):
		s.recordGeneration(r.Context(), req, storage.GenerationFailed, gf.Rule, gf.Partial.MovementCount(), elapsed, nil, gf.Reason)
		writeJSON(w, http.StatusUnprocessableEntity, failureResponse{Error: gf.Error(), Failure: gf})
		return
	case isRequestError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	default:
		s.log.Error("generate error", "error", err)
		s.recordGeneration(r.Context(), req, storage.GenerationError, "", 0, elapsed, nil, err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := generateResponse{Result: res}
	if s.store != nil && (req.Save == nil || *req.Save) {
		id, err := s.store.InsertSequence(r.Context(), storage.SavedSequence{
			DurationSeconds: res.DurationSeconds,
			Tier:            int(req.Tier),
			Focus:           req.Focus,
			BalanceScore:    res.Verdict.BalanceScore,
			Valid:           res.Verdict.Valid,
			CatalogVersion:  res.CatalogVersion,
			Sequence:        res.Sequence,
		})
		if err != nil {
			s.log.Error("saving sequence", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		resp.ID = &id
	}
	s.recordGeneration(r.Context(), req, storage.GenerationAccepted, "", res.Sequence.MovementCount(), elapsed, resp.ID, "")

	writeJSON(w, http.StatusOK, resp)
}

// isRequestError reports errors caused by the caller's parameters.
func isRequestError(err error) bool {
	var ute *budget.UnknownTierError
	return errors.As(err, &ute) ||
		errors.Is(err, budget.ErrInvalidDuration) ||
		errors.Is(err, budget.ErrDurationTooLong) ||
		errors.Is(err, generator.ErrInvalidFocus)
}

func (s *Server) recordGeneration(ctx context.Context, req generateRequest, status, rule string, movements int, elapsed time.Duration, seqID *uuid.UUID, msg string) {
	if s.store == nil {
		return
	}
	entry := storage.GenerationLog{
		Status:          status,
		Tier:            int(req.Tier),
		DurationSeconds: req.DurationSeconds,
		MovementCount:   movements,
		DurationMs:      int(elapsed.Milliseconds()),
		SequenceID:      seqID,
	}
	if rule != "" {
		entry.Rule = &rule
	}
	if msg != "" {
		entry.ErrorMessage = &msg
	}
	if _, err := s.store.InsertGenerationLog(ctx, entry); err != nil {
		s.log.Warn("writing generation log", "error", err)
	}
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	switch {
	case req.Sequence != nil && len(req.MovementIDs) > 0:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "send either movement_ids or sequence, not both"})
	case req.Sequence != nil:
		writeJSON(w, http.StatusOK, s.engine.Check(*req.Sequence))
	default:
		v, err := s.engine.CheckIDs(req.MovementIDs)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleGetSequence(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sequence storage is not configured"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sequence ID"})
		return
	}

	seq, err := s.store.GetSequence(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sequence not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, seq)
}

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Movements(f))
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   snap.Version(),
		"loaded_at": snap.LoadedAt(),
		"movements": snap.Len(),
		"rules":     s.engine.Rules(),
	})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	duration, err := strconv.Atoi(q.Get("duration_seconds"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration_seconds must be an integer"})
		return
	}
	tier, err := models.ParseTier(q.Get("tier"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	b, err := s.engine.Budget(duration, tier)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, budgetResponse{
		Budget:         b,
		Allowances:     b.Allowances(),
		PlannedSeconds: b.Planned(),
	})
}

func (s *Server) handleGenerationLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sequence storage is not configured"})
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	logs, err := s.store.QueryGenerationLogs(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []storage.GenerationLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sequence storage is not configured"})
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	logs, err := s.store.QueryImportLogs(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []storage.ImportLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// parseLimit reads ?limit= (default 50, at most 500) and writes a 400 when
// it is malformed.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 50, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 500 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
		return 0, false
	}
	return n, true
}

func (s *Server) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no catalog source configured"})
		return
	}
	snap, err := s.engine.Reload(r.Context(), s.source, s.cacheSize)
	if err != nil {
		s.log.Warn("catalog reload failed", "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":   snap.Version(),
		"movements": snap.Len(),
	})
}

// parseFilter reads tier, pattern and muscle query parameters. Muscles may
// repeat or be comma-separated.
func parseFilter(r *http.Request) (catalog.Filter, error) {
	q := r.URL.Query()
	var f catalog.Filter
	if v := q.Get("tier"); v != "" {
		tier, err := models.ParseTier(v)
		if err != nil {
			return f, err
		}
		f.MaxTier = tier
	}
	if v := q.Get("pattern"); v != "" {
		p, err := models.ParsePattern(v)
		if err != nil {
			return f, err
		}
		f.Pattern = p
	}
	for _, raw := range q["muscle"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag == "" {
				continue
			}
			c, known := models.NormalizeMuscle(tag)
			if !known {
				return f, errors.New("unknown muscle group " + strconv.Quote(tag))
			}
			f.Muscles = append(f.Muscles, c)
		}
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
