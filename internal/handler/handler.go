// Package handler exposes the exam engine as a JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/placement/internal/audio"
	"github.com/pavelanni/placement/internal/exam"
	"github.com/pavelanni/placement/internal/model"
	"github.com/pavelanni/placement/internal/selector"
	"github.com/pavelanni/placement/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine   *exam.Engine
	store    *store.Store
	selector *selector.Selector
	audio    audio.Local
}

// New creates a new Handler.
func New(e *exam.Engine, s *store.Store, sel *selector.Selector, a audio.Local) *Handler {
	return &Handler{engine: e, store: s, selector: sel, audio: a}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
	r.Post("/api/exam/start", h.handleStartExam)
	r.Post("/api/exam/submit-response", h.handleSubmitResponse)
	r.Get("/api/exam/status/{sessionID}", h.handleStatus)
	r.Get("/api/exam/question/{sessionID}", h.handleCurrentQuestion)
	r.Get("/api/exam/report/{sessionID}", h.handleReport)
	r.Post("/api/upload-audio", h.handleUploadAudio)

	r.Get("/api/debug/config", h.handleDebugConfig)
	r.Get("/api/debug/questions/{level}", h.handleDebugQuestions)
	r.Post("/api/admin/questions", h.handleUploadQuestions)

	r.Handle("/metrics", promhttp.Handler())
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondOK(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, envelope{Error: msg})
}

// respondEngineError maps engine errors onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, exam.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, exam.ErrSessionComplete),
		errors.Is(err, exam.ErrStaleSubmission),
		errors.Is(err, exam.ErrQuestionMismatch),
		errors.Is(err, exam.ErrExamInProgress):
		status = http.StatusConflict
	default:
		slog.Error("exam operation failed", "error", err)
	}
	respondError(w, status, err.Error())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, map[string]any{
		"status":        "healthy",
		"sessions":      h.engine.SessionCount(),
		"questions":     h.selector.Corpus().Len(),
		"config_source": h.engine.Config().Source,
	})
}

type startRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	res, err := h.engine.StartExam(r.Context(), req.UserID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondOK(w, res)
}

type submitRequest struct {
	SessionID    string             `json:"session_id"`
	QuestionID   string             `json:"q_id"`
	ResponseType model.ResponseType `json:"response_type"`
	ResponseData string             `json:"response_data"`
	AudioPath    string             `json:"audio_file_path"`
}

func (h *Handler) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	res, err := h.engine.SubmitResponse(r.Context(), req.SessionID, model.Submission{
		QuestionID:   req.QuestionID,
		ResponseType: req.ResponseType,
		ResponseData: req.ResponseData,
		AudioPath:    req.AudioPath,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondOK(w, res)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.GetStatus(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondOK(w, st)
}

func (h *Handler) handleCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.engine.CurrentQuestion(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondOK(w, q)
}

// handleReport serves the report of a completed session, falling back to
// the archive for sessions no longer held in memory.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	rep, err := h.engine.GetReport(id)
	if err == nil {
		respondOK(w, rep)
		return
	}
	if !errors.Is(err, exam.ErrSessionNotFound) || h.store == nil {
		respondEngineError(w, err)
		return
	}

	archived, aerr := h.store.GetReport(id)
	if aerr != nil {
		slog.Error("failed to read archived report", "session_id", id, "error", aerr)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if archived == nil {
		respondEngineError(w, err)
		return
	}
	respondOK(w, archived.Report)
}

func (h *Handler) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, audio.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no audio file uploaded")
		return
	}
	defer file.Close()

	sessionID, qID := r.FormValue("session_id"), r.FormValue("q_id")
	if sessionID == "" || qID == "" {
		respondError(w, http.StatusBadRequest, "session_id and q_id are required")
		return
	}

	ref, err := h.audio.Save(sessionID, qID, header.Filename, file)
	if err != nil {
		if errors.Is(err, audio.ErrTooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		slog.Error("failed to store audio", "session_id", sessionID, "q_id", qID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store audio")
		return
	}
	slog.Info("audio stored", "session_id", sessionID, "q_id", qID, "ref", ref)
	respondOK(w, map[string]string{"file_path": ref})
}
