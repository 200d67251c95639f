// Package handler exposes the exam service as a JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examforge/internal/exam"
	"github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/session"
	"github.com/pavelanni/examforge/internal/store"
)

// Archive is the write-behind persistence used by the handlers. Archive
// failures are logged, never surfaced to the examinee.
type Archive interface {
	SaveSession(sess model.ExamSession) error
	SaveResponse(sessionID string, resp model.StudentResponse) error
	SaveGrade(sessionID string, g model.GradeResult) error
	CompleteSession(sessionID string, at time.Time) error
}

var _ Archive = (*store.Store)(nil)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	registry  *session.Registry
	generator *exam.Generator
	grader    *exam.Grader
	archive   Archive
	cfg       model.ServiceConfig

	// NumQuestions is the batch size used when a create request omits one.
	NumQuestions int
	// Instructions is appended to generation prompts when a request has none.
	Instructions string
	// TargetDifficulty is the default difficulty when a request has none.
	TargetDifficulty model.Difficulty
}

// New creates a new Handler.
func New(reg *session.Registry, gen *exam.Generator, gr *exam.Grader, archive Archive, cfg model.ServiceConfig, numQuestions int) *Handler {
	return &Handler{
		registry:     reg,
		generator:    gen,
		grader:       gr,
		archive:      archive,
		cfg:          cfg,
		NumQuestions: numQuestions,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/exams", h.handleCreateExam)
	r.Get("/api/exams/{sessionID}", h.handleGetExam)
	r.Post("/api/exams/{sessionID}/responses", h.handleSubmitResponse)
	r.Get("/api/exams/{sessionID}/results", h.handleResults)
}

type createExamRequest struct {
	StudentID        string `json:"student_id"`
	Domain           string `json:"domain"`
	NumQuestions     int    `json:"num_questions"`
	TargetDifficulty string `json:"target_difficulty"`
	Instructions     string `json:"instructions"`
}

type createExamResponse struct {
	Message string            `json:"message"`
	Session model.ExamSession `json:"session"`
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, i18n.T(ctx, "error.invalid_request"))
		return
	}

	domain := strings.TrimSpace(req.Domain)
	if domain == "" {
		domain = h.cfg.DefaultDomain
	}
	count := req.NumQuestions
	if count <= 0 {
		count = h.NumQuestions
	}
	if req.TargetDifficulty != "" && !model.ValidDifficulty(req.TargetDifficulty) {
		respondError(w, http.StatusBadRequest, i18n.T(ctx, "error.invalid_request"))
		return
	}
	difficulty := model.Difficulty(req.TargetDifficulty)
	if difficulty == "" {
		difficulty = h.TargetDifficulty
	}
	instructions := req.Instructions
	if instructions == "" {
		instructions = h.Instructions
	}

	questions, err := h.generator.GenerateBatch(ctx, domain, count, instructions, difficulty)
	if err != nil {
		slog.Error("question generation failed", "domain", domain, "count", count, "error", err)
		var transport *llm.TransportError
		if errors.As(err, &transport) {
			respondError(w, http.StatusServiceUnavailable, i18n.T(ctx, "error.llm_unavailable"))
			return
		}
		respondError(w, http.StatusBadGateway,
			i18n.Td(ctx, "error.generation_failed", map[string]any{"Reason": err.Error()}))
		return
	}

	sess := h.registry.Create(req.StudentID, questions)
	if err := h.archive.SaveSession(sess); err != nil {
		slog.Error("archive session failed", "session_id", sess.SessionID, "error", err)
	}

	slog.Info("exam created",
		"session_id", sess.SessionID,
		"student_id", sess.StudentID,
		"domain", domain,
		"questions", len(questions))

	respondJSON(w, http.StatusCreated, createExamResponse{
		Message: i18n.Td(ctx, "msg.exam_created", map[string]any{"Count": len(questions)}),
		Session: sess,
	})
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusNotFound, i18n.T(r.Context(), "error.session_not_found"))
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

type submitResponseRequest struct {
	QuestionID       string  `json:"question_id"`
	ResponseText     string  `json:"response_text"`
	TimeSpentSeconds float64 `json:"time_spent_seconds"`
}

type submitResponseResponse struct {
	Message  string            `json:"message"`
	Grade    model.GradeResult `json:"grade"`
	Complete bool              `json:"complete"`
}

func (h *Handler) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	var req submitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, i18n.T(ctx, "error.invalid_request"))
		return
	}
	if strings.TrimSpace(req.ResponseText) == "" {
		respondError(w, http.StatusBadRequest, i18n.T(ctx, "error.empty_response"))
		return
	}

	recorded, grade, err := h.registry.Submit(sessionID, req.QuestionID, req.ResponseText, req.TimeSpentSeconds,
		func(q model.Question, resp model.StudentResponse) model.GradeResult {
			return h.grader.GradeResponse(ctx, q, resp)
		})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			respondError(w, http.StatusNotFound, i18n.T(ctx, "error.session_not_found"))
		case errors.Is(err, session.ErrQuestionNotFound):
			respondError(w, http.StatusNotFound, i18n.T(ctx, "error.question_not_found"))
		case errors.Is(err, session.ErrCompleted):
			respondError(w, http.StatusConflict, i18n.T(ctx, "error.session_completed"))
		default:
			slog.Error("submit failed", "session_id", sessionID, "error", err)
			respondError(w, http.StatusInternalServerError, i18n.T(ctx, "error.internal"))
		}
		return
	}

	sess, err := h.registry.Get(sessionID)
	if err != nil {
		slog.Error("session vanished after submit", "session_id", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, i18n.T(ctx, "error.internal"))
		return
	}

	h.archiveSubmission(sess, recorded, grade)

	slog.Info("response graded",
		"session_id", sessionID,
		"question_id", req.QuestionID,
		"state", grade.State,
		"percentage", grade.Percentage)

	respondJSON(w, http.StatusOK, submitResponseResponse{
		Message:  i18n.T(ctx, "msg.response_recorded"),
		Grade:    grade,
		Complete: sess.Complete(),
	})
}

func (h *Handler) archiveSubmission(sess model.ExamSession, resp model.StudentResponse, grade model.GradeResult) {
	if err := h.archive.SaveResponse(sess.SessionID, resp); err != nil {
		slog.Error("archive response failed", "session_id", sess.SessionID, "error", err)
	}
	if err := h.archive.SaveGrade(sess.SessionID, grade); err != nil {
		slog.Error("archive grade failed", "session_id", sess.SessionID, "error", err)
	}
	if sess.CompletedAt != nil {
		if err := h.archive.CompleteSession(sess.SessionID, *sess.CompletedAt); err != nil {
			slog.Error("archive completion failed", "session_id", sess.SessionID, "error", err)
		}
	}
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusNotFound, i18n.T(r.Context(), "error.session_not_found"))
		return
	}
	respondJSON(w, http.StatusOK, model.SessionResultFor(&sess))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
