package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quizbee-service/internal/app"
	"quizbee-service/internal/domain"
	"quizbee-service/internal/events"
	"quizbee-service/internal/scoring"
)

// QuizAPI is the slice of the quiz service exposed over HTTP.
type QuizAPI interface {
	ListTopics(ctx context.Context) ([]domain.Topic, error)
	ListSubtopics(ctx context.Context, topicID string) ([]domain.Subtopic, error)
	StartSession(ctx context.Context, req app.StartRequest) (domain.SessionView, error)
	GetSession(ctx context.Context, sessionID string) (domain.SessionView, error)
	ValidateSession(ctx context.Context, sessionID string) (domain.SessionStatus, error)
	Submit(ctx context.Context, sessionID string, answers scoring.Answers, label string) (domain.AttemptSummary, error)
	GetAttempt(ctx context.Context, attemptID string) (domain.AttemptSummary, error)
	Stats(ctx context.Context) ([]domain.ModeStats, error)
}

// QuizHandler serves the JSON endpoints.
type QuizHandler struct {
	service  QuizAPI
	counters *events.Counters
	log      *zap.Logger
}

func NewQuizHandler(service QuizAPI, counters *events.Counters, log *zap.Logger) *QuizHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizHandler{service: service, counters: counters, log: log}
}

type startSessionRequest struct {
	Mode             string   `json:"mode" binding:"required"`
	TopicID          string   `json:"topicId"`
	SubtopicID       string   `json:"subtopicId"`
	ExcludeSubtopics []string `json:"excludeSubtopics"`
	Difficulty       string   `json:"difficulty"`
	Label            string   `json:"label"`
}

type submitRequest struct {
	Answers scoring.Answers `json:"answers"`
	Label   string          `json:"label"`
}

func (h *QuizHandler) ListTopics(c *gin.Context) {
	topics, err := h.service.ListTopics(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

func (h *QuizHandler) ListSubtopics(c *gin.Context) {
	subtopics, err := h.service.ListSubtopics(c.Request.Context(), c.Param("topicId"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subtopics": subtopics})
}

func (h *QuizHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "invalid_request"})
		return
	}
	view, err := h.service.StartSession(c.Request.Context(), app.StartRequest{
		Mode:             req.Mode,
		TopicID:          req.TopicID,
		SubtopicID:       req.SubtopicID,
		ExcludeSubtopics: req.ExcludeSubtopics,
		Difficulty:       req.Difficulty,
		Label:            req.Label,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *QuizHandler) GetSession(c *gin.Context) {
	view, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *QuizHandler) SessionStatus(c *gin.Context) {
	status, err := h.service.ValidateSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *QuizHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_type": "invalid_request"})
		return
	}
	summary, err := h.service.Submit(c.Request.Context(), c.Param("id"), req.Answers, req.Label)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *QuizHandler) GetAttempt(c *gin.Context) {
	summary, err := h.service.GetAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *QuizHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	body := gin.H{"modes": stats}
	if h.counters != nil {
		body["events"] = h.counters.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// handleError maps domain errors to status codes. Storage failures are logged
// and reported without driver detail.
func (h *QuizHandler) handleError(c *gin.Context, err error) {
	status, kind := classify(err)
	body := gin.H{"error": err.Error(), "error_type": kind}

	var dup *domain.DuplicateSubmissionError
	switch {
	case errors.As(err, &dup):
		body["attempt"] = dup.Attempt
	case status == http.StatusInternalServerError:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusGone, "session_expired"
	case errors.Is(err, domain.ErrSessionAlreadyCompleted):
		return http.StatusConflict, "session_already_completed"
	case errors.Is(err, domain.ErrInsufficientQuestions):
		return http.StatusUnprocessableEntity, "insufficient_questions"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable, "catalog_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}
