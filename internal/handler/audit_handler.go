package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

type auditReader interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.AuditRecord, error)
	CountByKind(ctx context.Context, sessionID string) (map[model.AuditKind]int64, error)
}

// AuditHandler serves the persisted audit trail of a session.
type AuditHandler struct {
	repo auditReader
	log  zerolog.Logger
}

func NewAuditHandler(repo auditReader, log zerolog.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, log: log.With().Str("component", "audit_handler").Logger()}
}

type auditQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

type auditView struct {
	SessionID string                    `json:"session_id"`
	Counts    map[model.AuditKind]int64 `json:"counts"`
	Events    []model.AuditRecord       `json:"events"`
}

// ListEvents godoc
// GET /api/v1/sessions/:session_id/events?limit=<n>
func (h *AuditHandler) ListEvents(c *gin.Context) {
	sessionID := c.Param("session_id")
	if !validator.ValidResourceID(sessionID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	var q auditQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if q.Limit == 0 {
		q.Limit = 200
	}

	ctx := c.Request.Context()
	events, err := h.repo.ListBySession(ctx, sessionID, q.Limit)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to list audit events")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	counts, err := h.repo.CountByKind(ctx, sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to count audit events")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if events == nil {
		events = []model.AuditRecord{}
	}

	response.Success(c, http.StatusOK, auditView{SessionID: sessionID, Counts: counts, Events: events})
}
