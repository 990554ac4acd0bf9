package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SnapshotHandler exposes a candidate's stored snapshot for inspection and
// explicit abandonment.
type SnapshotHandler struct {
	store repository.SnapshotStore
	audit proctor.AuditSink
	log   zerolog.Logger
}

func NewSnapshotHandler(store repository.SnapshotStore, audit proctor.AuditSink, log zerolog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		store: store,
		audit: audit,
		log:   log.With().Str("component", "snapshot_handler").Logger(),
	}
}

type snapshotView struct {
	AssessmentID string                  `json:"assessment_id"`
	CandidateID  string                  `json:"candidate_id"`
	Snapshot     model.PersistedSnapshot `json:"snapshot"`
}

// bindTarget validates the path and query and returns the snapshot key.
func bindTarget(c *gin.Context) (assessmentID, candidateID string, ok bool) {
	assessmentID = c.Param("assessment_id")
	if !validator.ValidResourceID(assessmentID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", "", false
	}
	var q sessionQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return "", "", false
	}
	return assessmentID, q.Candidate, true
}

// GetSnapshot godoc
// GET /api/v1/assessments/:assessment_id/snapshot?candidate=<id>
func (h *SnapshotHandler) GetSnapshot(c *gin.Context) {
	assessmentID, candidateID, ok := bindTarget(c)
	if !ok {
		return
	}

	snap, err := h.store.Load(c.Request.Context(), config.CacheKey.SnapshotKey(candidateID, assessmentID))
	if err != nil {
		h.log.Error().Err(err).Str("assessment_id", assessmentID).Msg("Failed to load snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if snap == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, snapshotView{
		AssessmentID: assessmentID,
		CandidateID:  candidateID,
		Snapshot:     *snap,
	})
}

// AbandonSnapshot godoc
// DELETE /api/v1/assessments/:assessment_id/snapshot?candidate=<id>
// Explicit abandonment: the stored progress is destroyed.
func (h *SnapshotHandler) AbandonSnapshot(c *gin.Context) {
	assessmentID, candidateID, ok := bindTarget(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key := config.CacheKey.SnapshotKey(candidateID, assessmentID)

	snap, err := h.store.Load(ctx, key)
	if err != nil {
		h.log.Warn().Err(err).Msg("Loading snapshot before abandonment failed")
	}
	if err := h.store.Clear(ctx, key); err != nil {
		h.log.Error().Err(err).Str("assessment_id", assessmentID).Msg("Failed to clear snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if snap != nil && h.audit != nil {
		rec := model.AuditRecord{
			SessionID:    snap.SessionID,
			AssessmentID: assessmentID,
			CandidateID:  candidateID,
			Kind:         model.AuditAbandoned,
			RecordedAt:   time.Now().UTC(),
		}
		if err := h.audit.Record(context.WithoutCancel(ctx), rec); err != nil {
			h.log.Warn().Err(err).Msg("Failed to record abandonment")
		}
	}

	h.log.Info().
		Str("assessment_id", assessmentID).
		Str("candidate_id", candidateID).
		Bool("existed", snap != nil).
		Msg("Snapshot abandoned")
	response.Success(c, http.StatusOK, gin.H{"cleared": snap != nil})
}
