package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/assessment"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const outboxSize = 256

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SnapshotBackend is the snapshot access used by live sessions.
type SnapshotBackend interface {
	proctor.SnapshotLoader
	proctor.SnapshotSink
}

// SessionHandler runs one proctored session per WebSocket connection.
type SessionHandler struct {
	base      context.Context
	remote    assessment.Service
	snapshots SnapshotBackend
	audit     proctor.AuditSink
	policy    config.Policy
	clock     clock.Clock
	log       zerolog.Logger
	upgrader  websocket.Upgrader
	live      sync.WaitGroup
}

// NewSessionHandler creates a SessionHandler. Sessions are cancelled when
// base is done.
func NewSessionHandler(
	base context.Context,
	remote assessment.Service,
	snapshots SnapshotBackend,
	audit proctor.AuditSink,
	policy config.Policy,
	clk clock.Clock,
	log zerolog.Logger,
	allowedOrigins []string,
) *SessionHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &SessionHandler{
		base:      base,
		remote:    remote,
		snapshots: snapshots,
		audit:     audit,
		policy:    policy,
		clock:     clk,
		log:       log.With().Str("component", "session_handler").Logger(),
		upgrader:  buildUpgrader(allowedOrigins),
	}
}

type sessionQuery struct {
	Candidate string `form:"candidate" binding:"required,resource_id"`
}

// SessionStream godoc
// WS /ws/v1/assessments/:assessment_id/session?candidate=<id>
// Upgrades to WebSocket and runs the session engine for the connection.
func (h *SessionHandler) SessionStream(c *gin.Context) {
	assessmentID := c.Param("assessment_id")
	if !validator.ValidResourceID(assessmentID) {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	var q sessionQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	h.live.Add(1)
	defer h.live.Done()

	connLog := h.log.With().
		Str("conn_id", uuid.NewString()).
		Str("assessment_id", assessmentID).
		Str("candidate_id", q.Candidate).
		Logger()
	connLog.Info().Msg("Candidate connected")

	outbox := ws.NewOutbox(outboxSize, connLog)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		if err := outbox.Pump(conn); err != nil {
			connLog.Debug().Err(err).Msg("Write pump stopped")
		}
	}()

	detector := proctor.NewLatestFaceCount(h.policy.FrameStaleAfter)
	engine := proctor.NewEngine(assessmentID, q.Candidate, proctor.Deps{
		Remote:    h.remote,
		Snapshots: h.snapshots,
		Writer:    h.snapshots,
		Audit:     h.audit,
		Detector:  detector,
		Platform:  outbox,
		Clock:     h.clock,
		Log:       connLog,
		Policy:    h.policy,
	})

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()

	go h.readLoop(conn, engine, outbox, detector, cancel, connLog)

	runErr := engine.Run(ctx)
	reason := string(engine.State().Phase)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		connLog.Debug().Err(runErr).Msg("Session ended with error")
	}

	outbox.Close()
	<-pumpDone
	ws.CloseNormal(conn, reason)
	connLog.Info().Str("phase", reason).Msg("Candidate disconnected")
}

// Wait blocks until every live session has returned or timeout elapses.
// It reports whether all sessions finished.
func (h *SessionHandler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		h.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// readLoop turns client messages into engine events. A read error means
// the candidate went away and cancels the engine.
func (h *SessionHandler) readLoop(
	conn *websocket.Conn,
	engine *proctor.Engine,
	outbox *ws.Outbox,
	detector *proctor.LatestFaceCount,
	cancel context.CancelFunc,
	log zerolog.Logger,
) {
	defer cancel()

	for {
		raw, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			return
		}

		d, err := ws.Decode(raw)
		if err == nil && d.Action == ws.ActionTick {
			err = ws.ErrUnknownAction
		}
		if err != nil {
			outbox.Send(decodeError(err))
			continue
		}

		switch d.Action {
		case ws.ActionPing:
			outbox.Send(ws.PongResponse{Event: ws.EventPong})
		case ws.ActionFaces:
			detector.Report(d.Faces, h.clock.Now())
		default:
			if !engine.Dispatch(d.Event) {
				return
			}
		}
	}
}

func decodeError(err error) ws.ErrorResponse {
	code := response.ErrInvalidPayload
	var fields map[string]string
	var ve *ws.ValidationError
	switch {
	case errors.Is(err, ws.ErrUnknownAction):
		code = response.ErrUnknownAction
	case errors.As(err, &ve):
		code = response.ErrValidation
		fields = ve.Fields
	}
	return ws.ErrorResponse{
		Event:   ws.EventError,
		Code:    string(code),
		Message: response.GetMessage(code),
		Fields:  fields,
	}
}
