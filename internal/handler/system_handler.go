package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const healthTimeout = 2 * time.Second

// SystemHandler serves health and the active monitoring policy.
type SystemHandler struct {
	rdb       *redis.Client
	policy    config.Policy
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, policy config.Policy, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		policy:    policy,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthStatus struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Redis      string `json:"redis"`
	AuditQueue int64  `json:"audit_queue"`
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	st := healthStatus{
		Status: "ok",
		Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		Redis:  "disabled",
	}

	if h.rdb != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		pipe := h.rdb.Pipeline()
		ping := pipe.Ping(ctx)
		queue := pipe.LLen(ctx, config.WorkerKey.PersistAuditQueue)
		_, _ = pipe.Exec(ctx)

		if err := ping.Err(); err != nil {
			h.log.Warn().Err(err).Msg("Redis health check failed")
			st.Status, st.Redis = "degraded", "down"
			response.Success(c, http.StatusServiceUnavailable, st)
			return
		}
		st.Redis = "up"
		st.AuditQueue, _ = queue.Result()
	}

	response.Success(c, http.StatusOK, st)
}

// Policy godoc
// GET /api/v1/policy
func (h *SystemHandler) Policy(c *gin.Context) {
	response.Success(c, http.StatusOK, h.policy)
}
