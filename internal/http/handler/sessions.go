package handler

import (
	"net/http"
	"strconv"

	"github.com/edirooss/slot-server/internal/http/middleware"
	"github.com/edirooss/slot-server/internal/infrastructure/msglog"
	"github.com/edirooss/slot-server/internal/service"
	"github.com/edirooss/slot-server/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionsHandler serves read-only views of live sessions.
//
// Supported operations:
//   - GET /sessions                → List live sessions
//   - GET /sessions/{slot}/messages → Message log of one slot
//   - GET /stats                   → Slot usage and accept counters
//
// No operation modifies or closes a session.
type SessionsHandler struct {
	log      *zap.Logger
	sessions *session.Registry
	messages *msglog.Log
	stats    *service.StatsService
}

// NewSessionsHandler constructs a SessionsHandler instance.
func NewSessionsHandler(log *zap.Logger, sessions *session.Registry, messages *msglog.Log, stats *service.StatsService) *SessionsHandler {
	return &SessionsHandler{
		log:      log.Named("sessions"),
		sessions: sessions,
		messages: messages,
		stats:    stats,
	}
}

// GetSessionList handles GET /sessions.
//
// Status Codes:
//   - 200 OK → JSON array ordered by slot, `X-Total-Count` header
func (h *SessionsHandler) GetSessionList(c *gin.Context) {
	list := h.sessions.List()
	c.Header("X-Total-Count", strconv.Itoa(len(list)))
	c.JSON(http.StatusOK, list)
}

// GetSessionMessages handles GET /sessions/{slot}/messages.
// Requires middleware.RequireValidSlot.
//
// Status Codes:
//   - 200 OK        → JSON array of messages (empty if none received yet)
//   - 404 Not Found → no live session on the slot
func (h *SessionsHandler) GetSessionMessages(c *gin.Context) {
	slot := middleware.GetSlot(c)

	msgs, ok := h.messages.Messages(slot)
	if !ok {
		if _, live := h.sessions.Get(slot); !live {
			c.JSON(http.StatusNotFound, gin.H{"message": "no session on slot"})
			return
		}
		msgs = []string{}
	}

	c.Header("X-Total-Count", strconv.Itoa(len(msgs)))
	c.JSON(http.StatusOK, msgs)
}

// GetStats handles GET /stats.
//
// Status Codes:
//   - 200 OK → JSON stats, `X-Cache` and `X-Stats-Generated-At` headers
//   - 500 Internal Server Error
func (h *SessionsHandler) GetStats(c *gin.Context) {
	res, err := h.stats.Get(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.Header("X-Cache", map[bool]string{true: "HIT", false: "MISS"}[res.CacheHit])
	c.Header("X-Stats-Generated-At", strconv.FormatInt(res.GeneratedAt.UnixMilli(), 10))
	c.JSON(http.StatusOK, gin.H{
		"capacity":     res.Data.Capacity,
		"in_use":       res.Data.InUse,
		"free":         res.Data.Free,
		"accepted":     res.Data.Accepted,
		"rejected":     res.Data.Rejected,
		"generated_at": res.GeneratedAt,
	})
}
