package sessions

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulive/backend/internal/middleware"
	"github.com/edulive/backend/internal/models"
	"github.com/edulive/backend/pkg/response"
)

// CredentialMinter issues RTC join credentials. Minting never mutates the
// session.
type CredentialMinter interface {
	MintJoinToken(room, identity string, owner bool) (string, error)
}

// ReplayTokenIssuer issues short-lived replay access tokens for completed
// recordings.
type ReplayTokenIssuer interface {
	Issue(sessionID, userID uuid.UUID, watermark string) (string, error)
}

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	Subject        string    `json:"subject" binding:"required"`
	Title          string    `json:"title" binding:"required"`
	ScheduledStart time.Time `json:"scheduled_start" binding:"required"`
}

// StatusResponse is the body for GET /sessions/:id/status.
type StatusResponse struct {
	Status            models.SessionStatus   `json:"status"`
	RecordingStatus   models.RecordingStatus `json:"recording_status"`
	ParticipantsCount int                    `json:"participants_count"`
	RecordingKey      string                 `json:"recording_key,omitempty"`
	Token             string                 `json:"token,omitempty"`
	RTCURL            string                 `json:"rtc_url,omitempty"`
	ReplayToken       string                 `json:"replay_token,omitempty"`
	Watermark         string                 `json:"watermark,omitempty"`
}

// Handler handles session scheduling and status endpoints.
type Handler struct {
	store        Store
	participants ParticipantSet
	minter       CredentialMinter
	replayTokens ReplayTokenIssuer
	rtcURL       string
	logger       *zap.Logger
}

// NewHandler creates a sessions handler.
func NewHandler(store Store, participants ParticipantSet, minter CredentialMinter, replayTokens ReplayTokenIssuer, rtcURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:        store,
		participants: participants,
		minter:       minter,
		replayTokens: replayTokens,
		rtcURL:       rtcURL,
		logger:       logger,
	}
}

// newRoomID generates a provider room name. Timestamp plus random suffix
// keeps names collision-free across deployments sharing a provider project.
func newRoomID() string {
	return fmt.Sprintf("lesson-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Create handles POST /sessions. Route-level middleware restricts this to
// teacher/admin roles; the creator becomes the session owner.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	session := &models.LiveSession{
		OwnerID:         ownerID,
		Subject:         req.Subject,
		Title:           req.Title,
		Status:          models.SessionScheduled,
		ScheduledStart:  req.ScheduledStart,
		ExternalRoomID:  newRoomID(),
		RecordingStatus: models.RecordingNone,
	}
	if err := h.store.Create(c.Request.Context(), session); err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, session)
}

// List handles GET /sessions.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.store.ListVisible(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, list)
}

// Status handles GET /sessions/:id/status. Any authenticated user may read
// status; while the session is live a join credential scoped to the
// requester is minted (publish+admin for the owner, subscribe-only
// otherwise), and once a recording completes a short-lived replay token is
// returned instead.
func (h *Handler) Status(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	session, err := h.store.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("get session failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to load session")
		return
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return
	}

	count := session.ParticipantCount
	if h.participants != nil {
		if n, err := h.participants.Count(c.Request.Context(), session.ID); err == nil && n > count {
			count = n
		}
	}

	resp := StatusResponse{
		Status:            session.Status,
		RecordingStatus:   session.RecordingStatus,
		ParticipantsCount: count,
	}

	if session.Status == models.SessionLive && h.minter != nil {
		owner := session.OwnerID == userID
		token, err := h.minter.MintJoinToken(session.ExternalRoomID, userID.String(), owner)
		if err != nil {
			h.logger.Error("mint join token failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		} else {
			resp.Token = token
			resp.RTCURL = h.rtcURL
		}
	}

	if session.RecordingStatus == models.RecordingCompleted && session.RecordingKey != "" {
		resp.RecordingKey = session.RecordingKey
		watermark := fmt.Sprintf("%s %s", identityFor(c, userID), time.Now().UTC().Format(time.RFC3339))
		resp.Watermark = watermark
		if h.replayTokens != nil {
			if rt, err := h.replayTokens.Issue(session.ID, userID, watermark); err == nil {
				resp.ReplayToken = rt
			} else {
				h.logger.Error("issue replay token failed", zap.Error(err), zap.String("session_id", sessionID.String()))
			}
		}
	}

	response.OK(c, resp)
}

// identityFor prefers the authenticated email for the visual watermark,
// falling back to the user ID.
func identityFor(c *gin.Context, userID uuid.UUID) string {
	if email, ok := c.Get(middleware.ContextUserEmail); ok {
		if s, _ := email.(string); s != "" {
			return s
		}
	}
	return userID.String()
}
