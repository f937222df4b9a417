// Package egress starts server-side recordings against the RTC provider and
// drives the scheduled -> live session transition.
package egress

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulive/backend/internal/middleware"
	"github.com/edulive/backend/internal/models"
	"github.com/edulive/backend/internal/sessions"
	"github.com/edulive/backend/pkg/metrics"
	"github.com/edulive/backend/pkg/response"
	"github.com/edulive/backend/pkg/storage"
)

// Recorder starts a composite recording job for a room and returns the
// provider egress ID.
type Recorder interface {
	StartRoomComposite(ctx context.Context, roomName, filepath string) (string, error)
}

// Uploader streams a recording object into storage and returns its key.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// Handler handles recording control requests.
type Handler struct {
	store    sessions.Store
	recorder Recorder
	uploader Uploader
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHandler creates an egress handler. timeout bounds the provider call.
func NewHandler(store sessions.Store, recorder Recorder, uploader Uploader, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handler{store: store, recorder: recorder, uploader: uploader, timeout: timeout, metrics: m, logger: logger}
}

// startable reports whether a recording job may be started: a scheduled
// session with no live or completed recording, or a session whose previous
// recording failed (retry, also from the resulting error state).
func startable(s *models.LiveSession) bool {
	switch s.Status {
	case models.SessionScheduled:
		return s.RecordingRetryable()
	case models.SessionError:
		return s.RecordingStatus == models.RecordingFailed
	default:
		return false
	}
}

// StartRecording handles POST /sessions/:id/recording/start. Owner-only.
// The provider call runs before the state flip: on provider failure the
// session stays scheduled with no partial state.
func (h *Handler) StartRecording(c *gin.Context) {
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
	if session.OwnerID != userID {
		response.Forbidden(c, "only the session owner may start recording")
		return
	}
	if !startable(session) {
		response.Conflict(c, "recording cannot be started in the session's current state")
		return
	}

	now := time.Now().UTC()
	outputPath := storage.RecordingPath(session.ID.String(), now)

	callCtx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	egressID, err := h.recorder.StartRoomComposite(callCtx, session.ExternalRoomID, outputPath)
	if err != nil {
		h.logger.Error("start egress failed", zap.Error(err),
			zap.String("session_id", sessionID.String()), zap.String("room", session.ExternalRoomID))
		response.BadGateway(c, "recording provider unavailable")
		return
	}

	outcome, err := h.store.BeginRecording(c.Request.Context(), session.ID, egressID, now)
	if err != nil {
		h.logger.Error("begin recording update failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to update session")
		return
	}
	if outcome == sessions.OutcomeNoMatch {
		// Lost the swap to a concurrent start or a late webhook from a
		// previous attempt; the provider job is orphaned and will be
		// reported failed by its own webhook.
		h.logger.Warn("begin recording lost conditional update",
			zap.String("session_id", sessionID.String()), zap.String("egress_id", egressID))
		response.Conflict(c, "recording already started")
		return
	}

	if h.metrics != nil {
		h.metrics.IncEgressStarts()
	}
	h.logger.Info("recording started",
		zap.String("session_id", sessionID.String()),
		zap.String("egress_id", egressID),
		zap.String("output", outputPath))
	response.OK(c, gin.H{
		"session_id": session.ID,
		"egress_id":  egressID,
		"status":     models.SessionLive,
	})
}

// UploadRecording handles POST /sessions/:id/recording/upload. Owner-only
// re-ingest path for sessions whose egress recording failed: the owner
// uploads a locally captured file and the session completes with it. The
// multipart body streams straight through to storage.
func (h *Handler) UploadRecording(c *gin.Context) {
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
	if session.OwnerID != userID {
		response.Forbidden(c, "only the session owner may upload a recording")
		return
	}
	if session.RecordingStatus != models.RecordingFailed {
		response.Conflict(c, "only a failed recording may be replaced")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing recording file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	now := time.Now().UTC()
	key := storage.RecordingPath(session.ID.String(), now)
	if _, err := h.uploader.Upload(c.Request.Context(), key, contentType, file, header.Size); err != nil {
		h.logger.Error("upload recording failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.BadGateway(c, "storage unavailable")
		return
	}

	outcome, err := h.store.AttachRecording(c.Request.Context(), session.ID, key, header.Size, now)
	if err != nil {
		h.logger.Error("attach recording failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to update session")
		return
	}
	if outcome != sessions.OutcomeApplied {
		// Lost to a concurrent retry or upload; the freshly stored object is
		// unreferenced.
		response.Conflict(c, "recording state changed during upload")
		return
	}

	h.logger.Info("recording re-ingested",
		zap.String("session_id", sessionID.String()),
		zap.String("key", key),
		zap.Int64("size", header.Size))
	response.OK(c, gin.H{
		"session_id":    session.ID,
		"recording_key": key,
		"file_size":     header.Size,
	})
}
