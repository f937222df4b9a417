// Package replay streams completed session recordings from object storage
// through the API, so presigned bucket URLs never reach a browser.
package replay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulive/backend/internal/auth"
	"github.com/edulive/backend/internal/models"
	"github.com/edulive/backend/internal/sessions"
	"github.com/edulive/backend/pkg/metrics"
	"github.com/edulive/backend/pkg/response"
	"github.com/edulive/backend/pkg/storage"
)

// ObjectStore reads (possibly ranged) recording objects.
type ObjectStore interface {
	GetRecordingRange(ctx context.Context, key, rangeHeader string) (*storage.Object, error)
}

// Handler handles GET /replay.
type Handler struct {
	store   sessions.Store
	objects ObjectStore
	jwt     *auth.JWTService
	tokens  *Tokens
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandler creates a replay proxy handler. Either a platform JWT or a
// session-scoped replay token authorizes a request.
func NewHandler(store sessions.Store, objects ObjectStore, jwt *auth.JWTService, tokens *Tokens, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, objects: objects, jwt: jwt, tokens: tokens, metrics: m, logger: logger}
}

// Serve handles GET /replay?id=<sessionID>[&token=<replayToken>]. The
// client's Range header is forwarded to storage verbatim and the storage
// response headers are echoed back, so seeking works exactly as it would
// against the bucket.
func (h *Handler) Serve(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Query("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}

	watermark, ok := h.authorize(c, sessionID)
	if !ok {
		response.Unauthorized(c, "missing or invalid credentials")
		return
	}

	session, err := h.store.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("get session failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to load session")
		return
	}
	// A recording that is absent, in progress, or failed looks identical to
	// the viewer: nothing to play yet.
	if session == nil || session.RecordingStatus != models.RecordingCompleted || session.RecordingKey == "" {
		response.NotFound(c, "recording not available")
		return
	}

	rangeHeader := c.GetHeader("Range")
	if rangeHeader != "" && !strings.HasPrefix(rangeHeader, "bytes=") {
		response.RangeNotSatisfiable(c, "unsupported range unit")
		return
	}

	obj, err := h.objects.GetRecordingRange(c.Request.Context(), session.RecordingKey, rangeHeader)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			h.logger.Warn("recording object missing",
				zap.String("session_id", sessionID.String()), zap.String("key", session.RecordingKey))
			response.NotFound(c, "recording not available")
			return
		}
		h.logger.Error("fetch recording failed", zap.Error(err), zap.String("key", session.RecordingKey))
		response.BadGateway(c, "storage unavailable")
		return
	}
	defer obj.Body.Close()

	if h.metrics != nil {
		h.metrics.IncReplayRequests()
	}

	status := http.StatusOK
	header := c.Writer.Header()
	if obj.ContentRange != "" {
		status = http.StatusPartialContent
		header.Set("Content-Range", obj.ContentRange)
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	header.Set("Content-Type", contentType)
	if obj.ContentLength > 0 {
		header.Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	acceptRanges := obj.AcceptRanges
	if acceptRanges == "" {
		acceptRanges = "bytes"
	}
	header.Set("Accept-Ranges", acceptRanges)
	if watermark != "" {
		header.Set("X-Replay-Watermark", watermark)
	}
	c.Status(status)

	n, err := io.Copy(c.Writer, obj.Body)
	if h.metrics != nil {
		h.metrics.AddReplayBytes(n)
	}
	if err != nil {
		// Headers are already out; a broken pipe mid-stream (viewer seeked or
		// closed the tab) is normal and only worth a debug line.
		h.logger.Debug("replay stream interrupted", zap.Error(err),
			zap.String("session_id", sessionID.String()), zap.Int64("bytes", n))
	}
}

// authorize accepts either a platform bearer token or a replay token scoped
// to this session. Returns the watermark text to attach to the stream.
func (h *Handler) authorize(c *gin.Context, sessionID uuid.UUID) (string, bool) {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") && h.jwt != nil {
		claims, err := h.jwt.Validate(strings.TrimPrefix(header, "Bearer "))
		if err == nil {
			identity := claims.Email
			if identity == "" {
				identity = claims.UserID.String()
			}
			return identity + " " + time.Now().UTC().Format(time.RFC3339), true
		}
	}
	if token := c.Query("token"); token != "" && h.tokens != nil {
		claims, err := h.tokens.Validate(token, sessionID)
		if err == nil {
			return claims.Watermark, true
		}
	}
	return "", false
}
