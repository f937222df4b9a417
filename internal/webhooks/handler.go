// Package webhooks ingests provider events. Delivery is at-least-once and
// unordered, so every state change funnels through the session store's
// conditional updates and re-delivery resolves to a no-op.
package webhooks

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"go.uber.org/zap"

	"github.com/edulive/backend/internal/models"
	"github.com/edulive/backend/internal/sessions"
	"github.com/edulive/backend/pkg/metrics"
	"github.com/edulive/backend/pkg/queue"
	"github.com/edulive/backend/pkg/response"
	"github.com/edulive/backend/pkg/storage"
)

// EventVerifier authenticates a webhook delivery and decodes the event.
type EventVerifier interface {
	Receive(r *http.Request) (*livekit.WebhookEvent, error)
}

// VerifyEnqueuer schedules post-completion recording verification.
type VerifyEnqueuer interface {
	EnqueueRecordingVerify(ctx context.Context, payload queue.RecordingVerifyPayload) error
}

// RecordingCleaner deletes recording objects that no session references.
type RecordingCleaner interface {
	DeleteRecording(ctx context.Context, key string) error
}

// Handler handles POST /webhooks/livekit.
type Handler struct {
	store        sessions.Store
	participants sessions.ParticipantSet
	verifier     EventVerifier
	enqueuer     VerifyEnqueuer
	cleaner      RecordingCleaner
	bucket       string
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewHandler creates a webhook handler. bucket is used to reduce provider
// file locations to bucket-relative keys.
func NewHandler(store sessions.Store, participants sessions.ParticipantSet, verifier EventVerifier, enqueuer VerifyEnqueuer, cleaner RecordingCleaner, bucket string, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:        store,
		participants: participants,
		verifier:     verifier,
		enqueuer:     enqueuer,
		cleaner:      cleaner,
		bucket:       bucket,
		metrics:      m,
		logger:       logger,
	}
}

// HandleEvent verifies the delivery signature and applies the event. Once
// the signature checks out the response is always 200 {received:true}: a
// stale or unmatchable event must not push the provider into a retry storm.
func (h *Handler) HandleEvent(c *gin.Context) {
	event, err := h.verifier.Receive(c.Request)
	if err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		response.Unauthorized(c, "invalid webhook signature")
		return
	}
	if h.metrics != nil {
		h.metrics.IncWebhookEvents()
	}

	switch event.Event {
	case webhook.EventEgressEnded:
		h.handleEgressEnded(c.Request.Context(), event)
	case webhook.EventParticipantJoined:
		h.handleParticipantJoined(c.Request.Context(), event)
	case webhook.EventRoomFinished:
		// End of room without an egress result is not terminal for the
		// recording; the egress_ended event carries the file location.
		h.logger.Debug("room finished", zap.String("room", roomName(event)))
		h.ignored()
	default:
		h.logger.Debug("webhook event ignored", zap.String("event", event.Event))
		h.ignored()
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) handleEgressEnded(ctx context.Context, event *livekit.WebhookEvent) {
	info := event.EgressInfo
	if info == nil {
		h.ignored()
		return
	}

	switch info.Status {
	case livekit.EgressStatus_EGRESS_COMPLETE:
		key := resultKey(info, h.bucket)
		if key == "" {
			// Nothing usable to persist yet; acknowledge and wait for a
			// delivery that carries the file location.
			h.logger.Info("egress complete without file location",
				zap.String("egress_id", info.EgressId), zap.String("room", info.RoomName))
			h.ignored()
			return
		}
		outcome, err := h.store.CompleteRecording(ctx, info.RoomName, info.EgressId, key, time.Now().UTC())
		if err != nil {
			h.logger.Error("complete recording failed", zap.Error(err), zap.String("egress_id", info.EgressId))
			return
		}
		h.logOutcome("recording completed", outcome, info)
		if outcome == sessions.OutcomeApplied {
			h.applied()
			h.enqueueVerify(ctx, info, key)
		} else {
			h.ignored()
			h.cleanupOrphan(ctx, info, key)
		}
	case livekit.EgressStatus_EGRESS_FAILED, livekit.EgressStatus_EGRESS_ABORTED:
		outcome, err := h.store.FailRecording(ctx, info.EgressId)
		if err != nil {
			h.logger.Error("fail recording failed", zap.Error(err), zap.String("egress_id", info.EgressId))
			return
		}
		h.logOutcome("recording failed", outcome, info)
		if outcome == sessions.OutcomeApplied {
			h.applied()
		} else {
			h.ignored()
		}
	default:
		h.ignored()
	}
}

func (h *Handler) handleParticipantJoined(ctx context.Context, event *livekit.WebhookEvent) {
	if h.participants == nil || event.Participant == nil || event.Room == nil {
		h.ignored()
		return
	}
	session, err := h.store.GetByRoom(ctx, event.Room.Name)
	if err != nil || session == nil {
		h.logger.Info("participant joined unknown room", zap.String("room", event.Room.Name))
		h.ignored()
		return
	}
	if err := h.participants.Add(ctx, session.ID, event.Participant.Identity); err != nil {
		h.logger.Warn("track participant failed", zap.Error(err), zap.String("session_id", session.ID.String()))
		return
	}
	if n, err := h.participants.Count(ctx, session.ID); err == nil {
		_ = h.store.SetParticipantCount(ctx, session.ID, n)
	}
	h.applied()
}

// lookupSession resolves the session an egress event refers to, by room name
// first and egress ID second. Events can carry either (or a stale room name),
// matching the conditions CompleteRecording updates on.
func (h *Handler) lookupSession(ctx context.Context, info *livekit.EgressInfo) *models.LiveSession {
	if info.RoomName != "" {
		if s, err := h.store.GetByRoom(ctx, info.RoomName); err == nil && s != nil {
			return s
		}
	}
	if s, err := h.store.GetByEgress(ctx, info.EgressId); err == nil && s != nil {
		return s
	}
	return nil
}

func (h *Handler) enqueueVerify(ctx context.Context, info *livekit.EgressInfo, key string) {
	if h.enqueuer == nil {
		return
	}
	session := h.lookupSession(ctx, info)
	if session == nil {
		return
	}
	if err := h.enqueuer.EnqueueRecordingVerify(ctx, queue.RecordingVerifyPayload{
		SessionID:    session.ID,
		RecordingKey: key,
	}); err != nil {
		h.logger.Warn("enqueue recording verify failed", zap.Error(err), zap.String("session_id", session.ID.String()))
	}
}

// cleanupOrphan removes a completed egress object that lost the completion
// race: its session already holds a different recording (or no session claims
// it at all), so nothing will ever serve the key. A re-delivered event for
// the stored key is left alone.
func (h *Handler) cleanupOrphan(ctx context.Context, info *livekit.EgressInfo, key string) {
	if h.cleaner == nil {
		return
	}
	if session := h.lookupSession(ctx, info); session != nil && session.RecordingKey == key {
		return
	}
	if err := h.cleaner.DeleteRecording(ctx, key); err != nil {
		h.logger.Warn("delete orphaned recording failed", zap.Error(err), zap.String("key", key))
		return
	}
	h.logger.Info("orphaned recording object deleted",
		zap.String("key", key), zap.String("egress_id", info.EgressId))
}

func (h *Handler) logOutcome(msg string, outcome sessions.Outcome, info *livekit.EgressInfo) {
	switch outcome {
	case sessions.OutcomeApplied:
		h.logger.Info(msg, zap.String("egress_id", info.EgressId), zap.String("room", info.RoomName))
	case sessions.OutcomeAlreadyApplied:
		h.logger.Debug(msg+" (duplicate delivery)", zap.String("egress_id", info.EgressId))
	case sessions.OutcomeNoMatch:
		// The session may have been deleted or the event is stale; logged
		// and acknowledged so the provider stops retrying.
		h.logger.Info(msg+" matched no session",
			zap.String("egress_id", info.EgressId), zap.String("room", info.RoomName))
	}
}

func (h *Handler) applied() {
	if h.metrics != nil {
		h.metrics.IncWebhookApplied()
	}
}

func (h *Handler) ignored() {
	if h.metrics != nil {
		h.metrics.IncWebhookIgnored()
	}
}

// resultKey reduces the egress file result to a bucket-relative object key.
func resultKey(info *livekit.EgressInfo, bucket string) string {
	for _, f := range info.FileResults {
		if f == nil {
			continue
		}
		if key := storage.ReduceToKey(f.Location, bucket); key != "" {
			return key
		}
		if key := storage.ReduceToKey(f.Filename, bucket); key != "" {
			return key
		}
	}
	return ""
}

func roomName(event *livekit.WebhookEvent) string {
	if event.Room != nil {
		return event.Room.Name
	}
	return ""
}
