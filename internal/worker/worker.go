// Package worker runs background jobs. Its single job today is recording
// verification: after a webhook marks a recording completed, confirm the
// object actually exists in storage and persist its size.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/edulive/backend/internal/models"
	"github.com/edulive/backend/internal/sessions"
	"github.com/edulive/backend/pkg/queue"
	"github.com/edulive/backend/pkg/storage"
)

// ObjectInspector checks recording objects in storage.
type ObjectInspector interface {
	HeadRecording(ctx context.Context, key string) (int64, error)
}

// Worker consumes jobs from the Redis queue.
type Worker struct {
	queue     *queue.Queue
	store     sessions.Store
	inspector ObjectInspector
	logger    *zap.Logger
}

// New creates a worker.
func New(q *queue.Queue, store sessions.Store, inspector ObjectInspector, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: q, store: store, inspector: inspector, logger: logger}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return
		default:
		}

		job, _, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopped")
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		if err := w.ProcessJob(ctx, job); err != nil {
			w.logger.Warn("job failed",
				zap.String("job_id", job.ID), zap.String("type", string(job.Type)),
				zap.Int("attempt", job.Attempt), zap.Error(err))
			if err := w.queue.Retry(ctx, job); err != nil {
				w.logger.Error("retry failed", zap.Error(err), zap.String("job_id", job.ID))
			}
		}
	}
}

// ProcessJob executes a single job. A nil return drops the job; an error
// sends it back through the retry path.
func (w *Worker) ProcessJob(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRecordingVerify:
		var payload queue.RecordingVerifyPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			w.logger.Warn("invalid verify payload dropped", zap.String("job_id", job.ID), zap.Error(err))
			return nil
		}
		return w.verifyRecording(ctx, job, payload)
	default:
		w.logger.Warn("unknown job type dropped", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		return nil
	}
}

// verifyRecording heads the stored object and records its size. A missing
// object is retried (uploads can lag the webhook slightly); at the final
// attempt the session's recording is reverted to failed so the replay
// endpoint stops advertising a file that is not there.
func (w *Worker) verifyRecording(ctx context.Context, job *queue.Job, payload queue.RecordingVerifyPayload) error {
	session, err := w.store.GetByID(ctx, payload.SessionID)
	if err != nil {
		return err
	}
	if session == nil || session.RecordingStatus != models.RecordingCompleted || session.RecordingKey != payload.RecordingKey {
		w.logger.Info("verify skipped, session moved on",
			zap.String("session_id", payload.SessionID.String()), zap.String("key", payload.RecordingKey))
		return nil
	}

	size, err := w.inspector.HeadRecording(ctx, payload.RecordingKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			if job.Attempt >= queue.MaxRetries-1 {
				w.logger.Error("recording object never appeared, reverting",
					zap.String("session_id", payload.SessionID.String()), zap.String("key", payload.RecordingKey))
				return w.store.FailVerification(ctx, payload.SessionID)
			}
			return err
		}
		return err
	}

	if err := w.store.SetFileSize(ctx, payload.SessionID, size); err != nil {
		return err
	}
	w.logger.Info("recording verified",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("key", payload.RecordingKey),
		zap.Int64("size", size))
	return nil
}
