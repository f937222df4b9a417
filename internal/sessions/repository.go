package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edulive/backend/internal/models"
)

const sessionColumns = `id, owner_id, subject, title, status, scheduled_start, actual_start, ended_at,
	external_room_id, COALESCE(egress_id,''), recording_status, COALESCE(recording_key,''), file_size,
	participant_count, created_at, updated_at`

// Repository handles live session persistence on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.LiveSession, error) {
	var s models.LiveSession
	err := row.Scan(&s.ID, &s.OwnerID, &s.Subject, &s.Title, &s.Status, &s.ScheduledStart, &s.ActualStart,
		&s.EndedAt, &s.ExternalRoomID, &s.EgressID, &s.RecordingStatus, &s.RecordingKey, &s.FileSize,
		&s.ParticipantCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a new session in scheduled state.
func (r *Repository) Create(ctx context.Context, s *models.LiveSession) error {
	const q = `INSERT INTO live_sessions (owner_id, subject, title, status, scheduled_start, external_room_id, recording_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.OwnerID, s.Subject, s.Title, string(models.SessionScheduled),
		s.ScheduledStart, s.ExternalRoomID, string(models.RecordingNone)).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a session by ID, or nil if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM live_sessions WHERE id = $1`, id))
}

// GetByRoom returns a session by its provider room ID, or nil.
func (r *Repository) GetByRoom(ctx context.Context, roomID string) (*models.LiveSession, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM live_sessions WHERE external_room_id = $1`, roomID))
}

// GetByEgress returns the session a provider egress job is attached to, or nil.
func (r *Repository) GetByEgress(ctx context.Context, egressID string) (*models.LiveSession, error) {
	if egressID == "" {
		return nil, nil
	}
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM live_sessions WHERE egress_id = $1`, egressID))
}

// ListVisible returns the viewer's own sessions plus all upcoming or live ones.
func (r *Repository) ListVisible(ctx context.Context, viewerID uuid.UUID) ([]models.LiveSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM live_sessions
		WHERE owner_id = $1 OR status IN ('scheduled', 'live')
		ORDER BY scheduled_start DESC`
	rows, err := r.pool.Query(ctx, q, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.LiveSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// BeginRecording conditionally transitions scheduled -> live, attaching the
// egress job and actual start time. A previously failed recording may be
// retried with a new egress ID, including from the error state a recording
// failure put the session in; any other state refuses the swap.
func (r *Repository) BeginRecording(ctx context.Context, id uuid.UUID, egressID string, at time.Time) (Outcome, error) {
	const q = `UPDATE live_sessions
		SET status = 'live', recording_status = 'recording', egress_id = $2, actual_start = $3, updated_at = NOW()
		WHERE id = $1 AND (
			(status = 'scheduled' AND (egress_id IS NULL OR recording_status = 'failed'))
			OR (status = 'error' AND recording_status = 'failed')
		)`
	tag, err := r.pool.Exec(ctx, q, id, egressID, at)
	if err != nil {
		return OutcomeNoMatch, err
	}
	if tag.RowsAffected() == 1 {
		return OutcomeApplied, nil
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil || cur == nil {
		return OutcomeNoMatch, err
	}
	if cur.Status == models.SessionLive && cur.EgressID == egressID {
		return OutcomeAlreadyApplied, nil
	}
	return OutcomeNoMatch, nil
}

// CompleteRecording conditionally transitions to ended with the recording
// key. Matching by room ID or egress ID covers events from either webhook
// shape; completed rows are left untouched so at-least-once delivery is safe.
func (r *Repository) CompleteRecording(ctx context.Context, roomID, egressID, key string, at time.Time) (Outcome, error) {
	const q = `UPDATE live_sessions
		SET status = 'ended', recording_status = 'completed', recording_key = $3, ended_at = $4, updated_at = NOW()
		WHERE (external_room_id = $1 OR egress_id = $2)
		  AND status IN ('scheduled', 'live')
		  AND recording_status <> 'completed'`
	tag, err := r.pool.Exec(ctx, q, roomID, egressID, key, at)
	if err != nil {
		return OutcomeNoMatch, err
	}
	if tag.RowsAffected() >= 1 {
		return OutcomeApplied, nil
	}
	cur, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM live_sessions WHERE external_room_id = $1 OR egress_id = $2`, roomID, egressID))
	if err != nil || cur == nil {
		return OutcomeNoMatch, err
	}
	if cur.RecordingStatus == models.RecordingCompleted {
		return OutcomeAlreadyApplied, nil
	}
	return OutcomeNoMatch, nil
}

// FailRecording marks an in-flight recording as failed. Sessions not yet
// ended move to the terminal error state.
func (r *Repository) FailRecording(ctx context.Context, egressID string) (Outcome, error) {
	const q = `UPDATE live_sessions
		SET recording_status = 'failed',
		    status = CASE WHEN status IN ('scheduled', 'live') THEN 'error' ELSE status END,
		    updated_at = NOW()
		WHERE egress_id = $1 AND recording_status = 'recording'`
	tag, err := r.pool.Exec(ctx, q, egressID)
	if err != nil {
		return OutcomeNoMatch, err
	}
	if tag.RowsAffected() >= 1 {
		return OutcomeApplied, nil
	}
	cur, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM live_sessions WHERE egress_id = $1`, egressID))
	if err != nil || cur == nil {
		return OutcomeNoMatch, err
	}
	if cur.RecordingStatus == models.RecordingFailed {
		return OutcomeAlreadyApplied, nil
	}
	return OutcomeNoMatch, nil
}

// AttachRecording completes a failed recording with a manually re-ingested
// object. Only a failed recording may be replaced; a completed one is never
// overwritten.
func (r *Repository) AttachRecording(ctx context.Context, id uuid.UUID, key string, size int64, at time.Time) (Outcome, error) {
	const q = `UPDATE live_sessions
		SET status = 'ended', recording_status = 'completed', recording_key = $2, file_size = $3,
		    ended_at = COALESCE(ended_at, $4), updated_at = NOW()
		WHERE id = $1 AND recording_status = 'failed'`
	tag, err := r.pool.Exec(ctx, q, id, key, size, at)
	if err != nil {
		return OutcomeNoMatch, err
	}
	if tag.RowsAffected() == 1 {
		return OutcomeApplied, nil
	}
	cur, err := r.GetByID(ctx, id)
	if err != nil || cur == nil {
		return OutcomeNoMatch, err
	}
	if cur.RecordingStatus == models.RecordingCompleted {
		return OutcomeAlreadyApplied, nil
	}
	return OutcomeNoMatch, nil
}

// SetParticipantCount denormalizes the participant set size onto the row.
func (r *Repository) SetParticipantCount(ctx context.Context, id uuid.UUID, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE live_sessions SET participant_count = GREATEST(participant_count, $2), updated_at = NOW() WHERE id = $1`,
		id, count)
	return err
}

// SetFileSize records the verified object size of a completed recording.
func (r *Repository) SetFileSize(ctx context.Context, id uuid.UUID, size int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE live_sessions SET file_size = $2, updated_at = NOW() WHERE id = $1 AND recording_status = 'completed'`,
		id, size)
	return err
}

// FailVerification reverts a completed recording whose object is missing.
// The key is cleared together with the status flip to keep the
// key-iff-completed invariant.
func (r *Repository) FailVerification(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE live_sessions SET recording_status = 'failed', recording_key = NULL, file_size = 0, updated_at = NOW()
		 WHERE id = $1 AND recording_status = 'completed'`,
		id)
	return err
}
