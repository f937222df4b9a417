package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/edulive/backend/internal/models"
)

// Outcome is the result of a conditional session update. Mutations are
// compare-and-swap on the current status/egress fields, so a concurrent
// retry or a re-delivered webhook resolves to already-applied or no-match
// instead of a lost update.
type Outcome int

const (
	// OutcomeApplied means the update mutated exactly one row.
	OutcomeApplied Outcome = iota
	// OutcomeAlreadyApplied means the row is already in the target state.
	OutcomeAlreadyApplied
	// OutcomeNoMatch means no row satisfied the update condition.
	OutcomeNoMatch
)

// String returns the outcome name for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already_applied"
	default:
		return "no_match"
	}
}

// Store is the session persistence surface consumed by the scheduler, egress
// controller, webhook receiver and worker. Implemented by *Repository.
type Store interface {
	Create(ctx context.Context, s *models.LiveSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error)
	GetByRoom(ctx context.Context, roomID string) (*models.LiveSession, error)
	GetByEgress(ctx context.Context, egressID string) (*models.LiveSession, error)
	ListVisible(ctx context.Context, viewerID uuid.UUID) ([]models.LiveSession, error)

	// BeginRecording transitions scheduled -> live and attaches the egress
	// job in one conditional update. Retrying a failed recording is allowed,
	// including from the error state the failure produced.
	BeginRecording(ctx context.Context, id uuid.UUID, egressID string, at time.Time) (Outcome, error)
	// CompleteRecording transitions to ended with the recording key, matched
	// by room ID or egress ID. Idempotent under webhook re-delivery.
	CompleteRecording(ctx context.Context, roomID, egressID, key string, at time.Time) (Outcome, error)
	// FailRecording marks an in-flight recording failed and the session
	// errored unless it already ended.
	FailRecording(ctx context.Context, egressID string) (Outcome, error)
	// AttachRecording replaces a failed recording with a manually re-ingested
	// object, completing the recording and ending the session.
	AttachRecording(ctx context.Context, id uuid.UUID, key string, size int64, at time.Time) (Outcome, error)

	SetParticipantCount(ctx context.Context, id uuid.UUID, count int) error
	SetFileSize(ctx context.Context, id uuid.UUID, size int64) error
	// FailVerification reverts a completed recording whose object turned out
	// to be missing from storage.
	FailVerification(ctx context.Context, id uuid.UUID) error
}
