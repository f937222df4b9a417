package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a live session. Transitions are
// forward-only: scheduled -> live -> ended, with error terminal, except that
// a session errored by a failed recording may re-enter live through a
// recording retry.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionLive      SessionStatus = "live"
	SessionEnded     SessionStatus = "ended"
	SessionError     SessionStatus = "error"
)

// RecordingStatus is the state of the session's server-side recording.
type RecordingStatus string

const (
	RecordingNone       RecordingStatus = "none"
	RecordingInProgress RecordingStatus = "recording"
	RecordingCompleted  RecordingStatus = "completed"
	RecordingFailed     RecordingStatus = "failed"
)

// LiveSession represents one scheduled/live/ended broadcast.
// RecordingKey is a bucket-relative object key, never a full URL: pre-signed
// URLs embed rotating credentials and must not reach durable storage.
type LiveSession struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          uuid.UUID       `json:"owner_id"`
	Subject          string          `json:"subject"`
	Title            string          `json:"title"`
	Status           SessionStatus   `json:"status"`
	ScheduledStart   time.Time       `json:"scheduled_start"`
	ActualStart      *time.Time      `json:"actual_start,omitempty"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
	ExternalRoomID   string          `json:"external_room_id"`
	EgressID         string          `json:"egress_id,omitempty"`
	RecordingStatus  RecordingStatus `json:"recording_status"`
	RecordingKey     string          `json:"recording_key,omitempty"`
	FileSize         int64           `json:"file_size,omitempty"`
	ParticipantCount int             `json:"participant_count"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RecordingRetryable reports whether a new recording job may start: either no
// egress was ever attached, or the previous one failed.
func (s *LiveSession) RecordingRetryable() bool {
	return s.EgressID == "" || s.RecordingStatus == RecordingFailed
}
