// Package sessionstest provides an in-memory sessions.Store for handler and
// worker tests. The conditional-update semantics mirror the SQL repository.
package sessionstest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edulive/backend/internal/models"
	"github.com/edulive/backend/internal/sessions"
)

// Store is an in-memory sessions.Store.
type Store struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*models.LiveSession
	Mutation int // number of updates that changed a row
}

var _ sessions.Store = (*Store)(nil)

// New creates an empty fake store.
func New() *Store {
	return &Store{rows: make(map[uuid.UUID]*models.LiveSession)}
}

// Seed inserts a session as-is, assigning an ID if missing.
func (f *Store) Seed(s *models.LiveSession) *models.LiveSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	f.rows[s.ID] = &cp
	return s
}

// Get returns a copy of the stored row, or nil.
func (f *Store) Get(id uuid.UUID) *models.LiveSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (f *Store) Create(_ context.Context, s *models.LiveSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *Store) GetByID(_ context.Context, id uuid.UUID) (*models.LiveSession, error) {
	return f.Get(id), nil
}

func (f *Store) GetByRoom(_ context.Context, roomID string) (*models.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.ExternalRoomID == roomID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Store) GetByEgress(_ context.Context, egressID string) (*models.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if egressID == "" {
		return nil, nil
	}
	for _, s := range f.rows {
		if s.EgressID == egressID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Store) ListVisible(_ context.Context, viewerID uuid.UUID) ([]models.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []models.LiveSession
	for _, s := range f.rows {
		if s.OwnerID == viewerID || s.Status == models.SessionScheduled || s.Status == models.SessionLive {
			list = append(list, *s)
		}
	}
	return list, nil
}

func (f *Store) BeginRecording(_ context.Context, id uuid.UUID, egressID string, at time.Time) (sessions.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return sessions.OutcomeNoMatch, nil
	}
	startable := (s.Status == models.SessionScheduled && (s.EgressID == "" || s.RecordingStatus == models.RecordingFailed)) ||
		(s.Status == models.SessionError && s.RecordingStatus == models.RecordingFailed)
	if startable {
		s.Status = models.SessionLive
		s.RecordingStatus = models.RecordingInProgress
		s.EgressID = egressID
		t := at
		s.ActualStart = &t
		f.Mutation++
		return sessions.OutcomeApplied, nil
	}
	if s.Status == models.SessionLive && s.EgressID == egressID {
		return sessions.OutcomeAlreadyApplied, nil
	}
	return sessions.OutcomeNoMatch, nil
}

func (f *Store) CompleteRecording(_ context.Context, roomID, egressID, key string, at time.Time) (sessions.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var match *models.LiveSession
	for _, s := range f.rows {
		if (roomID != "" && s.ExternalRoomID == roomID) || (egressID != "" && s.EgressID == egressID) {
			match = s
			break
		}
	}
	if match == nil {
		return sessions.OutcomeNoMatch, nil
	}
	if match.RecordingStatus == models.RecordingCompleted {
		return sessions.OutcomeAlreadyApplied, nil
	}
	if match.Status != models.SessionScheduled && match.Status != models.SessionLive {
		return sessions.OutcomeNoMatch, nil
	}
	match.Status = models.SessionEnded
	match.RecordingStatus = models.RecordingCompleted
	match.RecordingKey = key
	t := at
	match.EndedAt = &t
	f.Mutation++
	return sessions.OutcomeApplied, nil
}

func (f *Store) FailRecording(_ context.Context, egressID string) (sessions.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.EgressID != egressID {
			continue
		}
		if s.RecordingStatus == models.RecordingInProgress {
			s.RecordingStatus = models.RecordingFailed
			if s.Status == models.SessionScheduled || s.Status == models.SessionLive {
				s.Status = models.SessionError
			}
			f.Mutation++
			return sessions.OutcomeApplied, nil
		}
		if s.RecordingStatus == models.RecordingFailed {
			return sessions.OutcomeAlreadyApplied, nil
		}
		return sessions.OutcomeNoMatch, nil
	}
	return sessions.OutcomeNoMatch, nil
}

func (f *Store) AttachRecording(_ context.Context, id uuid.UUID, key string, size int64, at time.Time) (sessions.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return sessions.OutcomeNoMatch, nil
	}
	if s.RecordingStatus == models.RecordingFailed {
		s.Status = models.SessionEnded
		s.RecordingStatus = models.RecordingCompleted
		s.RecordingKey = key
		s.FileSize = size
		if s.EndedAt == nil {
			t := at
			s.EndedAt = &t
		}
		f.Mutation++
		return sessions.OutcomeApplied, nil
	}
	if s.RecordingStatus == models.RecordingCompleted {
		return sessions.OutcomeAlreadyApplied, nil
	}
	return sessions.OutcomeNoMatch, nil
}

func (f *Store) SetParticipantCount(_ context.Context, id uuid.UUID, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok && count > s.ParticipantCount {
		s.ParticipantCount = count
		f.Mutation++
	}
	return nil
}

func (f *Store) SetFileSize(_ context.Context, id uuid.UUID, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok && s.RecordingStatus == models.RecordingCompleted {
		s.FileSize = size
		f.Mutation++
	}
	return nil
}

func (f *Store) FailVerification(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok && s.RecordingStatus == models.RecordingCompleted {
		s.RecordingStatus = models.RecordingFailed
		s.RecordingKey = ""
		s.FileSize = 0
		f.Mutation++
	}
	return nil
}
