package egress

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulive/backend/internal/middleware"
	"github.com/edulive/backend/internal/models"
	"github.com/edulive/backend/internal/sessions"
	"github.com/edulive/backend/internal/sessions/sessionstest"
	"github.com/edulive/backend/pkg/metrics"
)

type fakeRecorder struct {
	egressID string
	err      error
	calls    int
	room     string
	filepath string
}

func (f *fakeRecorder) StartRoomComposite(_ context.Context, roomName, filepath string) (string, error) {
	f.calls++
	f.room = roomName
	f.filepath = filepath
	if f.err != nil {
		return "", f.err
	}
	return f.egressID, nil
}

type fakeUploader struct {
	err   error
	calls int
	key   string
	size  int64
	body  []byte
}

func (f *fakeUploader) Upload(_ context.Context, key, _ string, body io.Reader, contentLength int64) (string, error) {
	f.calls++
	f.key = key
	f.size = contentLength
	f.body, _ = io.ReadAll(body)
	if f.err != nil {
		return "", f.err
	}
	return "https://recordings.example.com/" + key, nil
}

func newRouter(h *Handler, asUser uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sessions/:id/recording/start", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, asUser)
		h.StartRecording(c)
	})
	r.POST("/sessions/:id/recording/upload", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, asUser)
		h.UploadRecording(c)
	})
	return r
}

func uploadRequest(t *testing.T, sessionID, payload string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "recording.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/recording/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func scheduledSession(owner uuid.UUID) *models.LiveSession {
	return &models.LiveSession{
		ID:              uuid.New(),
		OwnerID:         owner,
		Subject:         "math",
		Title:           "Algebra II",
		Status:          models.SessionScheduled,
		ScheduledStart:  time.Now(),
		ExternalRoomID:  "lesson-1700000000000-abcd1234",
		RecordingStatus: models.RecordingNone,
	}
}

func TestStartRecordingHappyPath(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := store.Seed(scheduledSession(owner))
	rec := &fakeRecorder{egressID: "EG_123"}
	h := NewHandler(store, rec, nil, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID.String()+"/recording/start", nil)
	newRouter(h, owner).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, sess.ExternalRoomID, rec.room)
	assert.True(t, strings.HasPrefix(rec.filepath, "recordings/"+sess.ID.String()+"-"))

	got := store.Get(sess.ID)
	assert.Equal(t, models.SessionLive, got.Status)
	assert.Equal(t, "EG_123", got.EgressID)
	assert.Equal(t, models.RecordingInProgress, got.RecordingStatus)
	require.NotNil(t, got.ActualStart)
}

func TestStartRecordingNonOwnerForbidden(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := store.Seed(scheduledSession(owner))
	rec := &fakeRecorder{egressID: "EG_123"}
	h := NewHandler(store, rec, nil, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID.String()+"/recording/start", nil)
	newRouter(h, uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, rec.calls, "provider must not be called")
	assert.Equal(t, 0, store.Mutation, "session must not be mutated")
	assert.Equal(t, models.SessionScheduled, store.Get(sess.ID).Status)
}

func TestStartRecordingDoubleStartConflict(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := scheduledSession(owner)
	sess.Status = models.SessionLive
	sess.EgressID = "EG_OLD"
	sess.RecordingStatus = models.RecordingInProgress
	store.Seed(sess)
	rec := &fakeRecorder{egressID: "EG_NEW"}
	h := NewHandler(store, rec, nil, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID.String()+"/recording/start", nil)
	newRouter(h, owner).ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, "EG_OLD", store.Get(sess.ID).EgressID)
}

func TestStartRecordingRetryAfterFailure(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := scheduledSession(owner)
	sess.EgressID = "EG_OLD"
	sess.RecordingStatus = models.RecordingFailed
	store.Seed(sess)
	rec := &fakeRecorder{egressID: "EG_NEW"}
	h := NewHandler(store, rec, nil, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID.String()+"/recording/start", nil)
	newRouter(h, owner).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EG_NEW", store.Get(sess.ID).EgressID)
}

func TestStartRecordingRetryAfterProviderReportedFailure(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := scheduledSession(owner)
	sess.Status = models.SessionLive
	sess.EgressID = "EG_OLD"
	sess.RecordingStatus = models.RecordingInProgress
	store.Seed(sess)

	// The provider reports the first egress failed, which errors the session.
	outcome, err := store.FailRecording(context.Background(), "EG_OLD")
	require.NoError(t, err)
	require.Equal(t, sessions.OutcomeApplied, outcome)
	require.Equal(t, models.SessionError, store.Get(sess.ID).Status)

	rec := &fakeRecorder{egressID: "EG_NEW"}
	h := NewHandler(store, rec, nil, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID.String()+"/recording/start", nil)
	newRouter(h, owner).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	got := store.Get(sess.ID)
	assert.Equal(t, models.SessionLive, got.Status)
	assert.Equal(t, "EG_NEW", got.EgressID)
	assert.Equal(t, models.RecordingInProgress, got.RecordingStatus)
}

func TestStartRecordingEndedSessionConflict(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := scheduledSession(owner)
	sess.Status = models.SessionEnded
	sess.EgressID = "EG_OLD"
	sess.RecordingStatus = models.RecordingCompleted
	sess.RecordingKey = "recordings/final.mp4"
	store.Seed(sess)
	rec := &fakeRecorder{egressID: "EG_NEW"}
	h := NewHandler(store, rec, nil, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID.String()+"/recording/start", nil)
	newRouter(h, owner).ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, rec.calls)
}

func TestStartRecordingProviderFailureLeavesScheduled(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := store.Seed(scheduledSession(owner))
	rec := &fakeRecorder{err: errors.New("egress unavailable")}
	h := NewHandler(store, rec, nil, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID.String()+"/recording/start", nil)
	newRouter(h, owner).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	got := store.Get(sess.ID)
	assert.Equal(t, models.SessionScheduled, got.Status)
	assert.Empty(t, got.EgressID)
	assert.Equal(t, models.RecordingNone, got.RecordingStatus)
}

func TestStartRecordingUnknownSession(t *testing.T) {
	store := sessionstest.New()
	rec := &fakeRecorder{egressID: "EG_123"}
	h := NewHandler(store, rec, nil, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+uuid.NewString()+"/recording/start", nil)
	newRouter(h, uuid.New()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, rec.calls)
}

func failedSession(owner uuid.UUID) *models.LiveSession {
	s := scheduledSession(owner)
	s.Status = models.SessionError
	s.EgressID = "EG_OLD"
	s.RecordingStatus = models.RecordingFailed
	return s
}

func TestUploadRecordingHappyPath(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := store.Seed(failedSession(owner))
	up := &fakeUploader{}
	h := NewHandler(store, &fakeRecorder{}, up, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	newRouter(h, owner).ServeHTTP(w, uploadRequest(t, sess.ID.String(), "fake mp4 bytes"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, up.calls)
	assert.True(t, strings.HasPrefix(up.key, "recordings/"+sess.ID.String()+"-"))
	assert.Equal(t, []byte("fake mp4 bytes"), up.body)

	got := store.Get(sess.ID)
	assert.Equal(t, models.SessionEnded, got.Status)
	assert.Equal(t, models.RecordingCompleted, got.RecordingStatus)
	assert.Equal(t, up.key, got.RecordingKey)
	assert.Equal(t, int64(len("fake mp4 bytes")), got.FileSize)
}

func TestUploadRecordingNonOwnerForbidden(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := store.Seed(failedSession(owner))
	up := &fakeUploader{}
	h := NewHandler(store, &fakeRecorder{}, up, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	newRouter(h, uuid.New()).ServeHTTP(w, uploadRequest(t, sess.ID.String(), "x"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, up.calls, "storage must not be called")
	assert.Equal(t, 0, store.Mutation)
}

func TestUploadRecordingCompletedConflict(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := scheduledSession(owner)
	sess.Status = models.SessionEnded
	sess.EgressID = "EG_OLD"
	sess.RecordingStatus = models.RecordingCompleted
	sess.RecordingKey = "recordings/final.mp4"
	store.Seed(sess)
	up := &fakeUploader{}
	h := NewHandler(store, &fakeRecorder{}, up, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	newRouter(h, owner).ServeHTTP(w, uploadRequest(t, sess.ID.String(), "x"))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, up.calls)
	assert.Equal(t, "recordings/final.mp4", store.Get(sess.ID).RecordingKey)
}

func TestUploadRecordingStorageFailureLeavesFailed(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := store.Seed(failedSession(owner))
	up := &fakeUploader{err: errors.New("s3 unavailable")}
	h := NewHandler(store, &fakeRecorder{}, up, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	newRouter(h, owner).ServeHTTP(w, uploadRequest(t, sess.ID.String(), "x"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	got := store.Get(sess.ID)
	assert.Equal(t, models.RecordingFailed, got.RecordingStatus)
	assert.Empty(t, got.RecordingKey)
}

func TestUploadRecordingMissingFile(t *testing.T) {
	owner := uuid.New()
	store := sessionstest.New()
	sess := store.Seed(failedSession(owner))
	up := &fakeUploader{}
	h := NewHandler(store, &fakeRecorder{}, up, time.Second, metrics.New(), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID.String()+"/recording/upload", nil)
	newRouter(h, owner).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, up.calls)
}
