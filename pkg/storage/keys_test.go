package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReduceToKey(t *testing.T) {
	tests := []struct {
		name     string
		location string
		bucket   string
		want     string
	}{
		{
			name:     "virtual hosted url",
			location: "https://edulive-recordings.s3.us-east-1.amazonaws.com/recordings/abc-170000.mp4",
			bucket:   "edulive-recordings",
			want:     "recordings/abc-170000.mp4",
		},
		{
			name:     "path style url",
			location: "https://s3.us-east-1.amazonaws.com/edulive-recordings/recordings/abc-170000.mp4",
			bucket:   "edulive-recordings",
			want:     "recordings/abc-170000.mp4",
		},
		{
			name:     "presigned url drops credentials",
			location: "https://edulive-recordings.s3.amazonaws.com/recordings/abc.mp4?X-Amz-Signature=deadbeef&X-Amz-Credential=AKIA",
			bucket:   "edulive-recordings",
			want:     "recordings/abc.mp4",
		},
		{
			name:     "bare key passes through",
			location: "recordings/abc.mp4",
			bucket:   "edulive-recordings",
			want:     "recordings/abc.mp4",
		},
		{
			name:     "bare key with query stripped",
			location: "recordings/abc.mp4?sig=1",
			bucket:   "edulive-recordings",
			want:     "recordings/abc.mp4",
		},
		{
			name:     "empty location",
			location: "",
			bucket:   "edulive-recordings",
			want:     "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReduceToKey(tt.location, tt.bucket)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "?", "keys must never retain query credentials")
		})
	}
}

func TestRecordingPath(t *testing.T) {
	at := time.Unix(1700000000, 0)
	p := RecordingPath("sess-1", at)
	assert.Equal(t, "recordings/sess-1-1700000000.mp4", p)
	assert.True(t, strings.HasPrefix(p, FolderRecordings+"/"))
}
