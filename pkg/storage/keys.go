package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FolderRecordings is the S3 prefix for recording objects.
const FolderRecordings = "recordings"

// RecordingPath returns the deterministic egress output path for a session:
// recordings/{sessionID}-{unixts}.mp4.
func RecordingPath(sessionID string, at time.Time) string {
	return fmt.Sprintf("%s/%s-%d.mp4", FolderRecordings, sessionID, at.Unix())
}

// ReduceToKey reduces a provider-reported storage location to a
// bucket-relative object key. Full URLs may carry pre-signed query
// credentials, so everything but the object path is discarded. Returns ""
// when no usable key can be derived.
func ReduceToKey(location, bucket string) string {
	loc := strings.TrimSpace(location)
	if loc == "" {
		return ""
	}
	if !strings.Contains(loc, "://") {
		// Already a key; still strip any query fragment.
		if i := strings.IndexAny(loc, "?#"); i >= 0 {
			loc = loc[:i]
		}
		return strings.TrimPrefix(loc, "/")
	}
	u, err := url.Parse(loc)
	if err != nil {
		return ""
	}
	key := strings.TrimPrefix(u.Path, "/")
	// Path-style URLs (https://s3.region.amazonaws.com/bucket/key) lead with
	// the bucket; virtual-hosted style carries it in the host.
	if bucket != "" && strings.HasPrefix(key, bucket+"/") {
		key = strings.TrimPrefix(key, bucket+"/")
	}
	return key
}
