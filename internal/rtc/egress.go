package rtc

import (
	"context"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// S3Output holds the object-store destination for egress uploads. The
// provider writes the finished file directly to this bucket.
type S3Output struct {
	AccessKey string
	Secret    string
	Region    string
	Bucket    string
}

// Egress starts room composite recordings against LiveKit.
type Egress struct {
	client *lksdk.EgressClient
	out    S3Output
}

// NewEgress creates an egress client for the given LiveKit deployment.
func NewEgress(url, apiKey, apiSecret string, out S3Output) *Egress {
	return &Egress{
		client: lksdk.NewEgressClient(url, apiKey, apiSecret),
		out:    out,
	}
}

// StartRoomComposite starts a composite MP4 recording of roomName, written to
// filepath in the configured bucket. Returns the provider egress ID. The call
// is synchronous; the recording job itself runs asynchronously on the
// provider side.
func (e *Egress) StartRoomComposite(ctx context.Context, roomName, filepath string) (string, error) {
	info, err := e.client.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
		RoomName: roomName,
		FileOutputs: []*livekit.EncodedFileOutput{
			{
				FileType: livekit.EncodedFileType_MP4,
				Filepath: filepath,
				Output: &livekit.EncodedFileOutput_S3{
					S3: &livekit.S3Upload{
						AccessKey: e.out.AccessKey,
						Secret:    e.out.Secret,
						Region:    e.out.Region,
						Bucket:    e.out.Bucket,
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("start room composite egress: %w", err)
	}
	return info.EgressId, nil
}
