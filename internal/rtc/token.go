package rtc

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
)

// TokenMinter issues LiveKit room join tokens. The grant scope is derived
// from whether the requester owns the session: owners may publish and
// administer the room, everyone else is subscribe-only.
type TokenMinter struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

// NewTokenMinter creates a token minter with the given credential TTL.
func NewTokenMinter(apiKey, apiSecret string, ttl time.Duration) *TokenMinter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenMinter{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl}
}

// MintJoinToken returns a signed join token for room scoped to identity.
func (m *TokenMinter) MintJoinToken(room, identity string, owner bool) (string, error) {
	if m.apiKey == "" || m.apiSecret == "" {
		return "", fmt.Errorf("rtc: api key and secret required")
	}
	if room == "" || identity == "" {
		return "", fmt.Errorf("rtc: room and identity required")
	}
	grant := JoinGrant(room, owner)
	return auth.NewAccessToken(m.apiKey, m.apiSecret).
		SetIdentity(identity).
		SetVideoGrant(grant).
		SetValidFor(m.ttl).
		ToJWT()
}

// JoinGrant builds the video grant for a room join. Split out so the
// owner/viewer scoping is testable without signing.
func JoinGrant(room string, owner bool) *auth.VideoGrant {
	grant := &auth.VideoGrant{
		RoomJoin:  true,
		Room:      room,
		RoomAdmin: owner,
	}
	grant.SetCanSubscribe(true)
	grant.SetCanPublish(owner)
	grant.SetCanPublishData(owner)
	return grant
}
