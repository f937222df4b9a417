package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// participantSetTTL bounds how long a session's participant set lives in
// Redis after the last join.
const participantSetTTL = 24 * time.Hour

// ParticipantSet tracks the identities that joined a session. The set is
// append-only while the session is live; the count is denormalized onto the
// session row when the room ends.
type ParticipantSet interface {
	Add(ctx context.Context, sessionID uuid.UUID, identity string) error
	Count(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// RedisParticipants implements ParticipantSet on a Redis set per session.
type RedisParticipants struct {
	client *redis.Client
}

// NewRedisParticipants creates a Redis-backed participant tracker.
func NewRedisParticipants(client *redis.Client) *RedisParticipants {
	return &RedisParticipants{client: client}
}

func participantKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:participants", sessionID)
}

// Add records identity as a participant of the session.
func (p *RedisParticipants) Add(ctx context.Context, sessionID uuid.UUID, identity string) error {
	key := participantKey(sessionID)
	if err := p.client.SAdd(ctx, key, identity).Err(); err != nil {
		return fmt.Errorf("sadd: %w", err)
	}
	return p.client.Expire(ctx, key, participantSetTTL).Err()
}

// Count returns the number of distinct participants seen for the session.
func (p *RedisParticipants) Count(ctx context.Context, sessionID uuid.UUID) (int, error) {
	n, err := p.client.SCard(ctx, participantKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("scard: %w", err)
	}
	return int(n), nil
}
