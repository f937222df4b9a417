package replay

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for expired, malformed or mismatched replay
// tokens.
var ErrInvalidToken = errors.New("replay: invalid token")

// Claims are the replay token claims: the session the token unlocks, the
// viewer (subject), and the watermark text the player overlays.
type Claims struct {
	SessionID string `json:"session_id"`
	Watermark string `json:"watermark"`
	jwt.RegisteredClaims
}

// Tokens issues and validates short-lived, tamper-evident replay tokens.
// A token grants access to exactly one session's recording.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens creates a replay token service.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a replay token for the given session and viewer.
func (t *Tokens) Issue(sessionID, userID uuid.UUID, watermark string) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID.String(),
		Watermark: watermark,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate parses a replay token and checks it was issued for sessionID.
func (t *Tokens) Validate(tokenString string, sessionID uuid.UUID) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID != sessionID.String() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
