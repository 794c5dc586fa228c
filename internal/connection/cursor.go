// Package connection pages ordered membership sequences with opaque cursors.
package connection

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"shelf/internal/domain"
)

const cursorAudience = "collection-cursor"

// Cursor is the decoded position a client resumes from.
type Cursor struct {
	CollectionID uuid.UUID
	Generation   int64
	Key          uuid.UUID
	Position     int
	// Digest commits to every item id up to and including Position.
	Digest string
}

type cursorClaims struct {
	jwt.RegisteredClaims
	CollectionID uuid.UUID `json:"cid"`
	Generation   int64     `json:"gen"`
	Key          uuid.UUID `json:"key"`
	Position     int       `json:"pos"`
	Digest       string    `json:"dig"`
}

// CursorCodec signs and verifies cursors as HS256 tokens.
type CursorCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewCursorCodec creates a codec. A zero ttl issues cursors that never expire.
func NewCursorCodec(secret, issuer string, ttl time.Duration) *CursorCodec {
	return &CursorCodec{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Encode returns the opaque token for c.
func (c *CursorCodec) Encode(cur Cursor) (string, error) {
	now := c.now()
	claims := &cursorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			IssuedAt: jwt.NewNumericDate(now),
			Audience: jwt.ClaimStrings{cursorAudience},
		},
		CollectionID: cur.CollectionID,
		Generation:   cur.Generation,
		Key:          cur.Key,
		Position:     cur.Position,
		Digest:       cur.Digest,
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("connection.Encode: %w", err)
	}
	return token, nil
}

// Decode verifies token and returns its cursor. Any structural, signature or
// expiry failure is reported as ErrStaleCursor.
func (c *CursorCodec) Decode(token string) (*Cursor, error) {
	claims := &cursorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithAudience(cursorAudience),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStaleCursor, err)
	}
	if !parsed.Valid || claims.Position < 0 {
		return nil, domain.ErrStaleCursor
	}
	return &Cursor{
		CollectionID: claims.CollectionID,
		Generation:   claims.Generation,
		Key:          claims.Key,
		Position:     claims.Position,
		Digest:       claims.Digest,
	}, nil
}

// prefixDigest folds item ids into a running hash: h(i) = sha256(h(i-1) || id(i)).
type prefixDigest struct {
	sum [sha256.Size]byte
}

func (d *prefixDigest) add(id uuid.UUID) {
	buf := make([]byte, 0, sha256.Size+len(id))
	buf = append(buf, d.sum[:]...)
	buf = append(buf, id[:]...)
	d.sum = sha256.Sum256(buf)
}

func (d *prefixDigest) String() string {
	return base64.RawURLEncoding.EncodeToString(d.sum[:16])
}

// digestThrough returns the prefix digest of items[0..pos].
func digestThrough(items []domain.ProductRef, pos int) string {
	var d prefixDigest
	for i := 0; i <= pos; i++ {
		d.add(items[i].ID)
	}
	return d.String()
}
