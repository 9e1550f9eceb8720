package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/ksid"
)

// TokenCodec mints and parses the signed session tokens carried by the
// session cookie. The token is the boundary's proof of integrity; the
// resolver only trusts identifiers extracted from a token that verifies.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec creates a codec signing with the given secret. ttl bounds
// token validity independently of session revocation.
func NewTokenCodec(secret []byte, ttl time.Duration) *TokenCodec {
	return &TokenCodec{secret: secret, ttl: ttl}
}

// Mint creates a signed token for the given user and session.
func (c *TokenCodec) Mint(userID uint64, sessionID ksid.ID) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(userID, 10),
		"sid": strconv.FormatUint(uint64(sessionID), 10),
		"iat": now.Unix(),
		"exp": now.Add(c.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

var errInvalidToken = errors.New("invalid session token")

// Parse verifies the token signature and extracts the user and session
// identifiers. Any defect (bad signature, wrong algorithm, missing or
// non-numeric claims, expiry) yields an error; callers map it to an
// unauthenticated outcome.
func (c *TokenCodec) Parse(tokenString string) (userID uint64, sessionID ksid.ID, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, 0, errInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, 0, errInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, 0, errInvalidToken
	}
	userID, err = strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return 0, 0, errInvalidToken
	}
	sid, ok := claims["sid"].(string)
	if !ok {
		return 0, 0, errInvalidToken
	}
	rawSID, err := strconv.ParseUint(sid, 10, 64)
	if err != nil {
		return 0, 0, errInvalidToken
	}
	return userID, ksid.ID(rawSID), nil
}
