package utils // package utils holds token and secret helpers for the admin surface

import (
    "crypto/rand"  // secure random bytes for token ids
    "encoding/hex" // hex encoding of the token id
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AdminToken is a signed admin session token and its expiry.
type AdminToken struct {
    Token string    `json:"token"`      // the serialized JWT string
    Exp   time.Time `json:"expires_at"` // the UTC expiration time
}

// NewAdminToken signs an HS256 JWT for an administrator session.  The
// claims carry the subject, the role checked by RequireRole, the expiry,
// the issue time and a random token id.
func NewAdminToken(secret, subject, role string, ttlMin int) (AdminToken, error) {
    if secret == "" {
        return AdminToken{}, errors.New("jwt secret not configured")
    }
    if ttlMin <= 0 {
        ttlMin = 60
    }
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    jti, err := randomHex(16)
    if err != nil {
        return AdminToken{}, err
    }
    claims := jwt.MapClaims{
        "sub":  subject,
        "role": role,
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
        "jti":  jti,
    }
    // HS256 with the shared secret; JWTAuth rejects any other method.
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AdminToken{}, err
    }
    return AdminToken{Token: signed, Exp: exp}, nil
}

// randomHex returns n bytes of crypto/rand output, hex encoded.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
