package utils // package utils provides helpers for token creation and password hashing

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT together with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// Claims is what an access token carries about its user.
type Claims struct {
	UserID   uint64
	Role     string
	Username string
}

// NewAccessToken signs an HS256 JWT for a user.  sub holds the decimal
// user id; role and name are custom claims.
func NewAccessToken(secret string, c Claims, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(c.UserID, 10),
		"role": c.Role,
		"name": c.Username,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	})
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ErrInvalidToken covers every way a bearer token can be rejected.
var ErrInvalidToken = errors.New("invalid token")

// ParseAccessToken verifies signature and expiry and extracts the claims.
func ParseAccessToken(secret, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, err := mc.GetSubject()
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return Claims{}, ErrInvalidToken
	}
	role, _ := mc["role"].(string)
	name, _ := mc["name"].(string)
	return Claims{UserID: id, Role: role, Username: name}, nil
}
