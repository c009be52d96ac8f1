package utils // package utils provides helpers for token creation and hashing

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/cafeteria-procurement/internal/config"
	"github.com/iliyamo/cafeteria-procurement/internal/model"
)

// ErrInvalidToken is returned for every token that fails to verify,
// whatever the underlying cause.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of both token kinds.  Refresh tokens additionally
// carry a random ID (jti) so two refresh tokens are never equal.
type Claims struct {
	UserID uint64 `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts the claims into the request identity.
func (c Claims) Principal() model.Principal {
	return model.Principal{ID: c.UserID, Email: c.Email, Role: c.Role}
}

// TokenPair is returned to clients after register, login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.  The two
// kinds use distinct secrets so a leaked access secret cannot mint refresh
// tokens and vice versa.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer builds an issuer from the auth configuration.
func NewTokenIssuer(cfg config.AuthConfig) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// WithClock replaces the time source used for issuing and verifying.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	i.now = now
	return i
}

// IssuePair mints a fresh access/refresh pair for p.
func (i *TokenIssuer) IssuePair(p model.Principal) (TokenPair, error) {
	now := i.now().UTC()
	accessExp := now.Add(i.accessTTL)
	access, err := i.sign(i.accessSecret, p, now, accessExp, "")
	if err != nil {
		return TokenPair{}, err
	}
	refreshExp := now.Add(i.refreshTTL)
	refresh, err := i.sign(i.refreshSecret, p, now, refreshExp, uuid.NewString())
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *TokenIssuer) sign(secret []byte, p model.Principal, iat, exp time.Time, jti string) (string, error) {
	claims := Claims{
		UserID: p.ID,
		Email:  p.Email,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(p.ID, 10),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAccess verifies an access token.
func (i *TokenIssuer) ParseAccess(raw string) (Claims, error) {
	return i.parse(raw, i.accessSecret)
}

// ParseRefresh verifies a refresh token.
func (i *TokenIssuer) ParseRefresh(raw string) (Claims, error) {
	return i.parse(raw, i.refreshSecret)
}

func (i *TokenIssuer) parse(raw string, secret []byte) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid || claims.UserID == 0 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
