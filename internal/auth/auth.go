package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"visionpanel/internal/store"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims represents the JWT claims carried in the access_token cookie.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator handles password hashing and JWT token operations.
type Authenticator struct {
	secretKey []byte
	tokenTTL  time.Duration
	users     UserStore
}

// UserStore is the subset of the store the authenticator needs.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// NewAuthenticator creates an authenticator. An empty secret gets a random
// one, which invalidates outstanding tokens on restart.
func NewAuthenticator(secret string, tokenTTL time.Duration, users UserStore) *Authenticator {
	if secret == "" {
		randomBytes := make([]byte, 32)
		rand.Read(randomBytes)
		secret = hex.EncodeToString(randomBytes)
	}
	if tokenTTL == 0 {
		tokenTTL = 30 * time.Minute
	}

	return &Authenticator{
		secretKey: []byte(secret),
		tokenTTL:  tokenTTL,
		users:     users,
	}
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate verifies the username/password pair against the store and
// returns the matching user.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*store.User, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GenerateToken creates a signed JWT for the username.
func (a *Authenticator) GenerateToken(username string) (string, time.Time, error) {
	expiresAt := time.Now().Add(a.tokenTTL)

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "visionpanel",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// CurrentUser resolves a token string to the stored user. Returns nil when
// the token is invalid or the user no longer exists.
func (a *Authenticator) CurrentUser(ctx context.Context, tokenString string) (*store.User, error) {
	claims, err := a.ValidateToken(tokenString)
	if err != nil {
		return nil, nil
	}
	return a.users.GetUserByUsername(ctx, claims.Username)
}

// TokenTTL returns the configured token lifetime.
func (a *Authenticator) TokenTTL() time.Duration {
	return a.tokenTTL
}
