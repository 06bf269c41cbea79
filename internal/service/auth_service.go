package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pvs_monitor/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

// Domain errors for auth flows.
var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidToken    = errors.New("invalid token")
	ErrUserExists      = errors.New("user already exists")
)

type AuthOptions struct {
	SigningKey string
	TokenTTL   time.Duration
}

// AuthService issues and checks API tokens for operators.
type AuthService struct {
	authRepo repository.Authorization
	key      []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(repo repository.Authorization, opts AuthOptions) *AuthService {
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &AuthService{
		authRepo: repo,
		key:      []byte(opts.SigningKey),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SignUp hashes password and creates a new operator.
func (s *AuthService) SignUp(ctx context.Context, username, password string) (int, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, errors.New("username is empty")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("invalid password: %w", err)
	}
	existing, err := s.authRepo.GetByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, ErrUserExists
	}
	return s.authRepo.Create(ctx, username, hash)
}

type Claims struct {
	jwt.RegisteredClaims
	UserID int `json:"user_id"`
}

// GenerateToken validates credentials and returns a signed JWT.
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (string, error) {
	u, err := s.authRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUserNotFound
	}
	if err := verifyPassword(u.PasswordHash, password); err != nil {
		return "", ErrInvalidPassword
	}
	return s.issueToken(u.ID)
}

// ParseToken returns the user ID carried by a valid token.
func (s *AuthService) ParseToken(accessToken string) (int, error) {
	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

func hashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func verifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func (s *AuthService) issueToken(userID int) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID: userID,
	})
	return token.SignedString(s.key)
}
