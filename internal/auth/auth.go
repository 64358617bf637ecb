package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tesouraria/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

// Service registers users and issues session tokens. Credential
// records live in the same store as the ledger, under credentials/.
type Service struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewService(st store.Store, secret string, ttl time.Duration) *Service {
	return &Service{
		store:  st,
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "tesouraria",
	}
}

func credentialPath(email string) string {
	return "credentials/" + email
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a credential record and returns the new user id.
func (s *Service) Register(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("invalid email %q", email)
	}
	if len(password) < 6 {
		return "", fmt.Errorf("password must be at least 6 characters")
	}

	_, err := s.store.ReadOnce(ctx, credentialPath(email))
	if err == nil {
		return "", ErrEmailTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("check existing credential: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	uid := uuid.NewString()
	record := map[string]any{
		"uid":           uid,
		"password_hash": string(hash),
	}
	if err := s.store.Put(ctx, credentialPath(email), record); err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}

	slog.InfoContext(ctx, "Registered user", "email", email, "uid", uid)
	return uid, nil
}

// Login checks the password and returns a signed token plus the user
// id. Unknown emails and wrong passwords report the same error.
func (s *Service) Login(ctx context.Context, email, password string) (string, string, error) {
	email = normalizeEmail(email)

	raw, err := s.store.ReadOnce(ctx, credentialPath(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", "", ErrInvalidCredentials
	}
	if err != nil {
		return "", "", fmt.Errorf("read credential: %w", err)
	}

	record, ok := raw.(map[string]any)
	if !ok {
		return "", "", ErrInvalidCredentials
	}
	uid, _ := record["uid"].(string)
	hash, _ := record["password_hash"].(string)
	if uid == "" || hash == "" {
		return "", "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", "", ErrInvalidCredentials
	}

	token, err := s.issueToken(uid)
	if err != nil {
		return "", "", fmt.Errorf("issue token: %w", err)
	}

	slog.InfoContext(ctx, "User logged in", "uid", uid)
	return token, uid, nil
}

func (s *Service) issueToken(uid string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses a token and returns the user id it was issued for.
func (s *Service) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
