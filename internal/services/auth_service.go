package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/Canvass/internal/models"
)

type AuthStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	// AddUser reports false when the email is already registered.
	AddUser(ctx context.Context, u *models.User) (bool, error)
}

type TokenSigner func(uid, email, name string, ttl time.Duration) (string, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func() string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	AccessToken string       `json:"accessToken"`
	User        *models.User `json:"user"`
}

var (
	errEmailTaken     = &ServiceError{Code: ErrorConflict, Reason: ReasonEmailTaken, Message: "email already registered"}
	errBadCredentials = &ServiceError{Code: ErrorUnauthorized, Reason: ReasonBadCredentials, Message: "invalid credentials"}
)

func NewAuthService(store AuthStore, signer TokenSigner, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &AuthService{
		store:     store,
		now:       utcNow,
		idGen:     defaultID,
		signToken: signer,
		tokenTTL:  ttl,
	}
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = models.NormalizeEmail(email)
	if name == "" || email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("name/email/password required")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, errEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{ID: s.idGen(), Name: name, Email: email, PassHash: hash, CreatedAt: s.now()}
	ok, err := s.store.AddUser(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("add user: %w", err)
	}
	if !ok {
		return nil, errEmailTaken
	}
	return s.issue(u)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = models.NormalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, errBadCredentials
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	return s.issue(u)
}

func (s *AuthService) issue(u *models.User) (*AuthResult, error) {
	token, err := s.signToken(u.ID, u.Email, u.Name, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{AccessToken: token, User: u}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
