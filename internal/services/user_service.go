package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/store"
)

// UserService registers accounts, checks credentials and resolves sessions.
type UserService struct {
	users    store.UserStore
	sessions *cache.LRUCache[core.Session]
	timeout  time.Duration
	hashCost int
	now      func() time.Time
}

type UserOption func(*UserService)

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) UserOption {
	return func(s *UserService) { s.hashCost = cost }
}

func WithUserStoreTimeout(d time.Duration) UserOption {
	return func(s *UserService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewUserService builds the service; sessions may be nil to disable caching.
func NewUserService(users store.UserStore, sessions *cache.LRUCache[core.Session], opts ...UserOption) *UserService {
	s := &UserService{
		users:    users,
		sessions: sessions,
		timeout:  DefaultStoreTimeout,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *UserService) Register(ctx context.Context, reg core.Registration) (core.User, error) {
	reg = reg.Normalize()
	if err := reg.Validate(); err != nil {
		return core.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.hashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return core.User{}, &core.ValidationError{Field: "password", Reason: "is too long"}
	}
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := core.User{
		ID:           uuid.NewString(),
		Name:         reg.Name,
		Email:        reg.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.users.CreateUser(callCtx, u); err != nil {
		return core.User{}, classifyStoreError(ctx, "create user", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", u.ID)
	s.remember(u)
	return u, nil
}

// Login checks credentials. Unknown emails and wrong passwords are indistinguishable.
func (s *UserService) Login(ctx context.Context, email, password string) (core.User, error) {
	email = core.NormalizeEmail(email)
	if email == "" || password == "" {
		return core.User{}, core.ErrInvalidCredentials
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	u, err := s.users.GetUserByEmail(callCtx, email)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, classifyStoreError(ctx, "get user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "Login failed", "user_id", u.ID)
		return core.User{}, core.ErrInvalidCredentials
	}
	s.remember(u)
	return u, nil
}

// ResolveSession maps a user id to a session, consulting the cache first.
func (s *UserService) ResolveSession(ctx context.Context, userID string) (core.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return core.Session{}, core.ErrUnauthenticated
	}
	if s.sessions != nil {
		if sess, ok := s.sessions.Get(userID); ok {
			return sess, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	u, err := s.users.GetUserByID(callCtx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Session{}, core.ErrUnauthenticated
	}
	if err != nil {
		return core.Session{}, classifyStoreError(ctx, "get user", err)
	}
	s.remember(u)
	return u.Session(), nil
}

func (s *UserService) remember(u core.User) {
	if s.sessions != nil {
		s.sessions.Set(u.ID, u.Session())
	}
}
