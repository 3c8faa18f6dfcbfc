package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marginkit/challenge-go/internal/content"
	"github.com/marginkit/challenge-go/internal/crypto"
	"github.com/marginkit/challenge-go/internal/model"
	"github.com/marginkit/challenge-go/internal/repository"
	"github.com/marginkit/challenge-go/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrNameRequired       = errors.New("name is required")
	ErrEmailTaken         = errors.New("email already taken")
)

// UserStore persists participant accounts.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	UpdateAuthHash(ctx context.Context, id, hash string) error
}

// AuthService handles authentication and announces session changes on the hub.
type AuthService struct {
	logger    *slog.Logger
	users     UserStore
	hub       *session.Hub
	jwtSecret string
	jwtExpiry time.Duration
	now       func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(logger *slog.Logger, users UserStore, hub *session.Hub, secret string, expiry time.Duration) *AuthService {
	return &AuthService{
		logger:    logger.With("service", "auth"),
		users:     users,
		hub:       hub,
		jwtSecret: secret,
		jwtExpiry: expiry,
		now:       time.Now,
	}
}

// Register creates a participant whose challenge starts today and signs them in.
func (s *AuthService) Register(ctx context.Context, req model.CreateUserRequest) (model.AuthResponse, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" {
		return model.AuthResponse{}, ErrEmailRequired
	}
	if req.Password == "" {
		return model.AuthResponse{}, ErrPasswordRequired
	}
	if req.Name == "" {
		return model.AuthResponse{}, ErrNameRequired
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return model.AuthResponse{}, err
	}

	// The start date is the device's calendar day, the same day CurrentDay
	// counts from.
	now := s.now()
	user := &model.User{
		Email:              req.Email,
		Name:               req.Name,
		Role:               model.RoleParticipant,
		ChallengeStartDate: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		AuthHash:           hash,
		CreatedAt:          now.UTC(),
		UpdatedAt:          now.UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.AuthResponse{}, ErrEmailTaken
		}
		return model.AuthResponse{}, err
	}

	return s.signIn(ctx, user)
}

// Login authenticates a user, starts a new session and returns its token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.AuthResponse{}, ErrInvalidCredentials
		}
		return model.AuthResponse{}, err
	}

	match, err := crypto.VerifyPassword(req.Password, user.AuthHash)
	if err != nil {
		return model.AuthResponse{}, err
	}
	if !match {
		return model.AuthResponse{}, ErrInvalidCredentials
	}

	if crypto.NeedsRehash(user.AuthHash, crypto.DefaultHashParams()) {
		s.upgradeHash(ctx, user.ID, req.Password)
	}

	return s.signIn(ctx, user)
}

// Logout ends sessionID if it is the active session. Logging out of a
// session that already ended is a no-op.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) {
	latest, ok := s.hub.Latest()
	if !ok || latest.Kind != session.SignedIn || latest.SessionID != sessionID {
		return
	}
	s.hub.Publish(session.Event{Kind: session.SignedOut, UserID: userID})
	s.logger.InfoContext(ctx, "signed out", "user_id", userID, "session_id", sessionID)
}

// GetUser retrieves a user by ID and returns safe user data.
func (s *AuthService) GetUser(ctx context.Context, userID string) (model.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.UserResponse{}, err
	}
	return s.userResponse(user), nil
}

func (s *AuthService) signIn(ctx context.Context, user *model.User) (model.AuthResponse, error) {
	sessionID := uuid.NewString()
	token, err := crypto.GenerateToken(user.ID, sessionID, s.jwtSecret, s.jwtExpiry)
	if err != nil {
		return model.AuthResponse{}, err
	}

	s.hub.Publish(session.Event{
		Kind:      session.SignedIn,
		SessionID: sessionID,
		UserID:    user.ID,
		Profile:   user.Profile(),
	})
	s.logger.InfoContext(ctx, "signed in", "user_id", user.ID, "session_id", sessionID)

	return model.AuthResponse{
		Token: token,
		User:  s.userResponse(user),
	}, nil
}

func (s *AuthService) upgradeHash(ctx context.Context, userID, password string) {
	hash, err := crypto.HashPassword(password)
	if err == nil {
		err = s.users.UpdateAuthHash(ctx, userID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "upgrading password hash failed", "user_id", userID, "error", err)
	}
}

func (s *AuthService) userResponse(user *model.User) model.UserResponse {
	return model.UserResponse{
		ID:                 user.ID,
		Email:              user.Email,
		Name:               user.Name,
		Role:               user.Role,
		CompanyID:          user.CompanyID,
		ChallengeStartDate: user.ChallengeStartDate.Format("2006-01-02"),
		CurrentDay:         content.CurrentDay(user.ChallengeStartDate, s.now()),
		CreatedAt:          user.CreatedAt,
	}
}
