package service

import (
	"context"
	"errors"
	"fmt"

	"chatio/config"
	"chatio/internal/auth"
	"chatio/internal/domain"
	"chatio/internal/models"
	"chatio/internal/repository"
	"chatio/pkg/namegen"

	"go.uber.org/zap"
)

const guestNameAttempts = 5

var ErrUsernameExhausted = errors.New("could not pick a free guest username")

// AuthService issues guest identities. Credential checks for registered users
// belong to the identity service.
type AuthService struct {
	cfg     *config.Config
	users   repository.UserStore
	log     *zap.Logger
	newName func() string
}

func NewAuthService(cfg *config.Config, users repository.UserStore, log *zap.Logger) *AuthService {
	return &AuthService{cfg: cfg, users: users, log: log.Named("auth"), newName: namegen.Guest}
}

// CreateGuest stores a GUEST user with a random username and returns it with an
// access token. gender may be empty.
func (s *AuthService) CreateGuest(ctx context.Context, gender string) (*models.User, string, error) {
	role, err := s.users.FindRoleByName(ctx, domain.RoleGuest)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: %s", ErrRoleMissing, domain.RoleGuest)
	}
	if err != nil {
		return nil, "", err
	}
	u := &models.User{UserRoleID: &role.ID, IsActive: true}
	if gender != "" {
		g, err := s.users.FindGenderByName(ctx, gender)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: unknown gender %s", ErrValidation, gender)
		}
		if err != nil {
			return nil, "", err
		}
		u.UserGenderID = &g.ID
	}

	for i := 0; i < guestNameAttempts; i++ {
		name := s.newName()
		_, err := s.users.GetByUsername(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, "", err
		}
		u.Username = name
		break
	}
	if u.Username == "" {
		return nil, "", ErrUsernameExhausted
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, "", fmt.Errorf("create guest: %w", err)
	}
	u.UserRole = role

	token, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Username, domain.RoleGuest)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("guest created", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return u, token, nil
}

// Identify loads the active user behind an authenticated id.
func (s *AuthService) Identify(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
