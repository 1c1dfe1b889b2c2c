package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coursedesk/coursedesk-api/internal/models"
	"github.com/coursedesk/coursedesk-api/internal/oauth"
	appErrors "github.com/coursedesk/coursedesk-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByGoogleIDOrEmail(ctx context.Context, googleID, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLoginProfile(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

// UserService owns the identity store: accounts are created on first
// successful login and reconciled on every subsequent one.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// FindOrCreate resolves a verified external identity to a local account,
// provisioning one with the default role on first login. An existing account
// found by email alone gets its provider subject attached; profile fields are
// refreshed only when the provider reports something different.
func (s *UserService) FindOrCreate(ctx context.Context, identity *oauth.ExternalIdentity) (*models.User, error) {
	user, err := s.repo.FindByGoogleIDOrEmail(ctx, identity.Subject, identity.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve identity")
		}

		user = &models.User{
			Email:      identity.Email,
			GoogleID:   sql.NullString{String: identity.Subject, Valid: true},
			GivenName:  identity.GivenName,
			FamilyName: identity.FamilyName,
			AvatarURL:  identity.AvatarURL,
			Role:       models.RoleStudent,
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision account")
		}
		s.logger.Info("provisioned new account",
			zap.String("user_id", user.ID),
			zap.String("email", user.Email),
		)
		return user, nil
	}

	dirty := false
	if !user.GoogleID.Valid || user.GoogleID.String != identity.Subject {
		user.GoogleID = sql.NullString{String: identity.Subject, Valid: true}
		dirty = true
	}
	if identity.GivenName != "" && user.GivenName != identity.GivenName {
		user.GivenName = identity.GivenName
		dirty = true
	}
	if identity.FamilyName != "" && user.FamilyName != identity.FamilyName {
		user.FamilyName = identity.FamilyName
		dirty = true
	}
	if identity.AvatarURL != "" && user.AvatarURL != identity.AvatarURL {
		user.AvatarURL = identity.AvatarURL
		dirty = true
	}
	if dirty {
		if err := s.repo.UpdateLoginProfile(ctx, user); err != nil {
			// Stale profile fields are tolerable; the login still proceeds.
			s.logger.Warn("failed to refresh login profile", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return user, nil
}

// GetByID loads a single user.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// List returns users matching the filter with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UpdateProfile applies a partial profile update for the user.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.GivenName != nil {
		user.GivenName = *req.GivenName
	}
	if req.FamilyName != nil {
		user.FamilyName = *req.FamilyName
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return user, nil
}

// UpdateRole changes a user's role. The role string is matched
// case-insensitively against the known set.
func (s *UserService) UpdateRole(ctx context.Context, userID string, req models.UpdateRoleRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	role, ok := models.ParseRole(req.Role)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRole(ctx, userID, role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	user.Role = role

	s.logger.Info("role updated",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
	)
	return user, nil
}
