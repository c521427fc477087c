// internal/domain/operator/service.go
package operator

import (
	"fmt"
	"time"

	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"github.com/your-org/warehouse-backend/internal/pkg/auth"
	"gorm.io/gorm"
)

// Service handles operator account business logic
type Service struct {
	db              *gorm.DB
	config          *config.Config
	passwordManager *auth.PasswordManager
	jwtManager      *auth.JWTManager
}

// NewService creates a new operator service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:              db,
		config:          cfg,
		passwordManager: auth.NewPasswordManager(cfg),
		jwtManager:      auth.NewJWTManager(cfg),
	}
}

// CreateRequest represents operator account creation data
type CreateRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Role      Role   `json:"role"`
}

// LoginRequest represents operator login data
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	Operator     *Operator `json:"operator"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
}

// Create registers a new operator account. Only admins call this; the
// handler enforces that.
func (s *Service) Create(req *CreateRequest) (*Operator, error) {
	var existing Operator
	if err := s.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("%w: operator with this email already exists", shared.ErrInvalidInput)
	}

	role := req.Role
	switch role {
	case RoleAdmin, RoleClerk, RoleViewer:
	case "":
		role = RoleClerk
	default:
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrInvalidInput, req.Role)
	}

	hashedPassword, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	op := &Operator{
		Email:     req.Email,
		Password:  hashedPassword,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		IsActive:  true,
	}
	if err := s.db.Create(op).Error; err != nil {
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}

	op.Password = ""
	return op, nil
}

// Login authenticates an operator and issues a token pair
func (s *Service) Login(req *LoginRequest) (*AuthResponse, error) {
	var op Operator
	if err := s.db.Where("email = ? AND is_active = ?", req.Email, true).First(&op).Error; err != nil {
		return nil, fmt.Errorf("invalid email or password")
	}

	if err := s.passwordManager.VerifyPassword(req.Password, op.Password); err != nil {
		return nil, fmt.Errorf("invalid email or password")
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(op.ID, op.Email, op.IsAdmin())
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(op.ID, op.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	op.LastLoginAt = &now
	s.db.Save(&op)

	op.Password = ""
	return &AuthResponse{
		Operator:     &op,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.JWT.AccessTokenExpiry.Seconds()),
	}, nil
}

// RefreshToken exchanges a valid refresh token for a new token pair
func (s *Service) RefreshToken(refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	var op Operator
	if err := s.db.Where("id = ? AND is_active = ?", claims.UserID, true).First(&op).Error; err != nil {
		return nil, fmt.Errorf("operator not found or inactive")
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(op.ID, op.Email, op.IsAdmin())
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	newRefreshToken, err := s.jwtManager.GenerateRefreshToken(op.ID, op.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	op.Password = ""
	return &AuthResponse{
		Operator:     &op,
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    int64(s.config.JWT.AccessTokenExpiry.Seconds()),
	}, nil
}

// GetByID retrieves an operator account
func (s *Service) GetByID(id uint) (*Operator, error) {
	var op Operator
	if err := s.db.First(&op, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve operator: %w", err)
	}
	op.Password = ""
	return &op, nil
}
