// internal/services/user_service.go
package services

import (
	"context"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/odissey/internal/errors"
	"github.com/Corphon/odissey/internal/models"
	"github.com/Corphon/odissey/internal/storage"
)

// CreateUserRequest 创建用户的输入，nil 字段使用默认值
type CreateUserRequest struct {
	Name     *string `json:"name"`
	Age      *int    `json:"age"`
	Gender   *string `json:"gender"`
	AuthType *string `json:"auth_type"`

	// Personality 非 nil 时同时写入一条人格测评
	Personality models.Personality `json:"personality"`
}

// CreateUserResult 创建用户的结果
type CreateUserResult struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	RouteToDemo bool   `json:"route_to_demo"`

	User *models.User `json:"-"`
}

// UserService 处理用户档案
type UserService struct {
	store storage.Store
}

// NewUserService 创建用户服务
func NewUserService(store storage.Store) *UserService {
	return &UserService{store: store}
}

// CreateUser 创建用户，可附带初始人格测评
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*CreateUserResult, error) {
	userID := uuid.NewString()

	user := &models.User{
		ID:       userID,
		Name:     "User_" + userID[:8],
		Age:      req.Age,
		Gender:   req.Gender,
		AuthType: models.DefaultAuthType,
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.AuthType != nil {
		user.AuthType = *req.AuthType
	}

	if err := s.store.InsertUser(ctx, user); err != nil {
		return nil, apperrors.NewStoreError("Failed to create user", err)
	}

	if req.Personality != nil {
		assessment := &models.PersonalityAssessment{
			ID:               uuid.NewString(),
			UserID:           userID,
			TraitScores:      req.Personality.Clone(),
			AssessmentMethod: models.AssessmentMethodPreferenceDiscovery,
		}
		if err := s.store.InsertPersonalityAssessment(ctx, assessment); err != nil {
			return nil, apperrors.NewStoreError("Failed to create user", err)
		}
	}

	return &CreateUserResult{
		UserID:      userID,
		Name:        user.Name,
		RouteToDemo: user.RouteToDemo(),
		User:        user,
	}, nil
}
