// internal/services/world_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/odissey/internal/errors"
	"github.com/Corphon/odissey/internal/models"
	"github.com/Corphon/odissey/internal/storage"
)

// CreateWorldRequest 创建世界的输入
type CreateWorldRequest struct {
	CreatorID      *string         `json:"creator_id" yaml:"creator_id"`
	Title          *string         `json:"title" yaml:"title"`
	Description    *string         `json:"description" yaml:"description"`
	Genre          *string         `json:"genre" yaml:"genre"`
	Artifacts      json.RawMessage `json:"artifacts" yaml:"-"`
	PrivacyFlag    *string         `json:"privacy_flag" yaml:"privacy_flag"`
	ThumbnailURL   *string         `json:"thumbnail_url" yaml:"thumbnail_url"`
	PreviewContent *string         `json:"preview_content" yaml:"preview_content"`

	// 演示世界相关字段，仅在 IsDemo 为 true 时使用
	IsDemo            bool               `json:"is_demo" yaml:"is_demo"`
	TargetPersonality models.Personality `json:"target_personality" yaml:"target_personality"`
	AccessLevel       *string            `json:"access_level" yaml:"access_level"`
}

// CreateWorldResult 创建世界的结果
type CreateWorldResult struct {
	WorldID   string           `json:"world_id"`
	Title     string           `json:"title"`
	Artifacts models.Artifacts `json:"artifacts"`

	DemoID string `json:"demo_id,omitempty"`
}

// WorldService 世界与演示世界
type WorldService struct {
	store storage.Store
}

// NewWorldService 创建世界服务
func NewWorldService(store storage.Store) *WorldService {
	return &WorldService{store: store}
}

// CreateWorld 写入世界；IsDemo 时额外写入演示记录
func (s *WorldService) CreateWorld(ctx context.Context, req CreateWorldRequest) (*CreateWorldResult, error) {
	world := &models.World{
		ID:             uuid.NewString(),
		CreatorID:      req.CreatorID,
		Title:          stringOr(req.Title, models.DefaultWorldTitle),
		Description:    stringOr(req.Description, ""),
		Genre:          stringOr(req.Genre, models.DefaultWorldGenre),
		Artifacts:      models.ParseArtifacts(req.Artifacts),
		PrivacyFlag:    stringOr(req.PrivacyFlag, models.PrivacyPublic),
		ThumbnailURL:   req.ThumbnailURL,
		PreviewContent: req.PreviewContent,
	}
	if err := s.store.InsertWorld(ctx, world); err != nil {
		return nil, apperrors.NewStoreError("Failed to create world", err)
	}

	result := &CreateWorldResult{
		WorldID:   world.ID,
		Title:     world.Title,
		Artifacts: world.Artifacts,
	}

	if req.IsDemo {
		target := req.TargetPersonality.Clone()
		demo := &models.DemoWorld{
			ID:                uuid.NewString(),
			WorldID:           world.ID,
			PreviewContent:    stringOr(req.PreviewContent, ""),
			TargetPersonality: target,
			AccessLevel:       stringOr(req.AccessLevel, models.AccessLevelPublic),
		}
		if err := s.store.InsertDemoWorld(ctx, demo); err != nil {
			return nil, apperrors.NewStoreError("Failed to create world", err)
		}
		result.DemoID = demo.ID
	}

	return result, nil
}

// GetWorld 按ID读取世界
func (s *WorldService) GetWorld(ctx context.Context, worldID string) (*models.World, error) {
	world, err := s.store.SelectWorldByID(ctx, worldID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("World not found", err)
	}
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to get world", err)
	}
	return world, nil
}

// ListWorlds 最近创建的公开世界
func (s *WorldService) ListWorlds(ctx context.Context) ([]models.WorldSummary, error) {
	worlds, err := s.store.SelectPublicWorlds(ctx, storage.PublicWorldListLimit)
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to get worlds", err)
	}
	return worlds, nil
}

// ListDemoWorlds 公开的演示世界
func (s *WorldService) ListDemoWorlds(ctx context.Context) ([]models.DemoWorldSummary, error) {
	demos, err := s.store.SelectPublicDemoWorlds(ctx, storage.DemoWorldListLimit)
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to get demo worlds", err)
	}
	return demos, nil
}

func stringOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
