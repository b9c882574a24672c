// internal/storage/store.go
package storage

import (
	"context"
	"errors"

	"github.com/Corphon/odissey/internal/models"
)

// ErrNotFound 按主键查询没有命中
var ErrNotFound = errors.New("record not found")

// 列表查询的默认条数
const (
	DemoWorldListLimit   = 10
	PublicWorldListLimit = 20
)

// Store 叙事核心依赖的持久层接口
// 每个写操作都是单行插入；读操作按等值条件返回
type Store interface {
	InsertUser(ctx context.Context, user *models.User) error
	InsertPersonalityAssessment(ctx context.Context, record *models.PersonalityAssessment) error
	InsertWorld(ctx context.Context, world *models.World) error
	InsertDemoWorld(ctx context.Context, demo *models.DemoWorld) error

	// SelectWorldByID 未命中时返回 ErrNotFound
	SelectWorldByID(ctx context.Context, id string) (*models.World, error)

	InsertSession(ctx context.Context, session *models.Session) error

	// SelectSessionWithWorld 会话联表世界；会话或世界缺失都返回 ErrNotFound
	SelectSessionWithWorld(ctx context.Context, sessionID string) (*models.SessionContext, error)

	// InsertChatLog 未设置 ID 时由存储层分配可按时间排序的 ID
	InsertChatLog(ctx context.Context, entry *models.ChatLog) error

	// SelectChatLogs 按创建时间升序返回会话记录
	SelectChatLogs(ctx context.Context, sessionID string) ([]models.ChatLog, error)

	SelectPublicDemoWorlds(ctx context.Context, limit int) ([]models.DemoWorldSummary, error)
	SelectPublicWorlds(ctx context.Context, limit int) ([]models.WorldSummary, error)

	Close() error
}
