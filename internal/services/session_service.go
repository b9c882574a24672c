// internal/services/session_service.go
package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/odissey/internal/errors"
	"github.com/Corphon/odissey/internal/models"
	"github.com/Corphon/odissey/internal/storage"
)

// 世界不存在时返回给调用方的兜底文本
const (
	FallbackOpening    = "Welcome to your adventure!"
	FallbackWorldTitle = "Unknown World"
)

// CreateSessionResult 创建会话的结果
type CreateSessionResult struct {
	SessionID      string `json:"session_id"`
	InitialMessage string `json:"initial_message"`
	WorldTitle     string `json:"world_title"`

	// Opening 写入的开场白记录；世界不存在时为 nil
	Opening *models.ChatLog `json:"-"`
}

// TurnResult 一次交互回合的结果
type TurnResult struct {
	NarratorResponse string `json:"narrator_response"`
	SessionID        string `json:"session_id"`

	UserEntry     *models.ChatLog `json:"-"`
	NarratorEntry *models.ChatLog `json:"-"`
}

// SessionService 会话管理：创建会话、处理回合
// 不记录日志也不重试，所有失败以 AppError 返回
type SessionService struct {
	store  storage.Store
	engine *NarrativeEngine
	locks  *LockManager
}

// NewSessionService 创建会话服务；locks 为 nil 时同一会话的回合不做串行化
func NewSessionService(store storage.Store, engine *NarrativeEngine, locks *LockManager) *SessionService {
	if engine == nil {
		engine = NewNarrativeEngine(nil)
	}
	return &SessionService{
		store:  store,
		engine: engine,
		locks:  locks,
	}
}

// CreateSession 绑定用户、世界和人格快照，并写入开场白
// 会话行总是先写入；世界不存在时不回滚，也不写开场白
func (s *SessionService) CreateSession(ctx context.Context, userID, worldID string, personality models.Personality) (*CreateSessionResult, error) {
	session := &models.Session{
		ID:                  uuid.NewString(),
		UserID:              userID,
		WorldID:             worldID,
		PersonalitySnapshot: personality.Clone(),
	}
	if err := s.store.InsertSession(ctx, session); err != nil {
		return nil, apperrors.NewStoreError("Failed to create session", err)
	}

	world, err := s.store.SelectWorldByID(ctx, worldID)
	if errors.Is(err, storage.ErrNotFound) {
		return &CreateSessionResult{
			SessionID:      session.ID,
			InitialMessage: FallbackOpening,
			WorldTitle:     FallbackWorldTitle,
		}, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to create session", err)
	}

	opening := s.engine.GenerateOpening(world.Title, world.Artifacts, session.PersonalitySnapshot)
	entry := models.NewNarratorLog(session.ID, opening, models.PromptStoryOpening)
	if err := s.store.InsertChatLog(ctx, entry); err != nil {
		return nil, apperrors.NewStoreError("Failed to create session", err)
	}

	return &CreateSessionResult{
		SessionID:      session.ID,
		InitialMessage: opening,
		WorldTitle:     world.Title,
		Opening:        entry,
	}, nil
}

// ProcessTurn 处理一次用户输入
// 用户发言先落库，即使会话不存在也会留下这条记录
func (s *SessionService) ProcessTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	if s.locks == nil {
		return s.processTurn(ctx, sessionID, message)
	}

	var result *TurnResult
	err := s.locks.ExecuteWithSessionLock(sessionID, func() error {
		var err error
		result, err = s.processTurn(ctx, sessionID, message)
		return err
	})
	return result, err
}

func (s *SessionService) processTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	userEntry := models.NewUserLog(sessionID, message)
	if err := s.store.InsertChatLog(ctx, userEntry); err != nil {
		return nil, apperrors.NewStoreError("Failed to process interaction", err)
	}

	sc, err := s.store.SelectSessionWithWorld(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("Session not found", err)
	}
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to process interaction", err)
	}

	// 人格和素材只取会话创建时存下的版本
	reply := s.engine.GenerateTurn(message, sc.Artifacts, sc.PersonalitySnapshot)
	narratorEntry := models.NewNarratorLog(sessionID, reply, models.PromptBasicInteraction)
	if err := s.store.InsertChatLog(ctx, narratorEntry); err != nil {
		return nil, apperrors.NewStoreError("Failed to process interaction", err)
	}

	return &TurnResult{
		NarratorResponse: reply,
		SessionID:        sessionID,
		UserEntry:        userEntry,
		NarratorEntry:    narratorEntry,
	}, nil
}

// Transcript 返回会话的全部记录（时间升序）
func (s *SessionService) Transcript(ctx context.Context, sessionID string) ([]models.ChatLog, error) {
	logs, err := s.store.SelectChatLogs(ctx, sessionID)
	if err != nil {
		return nil, apperrors.NewStoreError("Failed to load transcript", err)
	}
	return logs, nil
}
