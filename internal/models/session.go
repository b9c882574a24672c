// internal/models/session.go
package models

import "time"

// Speaker 发言方
type Speaker string

const (
	SpeakerUser     Speaker = "user"
	SpeakerNarrator Speaker = "narrator"
)

// 旁白生成策略标签
const (
	PromptStoryOpening     = "story_opening"
	PromptBasicInteraction = "basic_interaction"
)

// Session 一次游玩：用户 + 世界 + 创建时的人格快照
// 快照在会话生命周期内固定，不再从测评表读取
type Session struct {
	ID                  string      `json:"id"`
	UserID              string      `json:"user_id"`
	WorldID             string      `json:"world_id"`
	PersonalitySnapshot Personality `json:"personality_snapshot"`
	CreatedAt           time.Time   `json:"created_at"`
}

// ChatLog 会话记录中的一条，只追加
type ChatLog struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Speaker          Speaker   `json:"speaker"`
	Content          string    `json:"content"`
	SystemPromptUsed *string   `json:"system_prompt_used,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// SessionContext 会话联表世界后的叙事上下文
type SessionContext struct {
	SessionID           string      `json:"session_id"`
	PersonalitySnapshot Personality `json:"personality_snapshot"`
	WorldTitle          string      `json:"world_title"`
	Artifacts           Artifacts   `json:"artifacts"`
}

// Clone 深拷贝人格快照和素材包
func (sc *SessionContext) Clone() *SessionContext {
	out := *sc
	out.PersonalitySnapshot = sc.PersonalitySnapshot.Clone()
	out.Artifacts = sc.Artifacts.Clone()
	return &out
}

// NewNarratorLog 构造旁白记录
func NewNarratorLog(sessionID, content, prompt string) *ChatLog {
	return &ChatLog{
		SessionID:        sessionID,
		Speaker:          SpeakerNarrator,
		Content:          content,
		SystemPromptUsed: &prompt,
	}
}

// NewUserLog 构造用户发言记录，不带生成策略标签
func NewUserLog(sessionID, content string) *ChatLog {
	return &ChatLog{
		SessionID: sessionID,
		Speaker:   SpeakerUser,
		Content:   content,
	}
}
