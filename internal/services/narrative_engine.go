// internal/services/narrative_engine.go
package services

import (
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/Corphon/odissey/internal/models"
)

// 人格阈值：分数严格大于该值才生效
const traitThreshold = 0.7

const (
	excitementClause  = " Your heart races with excitement for the adventure ahead."
	imaginationClause = " Your imagination sparkles with possibilities."
	openingClosing    = " What would you like to do?"

	braveryLine        = "Your bravery inspires those around you. The path ahead becomes clearer."
	creativeSpiritLine = "Your creative spirit unlocks new possibilities in this magical world."
)

var genericTurnLines = []string{
	"Your action echoes through the world around you. Something stirs in response...",
	"The world shifts subtly as you make your choice. What happens next?",
	"Your decision creates ripples of change. The story continues to unfold...",
	"The adventure takes an unexpected turn based on your actions.",
	"Your courage and creativity guide the story in a new direction.",
}

// RandomSource 旁白候选的选择器，IntN 返回 [0, n) 内的整数
type RandomSource interface {
	IntN(n int) int
}

// lockedRand 让 *rand.Rand 可以被多个请求共享
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// NewRandomSource 用 crypto/rand 的种子创建随机源
func NewRandomSource() RandomSource {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("读取随机种子失败: %v", err))
	}
	return &lockedRand{r: rand.New(rand.NewChaCha8(seed))}
}

// NarrativeEngine 根据世界素材和人格快照生成旁白
// 没有任何 I/O，唯一的不确定性来自注入的 RandomSource
type NarrativeEngine struct {
	rng RandomSource
}

// NewNarrativeEngine 创建叙事引擎，rng 为 nil 时使用默认随机源
func NewNarrativeEngine(rng RandomSource) *NarrativeEngine {
	if rng == nil {
		rng = NewRandomSource()
	}
	return &NarrativeEngine{rng: rng}
}

// GenerateOpening 生成会话开场白，结果只由输入决定
func (e *NarrativeEngine) GenerateOpening(worldTitle string, artifacts models.Artifacts, personality models.Personality) string {
	var b strings.Builder
	b.WriteString("Welcome to ")
	b.WriteString(worldTitle)
	b.WriteString("! You find yourself")
	if len(artifacts.Settings) > 0 {
		b.WriteString(" in ")
		b.WriteString(entryText(artifacts.Settings[0]))
	}
	b.WriteString(".")
	if len(artifacts.Characters) > 0 {
		b.WriteString(" You notice ")
		b.WriteString(entryText(artifacts.Characters[0]))
		b.WriteString(" nearby.")
	}

	// adventurous 优先于 creative
	switch {
	case personality.Score("adventurous") > traitThreshold:
		b.WriteString(excitementClause)
	case personality.Score("creative") > traitThreshold:
		b.WriteString(imaginationClause)
	}

	b.WriteString(openingClosing)
	return b.String()
}

// TurnCandidates 返回某个人格对应的旁白候选池（5、6 或 7 条）
func (e *NarrativeEngine) TurnCandidates(personality models.Personality) []string {
	pool := make([]string, len(genericTurnLines), len(genericTurnLines)+2)
	copy(pool, genericTurnLines)
	if personality.Score("brave") > traitThreshold {
		pool = append(pool, braveryLine)
	}
	if personality.Score("creative") > traitThreshold {
		pool = append(pool, creativeSpiritLine)
	}
	return pool
}

// GenerateTurn 从候选池中均匀选一条作为旁白回复
// 用户消息和素材内容目前不参与生成
func (e *NarrativeEngine) GenerateTurn(userMessage string, artifacts models.Artifacts, personality models.Personality) string {
	pool := e.TurnCandidates(personality)
	idx := e.rng.IntN(len(pool))
	if idx < 0 || idx >= len(pool) {
		idx = 0
	}
	return pool[idx]
}

// entryText 素材条目的展示文本：字符串原样使用，对象取 name，其余序列化为 JSON
func entryText(entry interface{}) string {
	switch v := entry.(type) {
	case string:
		return v
	case map[string]interface{}:
		if name, ok := v["name"].(string); ok {
			return name
		}
	case nil:
		return ""
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprint(entry)
	}
	return string(data)
}
