// internal/models/world.go
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

const (
	// DefaultStoryTemplate 缺省的故事模板标签
	DefaultStoryTemplate = "basic_adventure"
	// PrivacyPublic 公开世界，其他取值一律视为非公开
	PrivacyPublic = "public"
	// AccessLevelPublic 公开的演示世界
	AccessLevelPublic = "public"

	DefaultWorldTitle = "Untitled World"
	DefaultWorldGenre = "adventure"
)

// Artifacts 世界的叙事素材包
// 每个序列的元素可以是字符串，也可以是结构化对象；
// 五个已知字段之外的顶层键原样保存在 Extra 中，序列化时一并写回
type Artifacts struct {
	Characters    []interface{} `json:"characters"`
	Settings      []interface{} `json:"settings"`
	Rules         []interface{} `json:"rules"`
	Events        []interface{} `json:"events"`
	StoryTemplate string        `json:"story_template"`

	Extra map[string]interface{} `json:"-"`
}

var knownArtifactKeys = map[string]bool{
	"characters":     true,
	"settings":       true,
	"rules":          true,
	"events":         true,
	"story_template": true,
}

// DefaultArtifacts 返回空素材包
func DefaultArtifacts() Artifacts {
	return Artifacts{
		Characters:    []interface{}{},
		Settings:      []interface{}{},
		Rules:         []interface{}{},
		Events:        []interface{}{},
		StoryTemplate: DefaultStoryTemplate,
	}
}

// Normalize 逐字段补齐缺省值
func (a Artifacts) Normalize() Artifacts {
	if a.Characters == nil {
		a.Characters = []interface{}{}
	}
	if a.Settings == nil {
		a.Settings = []interface{}{}
	}
	if a.Rules == nil {
		a.Rules = []interface{}{}
	}
	if a.Events == nil {
		a.Events = []interface{}{}
	}
	if a.StoryTemplate == "" {
		a.StoryTemplate = DefaultStoryTemplate
	}
	return a
}

// Clone 深拷贝，返回值与原素材包不共享任何切片或 map
func (a Artifacts) Clone() Artifacts {
	out := Artifacts{
		Characters:    cloneSequence(a.Characters),
		Settings:      cloneSequence(a.Settings),
		Rules:         cloneSequence(a.Rules),
		Events:        cloneSequence(a.Events),
		StoryTemplate: a.StoryTemplate,
	}
	if a.Extra != nil {
		out.Extra = cloneValue(a.Extra).(map[string]interface{})
	}
	return out
}

// MarshalJSON 已知字段补齐缺省值后与 Extra 合并输出
func (a Artifacts) MarshalJSON() ([]byte, error) {
	n := a.Normalize()
	out := make(map[string]interface{}, len(a.Extra)+len(knownArtifactKeys))
	for k, v := range a.Extra {
		out[k] = v
	}
	out["characters"] = n.Characters
	out["settings"] = n.Settings
	out["rules"] = n.Rules
	out["events"] = n.Events
	out["story_template"] = n.StoryTemplate
	return json.Marshal(out)
}

// UnmarshalJSON 与 ParseArtifacts 相同，永不失败
func (a *Artifacts) UnmarshalJSON(data []byte) error {
	*a = ParseArtifacts(data)
	return nil
}

// ParseArtifacts 解析存储或请求中的素材包
// 不是 JSON 对象时退回缺省素材包；已知字段类型不对时逐字段兜底，永不失败
func ParseArtifacts(raw []byte) Artifacts {
	var fields map[string]json.RawMessage
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &fields) != nil || fields == nil {
		return DefaultArtifacts()
	}

	a := Artifacts{
		Characters: parseSequence(fields["characters"]),
		Settings:   parseSequence(fields["settings"]),
		Rules:      parseSequence(fields["rules"]),
		Events:     parseSequence(fields["events"]),
	}
	var tmpl string
	if len(fields["story_template"]) > 0 && json.Unmarshal(fields["story_template"], &tmpl) == nil {
		a.StoryTemplate = tmpl
	}

	for key, value := range fields {
		if knownArtifactKeys[key] {
			continue
		}
		var v interface{}
		if decodeJSON(value, &v) != nil {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]interface{})
		}
		a.Extra[key] = v
	}
	return a.Normalize()
}

func parseSequence(raw json.RawMessage) []interface{} {
	var seq []interface{}
	if len(raw) == 0 || decodeJSON(raw, &seq) != nil {
		return nil
	}
	return seq
}

// decodeJSON 数字保留为 json.Number，写回时不丢精度
func decodeJSON(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func cloneSequence(seq []interface{}) []interface{} {
	if seq == nil {
		return nil
	}
	return cloneValue(seq).([]interface{})
}

// cloneValue 复制 JSON 形状的值；标量不可变，直接返回
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// World 故事模板
type World struct {
	ID             string    `json:"id"`
	CreatorID      *string   `json:"creator_id,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Genre          string    `json:"genre"`
	Artifacts      Artifacts `json:"artifacts"`
	PrivacyFlag    string    `json:"privacy_flag"`
	ThumbnailURL   *string   `json:"thumbnail_url,omitempty"`
	PreviewContent *string   `json:"preview_content,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone 深拷贝，缓存层返回给调用方的都是副本
func (w *World) Clone() *World {
	out := *w
	out.CreatorID = cloneString(w.CreatorID)
	out.ThumbnailURL = cloneString(w.ThumbnailURL)
	out.PreviewContent = cloneString(w.PreviewContent)
	out.Artifacts = w.Artifacts.Clone()
	return &out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// DemoWorld 演示世界，挂在某个 World 上
type DemoWorld struct {
	ID                string      `json:"id"`
	WorldID           string      `json:"world_id"`
	PreviewContent    string      `json:"preview_content"`
	TargetPersonality Personality `json:"target_personality"`
	AccessLevel       string      `json:"access_level"`
	CreatedAt         time.Time   `json:"created_at"`
}

// WorldSummary 公开世界列表项
type WorldSummary struct {
	WorldID        string    `json:"world_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Genre          string    `json:"genre"`
	ThumbnailURL   *string   `json:"thumbnail_url"`
	PreviewContent *string   `json:"preview_content"`
	CreatedAt      time.Time `json:"created_at"`
}

// DemoWorldSummary 演示世界列表项（演示记录与世界联表）
type DemoWorldSummary struct {
	DemoID            string      `json:"demo_id"`
	WorldID           string      `json:"world_id"`
	Title             string      `json:"title"`
	Description       string      `json:"description"`
	Genre             string      `json:"genre"`
	ThumbnailURL      *string     `json:"thumbnail_url"`
	PreviewContent    string      `json:"preview_content"`
	TargetPersonality Personality `json:"target_personality"`
}
