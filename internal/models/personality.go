// internal/models/personality.go
package models

import "encoding/json"

// Personality 人格特质映射：特质名 -> 分数（约定 0.0-1.0，但不做范围限制）
// 用于 trait_scores、target_personality 和 personality_snapshot
type Personality map[string]interface{}

// Score 返回特质的数值分数，缺失或非数值时返回 0；布尔 true 记为 1
func (p Personality) Score(trait string) float64 {
	if p == nil {
		return 0
	}
	switch v := p[trait].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Clone 深拷贝，会话快照不能与调用方共享底层 map
func (p Personality) Clone() Personality {
	if p == nil {
		return Personality{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		out := make(Personality, len(p))
		for k, v := range p {
			out[k] = v
		}
		return out
	}
	var out Personality
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return Personality{}
	}
	return out
}
