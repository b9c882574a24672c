// internal/models/user.go
package models

import "time"

const (
	// DefaultAuthType 未指定认证方式时的默认值
	DefaultAuthType = "guest"
	// AssessmentMethodPreferenceDiscovery 创建用户时随附的人格测评方式
	AssessmentMethodPreferenceDiscovery = "preference_discovery"
	// DemoRoutingAge 低于该年龄（或未提供年龄）的用户先进入演示世界
	DemoRoutingAge = 13
)

// User 用户档案，创建后不再修改
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Age       *int      `json:"age,omitempty"`
	Gender    *string   `json:"gender,omitempty"`
	AuthType  string    `json:"auth_type"`
	CreatedAt time.Time `json:"created_at"`
}

// PersonalityAssessment 用户的人格测评记录
type PersonalityAssessment struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	TraitScores      Personality `json:"trait_scores"`
	AssessmentMethod string      `json:"assessment_method"`
	CreatedAt        time.Time   `json:"created_at"`
}

// RouteToDemo 儿童（或年龄未知）先路由到演示世界
func (u *User) RouteToDemo() bool {
	return u.Age == nil || *u.Age < DemoRoutingAge
}
