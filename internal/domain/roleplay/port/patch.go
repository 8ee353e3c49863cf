package port

import "encoding/json"

// 部分更新结构：nil 字段保持不变，非 nil 字段覆盖。

// RolePatch 角色部分更新
type RolePatch struct {
	Name          *string
	Age           *int
	ClearAge      bool
	Occupation    *string
	Description   *string
	Personality   *string
	SpeakingStyle *string
	Hobbies       *string
	Worldview     *string
	Category      *string
	Image         *string
	IsPublic      *bool
}

// Apply 将补丁应用到角色
func (p RolePatch) Apply(r *Role) {
	setString(&r.Name, p.Name)
	if p.ClearAge {
		r.Age = nil
	} else if p.Age != nil {
		age := *p.Age
		r.Age = &age
	}
	setString(&r.Occupation, p.Occupation)
	setString(&r.Description, p.Description)
	setString(&r.Personality, p.Personality)
	setString(&r.SpeakingStyle, p.SpeakingStyle)
	setString(&r.Hobbies, p.Hobbies)
	setString(&r.Worldview, p.Worldview)
	setString(&r.Category, p.Category)
	setString(&r.Image, p.Image)
	setBool(&r.IsPublic, p.IsPublic)
}

// SessionPatch 会话部分更新
type SessionPatch struct {
	RoleID        *int64  `json:"role_id,omitempty"`
	UserID        *int64  `json:"user_id,omitempty"`
	Title         *string `json:"title,omitempty"`
	Rule          *string `json:"rule,omitempty"`
	SessionsInput *string `json:"sessions_input,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

// Apply 将补丁应用到会话
func (p SessionPatch) Apply(s *ChatSession) {
	setInt64(&s.RoleID, p.RoleID)
	if p.UserID != nil {
		uid := *p.UserID
		s.UserID = &uid
	}
	setString(&s.Title, p.Title)
	setString(&s.Rule, p.Rule)
	setString(&s.SessionsInput, p.SessionsInput)
	setBool(&s.IsActive, p.IsActive)
}

// MemoryPatch 记忆部分更新
type MemoryPatch struct {
	RoleID     *int64  `json:"role_id,omitempty"`
	SessionID  *int64  `json:"session_id,omitempty"`
	Content    *string `json:"content,omitempty"`
	TokenCount *int    `json:"token_count,omitempty"`
	Section    *string `json:"section,omitempty"`
	Tags       *string `json:"tags,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
	Selected   *bool   `json:"selected,omitempty"`
}

// Apply 将补丁应用到记忆
func (p MemoryPatch) Apply(m *Memory) {
	setInt64(&m.RoleID, p.RoleID)
	setInt64(&m.SessionID, p.SessionID)
	setString(&m.Content, p.Content)
	if p.TokenCount != nil {
		m.TokenCount = *p.TokenCount
	}
	setString(&m.Section, p.Section)
	setString(&m.Tags, p.Tags)
	setBool(&m.IsActive, p.IsActive)
	setBool(&m.Selected, p.Selected)
}

// EventPatch 事件部分更新
type EventPatch struct {
	RoleID      *int64  `json:"role_id,omitempty"`
	SessionID   *int64  `json:"session_id,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
	Tags        *string `json:"tags,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	Selected    *bool   `json:"selected,omitempty"`
}

// Apply 将补丁应用到事件
func (p EventPatch) Apply(e *Event) {
	setInt64(&e.RoleID, p.RoleID)
	setInt64(&e.SessionID, p.SessionID)
	setString(&e.Title, p.Title)
	setString(&e.Description, p.Description)
	setString(&e.Date, p.Date)
	setString(&e.Tags, p.Tags)
	setBool(&e.IsActive, p.IsActive)
	setBool(&e.Selected, p.Selected)
}

// ModelAPIPatch 模型金鑰部分更新（provider 不可修改）
type ModelAPIPatch struct {
	Name     *string         `json:"name,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
	IsActive *bool           `json:"is_active,omitempty"`
}

// Apply 将补丁应用到模型金鑰
func (p ModelAPIPatch) Apply(m *ModelAPI) {
	setString(&m.Name, p.Name)
	if len(p.Config) > 0 {
		m.Config = append(json.RawMessage(nil), p.Config...)
	}
	setBool(&m.IsActive, p.IsActive)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}
