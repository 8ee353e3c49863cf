// Package memstore 进程内 port.Repository 实现，供单元测试和路由测试使用
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"rolechat/internal/domain/roleplay/port"
)

// Store 内存存储，语义与 PostgreSQL 实现保持一致
type Store struct {
	mu sync.Mutex

	users     map[int64]*port.User
	roles     map[int64]*port.Role
	sessions  map[int64]*port.ChatSession
	messages  map[int64]*port.ChatMessage
	memories  map[int64]*port.Memory
	events    map[int64]*port.Event
	modelAPIs map[int64]*port.ModelAPI
	seq       int64

	// Now 可替换的时钟
	Now func() time.Time
	// FailAppend 非 nil 时 AppendTurn 返回该错误
	FailAppend error
}

var _ port.Repository = (*Store)(nil)

// New 创建空存储
func New() *Store {
	return &Store{
		users:     map[int64]*port.User{},
		roles:     map[int64]*port.Role{},
		sessions:  map[int64]*port.ChatSession{},
		messages:  map[int64]*port.ChatMessage{},
		memories:  map[int64]*port.Memory{},
		events:    map[int64]*port.Event{},
		modelAPIs: map[int64]*port.ModelAPI{},
		Now:       time.Now,
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func sortByID[T any](items []T, id func(T) int64, desc bool) {
	sort.Slice(items, func(i, j int) bool {
		if desc {
			return id(items[i]) > id(items[j])
		}
		return id(items[i]) < id(items[j])
	})
}

// ---- conversation ----

func (s *Store) AppendMessage(ctx context.Context, sessionID int64, sender port.Sender, text string) (*port.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, port.ErrNotFound
	}
	return s.appendLocked(sessionID, sender, text), nil
}

func (s *Store) appendLocked(sessionID int64, sender port.Sender, text string) *port.ChatMessage {
	now := s.Now()
	m := &port.ChatMessage{ID: s.nextID(), SessionID: sessionID, Sender: sender, Message: text, Timestamp: now, UpdatedAt: now}
	s.messages[m.ID] = m
	cp := *m
	return &cp
}

func (s *Store) AppendTurn(ctx context.Context, sessionID int64, userText, assistantText string) (*port.ChatMessage, *port.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return nil, nil, s.FailAppend
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, nil, port.ErrNotFound
	}
	u := s.appendLocked(sessionID, port.SenderUser, userText)
	a := s.appendLocked(sessionID, port.SenderAssistant, assistantText)
	return u, a, nil
}

func (s *Store) sessionMessages(sessionID int64) []*port.ChatMessage {
	var out []*port.ChatMessage
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sortByID(out, func(m *port.ChatMessage) int64 { return m.ID }, true)
	return out
}

func (s *Store) RecentMessages(ctx context.Context, sessionID int64, limit int) ([]*port.ChatMessage, error) {
	return s.ListMessages(ctx, sessionID, limit, 0)
}

func (s *Store) CountMessages(ctx context.Context, sessionID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessionMessages(sessionID)), nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID int64, limit, offset int) ([]*port.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sessionMessages(sessionID)
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (*port.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *Store) UpdateMessageText(ctx context.Context, id int64, text string) (*port.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	m.Message = text
	m.UpdatedAt = s.Now()
	cp := *m
	return &cp, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return port.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

// ---- memories ----

func (s *Store) CreateMemory(ctx context.Context, m *port.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[m.SessionID]; !ok {
		return port.ErrNotFound
	}
	if _, ok := s.roles[m.RoleID]; !ok {
		return port.ErrNotFound
	}
	m.ID = s.nextID()
	m.CreatedAt = s.Now()
	m.UpdatedAt = m.CreatedAt
	cp := *m
	s.memories[m.ID] = &cp
	return nil
}

func (s *Store) GetMemory(ctx context.Context, id int64) (*port.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *Store) filterMemories(keep func(*port.Memory) bool) []*port.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*port.Memory{}
	for _, m := range s.memories {
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sortByID(out, func(m *port.Memory) int64 { return m.ID }, false)
	return out
}

func (s *Store) ListMemories(ctx context.Context) ([]*port.Memory, error) {
	return s.filterMemories(func(*port.Memory) bool { return true }), nil
}

func (s *Store) ListMemoriesBySession(ctx context.Context, sessionID int64) ([]*port.Memory, error) {
	return s.filterMemories(func(m *port.Memory) bool { return m.SessionID == sessionID }), nil
}

func (s *Store) ListActiveMemories(ctx context.Context, sessionID int64) ([]*port.Memory, error) {
	return s.filterMemories(func(m *port.Memory) bool { return m.SessionID == sessionID && m.IsActive }), nil
}

func (s *Store) UpdateMemory(ctx context.Context, id int64, patch port.MemoryPatch) (*port.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	patch.Apply(m)
	m.UpdatedAt = s.Now()
	cp := *m
	return &cp, nil
}

func (s *Store) DeleteMemory(ctx context.Context, id int64) (*port.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	delete(s.memories, id)
	return m, nil
}

// ---- sessions ----

func (s *Store) CreateSession(ctx context.Context, sess *port.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[sess.RoleID]; !ok {
		return port.ErrNotFound
	}
	sess.ID = s.nextID()
	sess.CreatedAt = s.Now()
	sess.UpdatedAt = sess.CreatedAt
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (*port.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) listSessions(keep func(*port.ChatSession) bool, desc bool) []*port.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*port.ChatSession{}
	for _, sess := range s.sessions {
		if keep(sess) {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sortByID(out, func(x *port.ChatSession) int64 { return x.ID }, desc)
	return out
}

func (s *Store) ListSessions(ctx context.Context) ([]*port.ChatSession, error) {
	return s.listSessions(func(*port.ChatSession) bool { return true }, false), nil
}

func (s *Store) ListSessionsByRole(ctx context.Context, roleID int64) ([]*port.ChatSession, error) {
	return s.listSessions(func(x *port.ChatSession) bool { return x.RoleID == roleID }, true), nil
}

func (s *Store) UpdateSession(ctx context.Context, id int64, patch port.SessionPatch) (*port.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	if patch.RoleID != nil {
		if _, ok := s.roles[*patch.RoleID]; !ok {
			return nil, port.ErrNotFound
		}
	}
	patch.Apply(sess)
	sess.UpdatedAt = s.Now()
	cp := *sess
	return &cp, nil
}

func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return port.ErrNotFound
	}
	for _, m := range s.memories {
		if m.SessionID == id {
			return port.ErrSessionInUse
		}
	}
	for _, e := range s.events {
		if e.SessionID == id {
			return port.ErrSessionInUse
		}
	}
	delete(s.sessions, id)
	for mid, m := range s.messages {
		if m.SessionID == id {
			delete(s.messages, mid)
		}
	}
	return nil
}

// ---- roles ----

func (s *Store) CreateRole(ctx context.Context, r *port.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID()
	r.CreatedAt = s.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *Store) GetRole(ctx context.Context, id int64) (*port.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetRoleBySession(ctx context.Context, sessionID int64) (*port.Role, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.GetRole(ctx, sess.RoleID)
}

func (s *Store) listRoles(keep func(*port.Role) bool) []*port.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*port.Role{}
	for _, r := range s.roles {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortByID(out, func(r *port.Role) int64 { return r.ID }, false)
	return out
}

func (s *Store) ListRoles(ctx context.Context) ([]*port.Role, error) {
	return s.listRoles(func(*port.Role) bool { return true }), nil
}

func (s *Store) ListPublicRoles(ctx context.Context) ([]*port.Role, error) {
	return s.listRoles(func(r *port.Role) bool { return r.IsPublic }), nil
}

func (s *Store) ListRolesByUser(ctx context.Context, userID int64) ([]*port.Role, error) {
	return s.listRoles(func(r *port.Role) bool { return r.UserID == userID }), nil
}

func (s *Store) ListChattingRoles(ctx context.Context, userID int64) ([]*port.Role, error) {
	s.mu.Lock()
	ids := map[int64]bool{}
	for _, sess := range s.sessions {
		if sess.UserID != nil && *sess.UserID == userID {
			ids[sess.RoleID] = true
		}
	}
	s.mu.Unlock()
	return s.listRoles(func(r *port.Role) bool { return ids[r.ID] }), nil
}

func (s *Store) UpdateRole(ctx context.Context, id int64, patch port.RolePatch) (*port.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	patch.Apply(r)
	r.UpdatedAt = s.Now()
	cp := *r
	return &cp, nil
}

func (s *Store) DeleteRole(ctx context.Context, id int64) (*port.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	if s.roleInUse(id) {
		return nil, port.ErrRoleInUse
	}
	delete(s.roles, id)
	return r, nil
}

func (s *Store) roleInUse(id int64) bool {
	for _, sess := range s.sessions {
		if sess.RoleID == id {
			return true
		}
	}
	for _, m := range s.memories {
		if m.RoleID == id {
			return true
		}
	}
	for _, e := range s.events {
		if e.RoleID == id {
			return true
		}
	}
	return false
}

// ---- events ----

func (s *Store) CreateEvent(ctx context.Context, e *port.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[e.SessionID]; !ok {
		return port.ErrNotFound
	}
	e.ID = s.nextID()
	e.CreatedAt = s.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id int64) (*port.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *Store) listEvents(keep func(*port.Event) bool) []*port.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*port.Event{}
	for _, e := range s.events {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sortByID(out, func(e *port.Event) int64 { return e.ID }, false)
	return out
}

func (s *Store) ListEvents(ctx context.Context) ([]*port.Event, error) {
	return s.listEvents(func(*port.Event) bool { return true }), nil
}

func (s *Store) ListEventsBySession(ctx context.Context, sessionID int64) ([]*port.Event, error) {
	return s.listEvents(func(e *port.Event) bool { return e.SessionID == sessionID }), nil
}

func (s *Store) UpdateEvent(ctx context.Context, id int64, patch port.EventPatch) (*port.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	patch.Apply(e)
	e.UpdatedAt = s.Now()
	cp := *e
	return &cp, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id int64) (*port.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	delete(s.events, id)
	return e, nil
}

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, u *port.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return port.ErrConflict
		}
	}
	u.ID = s.nextID()
	u.CreatedAt = s.Now()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*port.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*port.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return port.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// ---- model apis ----

func (s *Store) CreateModelAPI(ctx context.Context, m *port.ModelAPI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextID()
	m.CreatedAt = s.Now()
	cp := *m
	cp.Config = append(json.RawMessage(nil), m.Config...)
	s.modelAPIs[m.ID] = &cp
	return nil
}

func (s *Store) ownedModelAPI(id, userID int64) (*port.ModelAPI, bool) {
	m, ok := s.modelAPIs[id]
	if !ok || (userID != 0 && m.UserID != userID) {
		return nil, false
	}
	return m, true
}

func (s *Store) GetModelAPI(ctx context.Context, id, userID int64) (*port.ModelAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.ownedModelAPI(id, userID)
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *Store) ListModelAPIs(ctx context.Context, userID int64) ([]*port.ModelAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*port.ModelAPI{}
	for _, m := range s.modelAPIs {
		if userID == 0 || m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sortByID(out, func(m *port.ModelAPI) int64 { return m.ID }, false)
	return out, nil
}

func (s *Store) UpdateModelAPI(ctx context.Context, id, userID int64, patch port.ModelAPIPatch) (*port.ModelAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.ownedModelAPI(id, userID)
	if !ok {
		return nil, port.ErrNotFound
	}
	patch.Apply(m)
	cp := *m
	return &cp, nil
}

func (s *Store) DeleteModelAPI(ctx context.Context, id, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedModelAPI(id, userID); !ok {
		return port.ErrNotFound
	}
	delete(s.modelAPIs, id)
	return nil
}
