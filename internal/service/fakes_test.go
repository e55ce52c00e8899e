package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/langchou/answerdesk/internal/apperr"
	"github.com/langchou/answerdesk/internal/models"
)

type memSettings struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemSettings() *memSettings {
	return &memSettings{data: make(map[string][]byte)}
}

func (m *memSettings) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, apperr.NotFound("get setting", key)
	}
	return v, nil
}

func (m *memSettings) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type event struct {
	Type string
	Data interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) BroadcastMessage(msgType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{Type: msgType, Data: data})
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[uuid.UUID]models.User)}
}

func (m *memUsers) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return apperr.Conflict("create user", "username already exists")
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("get user", "user")
	}
	return &u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("get user", "user")
}

func (m *memUsers) List(_ context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []*models.User
	for _, u := range m.users {
		u := u
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *memUsers) Update(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return apperr.NotFound("update user", "user")
	}
	m.users[user.ID] = *user
	return nil
}

func (m *memUsers) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return apperr.NotFound("delete user", "user")
	}
	delete(m.users, id)
	return nil
}

func (m *memUsers) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}
