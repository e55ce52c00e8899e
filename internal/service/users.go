package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/langchou/answerdesk/internal/apperr"
	"github.com/langchou/answerdesk/internal/models"
)

// ErrInvalidLogin 用户名或密码错误
var ErrInvalidLogin = apperr.Validation("login", "invalid username or password")

// UserService 本地用户管理
type UserService struct {
	store  UserStore
	logger *zap.Logger
	cost   int

	// 串行化写操作，保证"至少保留一个管理员"的检查与修改之间没有竞争
	mu sync.Mutex
}

// NewUserService 创建用户服务
func NewUserService(store UserStore, logger *zap.Logger) *UserService {
	return &UserService{
		store:  store,
		logger: logger,
		cost:   bcrypt.DefaultCost,
	}
}

// Seed 默认账号
type Seed struct {
	Username string
	Password string
}

// EnsureDefaults 没有任何用户时创建默认管理员和默认普通用户，普通用户名为空时跳过
func (s *UserService) EnsureDefaults(ctx context.Context, admin, user Seed) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, err := s.store.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	if _, err := s.create(ctx, admin.Username, admin.Password, models.RoleAdmin); err != nil {
		return false, err
	}
	s.logger.Info("Seeded default admin", zap.String("username", admin.Username))

	if user.Username == "" {
		return true, nil
	}
	if _, err := s.create(ctx, user.Username, user.Password, models.RoleUser); err != nil {
		return true, err
	}
	s.logger.Info("Seeded default user", zap.String("username", user.Username))
	return true, nil
}

// Login 校验用户名和密码
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, ErrInvalidLogin
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidLogin
		}
		return nil, err
	}
	return user, nil
}

// List 获取所有用户
func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// Add 添加用户
func (s *UserService) Add(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(ctx, username, password, role)
}

// Update 更新用户，降级最后一个管理员会被拒绝
func (s *UserService) Update(ctx context.Context, id uuid.UUID, upd models.UserUpdate) (*models.User, error) {
	const op = "update user"

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return nil, apperr.Validation(op, "username must not be empty")
		}
		if name != user.Username {
			if err := s.ensureUnique(ctx, op, name); err != nil {
				return nil, err
			}
			user.Username = name
		}
	}

	if upd.Password != nil {
		if *upd.Password == "" {
			return nil, apperr.Validation(op, "password must not be empty")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*upd.Password), s.cost)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = string(hash)
	}

	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, apperr.Validation(op, "unknown role "+string(*upd.Role))
		}
		if user.Role == models.RoleAdmin && *upd.Role != models.RoleAdmin {
			if err := s.ensureOtherAdmin(ctx, op, user.ID); err != nil {
				return nil, err
			}
		}
		user.Role = *upd.Role
	}

	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("User updated", zap.String("id", user.ID.String()), zap.String("username", user.Username))
	return user, nil
}

// Delete 删除用户，至少保留一个管理员
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "delete user"

	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if user.Role == models.RoleAdmin {
		if err := s.ensureOtherAdmin(ctx, op, user.ID); err != nil {
			return err
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("User deleted", zap.String("id", id.String()), zap.String("username", user.Username))
	return nil
}

func (s *UserService) create(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	const op = "add user"

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation(op, "username and password are required")
	}
	if !role.Valid() {
		return nil, apperr.Validation(op, "unknown role "+string(role))
	}
	if err := s.ensureUnique(ctx, op, username); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("User added", zap.String("username", username), zap.String("role", string(role)))
	return user, nil
}

func (s *UserService) ensureUnique(ctx context.Context, op, username string) error {
	_, err := s.store.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return apperr.Conflict(op, "username already exists")
	case apperr.Is(err, apperr.KindNotFound):
		return nil
	default:
		return err
	}
}

// ensureOtherAdmin 除 id 之外是否还有管理员
func (s *UserService) ensureOtherAdmin(ctx context.Context, op string, id uuid.UUID) error {
	users, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.ID != id && u.Role == models.RoleAdmin {
			return nil
		}
	}
	return apperr.Conflict(op, "at least one admin must remain")
}
