// Package auth owns credentials and sessions. Users live in the local
// SQLite users table; when a remote directory is configured, new users
// are mirrored to it and logins fall back to it, so a family can sign
// in on a fresh install.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"caretaker/internal/core"
	"caretaker/internal/log"
	"caretaker/internal/remote"
	"caretaker/internal/storage"
)

var (
	// ErrInvalidCredentials deliberately covers both unknown username
	// and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrNotAdmin           = errors.New("admin role required")
	ErrSelfDelete         = errors.New("cannot delete own account")
)

// Directory is the remote users table, optional.
type Directory interface {
	UserByUsername(ctx context.Context, username string) (remote.User, bool, error)
	CreateUser(ctx context.Context, u remote.User) error
	DeleteUser(ctx context.Context, username, familyID string) error
}

// Session is an authenticated presence. Expiry is checked lazily on
// lookup.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	FamilyID  string    `json:"familyId"`
	Role      core.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserInfo is a user row without its credential hash.
type UserInfo struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      core.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	repo      *storage.SQLiteRepository
	directory Directory
	ttl       time.Duration
	logger    *log.Logger

	mu       sync.Mutex
	sessions map[string]Session
}

func NewService(repo *storage.SQLiteRepository, directory Directory, ttl time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentAuth)
	}
	return &Service{
		repo:      repo,
		directory: directory,
		ttl:       ttl,
		logger:    logger,
		sessions:  make(map[string]Session),
	}
}

// RegisterInput carries everything a new family signs up with.
type RegisterInput struct {
	Username          string  `json:"username"`
	Password          string  `json:"password"`
	ConfirmPassword   string  `json:"confirmPassword"`
	FamilyName        string  `json:"familyName"`
	ContractStartDate string  `json:"contractStartDate"`
	MonthlyBaseAmount float64 `json:"monthlyBaseAmount"`
}

// Validate rejects bad input before anything is written or sent.
func (in RegisterInput) Validate() error {
	if strings.TrimSpace(in.Username) == "" {
		return errors.New("username is required")
	}
	if len(in.Password) < 4 {
		return errors.New("password must be at least 4 characters")
	}
	if in.Password != in.ConfirmPassword {
		return errors.New("passwords do not match")
	}
	if strings.TrimSpace(in.FamilyName) == "" {
		return errors.New("family name is required")
	}
	if _, err := time.Parse(core.DateLayout, in.ContractStartDate); err != nil {
		return fmt.Errorf("contract start date must be %s", core.DateLayout)
	}
	if in.MonthlyBaseAmount <= 0 {
		return errors.New("monthly base amount must be positive")
	}
	return nil
}

// Register creates a new family and its first user, who is always an
// admin. Subsequent members are added through AddFamilyUser.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if err := in.Validate(); err != nil {
		return Session{}, err
	}

	username := strings.TrimSpace(in.Username)
	if taken, err := s.usernameTaken(ctx, username); err != nil {
		return Session{}, err
	} else if taken {
		return Session{}, ErrUsernameTaken
	}

	familyID, err := randomHex(8)
	if err != nil {
		return Session{}, fmt.Errorf("generate family id: %w", err)
	}

	if err := s.createUser(ctx, username, in.Password, familyID, core.RoleAdmin); err != nil {
		return Session{}, err
	}

	s.logger.InfoContext(ctx, "Registered new family",
		log.FieldOperation, log.OpRegister,
		log.FieldUsername, username,
		log.FieldFamilyID, familyID)

	return s.newSession(username, familyID, core.RoleAdmin)
}

// Login verifies credentials against the local users table, falling
// back to the remote directory for users not yet cached locally.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)

	u, err := s.repo.UserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return s.loginViaDirectory(ctx, username, password)
	}
	if err != nil {
		return Session{}, fmt.Errorf("look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	s.logger.InfoContext(ctx, "User logged in",
		log.FieldOperation, log.OpLogin,
		log.FieldUsername, username,
		log.FieldFamilyID, u.FamilyID)

	return s.newSession(u.Username, u.FamilyID, core.Role(u.Role))
}

func (s *Service) loginViaDirectory(ctx context.Context, username, password string) (Session, error) {
	if s.directory == nil {
		return Session{}, ErrInvalidCredentials
	}

	remoteUser, found, err := s.directory.UserByUsername(ctx, username)
	if err != nil {
		s.logger.WarnContext(ctx, "Directory lookup failed",
			log.FieldUsername, username, log.FieldError, err)
		return Session{}, ErrInvalidCredentials
	}
	if !found {
		return Session{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(remoteUser.Password), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	// Cache the credential row so the next login works offline.
	if _, err := s.repo.CreateUser(ctx, storage.User{
		Username:     remoteUser.Username,
		PasswordHash: remoteUser.Password,
		FamilyID:     remoteUser.FamilyID,
		Role:         remoteUser.Role,
	}); err != nil {
		s.logger.WarnContext(ctx, "Failed to cache directory user locally",
			log.FieldUsername, username, log.FieldError, err)
	}

	s.logger.InfoContext(ctx, "User logged in via directory",
		log.FieldOperation, log.OpLogin,
		log.FieldUsername, username,
		log.FieldFamilyID, remoteUser.FamilyID)

	return s.newSession(remoteUser.Username, remoteUser.FamilyID, core.Role(remoteUser.Role))
}

// Logout drops the session. Unknown tokens are a no-op.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// SessionFromToken resolves a bearer token. Expired sessions are
// removed on lookup.
func (s *Service) SessionFromToken(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return Session{}, false
	}
	if time.Now().After(session.ExpiresAt) {
		delete(s.sessions, token)
		return Session{}, false
	}
	return session, true
}

// AddFamilyUser lets an admin add a member to their own family.
func (s *Service) AddFamilyUser(ctx context.Context, session Session, username, password string, role core.Role) (UserInfo, error) {
	if session.Role != core.RoleAdmin {
		return UserInfo{}, ErrNotAdmin
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return UserInfo{}, errors.New("username is required")
	}
	if len(password) < 4 {
		return UserInfo{}, errors.New("password must be at least 4 characters")
	}
	if !core.ValidRole(role) {
		return UserInfo{}, fmt.Errorf("invalid role %q", role)
	}

	if taken, err := s.usernameTaken(ctx, username); err != nil {
		return UserInfo{}, err
	} else if taken {
		return UserInfo{}, ErrUsernameTaken
	}

	if err := s.createUser(ctx, username, password, session.FamilyID, role); err != nil {
		return UserInfo{}, err
	}

	u, err := s.repo.UserByUsername(ctx, username)
	if err != nil {
		return UserInfo{}, fmt.Errorf("read back user: %w", err)
	}

	s.logger.InfoContext(ctx, "Added family user",
		log.FieldOperation, log.OpCreate,
		log.FieldUsername, username,
		log.FieldFamilyID, session.FamilyID,
		log.FieldRole, string(role))

	return userInfo(u), nil
}

// FamilyUsers lists the members of the session's family.
func (s *Service) FamilyUsers(ctx context.Context, session Session) ([]UserInfo, error) {
	users, err := s.repo.UsersByFamily(ctx, session.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("list family users: %w", err)
	}
	out := make([]UserInfo, 0, len(users))
	for _, u := range users {
		out = append(out, userInfo(u))
	}
	return out, nil
}

// DeleteFamilyUser lets an admin remove a member of their own family.
// Admins cannot remove themselves.
func (s *Service) DeleteFamilyUser(ctx context.Context, session Session, userID int64) error {
	if session.Role != core.RoleAdmin {
		return ErrNotAdmin
	}

	users, err := s.repo.UsersByFamily(ctx, session.FamilyID)
	if err != nil {
		return fmt.Errorf("list family users: %w", err)
	}
	var target *storage.User
	for i := range users {
		if users[i].ID == userID {
			target = &users[i]
			break
		}
	}
	if target == nil {
		return storage.ErrNotFound
	}
	if target.Username == session.Username {
		return ErrSelfDelete
	}

	if err := s.repo.DeleteUser(ctx, userID, session.FamilyID); err != nil {
		return err
	}

	if s.directory != nil {
		if err := s.directory.DeleteUser(ctx, target.Username, session.FamilyID); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete user from directory",
				log.FieldUsername, target.Username, log.FieldError, err)
		}
	}

	s.logger.InfoContext(ctx, "Deleted family user",
		log.FieldOperation, log.OpDelete,
		log.FieldUsername, target.Username,
		log.FieldFamilyID, session.FamilyID)

	return nil
}

func (s *Service) usernameTaken(ctx context.Context, username string) (bool, error) {
	_, err := s.repo.UserByUsername(ctx, username)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("look up user: %w", err)
	}
	if s.directory != nil {
		_, found, err := s.directory.UserByUsername(ctx, username)
		if err != nil {
			s.logger.WarnContext(ctx, "Directory lookup failed during registration",
				log.FieldUsername, username, log.FieldError, err)
			return false, nil
		}
		return found, nil
	}
	return false, nil
}

func (s *Service) createUser(ctx context.Context, username, password, familyID string, role core.Role) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.repo.CreateUser(ctx, storage.User{
		Username:     username,
		PasswordHash: string(hash),
		FamilyID:     familyID,
		Role:         string(role),
	}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if s.directory != nil {
		if err := s.directory.CreateUser(ctx, remote.User{
			Username: username,
			Password: string(hash),
			FamilyID: familyID,
			Role:     string(role),
		}); err != nil {
			s.logger.WarnContext(ctx, "Failed to mirror user to directory",
				log.FieldUsername, username, log.FieldError, err)
		}
	}
	return nil
}

func (s *Service) newSession(username, familyID string, role core.Role) (Session, error) {
	token, err := randomHex(32)
	if err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}
	now := time.Now()
	session := Session{
		Token:     token,
		Username:  username,
		FamilyID:  familyID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[token] = session
	s.mu.Unlock()

	return session, nil
}

func userInfo(u storage.User) UserInfo {
	return UserInfo{
		ID:        u.ID,
		Username:  u.Username,
		Role:      core.Role(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
