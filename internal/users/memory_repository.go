package users

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/models"
)

// MemoryRepository keeps everything in process memory. It enforces the
// same uniqueness rules as the SQL schema and is meant for tests and
// single-instance development runs.
type MemoryRepository struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	byEmail    map[string]string
	byUsername map[string]string
	accounts   map[int64]*models.OAuthAccount
	byIdentity map[string]int64
	nextID     int64
	now        func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:      map[string]*models.User{},
		byEmail:    map[string]string{},
		byUsername: map[string]string{},
		accounts:   map[int64]*models.OAuthAccount{},
		byIdentity: map[string]int64{},
		now:        time.Now,
	}
}

func identityKey(p models.Provider, id string) string { return string(p) + "|" + id }

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyAccount(a *models.OAuthAccount) *models.OAuthAccount {
	c := *a
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (m *MemoryRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	m.mu.RLock()
	id, ok := m.byEmail[email]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.GetByID(ctx, id)
}

func (m *MemoryRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	id, ok := m.byUsername[username]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.GetByID(ctx, id)
}

// checkUserUnique must be called with mu held.
func (m *MemoryRepository) checkUserUnique(u *models.User) error {
	if id, ok := m.byUsername[u.Username]; ok && id != u.ID {
		return fmt.Errorf("users: username %q: %w", u.Username, apperr.ErrDuplicateIdentity)
	}
	if u.Email != "" {
		if id, ok := m.byEmail[u.Email]; ok && id != u.ID {
			return fmt.Errorf("users: email %q: %w", u.Email, apperr.ErrDuplicateIdentity)
		}
	}
	return nil
}

func (m *MemoryRepository) insertUserLocked(u *models.User) error {
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("users: id %q: %w", u.ID, apperr.ErrDuplicateIdentity)
	}
	if err := m.checkUserUnique(u); err != nil {
		return err
	}
	m.users[u.ID] = copyUser(u)
	m.byUsername[u.Username] = u.ID
	if u.Email != "" {
		m.byEmail[u.Email] = u.ID
	}
	return nil
}

func (m *MemoryRepository) insertAccountLocked(a *models.OAuthAccount) error {
	if _, ok := m.users[a.UserID]; !ok {
		return fmt.Errorf("users: link to unknown user %q", a.UserID)
	}
	key := identityKey(a.Provider, a.ProviderUserID)
	if _, ok := m.byIdentity[key]; ok {
		return fmt.Errorf("users: link %s/%s: %w", a.Provider, a.ProviderUserID, apperr.ErrDuplicateIdentity)
	}
	m.nextID++
	a.ID = m.nextID
	m.accounts[a.ID] = copyAccount(a)
	m.byIdentity[key] = a.ID
	return nil
}

func (m *MemoryRepository) Create(_ context.Context, u *models.User) error {
	prepareUser(u, m.now().UTC())
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertUserLocked(u)
}

func (m *MemoryRepository) Update(_ context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.users[u.ID]
	if !ok {
		return fmt.Errorf("users: update %s: %w", u.ID, apperr.ErrNotFound)
	}
	if err := m.checkUserUnique(u); err != nil {
		return err
	}
	u.UpdatedAt = m.now().UTC()
	delete(m.byUsername, old.Username)
	delete(m.byEmail, old.Email)
	m.users[u.ID] = copyUser(u)
	m.byUsername[u.Username] = u.ID
	if u.Email != "" {
		m.byEmail[u.Email] = u.ID
	}
	return nil
}

func (m *MemoryRepository) CreateWithOAuthAccount(_ context.Context, u *models.User, acc *models.OAuthAccount) error {
	now := m.now().UTC()
	prepareUser(u, now)
	prepareAccount(acc, now)
	acc.UserID = u.ID

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byIdentity[identityKey(acc.Provider, acc.ProviderUserID)]; ok {
		return fmt.Errorf("users: link %s/%s: %w", acc.Provider, acc.ProviderUserID, apperr.ErrDuplicateIdentity)
	}
	if err := m.insertUserLocked(u); err != nil {
		return err
	}
	return m.insertAccountLocked(acc)
}

func (m *MemoryRepository) CreateOAuthAccount(_ context.Context, acc *models.OAuthAccount) error {
	prepareAccount(acc, m.now().UTC())
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAccountLocked(acc)
}

func (m *MemoryRepository) FindOAuthAccount(_ context.Context, provider models.Provider, providerUserID string) (*models.OAuthAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byIdentity[identityKey(provider, providerUserID)]
	if !ok {
		return nil, nil
	}
	return copyAccount(m.accounts[id]), nil
}

func (m *MemoryRepository) ListOAuthAccounts(_ context.Context, userID string) ([]*models.OAuthAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.OAuthAccount
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) UpdateOAuthTokens(_ context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("users: oauth account %d: %w", id, apperr.ErrNotFound)
	}
	a.AccessToken = accessToken
	a.RefreshToken = refreshToken
	a.ExpiresAt = nil
	if expiresAt != nil {
		t := *expiresAt
		a.ExpiresAt = &t
	}
	a.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

// Counts returns the number of users and provider links stored.
func (m *MemoryRepository) Counts() (users, accounts int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), len(m.accounts)
}
