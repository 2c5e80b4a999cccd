// Package memory is an in-process UserProvider for demos and tests. Data
// lives in maps guarded by a mutex and is lost on exit.
package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/profileauth"
)

// Users implements profileauth.UserProvider. Login and email are unique.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]profileauth.UserRecord
	byLogin map[string]string
	byEmail map[string]string
}

func NewUsers() *Users {
	return &Users{
		byID:    make(map[string]profileauth.UserRecord),
		byLogin: make(map[string]string),
		byEmail: make(map[string]string),
	}
}

// Put inserts or replaces u without uniqueness checks. It is meant for
// seeding.
func (p *Users) Put(u profileauth.UserRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.byID[u.UserID]; ok {
		delete(p.byLogin, old.Login)
		delete(p.byEmail, old.Email)
	}
	p.byID[u.UserID] = u
	p.byLogin[u.Login] = u.UserID
	p.byEmail[u.Email] = u.UserID
}

func (p *Users) GetUserByID(_ context.Context, userID string) (profileauth.UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	u, ok := p.byID[userID]
	if !ok {
		return profileauth.UserRecord{}, profileauth.ErrProviderNotFound
	}
	return u, nil
}

func (p *Users) GetUserByLogin(ctx context.Context, login string) (profileauth.UserRecord, error) {
	p.mu.RLock()
	id, ok := p.byLogin[login]
	p.mu.RUnlock()
	if !ok {
		return profileauth.UserRecord{}, profileauth.ErrProviderNotFound
	}
	return p.GetUserByID(ctx, id)
}

func (p *Users) GetUserByEmail(ctx context.Context, email string) (profileauth.UserRecord, error) {
	p.mu.RLock()
	id, ok := p.byEmail[email]
	p.mu.RUnlock()
	if !ok {
		return profileauth.UserRecord{}, profileauth.ErrProviderNotFound
	}
	return p.GetUserByID(ctx, id)
}

func (p *Users) CreateUser(_ context.Context, input profileauth.CreateUserInput) (profileauth.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, taken := p.byLogin[input.Login]; taken {
		return profileauth.UserRecord{}, profileauth.ErrProviderDuplicate
	}
	if _, taken := p.byEmail[input.Email]; taken {
		return profileauth.UserRecord{}, profileauth.ErrProviderDuplicate
	}

	u := profileauth.UserRecord{
		UserID:       input.UserID,
		Login:        input.Login,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
	}
	p.byID[u.UserID] = u
	p.byLogin[u.Login] = u.UserID
	p.byEmail[u.Email] = u.UserID
	return u, nil
}

func (p *Users) UpdateUser(_ context.Context, userID string, update profileauth.UserUpdate) (profileauth.UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.byID[userID]
	if !ok {
		return profileauth.UserRecord{}, profileauth.ErrProviderNotFound
	}
	if update.Login != nil {
		if owner, taken := p.byLogin[*update.Login]; taken && owner != userID {
			return profileauth.UserRecord{}, profileauth.ErrProviderDuplicate
		}
	}
	if update.Email != nil {
		if owner, taken := p.byEmail[*update.Email]; taken && owner != userID {
			return profileauth.UserRecord{}, profileauth.ErrProviderDuplicate
		}
	}

	if update.Login != nil {
		delete(p.byLogin, u.Login)
		u.Login = *update.Login
		p.byLogin[u.Login] = userID
	}
	if update.Email != nil {
		delete(p.byEmail, u.Email)
		u.Email = *update.Email
		p.byEmail[u.Email] = userID
	}
	if update.PhoneNumber != nil {
		u.PhoneNumber = *update.PhoneNumber
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.IsEmailVerified != nil {
		u.IsEmailVerified = *update.IsEmailVerified
	}
	if update.IsResetVerified != nil {
		u.IsResetVerified = *update.IsResetVerified
	}
	if update.LastLoginChangeAt != nil {
		at := *update.LastLoginChangeAt
		u.LastLoginChangeAt = &at
	}
	p.byID[userID] = u
	return u, nil
}
