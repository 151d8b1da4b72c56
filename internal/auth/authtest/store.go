// Package authtest provides in-memory fakes for authentication tests.
package authtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/automataweaver/backend/internal/auth/user"
)

// UserStore is an in-memory user.Store. The zero value is unusable; use
// NewUserStore.
type UserStore struct {
	mu     sync.Mutex
	nextID int
	users  map[string]*user.User

	// FailWith, when set, makes every operation return this error. Tests use
	// it to simulate an unreachable store.
	FailWith error
}

// NewUserStore creates an empty in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*user.User)}
}

// Seed inserts a user directly, assigning an ID when absent.
func (s *UserStore) Seed(u user.User) user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		s.nextID++
		u.ID = fmt.Sprintf("user-%d", s.nextID)
	}
	clone := u
	s.users[u.ID] = &clone
	return u
}

// Remove deletes a user directly, simulating a record that vanished out
// from under a live session or token.
func (s *UserStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// Len reports the number of stored users.
func (s *UserStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	clone := *u
	return &clone, nil
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	for _, u := range s.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *UserStore) FindByGoogleIDOrEmail(ctx context.Context, googleID, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	for _, u := range s.users {
		if (googleID != "" && u.GoogleID == googleID) || (email != "" && u.Email == email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *UserStore) Insert(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if u == nil {
		return errors.New("nil user")
	}
	s.nextID++
	u.ID = fmt.Sprintf("user-%d", s.nextID)
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *UserStore) SetGoogleID(ctx context.Context, id, googleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	u, ok := s.users[id]
	if !ok {
		return errors.New("user not found")
	}
	u.GoogleID = googleID
	return nil
}
