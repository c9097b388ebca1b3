package memory

import (
	"context"
	"sync"

	domainauth "github.com/Lookout84/agromarket/internal/domain/auth"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

// UserRepository keeps users in memory with a unique-email constraint.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[domainuser.ID]*domainuser.User
	byEmail map[string]domainuser.ID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[domainuser.ID]*domainuser.User),
		byEmail: make(map[string]domainuser.ID),
	}
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	clone := *r.byID[id]
	return &clone, nil
}

func (r *UserRepository) Save(ctx context.Context, u *domainuser.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byEmail[u.Email]; ok && existing != u.ID {
		return domainuser.ErrEmailAlreadyUsed
	}
	if previous, ok := r.byID[u.ID]; ok && previous.Email != u.Email {
		delete(r.byEmail, previous.Email)
	}
	clone := *u
	r.byID[u.ID] = &clone
	r.byEmail[u.Email] = u.ID
	return nil
}

// SessionStore keeps bearer sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domainauth.Token]*domainauth.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[domainauth.Token]*domainauth.Session)}
}

func (s *SessionStore) Save(ctx context.Context, session *domainauth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *session
	s.sessions[session.Token] = &clone
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token domainauth.Token) (*domainauth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, domainauth.ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (s *SessionStore) Delete(ctx context.Context, token domainauth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
