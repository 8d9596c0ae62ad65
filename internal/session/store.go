package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeshare/internal/models"
)

// PlaceholderCode is the buffer every new session starts with.
const PlaceholderCode = "// Start coding...\n"

// ErrNotFound reports an operation on a session id the store does not hold.
var ErrNotFound = errors.New("session not found")

// Store is the in-memory session registry. Every method is atomic; callers only
// ever see copies of the stored sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	now      func() time.Time
	newID    func() string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*models.Session),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create stores a fresh session under id, replacing any existing one. An empty
// id gets a random identifier and an empty language falls back to the default.
func (s *Store) Create(id string, lang models.Language) models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(id, lang).Clone()
}

func (s *Store) createLocked(id string, lang models.Language) *models.Session {
	if id == "" {
		id = s.newID()
	}
	if lang == "" {
		lang = models.DefaultLanguage
	}
	now := s.now()
	sess := &models.Session{
		SessionID: id,
		Code:      PlaceholderCode,
		Language:  lang,
		Users:     []models.User{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[id] = sess
	return sess
}

// Get returns a copy of the session, or false when it does not exist.
func (s *Store) Get(id string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	return sess.Clone(), true
}

// GetOrCreate returns the session, creating it with defaults when missing.
func (s *Store) GetOrCreate(id string) models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id).Clone()
}

func (s *Store) getOrCreateLocked(id string) *models.Session {
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	return s.createLocked(id, models.DefaultLanguage)
}

func (s *Store) SetCode(id, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Code = code
	sess.UpdatedAt = s.now()
	return true
}

func (s *Store) SetLanguage(id string, lang models.Language) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Language = lang
	sess.UpdatedAt = s.now()
	return true
}

// AddUser upserts u into the session, creating the session if needed. A user
// already present is moved to the end of the list.
func (s *Store) AddUser(id string, u models.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(id)
	sess.Users = append(withoutUser(sess.Users, u.ID), u)
	sess.UpdatedAt = s.now()
	return true
}

func (s *Store) RemoveUser(id, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Users = withoutUser(sess.Users, userID)
	sess.UpdatedAt = s.now()
	return true
}

func (s *Store) ListUsers(id string) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return []models.User{}
	}
	out := make([]models.User, len(sess.Users))
	copy(out, sess.Users)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle removes sessions last updated before cutoff, skipping any id for
// which keep returns true. It returns the evicted ids.
func (s *Store) EvictIdle(cutoff time.Time, keep func(id string) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, sess := range s.sessions {
		if !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		if keep != nil && keep(id) {
			continue
		}
		delete(s.sessions, id)
		evicted = append(evicted, id)
	}
	return evicted
}

// withoutUser always allocates; stored lists never share a backing array with
// copies handed out earlier.
func withoutUser(users []models.User, userID string) []models.User {
	out := make([]models.User, 0, len(users)+1)
	for _, u := range users {
		if u.ID != userID {
			out = append(out, u)
		}
	}
	return out
}
