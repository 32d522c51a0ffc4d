package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// State is where a Session is in its lifecycle:
// Unloaded -> (Restore) -> Authenticated | Anonymous -> (Clear) -> Anonymous.
type State int

const (
	StateUnloaded State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unloaded"
	}
}

var ErrNotAuthenticated = errors.New("apiclient: not signed in")

// User is the account as the API returns it.
type User struct {
	ID            uint       `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Username      string     `json:"username"`
	Phone         string     `json:"phone"`
	PhoneVerified bool       `json:"phone_verified"`
	Title         string     `json:"title"`
	Bio           string     `json:"bio"`
	Avatar        string     `json:"avatar"`
	Role          string     `json:"role"`
	Plan          string     `json:"plan"`
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`
	ReferralCode  string     `json:"referral_code"`
	EmailVerified bool       `json:"email_verified"`
}

// Session is the signed-in state of one client. It is passed explicitly to
// the Client and mirrored into its Store on every change.
type Session struct {
	mu    sync.RWMutex
	store Store
	state State
	token string
	user  *User
}

func NewSession(store Store) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{store: store}
}

// Restore reads the persisted session. Restoration is attempted only when
// the token key is present; a token without a readable user still counts as
// authenticated so the caller can refresh the user with Me.
func (s *Session) Restore() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token, s.user = "", nil
	token, ok, err := s.store.Get(KeyAuthToken)
	if err != nil {
		s.state = StateAnonymous
		return s.state, fmt.Errorf("apiclient: reading session: %w", err)
	}
	if !ok || strings.TrimSpace(token) == "" {
		s.state = StateAnonymous
		return s.state, nil
	}

	s.token = token
	s.state = StateAuthenticated

	raw, ok, err := s.store.Get(KeyUser)
	if err != nil || !ok {
		return s.state, err
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		// unreadable user blob; keep the token, drop the blob
		_ = s.store.Delete(KeyUser)
		return s.state, nil
	}
	s.user = &u
	return s.state, nil
}

// SignIn stores a fresh token and user.
func (s *Session) SignIn(token string, user *User) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("apiclient: empty token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(KeyAuthToken, token); err != nil {
		return err
	}
	if err := s.persistUser(user); err != nil {
		return err
	}
	s.token, s.user, s.state = token, user, StateAuthenticated
	return nil
}

// SetUser replaces the cached user after a profile mutation.
func (s *Session) SetUser(user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return ErrNotAuthenticated
	}
	if err := s.persistUser(user); err != nil {
		return err
	}
	s.user = user
	return nil
}

func (s *Session) persistUser(user *User) error {
	if user == nil {
		return s.store.Delete(KeyUser)
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.store.Set(KeyUser, string(raw))
}

// Clear forgets the session in memory and in the store.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.user, s.state = "", nil, StateAnonymous
	return errors.Join(s.store.Delete(KeyAuthToken), s.store.Delete(KeyUser))
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the cached user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}
