// Package session implements the profile store, login auth, and
// sliding-TTL session liveness from spec.md §4.8.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrDuplicateIdentifier is returned by CreateBasicTokenProfile and
// CreateUsernamePasswordProfile when the username
// or token already names an existing profile.
var ErrDuplicateIdentifier = errors.New("session: duplicate identifier")

// ErrInvalidCredentials is returned by Login on any auth mismatch.
var ErrInvalidCredentials = errors.New("session: invalid credentials")

// AuthKind tags which credential variant a Profile was created with.
type AuthKind int

const (
	AuthBasicToken AuthKind = iota
	AuthUsernamePassword
)

// Auth is a profile's stored credential. For AuthUsernamePassword,
// PasswordHash holds a bcrypt digest, never the plaintext password
// (spec.md §4.8, SPEC_FULL.md domain stack).
type Auth struct {
	Kind         AuthKind
	Token        string
	Username     string
	PasswordHash []byte
}

// Profile is a registered player identity.
type Profile struct {
	ID   string
	Auth Auth
}

// BasicToken is a login credential carrying an opaque bearer token.
type BasicToken struct{ Token string }

// UsernameAndPassword is a login credential carrying a plaintext
// password to be checked against the stored bcrypt hash.
type UsernameAndPassword struct {
	Username string
	Password string
}

// Store is the profile map from spec.md §4.8: username/token -> profile.
// Guarded by a mutex held only across map mutation, never across I/O,
// matching the "async mutex" shared-resource policy in spec.md §5.
type Store struct {
	mu         sync.Mutex
	byID       map[string]*Profile
	byUsername map[string]*Profile
	byToken    map[string]*Profile
	bcryptCost int
}

func NewStore(bcryptCost int) *Store {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Store{
		byID:       make(map[string]*Profile),
		byUsername: make(map[string]*Profile),
		byToken:    make(map[string]*Profile),
		bcryptCost: bcryptCost,
	}
}

// CreateBasicTokenProfile registers a profile identified by an opaque
// bearer token. Fails with ErrDuplicateIdentifier if the token is taken.
func (s *Store) CreateBasicTokenProfile(id, token string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byToken[token]; exists {
		return nil, ErrDuplicateIdentifier
	}
	if _, exists := s.byID[id]; exists {
		return nil, ErrDuplicateIdentifier
	}
	p := &Profile{ID: id, Auth: Auth{Kind: AuthBasicToken, Token: token}}
	s.byID[id] = p
	s.byToken[token] = p
	return p, nil
}

// CreateUsernamePasswordProfile registers a profile identified by a
// username, hashing password with bcrypt before storing it. Fails with
// ErrDuplicateIdentifier if the username is taken.
func (s *Store) CreateUsernamePasswordProfile(id, username, password string) (*Profile, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[username]; exists {
		return nil, ErrDuplicateIdentifier
	}
	if _, exists := s.byID[id]; exists {
		return nil, ErrDuplicateIdentifier
	}
	p := &Profile{ID: id, Auth: Auth{Kind: AuthUsernamePassword, Username: username, PasswordHash: hash}}
	s.byID[id] = p
	s.byUsername[username] = p
	return p, nil
}

// Login resolves a credential to its profile, comparing field-equal to
// the stored auth (spec.md §4.8).
func (s *Store) Login(cred any) (*Profile, error) {
	switch c := cred.(type) {
	case BasicToken:
		s.mu.Lock()
		p, ok := s.byToken[c.Token]
		s.mu.Unlock()
		if !ok || p.Auth.Kind != AuthBasicToken || p.Auth.Token != c.Token {
			return nil, ErrInvalidCredentials
		}
		return p, nil
	case UsernameAndPassword:
		s.mu.Lock()
		p, ok := s.byUsername[c.Username]
		s.mu.Unlock()
		if !ok || p.Auth.Kind != AuthUsernamePassword {
			return nil, ErrInvalidCredentials
		}
		if bcrypt.CompareHashAndPassword(p.Auth.PasswordHash, []byte(c.Password)) != nil {
			return nil, ErrInvalidCredentials
		}
		return p, nil
	default:
		return nil, ErrInvalidCredentials
	}
}

// Session is a live player session: a token bound to a profile, with a
// monotonic last-active timestamp driving the sliding TTL.
type Session struct {
	Token      string
	ProfileID  string
	mu         sync.Mutex
	lastActive time.Time
}

func (sess *Session) touch(now time.Time) {
	sess.mu.Lock()
	sess.lastActive = now
	sess.mu.Unlock()
}

// IsLive reports whether now-lastActive <= ttl (spec.md §4.8).
func (sess *Session) IsLive(now time.Time, ttl time.Duration) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return now.Sub(sess.lastActive) <= ttl
}

// Sessions is the token -> session map from spec.md §4.8, plus the
// profile -> active-session index used to reuse a still-live session
// across reconnects instead of minting a new token every time.
type Sessions struct {
	mu         sync.Mutex
	byToken    map[string]*Session
	byProfile  map[string]*Session
	ttl        time.Duration
	nowFn      func() time.Time
}

func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		byToken:   make(map[string]*Session),
		byProfile: make(map[string]*Session),
		ttl:       ttl,
		nowFn:     time.Now,
	}
}

// CreateSession generates a fresh random token (collision-retry),
// reusing the profile's existing live session if one is present
// (spec.md §4.8).
func (s *Sessions) CreateSession(profileID string) (*Session, error) {
	now := s.nowFn()
	s.mu.Lock()
	if existing, ok := s.byProfile[profileID]; ok && existing.IsLive(now, s.ttl) {
		existing.touch(now)
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	sess := &Session{Token: token, ProfileID: profileID, lastActive: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if _, taken := s.byToken[token]; !taken {
			break
		}
		token, err = randomToken()
		if err != nil {
			return nil, err
		}
		sess.Token = token
	}
	s.byToken[token] = sess
	s.byProfile[profileID] = sess
	return sess, nil
}

// Get returns the session for token, if it exists.
func (s *Sessions) Get(token string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byToken[token]
	return sess, ok
}

// GetLive returns the session for token only if it is currently live.
func (s *Sessions) GetLive(token string) (*Session, bool) {
	sess, ok := s.Get(token)
	if !ok || !sess.IsLive(s.nowFn(), s.ttl) {
		return nil, false
	}
	return sess, true
}

// ExtendSession updates last-active and reports whether the session was
// live at the time of the call (spec.md §4.8).
func (s *Sessions) ExtendSession(token string) bool {
	sess, ok := s.Get(token)
	if !ok {
		return false
	}
	now := s.nowFn()
	wasLive := sess.IsLive(now, s.ttl)
	sess.touch(now)
	return wasLive
}

// Sweep drops every session that is no longer live, meant to run
// periodically from a background task (spec.md §4.8).
func (s *Sessions) Sweep() int {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for token, sess := range s.byToken {
		if !sess.IsLive(now, s.ttl) {
			delete(s.byToken, token)
			if s.byProfile[sess.ProfileID] == sess {
				delete(s.byProfile, sess.ProfileID)
			}
			dropped++
		}
	}
	return dropped
}

// RunSweeper blocks, sweeping expired sessions every interval, until
// stop is closed.
func (s *Sessions) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func randomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
