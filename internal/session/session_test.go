package session

import (
	"testing"
	"time"
)

func TestCreateProfileDuplicateIdentifier(t *testing.T) {
	s := NewStore(4)
	if _, err := s.CreateUsernamePasswordProfile("p1", "alice", "hunter2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.CreateUsernamePasswordProfile("p2", "alice", "whatever"); err != ErrDuplicateIdentifier {
		t.Fatalf("expected ErrDuplicateIdentifier, got %v", err)
	}
}

func TestLoginUsernamePassword(t *testing.T) {
	s := NewStore(4)
	s.CreateUsernamePasswordProfile("p1", "alice", "hunter2")

	if _, err := s.Login(UsernameAndPassword{Username: "alice", Password: "hunter2"}); err != nil {
		t.Fatalf("expected successful login, got %v", err)
	}
	if _, err := s.Login(UsernameAndPassword{Username: "alice", Password: "wrong"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Login(UsernameAndPassword{Username: "bob", Password: "x"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLoginBasicToken(t *testing.T) {
	s := NewStore(4)
	s.CreateBasicTokenProfile("p1", "secret-token")

	if _, err := s.Login(BasicToken{Token: "secret-token"}); err != nil {
		t.Fatalf("expected successful login, got %v", err)
	}
	if _, err := s.Login(BasicToken{Token: "wrong-token"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSessionSlidingTTL(t *testing.T) {
	sessions := NewSessions(15 * time.Second)
	now := time.Now()
	sessions.nowFn = func() time.Time { return now }

	sess, err := sessions.CreateSession("p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.IsLive(now, 15*time.Second) {
		t.Fatal("expected freshly created session to be live")
	}

	now = now.Add(20 * time.Second)
	if sess.IsLive(now, 15*time.Second) {
		t.Fatal("expected session to have expired after TTL elapsed")
	}

	if sessions.ExtendSession(sess.Token) {
		t.Fatal("expected ExtendSession to report not-live for an expired session")
	}
	// ExtendSession still refreshes last-active even when it reports the
	// prior state was expired (spec.md §4.8: "updates last-active and
	// returns whether the session was live").
	if !sess.IsLive(now, 15*time.Second) {
		t.Fatal("expected ExtendSession to refresh last-active regardless of prior liveness")
	}
}

func TestCreateSessionReusesLiveSession(t *testing.T) {
	sessions := NewSessions(15 * time.Second)
	s1, _ := sessions.CreateSession("p1")
	s2, _ := sessions.CreateSession("p1")
	if s1.Token != s2.Token {
		t.Fatal("expected reconnect within TTL to reuse the existing session token")
	}
}

func TestSweepDropsExpiredSessions(t *testing.T) {
	sessions := NewSessions(15 * time.Second)
	now := time.Now()
	sessions.nowFn = func() time.Time { return now }
	sess, _ := sessions.CreateSession("p1")

	now = now.Add(30 * time.Second)
	dropped := sessions.Sweep()
	if dropped != 1 {
		t.Fatalf("expected one expired session swept, got %d", dropped)
	}
	if _, ok := sessions.Get(sess.Token); ok {
		t.Fatal("expected expired session removed from the token map")
	}
}
