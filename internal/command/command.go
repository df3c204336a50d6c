// Package command implements the external-command bridge from spec.md
// §4.10: HTTP handlers post commands onto a bounded queue, and the
// simulation drains it once per tick with exclusive entity-store
// access. It also carries the JWT-protected service bearer token used
// by admin/ops endpoints (SPEC_FULL.md §4.11), kept distinct from
// player session tokens.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed names a closed bridge. The bridge has no close
// operation, and Submit does not return this error.
var ErrQueueClosed = errors.New("command: bridge closed")

// Func is the mutating half of a command: it runs with exclusive
// entity-store access, once per tick, in submission order.
type Func func(ctx context.Context) (any, error)

// Validator is the read-only half of a command, run in parallel with
// other commands' validators before any mutation happens (grounded on
// the distributing-queue validate-then-apply split, SPEC_FULL.md §4.12).
// Returning an error skips the mutating half and that error becomes the
// command's result.
type Validator func(ctx context.Context) error

// Command is one unit of work posted to the bridge.
type Command struct {
	ID       string
	Validate Validator
	Run      Func
	reply    chan Result
}

// Result is delivered to a command's reply channel once it has run (or
// failed validation).
type Result struct {
	Value any
	Err   error
}

// Bridge is the bounded command queue between HTTP handlers and the
// simulation tick.
type Bridge struct {
	queue chan *Command
}

// NewBridge creates a bridge with the given capacity (spec.md §4.10:
// 1000, backpressure by blocking the handler when full).
func NewBridge(capacity int) *Bridge {
	return &Bridge{queue: make(chan *Command, capacity)}
}

// Submit posts a command and blocks until the queue accepts it or ctx
// is cancelled. The returned channel receives exactly one Result.
func (b *Bridge) Submit(ctx context.Context, validate Validator, run Func) (<-chan Result, error) {
	cmd := &Command{
		ID:       uuid.NewString(),
		Validate: validate,
		Run:      run,
		reply:    make(chan Result, 1),
	}
	select {
	case b.queue <- cmd:
		return cmd.reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitAndWait is a convenience wrapper that submits a command and
// blocks for its result.
func (b *Bridge) SubmitAndWait(ctx context.Context, validate Validator, run Func) (any, error) {
	reply, err := b.Submit(ctx, validate, run)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DrainAndApply drains every command currently queued, runs their
// Validate functions in parallel across the available commands
// (grounded on distributing_queue.rs's validate/apply split), then
// applies each surviving command's mutating half sequentially — so the
// simulation's single entity-store-owning goroutine never has two
// commands running Run() concurrently (spec.md §4.10).
func DrainAndApply(ctx context.Context, b *Bridge) int {
	var batch []*Command
drain:
	for {
		select {
		case cmd := <-b.queue:
			batch = append(batch, cmd)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return 0
	}

	validationErrs := make([]error, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, cmd := range batch {
		i, cmd := i, cmd
		g.Go(func() error {
			if cmd.Validate != nil {
				validationErrs[i] = cmd.Validate(gctx)
			}
			return nil
		})
	}
	g.Wait() // validators never return an error themselves; only record per-command failures

	for i, cmd := range batch {
		if err := validationErrs[i]; err != nil {
			cmd.reply <- Result{Err: err}
			continue
		}
		value, err := cmd.Run(ctx)
		cmd.reply <- Result{Value: value, Err: err}
	}
	return len(batch)
}

// ServiceAuth signs and validates the short-lived bearer token admin/ops
// endpoints require in addition to normal player auth (SPEC_FULL.md
// §4.11). Distinct from player session tokens, which stay opaque and
// server-tracked so liveness ties to the sliding-TTL invariant rather
// than a stateless exp claim.
type ServiceAuth struct {
	secret []byte
	ttl    time.Duration
}

func NewServiceAuth(secret string, ttl time.Duration) *ServiceAuth {
	return &ServiceAuth{secret: []byte(secret), ttl: ttl}
}

type serviceClaims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a short-lived service token for subject (an operator
// or ops-tool identifier).
func (a *ServiceAuth) IssueToken(subject string) (string, error) {
	now := time.Now()
	claims := serviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken verifies signature and expiry and returns the subject.
func (a *ServiceAuth) ValidateToken(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &serviceClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("command: unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*serviceClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("command: invalid service token")
	}
	return claims.Subject, nil
}
