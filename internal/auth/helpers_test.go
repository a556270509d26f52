package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/org"
	"github.com/Chitrarthrai/NeoCompliance/internal/store/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store  *memory.Store
	clock  *testClock
	tokens *auth.TokenService
	dir    *auth.Directory
	org    *org.Service
	svc    *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	clock := newTestClock()
	tokens, err := auth.NewTokenService("access-secret", "refresh-secret", st,
		auth.WithIssuer("neocompliance-test"),
		auth.WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	dir := auth.NewDirectory(st.Users(), st.Inspectors())
	orgSvc := org.NewService(st, dir)
	svc := auth.NewService(dir, tokens,
		auth.WithHasher(auth.Bcrypt{Cost: bcrypt.MinCost}),
		auth.WithMemberships(orgSvc),
		auth.WithTimeSource(clock.Now),
	)
	return &fixture{store: st, clock: clock, tokens: tokens, dir: dir, org: orgSvc, svc: svc}
}

func (f *fixture) createStore(t *testing.T, name string) org.Store {
	t.Helper()
	st, err := f.org.CreateStore(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	return st
}

func (f *fixture) createUser(t *testing.T, name, email, role string, stores ...string) auth.Identity {
	t.Helper()
	identity, err := f.svc.CreateUser(context.Background(), auth.NewUser{
		Name:           name,
		Email:          email,
		Password:       "rightpw12",
		Role:           role,
		AssignedStores: stores,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return identity
}
