// Package authtest builds a fully wired engine over miniredis and the
// in-memory user repository for tests in other packages.
package authtest

import (
	"context"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/userstore/memory"
)

// StrongPassword satisfies the default policy.
const StrongPassword = "Correct-Horse-9"

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Outbox records every message the engine sends. Reads wait for mail the
// engine sends in the background.
type Outbox struct {
	mu    sync.Mutex
	msgs  []tokenauth.Message
	err   error
	flush func()
}

// Send implements tokenauth.Notifier.
func (o *Outbox) Send(_ context.Context, msg tokenauth.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

// FailWith makes later sends return err.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// Messages returns a copy of the messages sent to addr, oldest first.
func (o *Outbox) Messages(addr string) []tokenauth.Message {
	if o.flush != nil {
		o.flush()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []tokenauth.Message
	for _, m := range o.msgs {
		if m.To == addr {
			out = append(out, m)
		}
	}
	return out
}

var linkToken = regexp.MustCompile(`(/verify-email|/reset-password)\?token=([^\s"<]+)`)

// Token returns the token of the newest link to path ("/verify-email" or
// "/reset-password") mailed to addr.
func (o *Outbox) Token(t testing.TB, addr, path string) string {
	t.Helper()
	msgs := o.Messages(addr)
	for i := len(msgs) - 1; i >= 0; i-- {
		for _, m := range linkToken.FindAllStringSubmatch(msgs[i].Text, -1) {
			if m[1] != path {
				continue
			}
			tok, err := url.QueryUnescape(m[2])
			if err != nil {
				t.Fatalf("unescape token: %v", err)
			}
			return tok
		}
	}
	t.Fatalf("no %s link mailed to %s", path, addr)
	return ""
}

// Harness bundles an engine with its fakes.
type Harness struct {
	Engine *tokenauth.Engine
	Config tokenauth.Config
	Redis  *miniredis.Miniredis
	Client *redis.Client
	Users  *memory.Repository
	Mail   *Outbox
	Clock  *Clock
}

// Config returns a valid configuration with cheap hashing.
func Config() tokenauth.Config {
	cfg := tokenauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-for-tests-0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-for-tests-012345678")
	cfg.Password.Algorithm = password.AlgorithmBcrypt
	cfg.Password.BcryptCost = bcrypt.MinCost
	return cfg
}

// New starts miniredis and builds an engine. mutate may adjust the
// configuration returned by [Config].
func New(t testing.TB, mutate ...func(*tokenauth.Config)) *Harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := Config()
	for _, m := range mutate {
		m(&cfg)
	}

	h := &Harness{
		Config: cfg,
		Redis:  mr,
		Client: client,
		Users:  memory.New(),
		Mail:   &Outbox{},
		Clock:  &Clock{now: time.Now().UTC().Truncate(time.Second)},
	}

	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserRepository(h.Users).
		WithNotifier(h.Mail).
		WithClock(h.Clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	h.Engine = engine
	h.Mail.flush = func() { _ = engine.WaitNotifications(context.Background()) }
	t.Cleanup(h.Mail.flush)
	return h
}

// Advance moves the engine clock and Redis TTLs forward by d.
func (h *Harness) Advance(d time.Duration) {
	h.Clock.advance(d)
	h.Redis.FastForward(d)
}

// Register creates an account and fails the test on error.
func (h *Harness) Register(t testing.TB, email string) *tokenauth.RegisterResult {
	t.Helper()
	res, err := h.Engine.Register(context.Background(), tokenauth.RegisterRequest{Email: email, Password: StrongPassword})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

// RegisterVerified creates an account and confirms its email.
func (h *Harness) RegisterVerified(t testing.TB, email string) *tokenauth.RegisterResult {
	t.Helper()
	res := h.Register(t, email)
	if err := h.Engine.VerifyEmail(context.Background(), h.Mail.Token(t, email, "/verify-email")); err != nil {
		t.Fatalf("verify %s: %v", email, err)
	}
	return res
}
