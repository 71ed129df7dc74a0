package authservice

import (
	"context"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-kit/kit/log"
	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/inmem"
	stduuid "github.com/twinj/uuid"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepository struct {
	users  map[uint64]taskdeck.User
	nextID uint64
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: make(map[uint64]taskdeck.User)}
}

func (r *fakeUserRepository) Create(user taskdeck.User) (taskdeck.User, error) {
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepository) Find(userID uint64) (taskdeck.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return taskdeck.User{}, taskdeck.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepository) FindByEmail(email string) (taskdeck.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return taskdeck.User{}, taskdeck.ErrUserNotFound
}

func (r *fakeUserRepository) UpdatePassword(userID uint64, hashedPassword string) error {
	u, ok := r.users[userID]
	if !ok {
		return taskdeck.ErrUserNotFound
	}
	u.HashedPassword = hashedPassword
	r.users[userID] = u
	return nil
}

type fakeResetRepository struct {
	resets map[uint64]taskdeck.PasswordReset
	nextID uint64
}

func newFakeResetRepository() *fakeResetRepository {
	return &fakeResetRepository{resets: make(map[uint64]taskdeck.PasswordReset)}
}

func (r *fakeResetRepository) Create(reset taskdeck.PasswordReset) (taskdeck.PasswordReset, error) {
	r.nextID++
	reset.ID = r.nextID
	r.resets[reset.ID] = reset
	return reset, nil
}

func (r *fakeResetRepository) FindByToken(token string) (taskdeck.PasswordReset, error) {
	for _, reset := range r.resets {
		if reset.Token == token {
			return reset, nil
		}
	}
	return taskdeck.PasswordReset{}, taskdeck.ErrResetTokenInvalid
}

func (r *fakeResetRepository) Delete(resetID uint64) error {
	delete(r.resets, resetID)
	return nil
}

type fakeKV struct {
	store map[string][]byte
}

func newFakeKV() *fakeKV {
	return &fakeKV{store: make(map[string][]byte)}
}

func (c *fakeKV) Get(key string) error {
	if _, ok := c.store[key]; !ok {
		return inmem.ErrKeyNotFound
	}
	return nil
}

func (c *fakeKV) Put(key string, value []byte) error {
	c.store[key] = value
	return nil
}

func (c *fakeKV) Delete(key string) error {
	delete(c.store, key)
	return nil
}

type fakeMailer struct {
	sentTo    []string
	sentToken string
}

func (m *fakeMailer) SendPasswordReset(email, token string) error {
	m.sentTo = append(m.sentTo, email)
	m.sentToken = token
	return nil
}

type testEnv struct {
	svc    Service
	users  *fakeUserRepository
	resets *fakeResetRepository
	kv     *fakeKV
	mailer *fakeMailer
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:  newFakeUserRepository(),
		resets: newFakeResetRepository(),
		kv:     newFakeKV(),
		mailer: &fakeMailer{},
	}
	env.svc = New(env.users, env.resets, NewTokenizer(), env.kv, env.mailer, log.NewNopLogger())
	return env
}

func (e *testEnv) register(t *testing.T, email, password string) taskdeck.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return u
}

func TestRegister(t *testing.T) {
	env := newTestEnv()

	u := env.register(t, "alice@example.com", "s3cret")
	if u.Role != taskdeck.RoleMember {
		t.Errorf("Role = %q, want %q", u.Role, taskdeck.RoleMember)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte("s3cret")) != nil {
		t.Error("stored hash does not verify the password")
	}
	if u.HashedPassword == "s3cret" {
		t.Error("password stored in clear")
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "not-an-address", "x"); err != taskdeck.ErrInvalidArgument {
		t.Errorf("bad email: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := env.svc.Register(ctx, "bob@example.com", ""); err != taskdeck.ErrInvalidArgument {
		t.Errorf("empty password: err = %v, want ErrInvalidArgument", err)
	}

	env.register(t, "carol@example.com", "pw")
	if _, err := env.svc.Register(ctx, "carol@example.com", "pw2"); err != taskdeck.ErrEmailTaken {
		t.Errorf("duplicate: err = %v, want ErrEmailTaken", err)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice@example.com", "s3cret")

	tokens, err := env.svc.Login(context.Background(), "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tokens.Access == "" || tokens.Refresh == "" {
		t.Fatal("expected both tokens")
	}
	if len(env.kv.store) != 2 {
		t.Errorf("registry holds %d keys, want 2", len(env.kv.store))
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice@example.com", "s3cret")
	ctx := context.Background()

	if _, err := env.svc.Login(ctx, "alice@example.com", "wrong"); err != taskdeck.ErrInvalidCredentials {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.svc.Login(ctx, "nobody@example.com", "s3cret"); err != taskdeck.ErrInvalidCredentials {
		t.Errorf("unknown email: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAccessTokenClaims(t *testing.T) {
	env := newTestEnv()
	u := env.register(t, "alice@example.com", "s3cret")
	env.users.users[u.ID] = taskdeck.User{ID: u.ID, Email: u.Email, HashedPassword: u.HashedPassword, Role: taskdeck.RoleManager}

	tokens, err := env.svc.Login(context.Background(), "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	parsed, err := jwt.Parse(tokens.Access, func(*jwt.Token) (interface{}, error) {
		return []byte(taskdeck.AccessSecret), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("access token does not verify: %v", err)
	}

	claims := parsed.Claims.(jwt.MapClaims)
	if claims["uuid"] == "" {
		t.Error("missing uuid claim")
	}
	if got := uint64(claims["user_id"].(float64)); got != u.ID {
		t.Errorf("user_id = %d, want %d", got, u.ID)
	}
	if claims["role"] != string(taskdeck.RoleManager) {
		t.Errorf("role = %v, want manager", claims["role"])
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	env := newTestEnv()
	u := env.register(t, "alice@example.com", "s3cret")
	env.svc.Login(context.Background(), "alice@example.com", "s3cret")

	// Logout derives the refresh UUID from the access UUID, so pick the key
	// whose derivation is also present in the registry.
	var accessUUID string
	for key := range env.kv.store {
		if _, ok := env.kv.store[stduuid.NewV5(stduuid.NameSpaceURL, key).String()]; ok {
			accessUUID = key
			break
		}
	}
	if accessUUID == "" {
		t.Fatal("could not locate the access UUID in the registry")
	}

	ok, err := env.svc.Logout(context.Background(), taskdeck.Auth{AccessUUID: accessUUID, UserID: u.ID})
	if err != nil || !ok {
		t.Fatalf("Logout = %t, %v", ok, err)
	}
	if len(env.kv.store) != 0 {
		t.Errorf("registry still holds %d keys after logout", len(env.kv.store))
	}
}

func TestIdentity(t *testing.T) {
	env := newTestEnv()
	u := env.register(t, "alice@example.com", "s3cret")
	ctx := context.Background()

	got, err := env.svc.Identity(ctx, taskdeck.Auth{AccessUUID: "x", UserID: u.ID})
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q", got.Email)
	}

	if _, err := env.svc.Identity(ctx, taskdeck.Auth{}); err != taskdeck.ErrClaimsMissing {
		t.Errorf("zero user: err = %v, want ErrClaimsMissing", err)
	}
}

func TestForgotPasswordDoesNotEnumerate(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice@example.com", "s3cret")
	ctx := context.Background()

	known, err := env.svc.ForgotPassword(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	unknown, err := env.svc.ForgotPassword(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	if known != unknown {
		t.Error("responses differ between known and unknown addresses")
	}
	if len(env.mailer.sentTo) != 1 || env.mailer.sentTo[0] != "alice@example.com" {
		t.Errorf("mail sent to %v, want only the known address", env.mailer.sentTo)
	}
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv()
	env.register(t, "alice@example.com", "old-pw")
	ctx := context.Background()

	env.svc.ForgotPassword(ctx, "alice@example.com")
	token := env.mailer.sentToken
	if token == "" {
		t.Fatal("no reset token issued")
	}

	if err := env.svc.ResetPassword(ctx, token, "new-pw"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := env.svc.Login(ctx, "alice@example.com", "new-pw"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if _, err := env.svc.Login(ctx, "alice@example.com", "old-pw"); err != taskdeck.ErrInvalidCredentials {
		t.Errorf("login with old password: err = %v, want ErrInvalidCredentials", err)
	}

	// Single use.
	if err := env.svc.ResetPassword(ctx, token, "another"); err != taskdeck.ErrResetTokenInvalid {
		t.Errorf("reuse: err = %v, want ErrResetTokenInvalid", err)
	}
}

func TestResetPasswordExpiry(t *testing.T) {
	env := newTestEnv()
	u := env.register(t, "alice@example.com", "pw")

	expired, _ := env.resets.Create(taskdeck.PasswordReset{
		UserID:    u.ID,
		Token:     "stale-token",
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-2 * time.Hour),
	})

	if err := env.svc.ResetPassword(context.Background(), "stale-token", "new"); err != taskdeck.ErrResetTokenInvalid {
		t.Errorf("err = %v, want ErrResetTokenInvalid", err)
	}
	if _, err := env.resets.FindByToken(expired.Token); err == nil {
		t.Error("expired token should be purged on use")
	}
}
