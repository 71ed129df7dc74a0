package authtransport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"

	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/inmem"
	"github.com/taskdeck-io/taskdeck/pkg/authendpoint"
	"github.com/taskdeck-io/taskdeck/pkg/authservice"
)

type fakeUserRepository struct {
	users  map[uint64]taskdeck.User
	nextID uint64
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

type captureMailer struct {
	token string
}

func (m *captureMailer) SendPasswordReset(email, token string) error {
	m.token = token
	return nil
}

func newAuthServer(t *testing.T) (*httptest.Server, *captureMailer) {
	t.Helper()

	mailer := &captureMailer{}
	kv := &fakeKV{store: make(map[string][]byte)}
	svc := authservice.New(
		&fakeUserRepository{users: make(map[uint64]taskdeck.User)},
		&fakeResetRepository{resets: make(map[uint64]taskdeck.PasswordReset)},
		authservice.NewTokenizer(),
		kv,
		mailer,
		log.NewNopLogger(),
	)

	server := httptest.NewServer(NewHTTPHandler(authendpoint.New(svc, log.NewNopLogger()), kv, log.NewNopLogger()))
	t.Cleanup(server.Close)
	return server, mailer
}

func register(t *testing.T, server *httptest.Server, email, password string) taskdeck.User {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(server.URL+"/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /register: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}

	var u taskdeck.User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return u
}

func TestRegisterWire(t *testing.T) {
	server, _ := newAuthServer(t)

	u := register(t, server, "alice@example.com", "pw")
	if u.ID == 0 || u.Email != "alice@example.com" || u.Role != taskdeck.RoleMember {
		t.Errorf("user = %+v", u)
	}
	if u.HashedPassword != "" {
		t.Error("hashed password leaked over the wire")
	}
}

func TestLoginIsFormEncoded(t *testing.T) {
	server, _ := newAuthServer(t)
	register(t, server, "alice@example.com", "pw")

	form := url.Values{"username": {"alice@example.com"}, "password": {"pw"}}
	resp, err := http.PostForm(server.URL+"/login", form)
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AccessToken == "" || body.TokenType != "bearer" {
		t.Errorf("body = %+v", body)
	}
	// API clients have no cookie jar; they read the refresh token from the
	// body and post it back to /refresh.
	if body.RefreshToken == "" {
		t.Error("no refresh_token in the body")
	}

	// The refresh token rides in a cookie scoped to the refresh route.
	var refreshCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "refresh_token" {
			refreshCookie = c
		}
	}
	if refreshCookie == nil {
		t.Fatal("no refresh_token cookie set")
	}
	if !refreshCookie.HttpOnly || refreshCookie.Path != "/refresh" {
		t.Errorf("cookie = %+v", refreshCookie)
	}
	if strings.Contains(refreshCookie.Value, ".") {
		t.Error("refresh cookie looks like a raw JWT; it must be encrypted")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	server, _ := newAuthServer(t)
	register(t, server, "alice@example.com", "pw")

	form := url.Values{"username": {"alice@example.com"}, "password": {"nope"}}
	resp, err := http.PostForm(server.URL+"/login", form)
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestIdentityIsFlat(t *testing.T) {
	server, _ := newAuthServer(t)
	register(t, server, "alice@example.com", "pw")

	form := url.Values{"username": {"alice@example.com"}, "password": {"pw"}}
	loginResp, err := http.PostForm(server.URL+"/login", form)
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	defer loginResp.Body.Close()

	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	json.NewDecoder(loginResp.Body).Decode(&tokens)

	req, _ := http.NewRequest("GET", server.URL+"/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /users/me: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// Flat object, not wrapped in a response envelope.
	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw["email"] != "alice@example.com" {
		t.Errorf(`raw["email"] = %v`, raw["email"])
	}
	if _, wrapped := raw["user"]; wrapped {
		t.Error("identity response is wrapped")
	}
}

func TestIdentityWithoutToken(t *testing.T) {
	server, _ := newAuthServer(t)

	resp, err := http.Get(server.URL + "/users/me")
	if err != nil {
		t.Fatalf("GET /users/me: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	server, mailer := newAuthServer(t)
	register(t, server, "alice@example.com", "old")

	body, _ := json.Marshal(map[string]string{"email": "alice@example.com"})
	resp, err := http.Post(server.URL+"/forgot-password", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /forgot-password: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if mailer.token == "" {
		t.Fatal("no reset token mailed")
	}

	body, _ = json.Marshal(map[string]string{"token": mailer.token, "new_password": "new"})
	resp, err = http.Post(server.URL+"/reset-password", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /reset-password: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}

	form := url.Values{"username": {"alice@example.com"}, "password": {"new"}}
	loginResp, err := http.PostForm(server.URL+"/login", form)
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	loginResp.Body.Close()
	if loginResp.StatusCode != http.StatusOK {
		t.Errorf("login with new password: status = %d", loginResp.StatusCode)
	}

	// The token is single use.
	body, _ = json.Marshal(map[string]string{"token": mailer.token, "new_password": "again"})
	resp, err = http.Post(server.URL+"/reset-password", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /reset-password: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("reuse status = %d, want 400", resp.StatusCode)
	}
}
