package authservice

import (
	"context"
	"net/mail"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-kit/kit/log"
	"github.com/taskdeck-io/taskdeck"
	"github.com/taskdeck-io/taskdeck/inmem"
	stduuid "github.com/twinj/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Tokens is the credential pair issued on login and refresh. Browser
// clients receive the refresh token in an encrypted cookie; API clients
// read it from the response body and post it back on refresh.
type Tokens struct {
	Access  string
	Refresh string
}

type Service interface {
	Register(ctx context.Context, email, password string) (taskdeck.User, error)
	Login(ctx context.Context, email, password string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	Logout(ctx context.Context, a taskdeck.Auth) (bool, error)
	Identity(ctx context.Context, a taskdeck.Auth) (taskdeck.User, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

func New(u taskdeck.UserRepository, r taskdeck.PasswordResetRepository, t Tokenizer, c inmem.Client, m Mailer, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(u, r, t, c, m)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	users     taskdeck.UserRepository
	resets    taskdeck.PasswordResetRepository
	tokenizer Tokenizer
	client    inmem.Client
	mailer    Mailer
}

func NewBasicService(u taskdeck.UserRepository, r taskdeck.PasswordResetRepository, t Tokenizer, c inmem.Client, m Mailer) Service {
	return &basicService{users: u, resets: r, tokenizer: t, client: c, mailer: m}
}

func (s *basicService) Register(_ context.Context, email, password string) (taskdeck.User, error) {
	if _, err := mail.ParseAddress(email); err != nil || password == "" {
		return taskdeck.User{}, taskdeck.ErrInvalidArgument
	}

	if _, err := s.users.FindByEmail(email); err == nil {
		return taskdeck.User{}, taskdeck.ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return taskdeck.User{}, err
	}

	return s.users.Create(taskdeck.User{
		Email:          email,
		HashedPassword: string(hashed),
		Role:           taskdeck.RoleMember,
	})
}

func (s *basicService) Login(_ context.Context, email, password string) (*Tokens, error) {
	if email == "" || password == "" {
		return nil, taskdeck.ErrInvalidArgument
	}

	user, err := s.users.FindByEmail(email)
	if err != nil {
		return nil, taskdeck.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return nil, taskdeck.ErrInvalidCredentials
	}

	at, rt, err := s.tokenizer.Generate(user)
	if err != nil {
		return nil, err
	}

	s.storeTokens(at, rt)

	return &Tokens{Access: at.Hash, Refresh: rt.Hash}, nil
}

func (s *basicService) Refresh(_ context.Context, refreshToken string) (*Tokens, error) {
	token, err := jwt.Parse(refreshToken, func(t *jwt.Token) (interface{}, error) {
		return []byte(taskdeck.RefreshSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, taskdeck.ErrInvalidCredentials
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, taskdeck.ErrClaimsInvalid
	}
	accessUUID, _ := claims["access_uuid"].(string)
	refreshUUID, _ := claims["refresh_uuid"].(string)
	userID, ok := claims["user_id"].(float64)
	if accessUUID == "" || refreshUUID == "" || !ok {
		return nil, taskdeck.ErrClaimsInvalid
	}

	if s.client.Get(refreshUUID) != nil {
		return nil, taskdeck.ErrInvalidCredentials
	}

	user, err := s.users.Find(uint64(userID))
	if err != nil {
		return nil, err
	}

	s.client.Delete(accessUUID)
	s.client.Delete(refreshUUID)

	at, rt, err := s.tokenizer.Generate(user)
	if err != nil {
		return nil, err
	}

	s.storeTokens(at, rt)

	return &Tokens{Access: at.Hash, Refresh: rt.Hash}, nil
}

func (s *basicService) Logout(_ context.Context, a taskdeck.Auth) (bool, error) {
	if a.AccessUUID == "" {
		return false, taskdeck.ErrInvalidArgument
	}

	ruuid := stduuid.NewV5(stduuid.NameSpaceURL, a.AccessUUID).String()

	var err error
	{
		err = s.client.Delete(a.AccessUUID)
		if err != nil {
			return false, err
		}
		err = s.client.Delete(ruuid)
		if err != nil {
			return false, err
		}
	}

	return true, nil
}

func (s *basicService) Identity(_ context.Context, a taskdeck.Auth) (taskdeck.User, error) {
	if a.UserID == 0 {
		return taskdeck.User{}, taskdeck.ErrClaimsMissing
	}
	return s.users.Find(a.UserID)
}

// ForgotPassword answers with the same message whether or not the address
// belongs to an account, so the endpoint cannot be used to enumerate users.
func (s *basicService) ForgotPassword(_ context.Context, email string) (string, error) {
	const msg = "If that email exists, a reset link has been sent."

	if email == "" {
		return "", taskdeck.ErrInvalidArgument
	}

	user, err := s.users.FindByEmail(email)
	if err != nil {
		return msg, nil
	}

	reset, err := s.resets.Create(taskdeck.PasswordReset{
		UserID:    user.ID,
		Token:     uuidV4().String(),
		ExpiresAt: time.Now().Add(PasswordResetExpiry()),
		CreatedAt: time.Now(),
	})
	if err != nil {
		return "", err
	}

	if err := s.mailer.SendPasswordReset(user.Email, reset.Token); err != nil {
		return "", err
	}

	return msg, nil
}

func (s *basicService) ResetPassword(_ context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return taskdeck.ErrInvalidArgument
	}

	reset, err := s.resets.FindByToken(token)
	if err != nil {
		return taskdeck.ErrResetTokenInvalid
	}
	if time.Now().After(reset.ExpiresAt) {
		s.resets.Delete(reset.ID)
		return taskdeck.ErrResetTokenInvalid
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(reset.UserID, string(hashed)); err != nil {
		return err
	}

	return s.resets.Delete(reset.ID)
}

func (s *basicService) storeTokens(at *AccessToken, rt *RefreshToken) {
	s.client.Put(at.UUID, []byte(at.Hash))
	s.client.Put(rt.RefreshUUID, []byte(rt.Hash))
}
