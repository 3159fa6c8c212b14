// Package users manages account registration, authentication and roles.
package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/mailer"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Service manages user accounts.
type Service struct {
	store     storage.UserStore
	jwtSecret []byte
	tokenTTL  time.Duration
	mail      *mailer.Service
	baseURL   string
	log       *logger.Logger
}

// New constructs a user service. mail may be nil, in which case the welcome,
// confirmation and password reset messages are skipped.
func New(store storage.UserStore, jwtSecret string, tokenTTL time.Duration, mail *mailer.Service, baseURL string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		mail:      mail,
		baseURL:   strings.TrimRight(baseURL, "/"),
		log:       log,
	}
}

// Register creates an account with a hashed password and the default role.
func (s *Service) Register(ctx context.Context, email, username, password string) (user.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if email == "" || !strings.Contains(email, "@") {
		return user.User{}, fmt.Errorf("a valid email is required")
	}
	if username == "" {
		return user.User{}, fmt.Errorf("username is required")
	}
	if len(password) < 8 {
		return user.User{}, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Active:       true,
		Roles:        []string{user.RoleUser},
	})
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", created.ID).Info("user registered")
	s.sendWelcome(ctx, created)
	return created, nil
}

// sendWelcome mails the new account a greeting with its confirmation link.
// Delivery failures are logged, never surfaced to the caller.
func (s *Service) sendWelcome(ctx context.Context, u user.User) {
	if s.mail == nil {
		return
	}
	token, err := s.ConfirmationToken(u)
	if err != nil {
		s.log.WithError(err).Warn("confirmation token")
		return
	}
	html, err := mailer.Render(mailer.TemplateWelcome, map[string]interface{}{
		"Name": u.Username,
		"URL":  s.baseURL + "/confirma?token=" + token,
	})
	if err != nil {
		s.log.WithError(err).Warn("render welcome email")
		return
	}
	if err := s.mail.Send(ctx, mailer.Message{
		To:      []string{u.Email},
		Subject: "Benvingut! Confirma el teu correu",
		HTML:    html,
	}); err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("welcome email")
	}
}

// Authenticate checks credentials and returns the user with a signed token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (user.User, string, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return user.User{}, "", fmt.Errorf("invalid credentials")
	}
	if !u.Active {
		return user.User{}, "", fmt.Errorf("account is deactivated")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return user.User{}, "", fmt.Errorf("invalid credentials")
	}

	token, err := s.issueToken(u)
	if err != nil {
		return user.User{}, "", err
	}
	s.log.WithField("user_id", u.ID).Info("user authenticated")
	return u, token, nil
}

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (s *Service) issueToken(u user.User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Roles: u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses a token and returns its claims.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Action token purposes. Confirmation and reset links carry a purpose claim
// so one kind of token cannot be replayed as the other.
const (
	purposeConfirmEmail  = "confirm_email"
	purposePasswordReset = "password_reset"
)

type actionClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (s *Service) issueActionToken(u user.User, purpose string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := actionClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

func (s *Service) verifyActionToken(tokenString, purpose string) (string, error) {
	claims := &actionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid or expired token")
	}
	if claims.Purpose != purpose {
		return "", fmt.Errorf("invalid or expired token")
	}
	return claims.Subject, nil
}

// ConfirmationToken mints the email confirmation token sent to new accounts.
func (s *Service) ConfirmationToken(u user.User) (string, error) {
	return s.issueActionToken(u, purposeConfirmEmail, 72*time.Hour)
}

// PasswordResetToken mints a short-lived reset token for the user.
func (s *Service) PasswordResetToken(u user.User) (string, error) {
	return s.issueActionToken(u, purposePasswordReset, time.Hour)
}

// ConfirmByToken marks the account from a confirmation link as confirmed.
func (s *Service) ConfirmByToken(ctx context.Context, token string) (user.User, error) {
	id, err := s.verifyActionToken(token, purposeConfirmEmail)
	if err != nil {
		return user.User{}, err
	}
	return s.Confirm(ctx, id)
}

// RequestPasswordReset emails a reset link to the account. Unknown addresses
// are reported as success so the endpoint does not leak which emails exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil
	}
	if s.mail == nil {
		return nil
	}
	token, err := s.PasswordResetToken(u)
	if err != nil {
		return err
	}
	html, err := mailer.Render(mailer.TemplatePasswordReset, map[string]interface{}{
		"Name": u.Username,
		"URL":  s.baseURL + "/restableix?token=" + token,
	})
	if err != nil {
		return err
	}
	return s.mail.Send(ctx, mailer.Message{
		To:      []string{u.Email},
		Subject: "Restableix la teva contrasenya",
		HTML:    html,
	})
}

// ResetPassword sets a new password from a reset link token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) (user.User, error) {
	id, err := s.verifyActionToken(token, purposePasswordReset)
	if err != nil {
		return user.User{}, err
	}
	if len(password) < 8 {
		return user.User{}, fmt.Errorf("password must be at least 8 characters")
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", id).Info("password reset")
	return updated, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// SetRoles replaces a user's roles. Only known role names are accepted.
func (s *Service) SetRoles(ctx context.Context, id string, roles []string) (user.User, error) {
	for _, r := range roles {
		switch r {
		case user.RoleAdmin, user.RoleSectionResponsible, user.RoleUser:
		default:
			return user.User{}, fmt.Errorf("unknown role %q", r)
		}
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	u.Roles = roles
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", id).WithField("roles", strings.Join(roles, ",")).Info("roles updated")
	return updated, nil
}

// SetSection assigns the census section a section responsible moderates.
// A nil sectionID clears the assignment.
func (s *Service) SetSection(ctx context.Context, id string, sectionID *string) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	u.SectionID = sectionID
	return s.store.UpdateUser(ctx, u)
}

// SetActive activates or deactivates an account.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	u.Active = active
	return s.store.UpdateUser(ctx, u)
}

// Confirm marks the user's email address as confirmed.
func (s *Service) Confirm(ctx context.Context, id string) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	if u.ConfirmedAt == nil {
		now := time.Now().UTC()
		u.ConfirmedAt = &now
	}
	return s.store.UpdateUser(ctx, u)
}
