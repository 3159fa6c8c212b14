package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/mailer"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/internal/storage/memory"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil, "https://civicmap.test", nil)

	created, err := svc.Register(context.Background(), " Anna@Example.COM ", "anna", "supersecret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Email != "anna@example.com" {
		t.Fatalf("email not normalised: %s", created.Email)
	}
	if !created.HasRole(user.RoleUser) {
		t.Fatalf("default role missing: %v", created.Roles)
	}
	if created.PasswordHash == "supersecret" {
		t.Fatal("password stored in clear")
	}

	authed, token, err := svc.Authenticate(context.Background(), "anna@example.com", "supersecret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != created.ID {
		t.Fatalf("wrong user authenticated: %s", authed.ID)
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Subject != created.ID {
		t.Fatalf("token subject mismatch: %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != user.RoleUser {
		t.Fatalf("token roles mismatch: %v", claims.Roles)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil, "https://civicmap.test", nil)
	if _, err := svc.Register(context.Background(), "a@b.c", "a", "supersecret"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Authenticate(context.Background(), "a@b.c", "wrong-password"); err == nil {
		t.Fatal("expected error for wrong password")
	}
	if _, _, err := svc.Authenticate(context.Background(), "nobody@b.c", "supersecret"); err == nil {
		t.Fatal("expected error for unknown email")
	}
}

func TestAuthenticateRejectsDeactivated(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil, "https://civicmap.test", nil)
	u, err := svc.Register(context.Background(), "a@b.c", "a", "supersecret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.SetActive(context.Background(), u.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, _, err := svc.Authenticate(context.Background(), "a@b.c", "supersecret"); err == nil {
		t.Fatal("expected error for deactivated account")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil, "https://civicmap.test", nil)
	cases := []struct {
		email, username, password string
	}{
		{"not-an-email", "a", "supersecret"},
		{"", "a", "supersecret"},
		{"a@b.c", "", "supersecret"},
		{"a@b.c", "a", "short"},
	}
	for _, c := range cases {
		if _, err := svc.Register(context.Background(), c.email, c.username, c.password); err == nil {
			t.Fatalf("expected error for %q/%q/%q", c.email, c.username, c.password)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil, "https://civicmap.test", nil)
	if _, err := svc.Register(context.Background(), "a@b.c", "first", "supersecret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(context.Background(), "a@b.c", "second", "supersecret")
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSetRoles(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil, "https://civicmap.test", nil)
	u, err := svc.Register(context.Background(), "a@b.c", "a", "supersecret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	updated, err := svc.SetRoles(context.Background(), u.ID, []string{user.RoleAdmin, user.RoleUser})
	if err != nil {
		t.Fatalf("set roles: %v", err)
	}
	if !updated.IsAdmin() {
		t.Fatalf("admin role not applied: %v", updated.Roles)
	}

	if _, err := svc.SetRoles(context.Background(), u.ID, []string{"superuser"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestVerifyTokenRejectsForeignSignature(t *testing.T) {
	issuer := New(memory.New(), "secret-one", time.Hour, nil, "https://civicmap.test", nil)
	verifier := New(memory.New(), "secret-two", time.Hour, nil, "https://civicmap.test", nil)

	u, err := issuer.Register(context.Background(), "a@b.c", "a", "supersecret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_, token, err := issuer.Authenticate(context.Background(), "a@b.c", "supersecret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	_ = u

	if _, err := verifier.VerifyToken(token); err == nil {
		t.Fatal("expected verification failure with different secret")
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil, "https://civicmap.test", nil)
	u, err := svc.Register(context.Background(), "a@b.c", "a", "supersecret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	first, err := svc.Confirm(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if first.ConfirmedAt == nil {
		t.Fatal("confirmation timestamp not set")
	}
	second, err := svc.Confirm(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("confirm again: %v", err)
	}
	if !second.ConfirmedAt.Equal(*first.ConfirmedAt) {
		t.Fatal("confirmation timestamp changed on replay")
	}
}

type captureProvider struct {
	messages []mailer.Message
}

func (p *captureProvider) Send(_ context.Context, _ string, msg mailer.Message) error {
	p.messages = append(p.messages, msg)
	return nil
}

func TestRegisterSendsWelcomeEmail(t *testing.T) {
	provider := &captureProvider{}
	mail := mailer.New(provider, nil, "no-reply@civicmap.test", "", nil)
	svc := New(memory.New(), "test-secret", time.Hour, mail, "https://civicmap.test", nil)

	if _, err := svc.Register(context.Background(), "anna@example.com", "anna", "supersecret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(provider.messages) != 1 {
		t.Fatalf("expected one welcome email, got %d", len(provider.messages))
	}
	msg := provider.messages[0]
	if msg.To[0] != "anna@example.com" {
		t.Fatalf("welcome sent to %v", msg.To)
	}
	if !strings.Contains(msg.HTML, "https://civicmap.test/confirma?token=") {
		t.Fatal("welcome email missing confirmation link")
	}
}

func TestConfirmByToken(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil, "https://civicmap.test", nil)
	u, err := svc.Register(context.Background(), "anna@example.com", "anna", "supersecret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, err := svc.ConfirmationToken(u)
	if err != nil {
		t.Fatalf("confirmation token: %v", err)
	}
	confirmed, err := svc.ConfirmByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("confirm by token: %v", err)
	}
	if confirmed.ConfirmedAt == nil {
		t.Fatal("account not confirmed")
	}

	// A reset token must not confirm an account.
	reset, err := svc.PasswordResetToken(u)
	if err != nil {
		t.Fatalf("reset token: %v", err)
	}
	if _, err := svc.ConfirmByToken(context.Background(), reset); err == nil {
		t.Fatal("reset token accepted as confirmation")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc := New(memory.New(), "test-secret", time.Hour, nil, "https://civicmap.test", nil)
	u, err := svc.Register(context.Background(), "anna@example.com", "anna", "supersecret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, err := svc.PasswordResetToken(u)
	if err != nil {
		t.Fatalf("reset token: %v", err)
	}
	if _, err := svc.ResetPassword(context.Background(), token, "short"); err == nil {
		t.Fatal("short password accepted")
	}
	if _, err := svc.ResetPassword(context.Background(), token, "brand-new-password"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	if _, _, err := svc.Authenticate(context.Background(), "anna@example.com", "supersecret"); err == nil {
		t.Fatal("old password still accepted")
	}
	if _, _, err := svc.Authenticate(context.Background(), "anna@example.com", "brand-new-password"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	provider := &captureProvider{}
	mail := mailer.New(provider, nil, "no-reply@civicmap.test", "", nil)
	svc := New(memory.New(), "test-secret", time.Hour, mail, "https://civicmap.test", nil)

	if err := svc.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown email should not error: %v", err)
	}
	if len(provider.messages) != 0 {
		t.Fatalf("no email expected, got %d", len(provider.messages))
	}
}
