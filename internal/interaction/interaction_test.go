package interaction_test

import (
	"errors"
	"testing"
	"time"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/interaction"
	"github.com/grantwire/grantwire/internal/oauth2"
)

func consentFor(scopes ...string) *repository.Consent {
	return &repository.Consent{
		Subject:   "u1",
		ClientID:  "app",
		Scopes:    scopes,
		GrantedAt: time.Now(),
	}
}

func TestDecideGranted(t *testing.T) {
	d, err := interaction.Decide(interaction.Context{
		Session:         &interaction.Session{Subject: "u1"},
		Consent:         consentFor("openid", "profile"),
		RequestedScopes: []string{"openid"},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d != interaction.DecisionGranted {
		t.Fatalf("Decide = %q, want granted", d)
	}
}

func TestDecideNeedsLoginWithoutSession(t *testing.T) {
	d, err := interaction.Decide(interaction.Context{RequestedScopes: []string{"openid"}})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d != interaction.DecisionNeedLogin {
		t.Fatalf("Decide = %q, want needs-login", d)
	}
}

func TestDecidePromptNoneFailsInsteadOfRedirecting(t *testing.T) {
	// No session: login_required.
	_, err := interaction.Decide(interaction.Context{
		Prompts: []string{"none"},
	})
	if !errors.Is(err, oauth2.ErrNeedLogin) {
		t.Fatalf("prompt=none without session: err = %v, want login_required", err)
	}

	// Session but no consent: consent_required.
	_, err = interaction.Decide(interaction.Context{
		Prompts:         []string{"none"},
		Session:         &interaction.Session{Subject: "u1"},
		RequestedScopes: []string{"openid"},
	})
	if !errors.Is(err, oauth2.ErrNeedConsent) {
		t.Fatalf("prompt=none without consent: err = %v, want consent_required", err)
	}
}

func TestDecidePromptNoneCombined(t *testing.T) {
	_, err := interaction.Decide(interaction.Context{
		Prompts: []string{"none", "login"},
		Session: &interaction.Session{Subject: "u1"},
	})
	var oe *oauth2.Error
	if !errors.As(err, &oe) || oe.Code != oauth2.ErrInvalidRequest {
		t.Fatalf("prompt=none login: err = %v, want invalid_request", err)
	}
}

func TestDecidePromptLoginForcesReauth(t *testing.T) {
	ctx := interaction.Context{
		Prompts:         []string{"login"},
		Session:         &interaction.Session{Subject: "u1"},
		Consent:         consentFor("openid"),
		RequestedScopes: []string{"openid"},
	}
	d, err := interaction.Decide(ctx)
	if err != nil || d != interaction.DecisionNeedLogin {
		t.Fatalf("Decide = %q/%v, want needs-login", d, err)
	}

	ctx.Session.LoginPerformed = true
	d, err = interaction.Decide(ctx)
	if err != nil || d != interaction.DecisionGranted {
		t.Fatalf("after reauth Decide = %q/%v, want granted", d, err)
	}
}

func TestDecidePromptConsentForcesConsent(t *testing.T) {
	ctx := interaction.Context{
		Prompts:         []string{"consent"},
		Session:         &interaction.Session{Subject: "u1"},
		Consent:         consentFor("openid"),
		RequestedScopes: []string{"openid"},
	}
	d, err := interaction.Decide(ctx)
	if err != nil || d != interaction.DecisionNeedConsent {
		t.Fatalf("Decide = %q/%v, want needs-consent", d, err)
	}

	ctx.Session.ConsentPerformed = true
	d, err = interaction.Decide(ctx)
	if err != nil || d != interaction.DecisionGranted {
		t.Fatalf("after consent Decide = %q/%v, want granted", d, err)
	}
}

func TestDecideSelectAccount(t *testing.T) {
	ctx := interaction.Context{
		Prompts:         []string{"select_account"},
		Session:         &interaction.Session{Subject: "u1"},
		Consent:         consentFor("openid"),
		RequestedScopes: []string{"openid"},
	}
	d, err := interaction.Decide(ctx)
	if err != nil || d != interaction.DecisionNeedAccountSelect {
		t.Fatalf("Decide = %q/%v, want needs-account-selection", d, err)
	}
}

func TestDecideConsentScopeMismatch(t *testing.T) {
	d, err := interaction.Decide(interaction.Context{
		Session:         &interaction.Session{Subject: "u1"},
		Consent:         consentFor("openid"),
		RequestedScopes: []string{"openid", "email"},
	})
	if err != nil || d != interaction.DecisionNeedConsent {
		t.Fatalf("Decide = %q/%v, want needs-consent when scopes uncovered", d, err)
	}
}

func TestDecideRevokedConsent(t *testing.T) {
	at := time.Now()
	c := consentFor("openid")
	c.RevokedAt = &at
	d, err := interaction.Decide(interaction.Context{
		Session:         &interaction.Session{Subject: "u1"},
		Consent:         c,
		RequestedScopes: []string{"openid"},
	})
	if err != nil || d != interaction.DecisionNeedConsent {
		t.Fatalf("Decide = %q/%v, want needs-consent for revoked consent", d, err)
	}
}

func TestDecideDenied(t *testing.T) {
	d, err := interaction.Decide(interaction.Context{
		Session: &interaction.Session{Subject: "u1"},
		Denied:  true,
	})
	if err != nil || d != interaction.DecisionDenied {
		t.Fatalf("Decide = %q/%v, want denied", d, err)
	}
}
