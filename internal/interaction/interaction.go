// Package interaction decides how the authorization endpoint engages the
// end user. It is a pure function over (requested prompts, session state,
// consent record): no I/O, no clock, no storage. The hosting application
// performs the redirects the decision asks for and re-enters the flow
// with an updated Context.
package interaction

import (
	"strings"

	"github.com/grantwire/grantwire/internal/domain/repository"
	"github.com/grantwire/grantwire/internal/oauth2"
)

// Decision is the next action for the authorization flow.
type Decision string

const (
	// DecisionGranted continues to credential issuance.
	DecisionGranted Decision = "granted"
	// DecisionDenied terminates the flow with access_denied.
	DecisionDenied Decision = "denied"
	// DecisionNeedLogin redirects to the login page.
	DecisionNeedLogin Decision = "needs-login"
	// DecisionNeedConsent redirects to the consent page.
	DecisionNeedConsent Decision = "needs-consent"
	// DecisionNeedAccountSelect redirects to the account chooser.
	DecisionNeedAccountSelect Decision = "needs-account-selection"
)

// Session is the authenticated end-user state as seen by the hosting
// application's session layer.
type Session struct {
	Subject string

	// LoginPerformed marks that the user re-authenticated during this
	// authorization round, satisfying prompt=login.
	LoginPerformed bool
	// AccountSelectionPerformed marks that the account chooser ran during
	// this round, satisfying prompt=select_account.
	AccountSelectionPerformed bool
	// ConsentPerformed marks that the consent screen ran during this
	// round, satisfying prompt=consent.
	ConsentPerformed bool
}

// Context is the input to a decision.
type Context struct {
	// Prompts is the parsed prompt parameter (space separated on the wire).
	Prompts []string
	// Session is nil when no end user is authenticated.
	Session *Session
	// Consent is the stored consent record for (subject, client); nil when
	// none exists.
	Consent *repository.Consent
	// RequestedScopes are the scopes of the authorization request.
	RequestedScopes []string
	// Denied is set when the user rejected the consent screen this round.
	Denied bool
}

// ParsePrompts splits a prompt parameter into its values.
func ParsePrompts(prompt string) []string {
	return strings.Fields(prompt)
}

func has(prompts []string, v string) bool {
	for _, p := range prompts {
		if p == v {
			return true
		}
	}
	return false
}

// Decide runs the prompt state machine: start -> {needs-login,
// needs-consent, needs-account-selection, decided}. prompt=none never
// yields a redirecting decision; any missing interaction fails with the
// matching *_required taxonomy error.
func Decide(c Context) (Decision, error) {
	none := has(c.Prompts, oauth2.PromptNone)
	if none && len(c.Prompts) > 1 {
		// "none" is only valid alone (OIDC Core §3.1.2.1).
		return "", oauth2.E(oauth2.ErrInvalidRequest, "prompt none cannot be combined with other values")
	}

	if c.Denied {
		return DecisionDenied, nil
	}

	needLogin := c.Session == nil ||
		(has(c.Prompts, oauth2.PromptLogin) && !c.Session.LoginPerformed)
	if needLogin {
		if none {
			return "", oauth2.ErrNeedLogin
		}
		return DecisionNeedLogin, nil
	}

	if has(c.Prompts, oauth2.PromptSelectAccount) && !c.Session.AccountSelectionPerformed {
		if none {
			return "", oauth2.ErrNeedAccountSelect
		}
		return DecisionNeedAccountSelect, nil
	}

	needConsent := c.Consent == nil || !c.Consent.Covers(c.RequestedScopes) ||
		(has(c.Prompts, oauth2.PromptConsent) && !c.Session.ConsentPerformed)
	if needConsent {
		if none {
			return "", oauth2.ErrNeedConsent
		}
		return DecisionNeedConsent, nil
	}

	return DecisionGranted, nil
}
