package companion

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"ocellus/internal/logging"
	"ocellus/internal/transport"
)

// Markers the service embeds in its HTML. The exchange has no status codes
// worth reading, so these substrings are the whole protocol.
const (
	markerLoginForm        = "Login"
	markerVerification     = "Verification"
	markerPassword         = "password"
	markerVerificationCode = "Verification Code"
	markerPleaseCorrect    = "Please correct"
)

// Credentials are the account login. The verification code travels
// separately.
type Credentials struct {
	Email    string
	Password string
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}

// AuthOutcome is the result of one login or verify exchange.
type AuthOutcome int

const (
	OutcomeNeedsCredentials AuthOutcome = iota
	OutcomeNeedsVerification
	OutcomeAuthenticated
	OutcomeTransportError
)

func (o AuthOutcome) String() string {
	switch o {
	case OutcomeNeedsCredentials:
		return "needs_credentials"
	case OutcomeNeedsVerification:
		return "needs_verification"
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeTransportError:
		return "transport_error"
	}
	return fmt.Sprintf("AuthOutcome(%d)", int(o))
}

// Status maps the outcome onto the shared status taxonomy.
func (o AuthOutcome) Status() Status {
	switch o {
	case OutcomeNeedsCredentials:
		return StatusNeedsCredentials
	case OutcomeNeedsVerification:
		return StatusNeedsVerification
	case OutcomeTransportError:
		return StatusTransportError
	}
	return StatusOK
}

// Err returns the sentinel for outcomes that need user action, nil for
// Authenticated.
func (o AuthOutcome) Err() error {
	switch o {
	case OutcomeNeedsCredentials:
		return ErrNeedsCredentials
	case OutcomeNeedsVerification:
		return ErrNeedsVerification
	case OutcomeTransportError:
		return ErrTransport
	}
	return nil
}

// AuthState is where the account sits in the login flow.
type AuthState int

const (
	StateStart AuthState = iota
	StateAwaitingCredentials
	StateAwaitingVerification
	StateAuthenticated
	StateFailed
)

func (s AuthState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAwaitingCredentials:
		return "awaiting_credentials"
	case StateAwaitingVerification:
		return "awaiting_verification"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("AuthState(%d)", int(s))
}

// stateFor derives the next state from an exchange outcome.
func stateFor(o AuthOutcome) AuthState {
	switch o {
	case OutcomeNeedsCredentials:
		return StateAwaitingCredentials
	case OutcomeNeedsVerification:
		return StateAwaitingVerification
	case OutcomeAuthenticated:
		return StateAuthenticated
	}
	return StateFailed
}

// Authenticator runs the login and verification exchanges. It holds no
// session; callers pass the current one in and keep the one returned.
type Authenticator struct {
	transport  transport.Transport
	loginURL   string
	confirmURL string
}

// NewAuthenticator creates an authenticator for the given endpoints.
func NewAuthenticator(t transport.Transport, loginURL, confirmURL string) *Authenticator {
	return &Authenticator{transport: t, loginURL: loginURL, confirmURL: confirmURL}
}

// Login drives the login page. Missing credentials short-circuit without
// touching the network. A transport failure returns the input session.
func (a *Authenticator) Login(ctx context.Context, session transport.Session, creds Credentials) (transport.Session, AuthOutcome, error) {
	if !creds.Complete() {
		logging.AuthDebug("login skipped: credentials incomplete")
		return session, OutcomeNeedsCredentials, nil
	}

	resp, err := a.send(ctx, transport.Request{URL: a.loginURL}, session)
	if err != nil {
		return session, OutcomeTransportError, err
	}
	session = resp.Session
	if !strings.Contains(resp.Body, markerLoginForm) {
		logging.Auth("login page absent, session already authenticated")
		return session, OutcomeAuthenticated, nil
	}

	form := url.Values{}
	form.Set("email", creds.Email)
	form.Set("password", creds.Password)
	resp, err = a.send(ctx, transport.Request{URL: a.loginURL, PostURL: a.loginURL, Form: form}, session)
	if err != nil {
		return session, OutcomeTransportError, err
	}
	session = resp.Session

	var outcome AuthOutcome
	switch {
	case strings.Contains(resp.Body, markerVerification):
		outcome = OutcomeNeedsVerification
	case strings.Contains(resp.Body, markerPassword):
		outcome = OutcomeNeedsCredentials
	default:
		outcome = OutcomeAuthenticated
	}
	logging.Auth("login: %s", outcome)
	return session, outcome, nil
}

// Verify submits the emailed verification code.
func (a *Authenticator) Verify(ctx context.Context, session transport.Session, code string) (transport.Session, AuthOutcome, error) {
	form := url.Values{}
	form.Set("code", code)
	resp, err := a.send(ctx, transport.Request{URL: a.confirmURL, PostURL: a.confirmURL, Form: form}, session)
	if err != nil {
		return session, OutcomeTransportError, err
	}

	var outcome AuthOutcome
	switch {
	case strings.Contains(resp.Body, markerVerificationCode):
		outcome = OutcomeNeedsVerification
	case strings.Contains(resp.Body, markerPleaseCorrect):
		outcome = OutcomeNeedsCredentials
	default:
		outcome = OutcomeAuthenticated
	}
	logging.Auth("verify: %s", outcome)
	return resp.Session, outcome, nil
}

func (a *Authenticator) send(ctx context.Context, req transport.Request, session transport.Session) (transport.Response, error) {
	resp, err := a.transport.Send(ctx, req, session)
	if err != nil {
		logging.AuthWarn("%s %s failed: %v", req.Method(), req.URL, err)
		return transport.Response{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	logging.AuthDebug("%s %s: %s", req.Method(), req.URL, resp.Status)
	return resp, nil
}
