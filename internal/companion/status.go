// Package companion drives the companion service session: the login and
// verification exchange, the throttled profile fetch and the update cycle
// that turns a profile into facts.
package companion

import (
	"errors"

	"ocellus/internal/profile"
)

// Status is the outward result of a login, verify or update.
type Status string

const (
	StatusOK                Status = "ok"
	StatusThrottled         Status = "throttled"
	StatusTransportError    Status = "transport_error"
	StatusNeedsCredentials  Status = "needs_credentials"
	StatusNeedsVerification Status = "needs_verification"
	StatusReauthRequired    Status = "reauth_required"
	StatusMalformedResponse Status = "malformed_response"
	StatusNormError         Status = "norm_error"
	StatusLocationUnknown   Status = "location_unknown"
)

var (
	ErrTransport         = errors.New("companion transport failed")
	ErrNeedsCredentials  = errors.New("companion credentials required")
	ErrNeedsVerification = errors.New("companion verification code required")
	ErrReauthRequired    = errors.New("companion session lapsed")
	ErrMalformedResponse = errors.New("companion response is not valid JSON")
	ErrLocationUnknown   = profile.ErrLocationUnknown
)

// Classify maps an error from this package (or from profile normalization)
// onto a Status. A nil error is StatusOK.
func Classify(err error) Status {
	var ne *profile.NormError
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrTransport):
		return StatusTransportError
	case errors.Is(err, ErrNeedsCredentials):
		return StatusNeedsCredentials
	case errors.Is(err, ErrNeedsVerification):
		return StatusNeedsVerification
	case errors.Is(err, ErrReauthRequired):
		return StatusReauthRequired
	case errors.Is(err, ErrMalformedResponse):
		return StatusMalformedResponse
	case errors.As(err, &ne):
		return StatusNormError
	case errors.Is(err, ErrLocationUnknown):
		return StatusLocationUnknown
	}
	return StatusTransportError
}
