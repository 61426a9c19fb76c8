package companion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ocellus/internal/logging"
	"ocellus/internal/profile"
	"ocellus/internal/transport"
)

// DefaultCooldown is the minimum spacing between profile downloads.
const DefaultCooldown = 60 * time.Second

const markerReauth = "Please correct the following"

// CooldownState is the fetch cache. Only the owning Client touches it.
type CooldownState struct {
	LastFetch time.Time
	Profile   *profile.Value
	Facts     *profile.Facts
}

// Throttled reports whether a fetch at now falls inside the cooldown window.
func (s *CooldownState) Throttled(now time.Time, cooldown time.Duration) bool {
	return !s.LastFetch.IsZero() && now.Sub(s.LastFetch) < cooldown
}

// FetchResult is what one Fetch produced.
type FetchResult struct {
	// Session is the session to keep. It is the input session when no
	// exchange happened or the exchange failed.
	Session  transport.Session
	Status   Status
	Profile  *profile.Value
	Raw      string
	Injected bool
}

// Fetcher downloads and parses the profile document.
type Fetcher struct {
	transport  transport.Transport
	profileURL string
	cooldown   time.Duration
	override   *string
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithCooldown changes the cooldown window.
func WithCooldown(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.cooldown = d }
}

// WithOverride serves body instead of calling the service. Cooldown and
// session rotation are bypassed.
func WithOverride(body string) FetcherOption {
	return func(f *Fetcher) { f.override = &body }
}

// NewFetcher creates a fetcher for profileURL.
func NewFetcher(t transport.Transport, profileURL string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{transport: t, profileURL: profileURL, cooldown: DefaultCooldown}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Cooldown returns the configured window.
func (f *Fetcher) Cooldown() time.Duration { return f.cooldown }

// Fetch returns the profile, from cache when inside the cooldown window.
// Failures leave state.Profile untouched; a failed exchange still counts
// against the cooldown.
func (f *Fetcher) Fetch(ctx context.Context, session transport.Session, state *CooldownState, now time.Time) (FetchResult, error) {
	if f.override != nil {
		logging.FetchDebug("serving injected profile (%d bytes)", len(*f.override))
		res := FetchResult{Session: session, Injected: true, Raw: *f.override}
		return f.parse(res, state)
	}

	if state.Throttled(now, f.cooldown) {
		logging.FetchDebug("cooldown: %s since last fetch", now.Sub(state.LastFetch).Round(time.Second))
		return FetchResult{Session: session, Status: StatusThrottled, Profile: state.Profile}, nil
	}

	state.LastFetch = now
	resp, err := f.transport.Send(ctx, transport.Request{URL: f.profileURL}, session)
	if err != nil {
		logging.FetchWarn("profile request failed: %v", err)
		return FetchResult{Session: session, Status: StatusTransportError}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	logging.FetchDebug("profile response: %s (%d bytes)", resp.Status, len(resp.Body))

	return f.parse(FetchResult{Session: resp.Session, Raw: resp.Body}, state)
}

func (f *Fetcher) parse(res FetchResult, state *CooldownState) (FetchResult, error) {
	if res.Raw == "" || strings.Contains(res.Raw, markerReauth) {
		logging.FetchWarn("profile response is a login page, session lapsed")
		res.Status = StatusReauthRequired
		return res, ErrReauthRequired
	}

	v, err := profile.Parse([]byte(res.Raw))
	if err != nil {
		res.Status = StatusMalformedResponse
		return res, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	state.Profile = &v
	res.Profile = &v
	res.Status = StatusOK
	return res, nil
}
