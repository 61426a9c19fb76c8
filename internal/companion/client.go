package companion

import (
	"context"
	"errors"
	"sync"
	"time"

	"ocellus/internal/logging"
	"ocellus/internal/mangle"
	"ocellus/internal/profile"
	"ocellus/internal/store"
	"ocellus/internal/transport"
)

// SessionStore keeps the rotating cookie bundle between runs.
type SessionStore interface {
	LoadSession(ctx context.Context, account string) (transport.Session, error)
	SaveSession(ctx context.Context, account string, s transport.Session) error
}

// ProfileArchive receives every raw profile body that parsed.
type ProfileArchive interface {
	ArchiveProfile(ctx context.Context, body string, at time.Time) error
}

// VisitLog records the systems the commander docked in.
type VisitLog interface {
	RecordVisit(ctx context.Context, system string, at time.Time) error
	VisitedSystems(ctx context.Context) ([]store.Visit, error)
}

// SnapshotHistory returns the newest archived profile body. A restarted
// client seeds its cooldown and last good facts from it.
type SnapshotHistory interface {
	LatestSnapshot(ctx context.Context) (store.Snapshot, bool, error)
}

// FactBase receives each pass of facts. *mangle.Engine implements it.
type FactBase interface {
	ReplaceFacts(ctx context.Context, scope string, facts []mangle.Fact) error
}

// Endpoints are the service URLs.
type Endpoints struct {
	Login   string
	Confirm string
	Profile string
}

// Deps are the collaborators a Client talks to. Only Transport is required.
type Deps struct {
	Transport transport.Transport
	Sessions  SessionStore
	Archive   ProfileArchive
	Visits    VisitLog
	History   SnapshotHistory
	Facts     FactBase
	Systems   profile.SystemLookup
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Endpoints   Endpoints
	Credentials Credentials
	Cooldown    time.Duration
	// Override, when non-nil, replaces every profile download with its body.
	Override *string
	// Now defaults to time.Now.
	Now func() time.Time
}

// UpdateResult is the outcome of one update cycle.
type UpdateResult struct {
	// Facts are this pass's facts, or the last good ones when Stale.
	// Nil when nothing good was ever read.
	Facts  *profile.Facts
	Status Status
	Stale  bool
	// ShouldPublish is set when fresh facts show the commander docked at a
	// known starport. Dispatching the upload is the caller's decision.
	ShouldPublish bool
	Raw           string
}

// Client owns one account's session and fetch cache. All methods are safe
// for concurrent use; calls are serialized.
type Client struct {
	mu sync.Mutex

	creds      Credentials
	auth       *Authenticator
	fetcher    *Fetcher
	normalizer *profile.Normalizer
	deps       Deps
	now        func() time.Time

	session  transport.Session
	state    AuthState
	cooldown CooldownState
}

// NewClient creates a client and restores the saved session, if any.
func NewClient(ctx context.Context, cfg ClientConfig, deps Deps) (*Client, error) {
	if deps.Transport == nil {
		return nil, errors.New("companion: transport is required")
	}
	opts := []FetcherOption{}
	if cfg.Cooldown > 0 {
		opts = append(opts, WithCooldown(cfg.Cooldown))
	}
	if cfg.Override != nil {
		opts = append(opts, WithOverride(*cfg.Override))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		creds:      cfg.Credentials,
		auth:       NewAuthenticator(deps.Transport, cfg.Endpoints.Login, cfg.Endpoints.Confirm),
		fetcher:    NewFetcher(deps.Transport, cfg.Endpoints.Profile, opts...),
		normalizer: profile.NewNormalizer(deps.Systems),
		deps:       deps,
		now:        now,
	}

	if deps.Sessions != nil && cfg.Credentials.Email != "" {
		sess, err := deps.Sessions.LoadSession(ctx, cfg.Credentials.Email)
		if err != nil {
			return nil, err
		}
		c.session = sess
		if !sess.IsZero() {
			logging.Auth("restored session with %d cookies", sess.Len())
		}
	}
	if cfg.Override == nil {
		c.restoreCooldown(ctx)
	}
	return c, nil
}

// restoreCooldown stamps the cooldown with the last archived download so a
// new process does not refetch inside the window, and keeps that body's
// facts as the last good ones.
func (c *Client) restoreCooldown(ctx context.Context) {
	if c.deps.History == nil {
		return
	}
	snap, ok, err := c.deps.History.LatestSnapshot(ctx)
	if err != nil {
		logging.FetchWarn("could not read last snapshot: %v", err)
		return
	}
	if !ok {
		return
	}
	c.cooldown.LastFetch = snap.FetchedAt

	v, err := profile.Parse([]byte(snap.Body))
	if err != nil {
		logging.FetchWarn("last snapshot does not parse: %v", err)
		return
	}
	c.cooldown.Profile = &v
	facts, nerr := c.normalizer.Normalize(v)
	if facts == nil {
		logging.NormalizeWarn("last snapshot rejected: %v", nerr)
		return
	}
	c.cooldown.Facts = facts
	logging.Fetch("restored profile fetched at %s", snap.FetchedAt.Local().Format(time.RFC3339))
}

// State returns the current position in the login flow.
func (c *Client) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the current cookie bundle.
func (c *Client) Session() transport.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Login runs the login exchange with the configured credentials.
func (c *Client) Login(ctx context.Context) (AuthOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, outcome, err := c.auth.Login(ctx, c.session, c.creds)
	c.adoptSession(ctx, sess)
	c.state = stateFor(outcome)
	return outcome, err
}

// Verify submits the verification code.
func (c *Client) Verify(ctx context.Context, code string) (AuthOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, outcome, err := c.auth.Verify(ctx, c.session, code)
	c.adoptSession(ctx, sess)
	c.state = stateFor(outcome)
	return outcome, err
}

// Update fetches (or reuses) the profile and normalizes it into facts. The
// returned error, when non-nil, classifies with Classify; the result is
// always usable.
func (c *Client) Update(ctx context.Context) (UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	res, err := c.fetcher.Fetch(ctx, c.session, &c.cooldown, now)
	if !res.Injected {
		c.adoptSession(ctx, res.Session)
	}

	switch res.Status {
	case StatusThrottled:
		return UpdateResult{Facts: c.cooldown.Facts, Status: StatusThrottled}, nil
	case StatusOK:
	default:
		if res.Status == StatusReauthRequired {
			c.state = StateStart
		}
		c.assertStale(ctx, res.Status)
		return UpdateResult{Facts: c.cooldown.Facts, Status: res.Status, Stale: true, Raw: res.Raw}, err
	}

	facts, nerr := c.normalizer.Normalize(*res.Profile)
	status := Classify(nerr)
	if facts == nil {
		logging.NormalizeWarn("profile rejected: %v", nerr)
		c.assertStale(ctx, status)
		return UpdateResult{Facts: c.cooldown.Facts, Status: status, Stale: true, Raw: res.Raw}, nerr
	}
	if nerr != nil {
		logging.NormalizeWarn("profile read with problems: %v", nerr)
	} else {
		logging.Normalize("profile read for %s, %d ship(s)", facts.Commander, facts.NumberOfShips)
	}

	c.cooldown.Facts = facts
	c.state = StateAuthenticated
	c.replaceFacts(ctx, mangle.ScopeProfile, facts.MangleFacts(string(status)))

	if !res.Injected {
		c.archive(ctx, res.Raw, now)
		if facts.Docked && facts.CurrentSystem != nil {
			c.recordVisit(ctx, *facts.CurrentSystem, now)
		}
	}

	return UpdateResult{
		Facts:         facts,
		Status:        status,
		ShouldPublish: facts.Docked && facts.CurrentStarport != nil,
		Raw:           res.Raw,
	}, nerr
}

// adoptSession replaces the held session and persists it. The old session is
// never used again.
func (c *Client) adoptSession(ctx context.Context, sess transport.Session) {
	c.session = sess
	if c.deps.Sessions == nil || c.creds.Email == "" {
		return
	}
	if err := c.deps.Sessions.SaveSession(ctx, c.creds.Email, sess); err != nil {
		logging.AuthWarn("failed to persist session: %v", err)
	}
}

// assertStale re-asserts the last good facts under a failure status so
// queries can tell they are not current.
func (c *Client) assertStale(ctx context.Context, status Status) {
	if c.cooldown.Facts != nil {
		c.replaceFacts(ctx, mangle.ScopeProfile, c.cooldown.Facts.MangleFacts(string(status)))
		return
	}
	c.replaceFacts(ctx, mangle.ScopeProfile, []mangle.Fact{
		{Predicate: "profile_status", Args: []interface{}{"/" + string(status)}},
	})
}

func (c *Client) replaceFacts(ctx context.Context, scope string, facts []mangle.Fact) {
	if c.deps.Facts == nil {
		return
	}
	if err := c.deps.Facts.ReplaceFacts(ctx, scope, facts); err != nil {
		logging.Get(logging.CategoryKernel).Error("replace %s facts: %v", scope, err)
	}
}

func (c *Client) archive(ctx context.Context, raw string, at time.Time) {
	if c.deps.Archive == nil {
		return
	}
	if err := c.deps.Archive.ArchiveProfile(ctx, raw, at); err != nil {
		logging.Get(logging.CategoryStore).Warn("archive profile: %v", err)
	}
}

func (c *Client) recordVisit(ctx context.Context, system string, at time.Time) {
	if c.deps.Visits == nil {
		return
	}
	if err := c.deps.Visits.RecordVisit(ctx, system, at); err != nil {
		logging.Get(logging.CategoryStore).Warn("record visit: %v", err)
		return
	}
	visits, err := c.deps.Visits.VisitedSystems(ctx)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("list visits: %v", err)
		return
	}
	c.replaceFacts(ctx, mangle.ScopeVisited, VisitFacts(visits))
}

// VisitFacts renders the docking history for the fact base.
func VisitFacts(visits []store.Visit) []mangle.Fact {
	out := make([]mangle.Fact, 0, len(visits))
	for _, v := range visits {
		out = append(out, mangle.Fact{Predicate: "visited_system", Args: []interface{}{v.Name, v.Visits}})
	}
	return out
}
