// Package session owns the api credential and the cached verdict on whether
// it is accepted. every network call of the companion is gated on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"xsheet-companion/lib/telemetry"
	"xsheet-companion/lib/tokenstore"
	"xsheet-companion/lib/ui"
	"xsheet-companion/lib/xsheet"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("xsheet.services.session")

var ErrEmptyCredential = errors.New("api token must not be empty")

type ProfileFetcher interface {
	FetchProfile(ctx context.Context, credential string) (xsheet.Profile, error)
}

// Identity is the outcome of the last profile verification.
type Identity struct {
	Authenticated  bool
	DisplayName    string
	AccountID      string
	LastVerifiedAt time.Time
}

func (i Identity) Account() ui.Account {
	return ui.Account{
		LoggedIn: i.Authenticated,
		Name:     i.DisplayName,
		ID:       i.AccountID,
	}
}

type Options struct {
	// how long a verdict is trusted, defaults to 5 minutes.
	FreshFor time.Duration
	// how often the settings window is polled while regenerating, defaults
	// to 1 second.
	PollInterval time.Duration
	SettingsURL  string
	// defaults to time.Now.
	Now func() time.Time
}

type verdict struct {
	authenticated bool
	profile       xsheet.Profile
	verifiedAt    time.Time
}

type Session struct {
	store     tokenstore.Store
	profiles  ProfileFetcher
	presenter ui.Presenter
	opts      Options

	// verdicts are keyed by credential, transient failures are never added.
	verdicts *expirable.LRU[string, verdict]

	mu       sync.RWMutex
	identity Identity

	promptMu  sync.Mutex
	prompting bool
}

func New(store tokenstore.Store, profiles ProfileFetcher, presenter ui.Presenter, opts Options) *Session {
	if opts.FreshFor <= 0 {
		opts.FreshFor = 5 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		store:     store,
		profiles:  profiles,
		presenter: presenter,
		opts:      opts,
		verdicts:  expirable.NewLRU[string, verdict](16, nil, opts.FreshFor),
	}
}

// Identity returns the cached identity without verifying it.
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) setIdentity(authenticated bool, profile xsheet.Profile, verifiedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Identity{
		Authenticated:  authenticated,
		DisplayName:    profile.Name,
		AccountID:      profile.ID,
		LastVerifiedAt: s.identity.LastVerifiedAt,
	}
	if verifiedAt.After(next.LastVerifiedAt) {
		next.LastVerifiedAt = verifiedAt
	}
	s.identity = next
}

// Credential returns the stored credential. when there is none it asks the
// user for one without waiting for the answer.
func (s *Session) Credential(ctx context.Context) (string, bool) {
	credential, ok, err := s.store.Get(ctx, tokenstore.CredentialKey)
	if err != nil {
		slog.WarnContext(ctx, "failed to read credential", "err", err)
	}
	if ok {
		return credential, true
	}
	s.RequestCredential(ctx)
	return "", false
}

// RequestCredential shows the credential prompt, prefilled with the stored
// credential. at most one prompt is outstanding at a time.
func (s *Session) RequestCredential(ctx context.Context) {
	s.promptMu.Lock()
	if s.prompting {
		s.promptMu.Unlock()
		return
	}
	s.prompting = true
	s.promptMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	current, _, _ := s.store.Get(ctx, tokenstore.CredentialKey)

	s.presenter.RequestCredential(
		ctx,
		s.Identity().Account(),
		current,
		func(credential string) {
			s.promptDone()
			err := s.SaveCredential(ctx, credential)
			if err != nil {
				slog.WarnContext(ctx, "failed to save credential", "err", err)
			}
		},
		s.promptDone,
	)
}

func (s *Session) promptDone() {
	s.promptMu.Lock()
	defer s.promptMu.Unlock()
	s.prompting = false
}

// SaveCredential stores credential and verifies it.
func (s *Session) SaveCredential(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		s.presenter.Notify(ctx, ui.LevelError, "Please enter an API token.")
		return ErrEmptyCredential
	}

	err := s.store.Set(ctx, tokenstore.CredentialKey, credential)
	if err != nil {
		s.presenter.Notify(ctx, ui.LevelError, "Failed to save the API token.")
		return fmt.Errorf("store credential: %w", err)
	}
	s.verdicts.Purge()
	s.presenter.Notify(ctx, ui.LevelSuccess, "API token saved.")

	if s.IsLoggedIn(ctx) {
		s.presenter.Notify(ctx, ui.LevelInfo, fmt.Sprintf("Logged in as %s.", s.Identity().Account()))
	}
	return nil
}

// IsLoggedIn reports whether the stored credential is accepted by the api,
// trusting a verdict for FreshFor.
func (s *Session) IsLoggedIn(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "IsLoggedIn")
	defer span.End()

	credential, ok := s.Credential(ctx)
	if !ok {
		s.setIdentity(false, xsheet.Profile{}, time.Time{})
		span.SetAttributes(attribute.Bool("credential", false))
		return false
	}

	cached, hit := s.verdicts.Get(credential)
	if hit && s.opts.Now().Sub(cached.verifiedAt) < s.opts.FreshFor {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached.authenticated
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	profile, err := s.profiles.FetchProfile(ctx, credential)
	now := s.opts.Now()
	switch {
	case err == nil:
		s.verdicts.Add(credential, verdict{authenticated: true, profile: profile, verifiedAt: now})
		s.setIdentity(true, profile, now)
		return true
	case errors.Is(err, xsheet.ErrUnauthorized):
		s.verdicts.Add(credential, verdict{authenticated: false, verifiedAt: now})
		s.setIdentity(false, xsheet.Profile{}, now)
		s.showAuthError(ctx, "Your API token was rejected. Please enter a valid token.")
		return false
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to verify credential")
		slog.WarnContext(ctx, "failed to verify credential", "err", err)
		s.verdicts.Remove(credential)
		s.setIdentity(false, xsheet.Profile{}, time.Time{})
		return false
	}
}

// ReportUnauthorized is called when the api rejected the credential outside
// of verification. the cached verdict is dropped and the repair surface shown.
func (s *Session) ReportUnauthorized(ctx context.Context, message string) {
	s.verdicts.Purge()
	if message == "" {
		message = "Your API token was rejected. Please enter a valid token."
	}
	s.showAuthError(ctx, message)
}

func (s *Session) showAuthError(ctx context.Context, message string) {
	ctx = context.WithoutCancel(ctx)
	s.presenter.ShowAuthError(ctx, message, ui.AuthActions{
		Retry: func() {
			s.verdicts.Purge()
			if s.IsLoggedIn(ctx) {
				s.presenter.Notify(ctx, ui.LevelSuccess, fmt.Sprintf("Logged in as %s.", s.Identity().Account()))
			}
		},
		Regenerate: func() {
			err := s.Regenerate(ctx)
			if err != nil {
				slog.WarnContext(ctx, "regenerate credential", "err", err)
			}
		},
		OpenSettings: func() {
			_, err := s.presenter.OpenURL(ctx, s.opts.SettingsURL)
			if err != nil {
				slog.WarnContext(ctx, "failed to open settings", "err", err)
			}
		},
	})
}

// Regenerate opens the settings page where a new credential can be issued,
// waits for the user to close it, then asks for the new credential.
func (s *Session) Regenerate(ctx context.Context) error {
	window, err := s.presenter.OpenURL(ctx, s.opts.SettingsURL)
	if err != nil {
		s.RequestCredential(ctx)
		return fmt.Errorf("open settings: %w", err)
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		closed, err := window.Closed(ctx)
		if err != nil {
			slog.DebugContext(ctx, "failed to poll settings window", "err", err)
		}
		if closed || err != nil {
			break
		}
	}
	s.RequestCredential(ctx)
	return nil
}
