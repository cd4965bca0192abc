// Package session owns passcode login against the user roster and keeps
// the signed-in actor in the device keyring.
package session

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/travel-crm/internal/credential"
	"github.com/nhle/travel-crm/internal/model"
)

// TTL is how long a session stays valid after login.
const TTL = 7 * 24 * time.Hour

var (
	ErrInvalidPasscode = errors.New("invalid passcode")
	ErrSessionExpired  = errors.New("session expired")
	ErrNoSession       = errors.New("not logged in")
)

// Secrets is the key-value storage sessions live in.
type Secrets interface {
	Lookup(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Session is a signed-in actor.
type Session struct {
	Token     string      `json:"token"`
	Actor     model.Actor `json:"actor"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Provider logs users in and out.
type Provider struct {
	secrets Secrets
	roster  []model.User
	now     func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New returns a Provider over the given roster.
func New(secrets Secrets, roster []model.User, opts ...Option) *Provider {
	p := &Provider{
		secrets: secrets,
		roster:  roster,
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Login signs in the roster user whose passcode matches and persists the
// session. Any previous session is replaced.
func (p *Provider) Login(passcode string) (Session, error) {
	passcode = strings.TrimSpace(passcode)
	if passcode == "" {
		return Session{}, ErrInvalidPasscode
	}

	var match *model.User
	for i := range p.roster {
		u := &p.roster[i]
		if subtle.ConstantTimeCompare([]byte(u.Passcode), []byte(passcode)) == 1 {
			match = u
			break
		}
	}
	if match == nil {
		return Session{}, ErrInvalidPasscode
	}

	now := p.now().UTC()
	s := Session{
		Token:     uuid.NewString(),
		Actor:     match.Actor(),
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}

	data, err := json.Marshal(s)
	if err != nil {
		return Session{}, fmt.Errorf("encoding session: %w", err)
	}
	if err := p.secrets.Set(credential.KeySession, string(data)); err != nil {
		return Session{}, fmt.Errorf("saving session: %w", err)
	}
	return s, nil
}

// Current returns the stored session. An expired session is removed and
// reported as ErrSessionExpired.
func (p *Provider) Current() (Session, error) {
	raw, ok, err := p.secrets.Lookup(credential.KeySession)
	if err != nil {
		return Session{}, fmt.Errorf("loading session: %w", err)
	}
	if !ok {
		return Session{}, ErrNoSession
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		_ = p.secrets.Delete(credential.KeySession)
		return Session{}, ErrNoSession
	}

	if !p.now().Before(s.ExpiresAt) {
		if err := p.secrets.Delete(credential.KeySession); err != nil {
			return Session{}, fmt.Errorf("clearing expired session: %w", err)
		}
		return Session{}, ErrSessionExpired
	}
	return s, nil
}

// Actor returns the signed-in actor.
func (p *Provider) Actor() (model.Actor, error) {
	s, err := p.Current()
	if err != nil {
		return model.Actor{}, err
	}
	return s.Actor, nil
}

// Logout clears the stored session.
func (p *Provider) Logout() error {
	if err := p.secrets.Delete(credential.KeySession); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Theme returns the stored theme preference, or fallback.
func (p *Provider) Theme(fallback string) string {
	name, ok, err := p.secrets.Lookup(credential.KeyTheme)
	if err != nil || !ok || name == "" {
		return fallback
	}
	return name
}

// SetTheme stores the theme preference.
func (p *Provider) SetTheme(name string) error {
	return p.secrets.Set(credential.KeyTheme, name)
}
