package session

import (
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/credential"
	"github.com/nhle/travel-crm/internal/model"
)

var roster = []model.User{
	{Name: "Admin", Role: model.RoleAdmin, Passcode: "0000"},
	{Name: "Priya", Role: model.RoleAgent, Passcode: "4821"},
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newProvider(t *testing.T) (*Provider, *clock, *credential.Vault) {
	t.Helper()
	c := &clock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))
	return New(vault, roster, WithClock(c.now)), c, vault
}

func TestLoginAndCurrent(t *testing.T) {
	p, _, vault := newProvider(t)

	s, err := p.Login(" 4821 ")
	require.NoError(t, err)
	assert.Equal(t, model.Actor{Name: "Priya", Role: model.RoleAgent}, s.Actor)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, s.CreatedAt.Add(TTL), s.ExpiresAt)

	raw, err := vault.Get(credential.KeySession)
	require.NoError(t, err)
	assert.Contains(t, raw, s.Token)

	actor, err := p.Actor()
	require.NoError(t, err)
	assert.Equal(t, "Priya", actor.Name)
}

func TestLoginRejectsUnknownPasscode(t *testing.T) {
	p, _, _ := newProvider(t)

	_, err := p.Login("9999")
	assert.ErrorIs(t, err, ErrInvalidPasscode)

	_, err = p.Login("")
	assert.ErrorIs(t, err, ErrInvalidPasscode)

	_, err = p.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionExpires(t *testing.T) {
	p, c, vault := newProvider(t)

	_, err := p.Login("0000")
	require.NoError(t, err)

	c.t = c.t.Add(TTL - time.Minute)
	_, err = p.Current()
	require.NoError(t, err)

	c.t = c.t.Add(time.Minute)
	_, err = p.Current()
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, ok, err := vault.Lookup(credential.KeySession)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLogout(t *testing.T) {
	p, _, _ := newProvider(t)

	_, err := p.Login("0000")
	require.NoError(t, err)
	require.NoError(t, p.Logout())

	_, err = p.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCorruptSessionIsDiscarded(t *testing.T) {
	p, _, vault := newProvider(t)
	require.NoError(t, vault.Set(credential.KeySession, "{not json"))

	_, err := p.Current()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTheme(t *testing.T) {
	p, _, _ := newProvider(t)

	assert.Equal(t, "default", p.Theme("default"))
	require.NoError(t, p.SetTheme("dark"))
	assert.Equal(t, "dark", p.Theme("default"))
}
